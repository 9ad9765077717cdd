package observability

import (
	"math"
	"testing"
	"time"

	"github.com/smallbiznis/promosync/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigReadsApplicationConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      " promosync-worker ",
		AppVersion:   "1.2.3",
		Environment:  "production",
		OTLPEndpoint: "otel:4318",
		Observability: config.ObservabilityConfig{
			LogLevel:          "WARN",
			LogFormat:         "console",
			OtelEnabled:       true,
			OtelProtocol:      "http/protobuf",
			OtelSamplingRatio: 0.5,
			DBLogLevel:        "info",
			DBSlowThreshold:   time.Second,
		},
	})

	assert.Equal(t, "promosync-worker", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "otel:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.Equal(t, "info", cfg.DBLogLevel)
	assert.Equal(t, time.Second, cfg.DBSlowThreshold)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:   "local",
		Observability: config.ObservabilityConfig{OtelEnabled: true, OtelSamplingRatio: math.NaN()},
	})

	assert.Equal(t, "promosync", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.Equal(t, "warn", cfg.DBLogLevel)
	assert.False(t, cfg.OtelEnabled, "no endpoint disables export")
	assert.True(t, cfg.Debug())
}

func TestSamplingRatioBounds(t *testing.T) {
	assert.Equal(t, 0.0, samplingRatio(0))
	assert.Equal(t, 1.0, samplingRatio(1))
	assert.Equal(t, 0.1, samplingRatio(-0.5))
	assert.Equal(t, 0.1, samplingRatio(2))
}
