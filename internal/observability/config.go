package observability

import (
	"math"
	"strings"
	"time"

	"github.com/smallbiznis/promosync/internal/config"
)

const (
	defaultServiceName   = "promosync"
	defaultSamplingRatio = 0.1
)

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	DBLogLevel      string
	DBSlowThreshold time.Duration
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             orDefault(obs.LogLevel, "info"),
		LogFormat:            orDefault(obs.LogFormat, "json"),
		OtelEnabled:          obs.OtelEnabled && strings.TrimSpace(cfg.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol(obs.OtelProtocol),
		OtelSamplingRatio:    samplingRatio(obs.OtelSamplingRatio),
		DBLogLevel:           orDefault(obs.DBLogLevel, "warn"),
		DBSlowThreshold:      obs.DBSlowThreshold,
	}
}

func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func orDefault(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}

// protocol accepts grpc and the http spellings of the OTLP exporters.
func protocol(raw string) string {
	switch orDefault(raw, "grpc") {
	case "http", "http/protobuf", "http/json":
		return "http"
	default:
		return "grpc"
	}
}

func samplingRatio(r float64) float64 {
	switch {
	case math.IsNaN(r) || r < 0 || r > 1:
		return defaultSamplingRatio
	default:
		return r
	}
}
