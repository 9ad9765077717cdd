package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/promosync/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObserved(level gormlogger.LogLevel, slow time.Duration) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), GormLoggerConfig{Level: level, SlowThreshold: slow}), logs
}

func query(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestParseGormLevel(t *testing.T) {
	level, err := ParseGormLevel("")
	require.NoError(t, err)
	assert.Equal(t, gormlogger.Warn, level)

	level, err = ParseGormLevel("OFF")
	require.NoError(t, err)
	assert.Equal(t, gormlogger.Silent, level)

	level, err = ParseGormLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, gormlogger.Info, level)

	_, err = ParseGormLevel("loud")
	assert.Error(t, err)
}

func TestTraceLogsErrorsWithShopContext(t *testing.T) {
	l, logs := newObserved(gormlogger.Warn, 0)
	ctx := obscontext.WithShop(context.Background(), "demo.myshopify.com")

	l.Trace(ctx, time.Now(), query("SELECT * FROM live_discounts WHERE shop = $1", 0), errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "db.query", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "demo.myshopify.com", fields["shop"])
	assert.Equal(t, "SELECT", fields["operation"])
	assert.Equal(t, "live_discounts", fields["table"])
	assert.Equal(t, "boom", fields["error"])
}

func TestTraceSkipsRecordNotFound(t *testing.T) {
	l, logs := newObserved(gormlogger.Warn, 0)
	l.Trace(context.Background(), time.Now(), query("SELECT * FROM discounts", 0), gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())
}

func TestTraceFlagsSlowQueries(t *testing.T) {
	l, logs := newObserved(gormlogger.Warn, time.Millisecond)
	l.Trace(context.Background(), time.Now().Add(-time.Second), query("UPDATE  live_discounts\n SET status = $1", 1), nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, true, fields["slow"])
	assert.Equal(t, "UPDATE live_discounts SET status = $1", fields["sql"])
	assert.Equal(t, int64(1), fields["rows"])
}

func TestTraceRespectsLevel(t *testing.T) {
	l, logs := newObserved(gormlogger.Warn, time.Hour)
	l.Trace(context.Background(), time.Now(), query("INSERT INTO discounts VALUES (1)", 1), nil)
	assert.Zero(t, logs.Len())

	l.LogMode(gormlogger.Info).Trace(context.Background(), time.Now(), query("INSERT INTO discounts VALUES (1)", 1), nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)

	l.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), query("SELECT 1", 1), errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}

func TestMessageFormatsGormOutput(t *testing.T) {
	l, logs := newObserved(gormlogger.Warn, 0)
	l.Info(context.Background(), "ignored %s", "info")
	l.Warn(context.Background(), "replacing callback %s", "gorm:create")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "replacing callback gorm:create", logs.All()[0].Message)
}
