package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures query logging.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// ParseGormLevel maps silent, error, warn and info onto gorm levels.
func ParseGormLevel(raw string) (gormlogger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "silent", "off":
		return gormlogger.Silent, nil
	case "error":
		return gormlogger.Error, nil
	case "", "warn", "warning":
		return gormlogger.Warn, nil
	case "info", "debug":
		return gormlogger.Info, nil
	}
	return gormlogger.Silent, fmt.Errorf("invalid database log level %q", raw)
}

// GormLogger routes gorm output through zap with the request and shop
// fields of the query context. Missing rows are never logged: repositories
// treat them as a normal outcome.
type GormLogger struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &GormLogger{
		base:          base.Named("gorm"),
		level:         cfg.Level,
		slowThreshold: cfg.SlowThreshold,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < min {
		return
	}
	log := WithContext(ctx, l.base)
	if ce := log.Check(level, fmt.Sprintf(msg, data...)); ce != nil {
		ce.Write()
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	var level zapcore.Level
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		level = zapcore.ErrorLevel
	case slow && l.level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case l.level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.Join(strings.Fields(sql), " ")),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if slow {
		fields = append(fields, zap.Bool("slow", true))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	if ce := WithContext(ctx, l.base).Check(level, "db.query"); ce != nil {
		ce.Write(fields...)
	}
}

// ParamsFilter drops bound values so shop access tokens never reach the logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "OTHER"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i, token := range tokens {
		switch strings.ToUpper(token) {
		case "FROM", "INTO", "UPDATE":
			if i+1 < len(tokens) {
				return strings.Trim(tokens[i+1], "`\"();")
			}
		}
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
