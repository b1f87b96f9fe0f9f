package database

import (
	"context"
	"errors"
	"time"

	"github.com/docindex-go/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold defines the threshold for slow statements
const SlowQueryThreshold = 500 * time.Millisecond

// GormLogger routes gorm's statement log through the service logger.
type GormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

func NewGormLogger(log logger.Logger, level string) *GormLogger {
	return &GormLogger{log: log.Named("gorm"), level: parseLevel(level)}
}

func parseLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{log: l.log, level: level}
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(msg, "args", args)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(msg, "args", args)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(msg, "args", args)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		// DDL races surface here too; callers decide whether they matter.
		l.log.Debug("statement failed", "sql", sql, "rows", rows, "duration", elapsed, "error", err)
	case elapsed > SlowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow statement", "sql", sql, "rows", rows, "duration", elapsed, "threshold", SlowQueryThreshold)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("statement", "sql", sql, "rows", rows, "duration", elapsed)
	}
}
