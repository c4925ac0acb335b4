package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// gormZapAdapter 把 GORM 日志桥接到 Zap，慢查询与错误各走独立级别
type gormZapAdapter struct {
	zl            *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
	skipNotFound  bool
}

// newGormLogger 创建 GORM 日志适配器
func newGormLogger(zl *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) gormLogger.Interface {
	return &gormZapAdapter{
		zl:            zl,
		level:         level,
		slowThreshold: slowThreshold,
		skipNotFound:  true,
	}
}

// LogMode 返回指定级别的适配器副本
func (l *gormZapAdapter) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.zl.Sugar().Infof(msg, data...)
	}
}

func (l *gormZapAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.zl.Sugar().Warnf(msg, data...)
	}
}

func (l *gormZapAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.zl.Sugar().Errorf(msg, data...)
	}
}

// Trace 记录单条 SQL：出错记 Error，超过慢查询阈值记 Warn，其余 Debug
func (l *gormZapAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !(l.skipNotFound && errors.Is(err, gormLogger.ErrRecordNotFound)):
		l.zl.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		l.zl.Warn("SQL 慢查询", fields...)
	case l.level >= gormLogger.Info:
		l.zl.Debug("SQL 执行", fields...)
	}
}
