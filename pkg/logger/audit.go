package logger

import (
	"errors"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultAuditMaxSizeMB  = 100
	defaultAuditMaxBackups = 7
	defaultAuditMaxAgeDays = 30
)

func buildAuditWriter(cfg AuditConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultAuditMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultAuditMaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaultAuditMaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}, nil
}
