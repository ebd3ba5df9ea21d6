// Package logging provides the categorized zap logger used across Numa.
// Each subsystem gets a named sub-logger so log lines can be filtered by
// origin (ledger, fim, orchestrator, server).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryLedger       Category = "ledger"
	CategoryFIM          Category = "fim"
	CategorySTT          Category = "stt"
	CategoryReasoning    Category = "reasoning"
	CategoryOrchestrator Category = "orchestrator"
	CategoryServer       Category = "server"
)

// New builds the root production logger. level is one of
// debug/info/warn/error; anything else defaults to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// For returns the sub-logger for a category. A nil base returns a no-op
// logger so library code never has to nil-check.
func For(base *zap.Logger, cat Category) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base.Named(string(cat))
}
