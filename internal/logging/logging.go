// Package logging initializes the daemon's structured logger (spec.md §6,
// SPEC_FULL.md §5.1), grounded on the teacher's
// controlplane/pkg/yncp/logging.go.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Init initializes the logging subsystem.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	config := zap.NewDevelopmentConfig()
	config.Development = false
	config.Level.SetLevel(cfg.Level)

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), config.Level, nil
}
