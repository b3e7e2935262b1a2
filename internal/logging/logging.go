// ============================================================================
// TheSquid Logging
// ============================================================================
//
// Package: internal/logging
// File: logging.go
// Purpose: Construct the zap logger used by both executables
//
// The squidlet's -stream flag maps directly onto the output path: "stdout"
// logs to the terminal, a file path appends to that file, and an empty
// value disables logging entirely (nop logger).
//
// ============================================================================

// Package logging builds the process-wide zap logger
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a console-encoded logger writing to the given path. Path
// "stdout" targets the terminal; "" disables output.
func New(path string, verbose bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
