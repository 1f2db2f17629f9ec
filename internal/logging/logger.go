// Package logging builds the zap loggers used by the sitebot binaries.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is stamped on every log line.
const Service = "sitebot"

// Options selects the logger flavor.
type Options struct {
	Development bool
	Environment string
	// OutputPaths overrides the zap sinks; empty means stderr.
	OutputPaths []string
}

// New builds a zap.Logger tagged with the service and environment.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		// Crawl runs log one line per page; sampling would drop them.
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}
	cfg.InitialFields = map[string]any{"service": Service}
	if opts.Environment != "" {
		cfg.InitialFields["env"] = opts.Environment
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
