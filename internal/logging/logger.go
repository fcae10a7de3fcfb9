// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the finder logger. Development mode writes coloured console
// lines, otherwise JSON. Logs always go to stderr so scan output on stdout
// stays machine readable. Verbose lowers the level to Debug and adds callers.
func New(development, verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	mode := "prod"
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		mode = "dev"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}

	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.DisableCaller = !verbose
	cfg.DisableStacktrace = !verbose
	if verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return logger, nil
}
