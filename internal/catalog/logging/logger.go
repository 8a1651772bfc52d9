package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates a named zap production logger.
func NewLogger(name string) *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger.Named(name)
}

// NewDevelopmentLogger creates a named zap development logger for local
// runs and tests.
func NewDevelopmentLogger(name string) *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger.Named(name)
}
