package logger

import "go.uber.org/zap"

// NewLogger builds the production zap logger shared by every binary.
func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
