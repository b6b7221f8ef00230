package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New builds the process logger. Local runs get the development config
// (console encoder, debug level); everything else gets production JSON.
func New(env string) (*zap.Logger, error) {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
