package kit

import "go.uber.org/zap"

func NewLogger(app string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.InitialFields = map[string]any{"app": app}
	l, _ := cfg.Build()
	return l
}
