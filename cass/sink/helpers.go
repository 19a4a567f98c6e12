package sink

import "go.uber.org/zap"

// newLogger defends against a nil logger reaching a processor
// constructor directly (tests construct sinks without a manager).
func newLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
