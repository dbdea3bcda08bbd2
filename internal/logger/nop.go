package logger

// nopLogger discards everything. Used by tests and the none-store wiring.
type nopLogger struct{}

// NewNop returns a Logger that discards all messages.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...interface{})   {}
func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Warn(string, ...interface{})    {}
func (nopLogger) Error(string, ...interface{})   {}
func (nopLogger) Success(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{})   {}
