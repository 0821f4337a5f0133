package observability

// noopLogger discards all messages
type noopLogger struct{}

// NewNoopLogger returns a logger that discards everything; used in tests and as
// a safe default when callers pass nil.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(string, map[string]interface{}) {}
func (noopLogger) Info(string, map[string]interface{})  {}
func (noopLogger) Warn(string, map[string]interface{})  {}
func (noopLogger) Error(string, map[string]interface{}) {}
func (noopLogger) Fatal(string, map[string]interface{}) {}
func (noopLogger) Debugf(string, ...interface{})        {}
func (noopLogger) Infof(string, ...interface{})         {}
func (noopLogger) Warnf(string, ...interface{})         {}
func (noopLogger) Errorf(string, ...interface{})        {}
func (l noopLogger) WithPrefix(string) Logger           { return l }
func (l noopLogger) With(map[string]interface{}) Logger { return l }

// noopMetrics discards all observations
type noopMetrics struct{}

// NewNoopMetricsClient returns a MetricsClient that discards everything
func NewNoopMetricsClient() MetricsClient {
	return noopMetrics{}
}

func (noopMetrics) RecordCounter(string, float64, map[string]string)                 {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)                   {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)               {}
func (noopMetrics) RecordOperation(string, string, bool, float64, map[string]string) {}
func (noopMetrics) StartTimer(string, map[string]string) func()                      { return func() {} }
func (noopMetrics) IncrementCounter(string, float64)                                 {}
func (noopMetrics) Close() error                                                     { return nil }

var (
	_ Logger        = noopLogger{}
	_ MetricsClient = noopMetrics{}
)
