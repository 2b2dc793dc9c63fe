package metrics

// Counter lets consumers take a single counter without importing the
// Prometheus types.
type Counter interface {
	Inc()
}

// nopCounter discards increments.
type nopCounter struct{}

func (nopCounter) Inc() {}

// NopCounter returns a Counter that discards increments.
func NopCounter() Counter { return nopCounter{} }
