// Package metrics is the backend-agnostic metrics facade used by the loaders.
//
// Loaders call the package-level helpers; the CLI picks a Backend once at
// startup with SetBackend. Without a backend every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by callers and backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
	Watermark           = "etl_watermark"
)

// Labels are metric dimensions (e.g. step, status, kind).
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	SetGauge(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. Nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		current = nopBackend{}
		return
	}
	current = b
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

func SetGauge(name string, value float64, labels Labels) {
	backend().SetGauge(name, value, labels)
}

// Flush asks the current backend to submit buffered metrics.
func Flush() error {
	return backend().Flush()
}

// RecordStep counts one step execution and records its duration.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords adds n to the record counter for kind (e.g. "fact_sales_inserted").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one committed batch.
func RecordBatch() {
	IncCounter(BatchesTotal, 1, nil)
}

// RecordWatermark publishes the latest watermark for a pipeline.
func RecordWatermark(pipeline string, value int64) {
	SetGauge(Watermark, float64(value), Labels{"pipeline": pipeline})
}
