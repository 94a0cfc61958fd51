package metrics

import (
	"sync"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu      sync.Mutex
	calls   []call
	flushes int
}

func (r *recorder) add(c call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.add(call{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.add(call{"histogram", name, value, labels})
}

func (r *recorder) SetGauge(name string, value float64, labels Labels) {
	r.add(call{"gauge", name, value, labels})
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// The backend is process-wide, so these tests do not run in parallel.

func TestHelpers_RouteToBackend(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("fact_sales", "ok", 1500*time.Millisecond)
	RecordRecords("fact_sales_inserted", 3)
	RecordRecords("fact_sales_skipped", 0)
	RecordBatch()
	RecordWatermark("fact_sales", 105)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := []call{
		{"counter", StepTotal, 1, Labels{"step": "fact_sales", "status": "ok"}},
		{"histogram", StepDurationSeconds, 1.5, Labels{"step": "fact_sales", "status": "ok"}},
		{"counter", RecordsTotal, 3, Labels{"kind": "fact_sales_inserted"}},
		{"counter", BatchesTotal, 1, nil},
		{"gauge", Watermark, 105, Labels{"pipeline": "fact_sales"}},
	}
	if len(r.calls) != len(want) {
		t.Fatalf("calls=%d want %d: %+v", len(r.calls), len(want), r.calls)
	}
	for i, w := range want {
		got := r.calls[i]
		if got.kind != w.kind || got.name != w.name || got.value != w.value || len(got.labels) != len(w.labels) {
			t.Fatalf("call[%d]=%+v want %+v", i, got, w)
		}
		for k, v := range w.labels {
			if got.labels[k] != v {
				t.Fatalf("call[%d] label %s=%q want %q", i, k, got.labels[k], v)
			}
		}
	}
	if r.flushes != 1 {
		t.Fatalf("flushes=%d want 1", r.flushes)
	}
}

func TestSetBackend_NilRestoresNop(t *testing.T) {
	SetBackend(nil)
	// Must not panic.
	IncCounter(StepTotal, 1, nil)
	ObserveHistogram(StepDurationSeconds, 1, nil)
	SetGauge(Watermark, 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush returned %v", err)
	}
}
