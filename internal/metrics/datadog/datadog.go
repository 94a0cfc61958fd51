// Package datadog submits awdw metrics to Datadog.
//
// Observations are buffered in a window and submitted on a ticker (once a
// minute by default) and once more on Close, so a long full load shows up as a
// series rather than a single point at exit. A process killed without Close
// loses the last window.
package datadog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"awdw/internal/metrics"
)

// Series names submitted to Datadog.
const (
	seriesStepTotal    = "awdw.step.total"
	seriesStepDuration = "awdw.step.duration_seconds"
	seriesRecords      = "awdw.records.total"
	seriesBatches      = "awdw.sales.batches.total"
	seriesWatermark    = "awdw.watermark"
)

const defaultFlushEvery = time.Minute

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every series. Empty means "awdw".
	JobName string

	// Tags are extra Datadog tags (e.g. "team:data").
	Tags []string

	// FlushEvery is the submit interval. Zero or negative means one minute.
	FlushEvery time.Duration

	// Test seams.
	now       func() time.Time
	getenv    func(string) string
	ticks     func(d time.Duration) (<-chan time.Time, func())
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// stepKey identifies a step outcome.
type stepKey struct{ step, status string }

// window holds everything observed since the last flush.
type window struct {
	steps      map[stepKey]float64
	durations  map[stepKey][]float64
	records    map[string]float64
	batches    float64
	watermarks map[string]float64
}

func newWindow() *window {
	return &window{
		steps:      map[stepKey]float64{},
		durations:  map[stepKey][]float64{},
		records:    map[string]float64{},
		watermarks: map[string]float64{},
	}
}

func (w *window) empty() bool {
	return len(w.steps) == 0 && len(w.durations) == 0 && len(w.records) == 0 &&
		w.batches == 0 && len(w.watermarks) == 0
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api      metricsSubmitter
	ctx      context.Context
	baseTags []string
	now      func() time.Time

	stop chan struct{}
	done chan struct{}

	mu  sync.Mutex
	cur *window
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend starts a backend that submits through the official client.
// It fails when DD_API_KEY is unset; the CLI then keeps the no-op backend.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	getenv := opts.getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	api := opts.submitter
	if api == nil {
		if strings.TrimSpace(getenv("DD_API_KEY")) == "" {
			return nil, fmt.Errorf("datadog metrics init: %w", errors.New("DD_API_KEY is not set"))
		}
		api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	job := opts.JobName
	if job == "" {
		job = "awdw"
	}
	every := opts.FlushEvery
	if every <= 0 {
		every = defaultFlushEvery
	}
	ticks := opts.ticks
	if ticks == nil {
		ticks = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}

	b := &Backend{
		api:      api,
		ctx:      dd.NewDefaultContext(parent),
		baseTags: append([]string{envTag(getenv), "job:" + job}, opts.Tags...),
		now:      opts.now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		cur:      newWindow(),
	}
	if b.now == nil {
		b.now = time.Now
	}

	c, stopTicks := ticks(every)
	go b.loop(c, stopTicks)
	return b, nil
}

// envTag prefers ENV over DD_ENV.
func envTag(getenv func(string) string) string {
	for _, k := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

func (b *Backend) loop(c <-chan time.Time, stopTicks func()) {
	defer close(b.done)
	defer stopTicks()

	for {
		select {
		case <-c:
			_ = b.Flush()
		case <-b.stop:
			return
		}
	}
}

// Close stops the flush loop and submits what is left. Call it once.
func (b *Backend) Close() error {
	close(b.stop)
	<-b.done
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names and non-positive deltas
// are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.cur.steps[stepKey{labels["step"], labels["status"]}] += delta
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.cur.records[kind] += delta
		}
	case metrics.BatchesTotal:
		b.cur.batches += delta
	}
}

// ObserveHistogram implements metrics.Backend. Only step durations are kept.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	k := stepKey{labels["step"], labels["status"]}
	b.cur.durations[k] = append(b.cur.durations[k], value)
}

// SetGauge implements metrics.Backend. Only watermarks are kept, last value
// wins within a window.
func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	if name != metrics.Watermark {
		return
	}
	pipeline := labels["pipeline"]
	if pipeline == "" {
		pipeline = "unknown"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cur.watermarks[pipeline] = value
}

// Flush submits the current window and starts a new one. The window is
// dropped even when the submit fails.
func (b *Backend) Flush() error {
	b.mu.Lock()
	w := b.cur
	b.cur = newWindow()
	b.mu.Unlock()

	if w.empty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.series(w, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// series renders w in a stable order: steps, durations, records, batches,
// watermarks.
func (b *Backend) series(w *window, ts int64) []datadogV2.MetricSeries {
	var out []datadogV2.MetricSeries
	add := func(typ datadogV2.MetricIntakeType, metric string, v float64, extra ...string) {
		tags := make([]string, 0, len(b.baseTags)+len(extra))
		tags = append(append(tags, b.baseTags...), extra...)
		out = append(out, datadogV2.MetricSeries{
			Metric: metric,
			Type:   typ.Ptr(),
			Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
			Tags:   tags,
		})
	}
	count, gauge := datadogV2.METRICINTAKETYPE_COUNT, datadogV2.METRICINTAKETYPE_GAUGE

	for _, k := range sortedStepKeys(w.steps) {
		add(count, seriesStepTotal, w.steps[k], "step:"+k.step, "status:"+k.status)
	}

	durKeys := make([]stepKey, 0, len(w.durations))
	for k := range w.durations {
		durKeys = append(durKeys, k)
	}
	sortStepKeys(durKeys)
	for _, k := range durKeys {
		s := append([]float64(nil), w.durations[k]...)
		sort.Float64s(s)
		tags := []string{"step:" + k.step, "status:" + k.status}
		add(gauge, seriesStepDuration+".p50", quantile(s, 0.50), tags...)
		add(gauge, seriesStepDuration+".p95", quantile(s, 0.95), tags...)
		add(gauge, seriesStepDuration+".max", s[len(s)-1], tags...)
		add(gauge, seriesStepDuration+".count", float64(len(s)), tags...)
	}

	for _, kind := range sortedKeys(w.records) {
		add(count, seriesRecords, w.records[kind], "kind:"+kind)
	}
	if w.batches > 0 {
		add(count, seriesBatches, w.batches)
	}
	for _, p := range sortedKeys(w.watermarks) {
		add(gauge, seriesWatermark, w.watermarks[p], "pipeline:"+p)
	}
	return out
}

// quantile returns the nearest-rank q-quantile of sorted, which must not be empty.
func quantile(sorted []float64, q float64) float64 {
	i := int(q*float64(len(sorted)-1) + 0.5)
	return sorted[min(max(i, 0), len(sorted)-1)]
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStepKeys(m map[stepKey]float64) []stepKey {
	keys := make([]stepKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStepKeys(keys)
	return keys
}

func sortStepKeys(keys []stepKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].step != keys[j].step {
			return keys[i].step < keys[j].step
		}
		return keys[i].status < keys[j].status
	})
}

// ParseTagsCSV splits "team:data, service:awdw" into trimmed, non-empty tags.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
