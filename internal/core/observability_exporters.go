package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"lotledger/pkg/domain"
)

var (
	_ MetricsRecorder    = (*ExpvarMetricsRecorder)(nil)
	_ ContentionRecorder = (*ExpvarMetricsRecorder)(nil)
	_ Tracer             = (*JSONTracer)(nil)
)

var expvarSeq atomic.Uint64

// OperationStats aggregates the observations of one engine operation.
type OperationStats struct {
	Calls     int64   `json:"calls"`
	Failures  int64   `json:"failures"`
	Contended int64   `json:"contended"`
	TotalMS   float64 `json:"total_ms"`
	MaxMS     float64 `json:"max_ms"`
}

// MeanMS is the average latency in milliseconds.
func (s OperationStats) MeanMS() float64 {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalMS / float64(s.Calls)
}

// ExpvarMetricsRecorder keeps per-operation stats and publishes them on
// /debug/vars. It serves single-process setups that do not run Prometheus.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated lotledger_operations_N name when name is empty. expvar names are
// process global, so a name may only be used once.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("lotledger_operations_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

func (r *ExpvarMetricsRecorder) stats(op string) *OperationStats {
	s, ok := r.ops[op]
	if !ok {
		s = &OperationStats{}
		r.ops[op] = s
	}
	return s
}

// Observe records one operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, op string, success bool, d time.Duration) {
	if op == "" {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats(op)
	s.Calls++
	if !success {
		s.Failures++
	}
	s.TotalMS += ms
	s.MaxMS = max(s.MaxMS, ms)
}

// ObserveContention counts an operation that gave up waiting on a lock.
func (r *ExpvarMetricsRecorder) ObserveContention(_ context.Context, op string) {
	r.mu.Lock()
	r.stats(op).Contended++
	r.mu.Unlock()
}

// Snapshot copies the current stats keyed by operation.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationStats, len(r.ops))
	for op, s := range r.ops {
		out[op] = *s
	}
	return out
}

// Span outcomes, matching the service's outcome log lines.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// SpanRecord is one finished operation span.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Code       string    `json:"code,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes each finished span as a JSON line and keeps it for
// Spans.
type JSONTracer struct {
	mu    sync.Mutex
	spans []SpanRecord
	enc   *json.Encoder
	now   func() time.Time
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Spans returns the finished spans in end order.
func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, op: op, started: t.now()}
}

type jsonSpan struct {
	tracer  *JSONTracer
	op      string
	started time.Time
}

func (s *jsonSpan) End(err error) {
	rec := SpanRecord{
		Operation:  s.op,
		Outcome:    OutcomeCommitted,
		StartedAt:  s.started,
		DurationMS: float64(s.tracer.now().Sub(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		rec.Code = domain.Code(err)
		rec.Retryable = domain.Retryable(err)
		rec.Error = err.Error()
		rec.Outcome = OutcomeRejected
		if rec.Code == domain.CodeInternal {
			rec.Outcome = OutcomeFailed
		}
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.spans = append(s.tracer.spans, rec)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(rec)
	}
}
