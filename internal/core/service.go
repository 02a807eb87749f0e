// Package core implements the conversion engine: every business action on the
// lot ledger runs as one store transaction that checks conservation, mutates
// lots, generates batch numbers and appends history atomically.
package core

import (
	"context"
	"errors"
	"time"

	"lotledger/internal/infra/persistence/memory"
	"lotledger/pkg/domain"
)

// Clock supplies wall time to the service.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type serviceOptions struct {
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
	location *time.Location
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithLogger sets the structured logger. A nil logger keeps the no-op default.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the wall clock. NewInMemoryService also stamps records
// with it.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets the time zone whose calendar day keys batch numbers.
func WithLocation(loc *time.Location) ServiceOption {
	return func(o *serviceOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		location: time.UTC,
	}
}

// Service is the conversion engine. It is safe for concurrent use; all
// coordination happens in the store's transactions.
type Service struct {
	store    domain.PersistentStore
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
	location *time.Location
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:    store,
		logger:   o.logger,
		metrics:  o.metrics,
		tracer:   o.tracer,
		clock:    o.clock,
		location: o.location,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine installs NewDefaultRulesEngine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	store := memory.NewStore(engine, memory.WithClock(o.clock.Now))
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// subject identifies the lot an operation acted on, for logs.
type subject struct {
	id          string
	batchNumber string
}

func (sub *subject) set(id, batchNumber string) {
	sub.id = id
	sub.batchNumber = batchNumber
}

// run executes fn in one store transaction wrapped in a span, a metrics
// observation and an outcome log line.
func (s *Service) run(ctx context.Context, op string, fn func(tx domain.Transaction, sub *subject) error) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	var sub subject
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		sub = subject{}
		return fn(tx, &sub)
	})
	s.observe(ctx, op, start, err)
	span.End(err)
	s.logOutcome(op, sub, res, err)
	return res, err
}

// view executes a read-only fn with the same observability as run.
func (s *Service) view(ctx context.Context, op string, fn func(v domain.TransactionView, sub *subject) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	var sub subject
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		return fn(v, &sub)
	})
	s.observe(ctx, op, start, err)
	span.End(err)
	if err != nil {
		s.logOutcome(op, sub, domain.Result{}, err)
	} else {
		s.logger.Debug("query served", "operation", op, "lot_id", sub.id, "batch_number", sub.batchNumber)
	}
	return err
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if errors.Is(err, domain.ErrContention) {
		if rec, ok := s.metrics.(ContentionRecorder); ok {
			rec.ObserveContention(ctx, op)
		}
	}
}

func (s *Service) logOutcome(op string, sub subject, res domain.Result, err error) {
	args := []any{"operation", op, "lot_id", sub.id, "batch_number", sub.batchNumber}
	switch code := domain.Code(err); code {
	case "":
		if len(res.Violations) > 0 {
			args = append(args, "warnings", len(res.Violations))
		}
		s.logger.Info("operation committed", args...)
	case domain.CodeInternal:
		s.logger.Error("operation failed", append(args, "code", code, "err", err)...)
	default:
		s.logger.Warn("operation rejected", append(args, "code", code, "retryable", domain.Retryable(err), "err", err)...)
	}
}
