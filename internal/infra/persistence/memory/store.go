// Package memory provides an in-memory implementation of the lot store used
// for tests, ephemeral environments, and as the working set of the SQLite
// snapshot store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lotledger/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*transaction)(nil)
)

// DefaultLockTimeout bounds how long a transaction waits for a row lock.
const DefaultLockTimeout = 2 * time.Second

// CommitHook runs inside the commit critical section with the state that is
// about to become visible. A non-nil error aborts the commit.
type CommitHook func(ctx context.Context, next Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout. Non-positive values keep the default.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook installs a hook run before each commit becomes visible.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// Store provides an in-memory transactional lot store. Transactions buffer
// writes in an overlay and serialize on per-record locks; only the final
// apply step takes the store-wide mutex.
type Store struct {
	mu          sync.RWMutex
	state       memoryState
	engine      *domain.RulesEngine
	nowFn       func() time.Time
	locks       *lockTable
	lockTimeout time.Duration
	hook        CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:       newMemoryState(),
		engine:      engine,
		nowFn:       func() time.Time { return time.Now().UTC() },
		locks:       newLockTable(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured commit-time rules engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	return s.nowFn
}

// LockTimeout reports the configured bound on lock waits.
func (s *Store) LockTimeout() time.Duration {
	return s.lockTimeout
}

// RunInTransaction executes fn against an overlay of the committed state.
// Locks taken through tx.Lock are held until the overlay is applied or
// discarded; rules are evaluated on the merged view before anything becomes
// visible.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	tx := &transaction{
		store: s,
		over:  newMemoryState(),
		now:   s.nowFn(),
		held: &heldLocks{
			table:    s.locks,
			timeout:  s.lockTimeout,
			ctx:      ctx,
			releases: make(map[string]func()),
		},
	}
	defer tx.held.releaseAll()

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	return s.commit(ctx, tx)
}

func (s *Store) commit(ctx context.Context, tx *transaction) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for number, ref := range tx.over.numbers {
		if existing, ok := s.state.numbers[number]; ok && existing != ref {
			return domain.Result{}, fmt.Errorf("batch number %q already assigned to %s %s", number, existing.Entity, existing.ID)
		}
	}

	var result domain.Result
	if s.engine != nil {
		view := layeredView{base: &s.state, over: &tx.over}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook == nil {
		s.state.apply(&tx.over)
		return result, nil
	}
	next := s.state.shallowCopy()
	next.apply(&tx.over)
	if err := s.hook(ctx, snapshotFromMemoryState(next)); err != nil {
		return result, fmt.Errorf("commit hook: %w", err)
	}
	s.state = next
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.shallowCopy()
	s.mu.RUnlock()
	return fn(layeredView{base: &snapshot})
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	store   *Store
	over    memoryState
	changes []domain.Change
	now     time.Time
	held    *heldLocks
}

func (tx *transaction) read(fn func(v layeredView)) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	fn(layeredView{base: &tx.store.state, over: &tx.over})
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Now returns the commit timestamp shared by every write in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// Lock acquires row locks on ids in a stable order.
func (tx *transaction) Lock(ids ...string) error {
	return tx.held.lock(ids...)
}

// NextSequence increments the daily counter for key under its own lock.
func (tx *transaction) NextSequence(key string, day time.Time) (int, error) {
	if key == "" {
		return 0, &domain.ValidationError{Field: "sequence_key", Reason: "must not be empty"}
	}
	seqKey := "seq/" + key + "/" + day.Format(domain.SequenceDayLayout)
	if err := tx.held.lock(seqKey); err != nil {
		return 0, err
	}
	current, ok := tx.over.sequences[seqKey]
	if !ok {
		tx.read(func(v layeredView) { current = v.base.sequences[seqKey] })
	}
	current++
	tx.over.sequences[seqKey] = current
	return current, nil
}

func (tx *transaction) claimNumber(number string, ref lotRef) error {
	if number == "" {
		return &domain.ValidationError{Field: "batch_number", Reason: "must not be empty"}
	}
	var existing lotRef
	var taken bool
	tx.read(func(v layeredView) { existing, taken = v.lookupNumber(number) })
	if taken && existing != ref {
		return fmt.Errorf("batch number %q already assigned to %s %s", number, existing.Entity, existing.ID)
	}
	tx.over.numbers[number] = ref
	return nil
}

func (tx *transaction) exists(id string) bool {
	var found bool
	tx.read(func(v layeredView) { found = v.exists(id) })
	return found
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// CreateSeedLot stores a new seed lot.
func (tx *transaction) CreateSeedLot(seed domain.SeedLot) (domain.SeedLot, error) {
	seed.ID = newID(seed.ID)
	if tx.exists(seed.ID) {
		return domain.SeedLot{}, fmt.Errorf("seed lot %q already exists", seed.ID)
	}
	if err := tx.claimNumber(seed.BatchNumber, lotRef{Entity: domain.EntitySeedLot, ID: seed.ID}); err != nil {
		return domain.SeedLot{}, err
	}
	seed.CreatedAt = tx.now
	tx.over.seeds[seed.ID] = seed.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntitySeedLot, Action: domain.ActionCreate, ID: seed.ID, After: seed.Clone()})
	return seed.Clone(), nil
}

// UpdateSeedLot locks and mutates a seed lot.
func (tx *transaction) UpdateSeedLot(id string, mutator func(*domain.SeedLot) error) (domain.SeedLot, error) {
	if err := tx.Lock(id); err != nil {
		return domain.SeedLot{}, err
	}
	current, ok := tx.FindSeedLot(id)
	if !ok {
		return domain.SeedLot{}, domain.NotFoundError{Entity: domain.EntitySeedLot, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.SeedLot{}, err
	}
	current.ID = id
	current.BatchNumber = before.BatchNumber
	current.CreatedAt = before.CreatedAt
	tx.over.seeds[id] = current.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntitySeedLot, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// CreateBatch stores a new unit-group batch.
func (tx *transaction) CreateBatch(b domain.Batch) (domain.Batch, error) {
	b.ID = newID(b.ID)
	if tx.exists(b.ID) {
		return domain.Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	if err := tx.claimNumber(b.BatchNumber, lotRef{Entity: domain.EntityBatch, ID: b.ID}); err != nil {
		return domain.Batch{}, err
	}
	b.CreatedAt = tx.now
	tx.over.batches[b.ID] = b.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, ID: b.ID, After: b.Clone()})
	return b.Clone(), nil
}

// CreateUnit stores a new unit. The owning batch must exist.
func (tx *transaction) CreateUnit(u domain.Unit) (domain.Unit, error) {
	u.ID = newID(u.ID)
	if tx.exists(u.ID) {
		return domain.Unit{}, fmt.Errorf("unit %q already exists", u.ID)
	}
	if _, ok := tx.FindBatch(u.BatchID); !ok {
		return domain.Unit{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: u.BatchID}
	}
	if err := tx.claimNumber(u.BatchNumber, lotRef{Entity: domain.EntityUnit, ID: u.ID}); err != nil {
		return domain.Unit{}, err
	}
	u.CreatedAt = tx.now
	tx.over.units[u.ID] = u.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityUnit, Action: domain.ActionCreate, ID: u.ID, After: u.Clone()})
	return u.Clone(), nil
}

// UpdateUnit locks and mutates a unit.
func (tx *transaction) UpdateUnit(id string, mutator func(*domain.Unit) error) (domain.Unit, error) {
	if err := tx.Lock(id); err != nil {
		return domain.Unit{}, err
	}
	current, ok := tx.FindUnit(id)
	if !ok {
		return domain.Unit{}, domain.NotFoundError{Entity: domain.EntityUnit, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.Unit{}, err
	}
	current.ID = id
	current.BatchID = before.BatchID
	current.BatchNumber = before.BatchNumber
	current.CreatedAt = before.CreatedAt
	tx.over.units[id] = current.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityUnit, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// CreateWeightLot stores a new weight-chain record.
func (tx *transaction) CreateWeightLot(w domain.WeightLot) (domain.WeightLot, error) {
	w.ID = newID(w.ID)
	if tx.exists(w.ID) {
		return domain.WeightLot{}, fmt.Errorf("weight lot %q already exists", w.ID)
	}
	if err := tx.claimNumber(w.BatchNumber, lotRef{Entity: domain.EntityWeightLot, ID: w.ID}); err != nil {
		return domain.WeightLot{}, err
	}
	w.CreatedAt = tx.now
	tx.over.weights[w.ID] = w.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityWeightLot, Action: domain.ActionCreate, ID: w.ID, After: w.Clone()})
	return w.Clone(), nil
}

// UpdateWeightLot locks and mutates a weight-chain record.
func (tx *transaction) UpdateWeightLot(id string, mutator func(*domain.WeightLot) error) (domain.WeightLot, error) {
	if err := tx.Lock(id); err != nil {
		return domain.WeightLot{}, err
	}
	current, ok := tx.FindWeightLot(id)
	if !ok {
		return domain.WeightLot{}, domain.NotFoundError{Entity: domain.EntityWeightLot, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.WeightLot{}, err
	}
	current.ID = id
	current.BatchNumber = before.BatchNumber
	current.CreatedAt = before.CreatedAt
	tx.over.weights[id] = current.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityWeightLot, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// AppendAudit appends a history entry committed with the transaction.
func (tx *transaction) AppendAudit(e domain.AuditEvent) (domain.AuditEvent, error) {
	if e.EntityID == "" {
		return domain.AuditEvent{}, errors.New("audit event requires an entity id")
	}
	e.ID = newID(e.ID)
	if e.OccurredAt.IsZero() {
		e.OccurredAt = tx.now
	}
	tx.over.audit = append(tx.over.audit, e.Clone())
	return e.Clone(), nil
}

// FindSeedLot exposes seed lookup within the transaction scope.
func (tx *transaction) FindSeedLot(id string) (seed domain.SeedLot, ok bool) {
	tx.read(func(v layeredView) { seed, ok = v.FindSeedLot(id) })
	return
}

// FindBatch exposes batch lookup within the transaction scope.
func (tx *transaction) FindBatch(id string) (b domain.Batch, ok bool) {
	tx.read(func(v layeredView) { b, ok = v.FindBatch(id) })
	return
}

// FindUnit exposes unit lookup within the transaction scope.
func (tx *transaction) FindUnit(id string) (u domain.Unit, ok bool) {
	tx.read(func(v layeredView) { u, ok = v.FindUnit(id) })
	return
}

// FindWeightLot exposes weight lot lookup within the transaction scope.
func (tx *transaction) FindWeightLot(id string) (w domain.WeightLot, ok bool) {
	tx.read(func(v layeredView) { w, ok = v.FindWeightLot(id) })
	return
}

// FindByBatchNumber resolves a batch number to its record.
func (tx *transaction) FindByBatchNumber(number string) (entity domain.EntityType, id string, ok bool) {
	tx.read(func(v layeredView) { entity, id, ok = v.FindByBatchNumber(number) })
	return
}

// ListUnits returns the units of a batch.
func (tx *transaction) ListUnits(batchID string) (out []domain.Unit) {
	tx.read(func(v layeredView) { out = v.ListUnits(batchID) })
	return
}

// ListSeedSplits returns the records split off a seed lot.
func (tx *transaction) ListSeedSplits(seedID string) (out []domain.SeedLot) {
	tx.read(func(v layeredView) { out = v.ListSeedSplits(seedID) })
	return
}

// ListBatchesBySource returns batches converted from sourceID.
func (tx *transaction) ListBatchesBySource(sourceID string) (out []domain.Batch) {
	tx.read(func(v layeredView) { out = v.ListBatchesBySource(sourceID) })
	return
}

// ListWeightChildren returns weight records drawn from parentID.
func (tx *transaction) ListWeightChildren(parentID string) (out []domain.WeightLot) {
	tx.read(func(v layeredView) { out = v.ListWeightChildren(parentID) })
	return
}

// ListSeedLots returns every seed record.
func (tx *transaction) ListSeedLots() (out []domain.SeedLot) {
	tx.read(func(v layeredView) { out = v.ListSeedLots() })
	return
}

// ListBatches returns every unit-group batch.
func (tx *transaction) ListBatches() (out []domain.Batch) {
	tx.read(func(v layeredView) { out = v.ListBatches() })
	return
}

// ListWeightLots returns every weight-chain record.
func (tx *transaction) ListWeightLots() (out []domain.WeightLot) {
	tx.read(func(v layeredView) { out = v.ListWeightLots() })
	return
}

// ListAudit returns the history of entityID, or every entry when empty.
func (tx *transaction) ListAudit(entityID string) (out []domain.AuditEvent) {
	tx.read(func(v layeredView) { out = v.ListAudit(entityID) })
	return
}
