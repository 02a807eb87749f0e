package domain

import (
	"context"
	"time"
)

// TransactionView provides read-only access to lot records. Inside a
// transaction it reflects the transaction's own uncommitted writes.
type TransactionView interface {
	FindSeedLot(id string) (SeedLot, bool)
	FindBatch(id string) (Batch, bool)
	FindUnit(id string) (Unit, bool)
	FindWeightLot(id string) (WeightLot, bool)
	FindByBatchNumber(number string) (EntityType, string, bool)
	// ListUnits returns the units of a batch ordered by batch number.
	ListUnits(batchID string) []Unit
	// ListSeedSplits returns seed records split off the given seed lot.
	ListSeedSplits(seedID string) []SeedLot
	// ListBatchesBySource returns unit-group batches converted from sourceID.
	ListBatchesBySource(sourceID string) []Batch
	// ListWeightChildren returns weight records whose SourceID is parentID.
	ListWeightChildren(parentID string) []WeightLot
	ListSeedLots() []SeedLot
	ListBatches() []Batch
	ListWeightLots() []WeightLot
	ListAudit(entityID string) []AuditEvent
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. There are no deletes: history is append-only.
type Transaction interface {
	TransactionView
	// Now is the commit timestamp shared by every record written in the transaction.
	Now() time.Time
	// Lock acquires row-level locks on the given record ids, waiting at most the
	// store's lock timeout. Locks are held until the transaction ends.
	Lock(ids ...string) error
	// NextSequence increments and returns the counter for key on day, serialized
	// by the same lock discipline as Lock.
	NextSequence(key string, day time.Time) (int, error)
	CreateSeedLot(SeedLot) (SeedLot, error)
	UpdateSeedLot(id string, mutator func(*SeedLot) error) (SeedLot, error)
	CreateBatch(Batch) (Batch, error)
	CreateUnit(Unit) (Unit, error)
	UpdateUnit(id string, mutator func(*Unit) error) (Unit, error)
	CreateWeightLot(WeightLot) (WeightLot, error)
	UpdateWeightLot(id string, mutator func(*WeightLot) error) (WeightLot, error)
	AppendAudit(AuditEvent) (AuditEvent, error)
}

// PersistentStore is the abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
