package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lotledger/pkg/domain"
)

type transaction struct {
	store   *Store
	ctx     context.Context
	tx      pgx.Tx
	now     time.Time
	changes []domain.Change
	err     error
}

// fail records the first error seen by a view method.
func (tx *transaction) fail(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Now returns the commit timestamp shared by every write in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// Lock takes FOR UPDATE row locks in id order. Ids with no row yet are
// ignored; their uniqueness is enforced by the primary key.
func (tx *transaction) Lock(ids ...string) error {
	if tx.err != nil {
		return tx.err
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.tx.Query(tx.ctx, `SELECT id FROM lots WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return mapError("lock", ids[0], tx.store.lockTimeout, err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapError("lock", ids[0], tx.store.lockTimeout, err)
	}
	return nil
}

// NextSequence increments the per-key daily counter. The upsert holds the
// counter row lock until the transaction ends, serializing concurrent callers.
func (tx *transaction) NextSequence(key string, day time.Time) (int, error) {
	if tx.err != nil {
		return 0, tx.err
	}
	if key == "" {
		return 0, &domain.ValidationError{Field: "sequence_key", Reason: "must not be empty"}
	}
	var value int
	err := tx.tx.QueryRow(tx.ctx, `
		INSERT INTO batch_sequences (seq_key, day, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (seq_key, day)
		DO UPDATE SET value = batch_sequences.value + 1
		RETURNING value
	`, key, day.Format(domain.SequenceDayLayout)).Scan(&value)
	if err != nil {
		return 0, mapError("next sequence", "seq/"+key+"/"+day.Format(domain.SequenceDayLayout), tx.store.lockTimeout, err)
	}
	return value, nil
}

type lotRow struct {
	id          string
	kind        domain.EntityType
	stage       domain.Stage
	batchNumber string
	sourceID    *string
	parentID    *string
	batchID     *string
	createdAt   time.Time
	payload     any
}

func (tx *transaction) insertLot(row lotRow) error {
	data, err := json.Marshal(row.payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", row.kind, err)
	}
	_, err = tx.tx.Exec(tx.ctx, `
		INSERT INTO lots (id, kind, stage, batch_number, source_id, parent_id, batch_id, created_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, row.id, string(row.kind), string(row.stage), row.batchNumber, row.sourceID, row.parentID, row.batchID, row.createdAt, data)
	return mapError("insert "+string(row.kind), row.id, tx.store.lockTimeout, err)
}

func (tx *transaction) updatePayload(kind domain.EntityType, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	_, err = tx.tx.Exec(tx.ctx, `UPDATE lots SET payload = $2 WHERE id = $1`, id, data)
	return mapError("update "+string(kind), id, tx.store.lockTimeout, err)
}

// lockForUpdate locks one row and returns its decoded payload.
func lockForUpdate[T any](tx *transaction, kind domain.EntityType, id string) (T, error) {
	var zero T
	if tx.err != nil {
		return zero, tx.err
	}
	var data []byte
	err := tx.tx.QueryRow(tx.ctx, `SELECT payload FROM lots WHERE id = $1 AND kind = $2 FOR UPDATE`, id, string(kind)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, domain.NotFoundError{Entity: kind, ID: id}
	}
	if err != nil {
		return zero, mapError("lock "+string(kind), id, tx.store.lockTimeout, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return out, nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// CreateSeedLot inserts a seed lot.
func (tx *transaction) CreateSeedLot(seed domain.SeedLot) (domain.SeedLot, error) {
	if tx.err != nil {
		return domain.SeedLot{}, tx.err
	}
	seed.ID = newID(seed.ID)
	seed.CreatedAt = tx.now
	if err := tx.insertLot(lotRow{
		id: seed.ID, kind: domain.EntitySeedLot, stage: seed.Stage, batchNumber: seed.BatchNumber,
		parentID: seed.ParentID, createdAt: seed.CreatedAt, payload: seed,
	}); err != nil {
		return domain.SeedLot{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntitySeedLot, Action: domain.ActionCreate, ID: seed.ID, After: seed.Clone()})
	return seed.Clone(), nil
}

// UpdateSeedLot locks and mutates a seed lot.
func (tx *transaction) UpdateSeedLot(id string, mutator func(*domain.SeedLot) error) (domain.SeedLot, error) {
	current, err := lockForUpdate[domain.SeedLot](tx, domain.EntitySeedLot, id)
	if err != nil {
		return domain.SeedLot{}, err
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.SeedLot{}, err
	}
	current.ID = id
	current.BatchNumber = before.BatchNumber
	current.CreatedAt = before.CreatedAt
	if err := tx.updatePayload(domain.EntitySeedLot, id, current); err != nil {
		return domain.SeedLot{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntitySeedLot, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// CreateBatch inserts a unit-group batch.
func (tx *transaction) CreateBatch(b domain.Batch) (domain.Batch, error) {
	if tx.err != nil {
		return domain.Batch{}, tx.err
	}
	b.ID = newID(b.ID)
	b.CreatedAt = tx.now
	if err := tx.insertLot(lotRow{
		id: b.ID, kind: domain.EntityBatch, stage: b.Stage, batchNumber: b.BatchNumber,
		sourceID: b.SourceID, createdAt: b.CreatedAt, payload: b,
	}); err != nil {
		return domain.Batch{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, ID: b.ID, After: b.Clone()})
	return b.Clone(), nil
}

// CreateUnit inserts a unit. The owning batch must exist.
func (tx *transaction) CreateUnit(u domain.Unit) (domain.Unit, error) {
	if tx.err != nil {
		return domain.Unit{}, tx.err
	}
	if _, ok := tx.FindBatch(u.BatchID); !ok {
		if tx.err != nil {
			return domain.Unit{}, tx.err
		}
		return domain.Unit{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: u.BatchID}
	}
	u.ID = newID(u.ID)
	u.CreatedAt = tx.now
	batchID := u.BatchID
	if err := tx.insertLot(lotRow{
		id: u.ID, kind: domain.EntityUnit, stage: u.Stage, batchNumber: u.BatchNumber,
		batchID: &batchID, createdAt: u.CreatedAt, payload: u,
	}); err != nil {
		return domain.Unit{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUnit, Action: domain.ActionCreate, ID: u.ID, After: u.Clone()})
	return u.Clone(), nil
}

// UpdateUnit locks and mutates a unit.
func (tx *transaction) UpdateUnit(id string, mutator func(*domain.Unit) error) (domain.Unit, error) {
	current, err := lockForUpdate[domain.Unit](tx, domain.EntityUnit, id)
	if err != nil {
		return domain.Unit{}, err
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.Unit{}, err
	}
	current.ID = id
	current.BatchID = before.BatchID
	current.BatchNumber = before.BatchNumber
	current.CreatedAt = before.CreatedAt
	if err := tx.updatePayload(domain.EntityUnit, id, current); err != nil {
		return domain.Unit{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUnit, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// CreateWeightLot inserts a weight-chain record.
func (tx *transaction) CreateWeightLot(w domain.WeightLot) (domain.WeightLot, error) {
	if tx.err != nil {
		return domain.WeightLot{}, tx.err
	}
	w.ID = newID(w.ID)
	w.CreatedAt = tx.now
	if err := tx.insertLot(lotRow{
		id: w.ID, kind: domain.EntityWeightLot, stage: w.Stage, batchNumber: w.BatchNumber,
		sourceID: w.SourceID, createdAt: w.CreatedAt, payload: w,
	}); err != nil {
		return domain.WeightLot{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityWeightLot, Action: domain.ActionCreate, ID: w.ID, After: w.Clone()})
	return w.Clone(), nil
}

// UpdateWeightLot locks and mutates a weight-chain record.
func (tx *transaction) UpdateWeightLot(id string, mutator func(*domain.WeightLot) error) (domain.WeightLot, error) {
	current, err := lockForUpdate[domain.WeightLot](tx, domain.EntityWeightLot, id)
	if err != nil {
		return domain.WeightLot{}, err
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.WeightLot{}, err
	}
	current.ID = id
	current.BatchNumber = before.BatchNumber
	current.CreatedAt = before.CreatedAt
	if err := tx.updatePayload(domain.EntityWeightLot, id, current); err != nil {
		return domain.WeightLot{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityWeightLot, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// AppendAudit inserts a history entry.
func (tx *transaction) AppendAudit(e domain.AuditEvent) (domain.AuditEvent, error) {
	if tx.err != nil {
		return domain.AuditEvent{}, tx.err
	}
	if e.EntityID == "" {
		return domain.AuditEvent{}, errors.New("audit event requires an entity id")
	}
	e.ID = newID(e.ID)
	if e.OccurredAt.IsZero() {
		e.OccurredAt = tx.now
	}
	data, err := json.Marshal(e)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("encode audit event: %w", err)
	}
	related := e.Related
	if related == nil {
		related = []string{}
	}
	_, err = tx.tx.Exec(tx.ctx, `
		INSERT INTO audit_events (id, occurred_at, entity_id, related, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.OccurredAt, e.EntityID, related, data)
	if err != nil {
		return domain.AuditEvent{}, mapError("insert audit event", e.EntityID, 0, err)
	}
	return e.Clone(), nil
}
