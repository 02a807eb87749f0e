package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lotledger/pkg/domain"
)

func findOne[T any](tx *transaction, kind domain.EntityType, id string) (T, bool) {
	var zero T
	if tx.err != nil {
		return zero, false
	}
	var data []byte
	err := tx.tx.QueryRow(tx.ctx, `SELECT payload FROM lots WHERE id = $1 AND kind = $2`, id, string(kind)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false
	}
	if err != nil {
		tx.fail(mapError("find "+string(kind), id, 0, err))
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		tx.fail(fmt.Errorf("decode %s %s: %w", kind, id, err))
		return zero, false
	}
	return out, true
}

func findMany[T any](tx *transaction, kind domain.EntityType, where string, arg any, number func(T) string) []T {
	if tx.err != nil {
		return nil
	}
	query := `SELECT payload FROM lots WHERE kind = $1`
	args := []any{string(kind)}
	if where != "" {
		query += ` AND ` + where + ` = $2`
		args = append(args, arg)
	}
	rows, err := tx.tx.Query(tx.ctx, query, args...)
	if err != nil {
		tx.fail(mapError("list "+string(kind), "", 0, err))
		return nil
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			tx.fail(fmt.Errorf("scan %s: %w", kind, err))
			return nil
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			tx.fail(fmt.Errorf("decode %s: %w", kind, err))
			return nil
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		tx.fail(mapError("list "+string(kind), "", 0, err))
		return nil
	}
	domain.SortByBatchNumber(out, number)
	return out
}

func seedNumber(s domain.SeedLot) string     { return s.BatchNumber }
func batchNumber(b domain.Batch) string      { return b.BatchNumber }
func unitNumber(u domain.Unit) string        { return u.BatchNumber }
func weightNumber(w domain.WeightLot) string { return w.BatchNumber }

// FindSeedLot returns a seed lot by id.
func (tx *transaction) FindSeedLot(id string) (domain.SeedLot, bool) {
	return findOne[domain.SeedLot](tx, domain.EntitySeedLot, id)
}

// FindBatch returns a batch by id.
func (tx *transaction) FindBatch(id string) (domain.Batch, bool) {
	return findOne[domain.Batch](tx, domain.EntityBatch, id)
}

// FindUnit returns a unit by id.
func (tx *transaction) FindUnit(id string) (domain.Unit, bool) {
	return findOne[domain.Unit](tx, domain.EntityUnit, id)
}

// FindWeightLot returns a weight lot by id.
func (tx *transaction) FindWeightLot(id string) (domain.WeightLot, bool) {
	return findOne[domain.WeightLot](tx, domain.EntityWeightLot, id)
}

// FindByBatchNumber resolves a batch number through the unique index.
func (tx *transaction) FindByBatchNumber(number string) (domain.EntityType, string, bool) {
	if tx.err != nil {
		return "", "", false
	}
	var kind, id string
	err := tx.tx.QueryRow(tx.ctx, `SELECT kind, id FROM lots WHERE batch_number = $1`, number).Scan(&kind, &id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false
	}
	if err != nil {
		tx.fail(mapError("find batch number", number, 0, err))
		return "", "", false
	}
	return domain.EntityType(kind), id, true
}

// ListUnits returns the units of a batch.
func (tx *transaction) ListUnits(batchID string) []domain.Unit {
	return findMany(tx, domain.EntityUnit, "batch_id", batchID, unitNumber)
}

// ListSeedSplits returns the records split off a seed lot.
func (tx *transaction) ListSeedSplits(seedID string) []domain.SeedLot {
	return findMany(tx, domain.EntitySeedLot, "parent_id", seedID, seedNumber)
}

// ListBatchesBySource returns batches converted from sourceID.
func (tx *transaction) ListBatchesBySource(sourceID string) []domain.Batch {
	return findMany(tx, domain.EntityBatch, "source_id", sourceID, batchNumber)
}

// ListWeightChildren returns weight records drawn from parentID.
func (tx *transaction) ListWeightChildren(parentID string) []domain.WeightLot {
	return findMany(tx, domain.EntityWeightLot, "source_id", parentID, weightNumber)
}

// ListSeedLots returns every seed record.
func (tx *transaction) ListSeedLots() []domain.SeedLot {
	return findMany(tx, domain.EntitySeedLot, "", nil, seedNumber)
}

// ListBatches returns every unit-group batch.
func (tx *transaction) ListBatches() []domain.Batch {
	return findMany(tx, domain.EntityBatch, "", nil, batchNumber)
}

// ListWeightLots returns every weight-chain record.
func (tx *transaction) ListWeightLots() []domain.WeightLot {
	return findMany(tx, domain.EntityWeightLot, "", nil, weightNumber)
}

// ListAudit returns history for entityID in append order, or the whole log
// when entityID is empty.
func (tx *transaction) ListAudit(entityID string) []domain.AuditEvent {
	if tx.err != nil {
		return nil
	}
	query := `SELECT payload FROM audit_events ORDER BY position`
	var args []any
	if entityID != "" {
		query = `SELECT payload FROM audit_events WHERE entity_id = $1 OR $1 = ANY(related) ORDER BY position`
		args = append(args, entityID)
	}
	rows, err := tx.tx.Query(tx.ctx, query, args...)
	if err != nil {
		tx.fail(mapError("list audit", entityID, 0, err))
		return nil
	}
	defer rows.Close()
	var out []domain.AuditEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			tx.fail(fmt.Errorf("scan audit: %w", err))
			return nil
		}
		var e domain.AuditEvent
		if err := json.Unmarshal(data, &e); err != nil {
			tx.fail(fmt.Errorf("decode audit: %w", err))
			return nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		tx.fail(mapError("list audit", entityID, 0, err))
		return nil
	}
	return out
}
