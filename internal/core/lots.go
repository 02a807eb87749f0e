package core

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

// EntityLot is used in errors when a reference could not be resolved to any
// record kind.
const EntityLot domain.EntityType = "lot"

// resolved is a lot reference looked up in the store. Exactly one record
// pointer is set.
type resolved struct {
	entity domain.EntityType
	stage  domain.Stage
	seed   *domain.SeedLot
	batch  *domain.Batch
	unit   *domain.Unit
	weight *domain.WeightLot
}

func (r resolved) id() string {
	switch {
	case r.seed != nil:
		return r.seed.ID
	case r.batch != nil:
		return r.batch.ID
	case r.unit != nil:
		return r.unit.ID
	case r.weight != nil:
		return r.weight.ID
	}
	return ""
}

func (r resolved) batchNumber() string {
	switch {
	case r.seed != nil:
		return r.seed.BatchNumber
	case r.batch != nil:
		return r.batch.BatchNumber
	case r.unit != nil:
		return r.unit.BatchNumber
	case r.weight != nil:
		return r.weight.BatchNumber
	}
	return ""
}

// resolve looks ref up as a record id, then as a batch number.
func resolve(v domain.TransactionView, ref string) (resolved, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return resolved{}, &domain.ValidationError{Field: "lot_id", Reason: "required"}
	}
	if r, ok := resolveID(v, ref); ok {
		return r, nil
	}
	if kind, id, ok := v.FindByBatchNumber(ref); ok {
		if r, ok := resolveKind(v, kind, id); ok {
			return r, nil
		}
	}
	return resolved{}, domain.NotFoundError{Entity: EntityLot, ID: ref}
}

func resolveID(v domain.TransactionView, id string) (resolved, bool) {
	for _, kind := range []domain.EntityType{domain.EntityWeightLot, domain.EntityBatch, domain.EntityUnit, domain.EntitySeedLot} {
		if r, ok := resolveKind(v, kind, id); ok {
			return r, true
		}
	}
	return resolved{}, false
}

func resolveKind(v domain.TransactionView, kind domain.EntityType, id string) (resolved, bool) {
	switch kind {
	case domain.EntitySeedLot:
		if seed, ok := v.FindSeedLot(id); ok {
			return resolved{entity: kind, stage: domain.StagePropagationSeed, seed: &seed}, true
		}
	case domain.EntityBatch:
		if b, ok := v.FindBatch(id); ok {
			return resolved{entity: kind, stage: b.Stage, batch: &b}, true
		}
	case domain.EntityUnit:
		if u, ok := v.FindUnit(id); ok {
			return resolved{entity: kind, stage: u.Stage, unit: &u}, true
		}
	case domain.EntityWeightLot:
		if w, ok := v.FindWeightLot(id); ok {
			return resolved{entity: kind, stage: w.Stage, weight: &w}, true
		}
	}
	return resolved{}, false
}

func summarize(v domain.TransactionView, r resolved) Lot {
	switch {
	case r.seed != nil:
		return seedLot(*r.seed)
	case r.batch != nil:
		return batchLot(*r.batch, v.ListUnits(r.batch.ID))
	case r.unit != nil:
		return unitLot(*r.unit)
	case r.weight != nil:
		return weightLot(*r.weight, v.ListWeightChildren(r.weight.ID))
	}
	return Lot{}
}

func seedLot(seed domain.SeedLot) Lot {
	lot := Lot{
		ID:          seed.ID,
		BatchNumber: seed.BatchNumber,
		Entity:      domain.EntitySeedLot,
		Stage:       domain.StagePropagationSeed,
		Status:      seed.Status(),
		Quantity:    seed.Quantity,
		Available:   seed.RemainingQuantity,
		Relation:    seed.Relation,
		CreatedAt:   seed.CreatedAt,
	}
	if seed.IsSplit() {
		lot.Quantity = seed.DestroyedQuantity
		lot.SourceID = *seed.ParentID
	}
	return lot
}

func batchLot(b domain.Batch, units []domain.Unit) Lot {
	bal := ledger.Units(b, units)
	lot := Lot{
		ID:          b.ID,
		BatchNumber: b.BatchNumber,
		Entity:      domain.EntityBatch,
		Stage:       b.Stage,
		Status:      bal.Status(),
		Quantity:    b.Quantity,
		Available:   bal.Live,
		CreatedAt:   b.CreatedAt,
	}
	if b.SourceID != nil {
		lot.SourceID = *b.SourceID
	}
	return lot
}

func unitLot(u domain.Unit) Lot {
	lot := Lot{
		ID:          u.ID,
		BatchNumber: u.BatchNumber,
		Entity:      domain.EntityUnit,
		Stage:       u.Stage,
		Status:      u.Status(),
		Quantity:    1,
		SourceID:    u.BatchID,
		CreatedAt:   u.CreatedAt,
	}
	if u.Live() {
		lot.Available = 1
	}
	return lot
}

func weightLot(w domain.WeightLot, children []domain.WeightLot) Lot {
	lot := Lot{
		ID:          w.ID,
		BatchNumber: w.BatchNumber,
		Entity:      domain.EntityWeightLot,
		Stage:       w.Stage,
		Status:      w.Status(),
		Weight:      w.OutputWeight,
		Relation:    w.Relation,
		CreatedAt:   w.CreatedAt,
	}
	if w.SourceID != nil {
		lot.SourceID = *w.SourceID
	}
	if w.Status() == domain.StatusActive {
		lot.AvailableWeight = ledger.Weight(w, children).Available
	} else {
		lot.AvailableWeight = decimal.Zero
	}
	return lot
}

// GetLot resolves ref, a record id or batch number, to its summary.
func (s *Service) GetLot(ctx context.Context, ref string) (Lot, error) {
	var lot Lot
	err := s.view(ctx, "get_lot", func(v domain.TransactionView, sub *subject) error {
		r, err := resolve(v, ref)
		if err != nil {
			return err
		}
		sub.set(r.id(), r.batchNumber())
		lot = summarize(v, r)
		return nil
	})
	return lot, err
}

// GetWeightLot returns the full weight-chain record for id.
func (s *Service) GetWeightLot(ctx context.Context, id string) (domain.WeightLot, error) {
	var out domain.WeightLot
	err := s.view(ctx, "get_weight_lot", func(v domain.TransactionView, sub *subject) error {
		w, ok := v.FindWeightLot(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityWeightLot, ID: id}
		}
		sub.set(w.ID, w.BatchNumber)
		out = w
		return nil
	})
	return out, err
}

// GetSeedLot returns the full seed record for id.
func (s *Service) GetSeedLot(ctx context.Context, id string) (domain.SeedLot, error) {
	var out domain.SeedLot
	err := s.view(ctx, "get_seed_lot", func(v domain.TransactionView, sub *subject) error {
		seed, ok := v.FindSeedLot(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntitySeedLot, ID: id}
		}
		sub.set(seed.ID, seed.BatchNumber)
		out = seed
		return nil
	})
	return out, err
}

// ListUnits returns the units of a batch in batch number order.
func (s *Service) ListUnits(ctx context.Context, batchID string) ([]domain.Unit, error) {
	var out []domain.Unit
	err := s.view(ctx, "list_units", func(v domain.TransactionView, sub *subject) error {
		b, ok := v.FindBatch(batchID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBatch, ID: batchID}
		}
		sub.set(b.ID, b.BatchNumber)
		out = v.ListUnits(b.ID)
		return nil
	})
	return out, err
}
