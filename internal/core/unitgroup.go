package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

type batchSpec struct {
	stage       domain.Stage
	quantity    int
	strainID    *string
	sourceID    string
	sourceStage domain.Stage
	member      string
	room        string
	notes       string
}

// createBatch creates a unit-group batch and fans it out into one unit per
// counted item, each with its own batch number.
func (s *Service) createBatch(tx domain.Transaction, spec batchSpec) (domain.Batch, []domain.Unit, error) {
	number, err := s.nextBatchNumber(tx, spec.stage.Prefix())
	if err != nil {
		return domain.Batch{}, nil, err
	}
	batch, err := tx.CreateBatch(domain.Batch{
		Base: domain.Base{
			BatchNumber:       number,
			Stage:             spec.stage,
			ResponsibleMember: optional(spec.member),
			Room:              optional(spec.room),
			Notes:             spec.notes,
		},
		StrainID:    spec.strainID,
		Quantity:    spec.quantity,
		SourceID:    optional(spec.sourceID),
		SourceStage: spec.sourceStage,
	})
	if err != nil {
		return domain.Batch{}, nil, err
	}
	units := make([]domain.Unit, 0, spec.quantity)
	for i := 0; i < spec.quantity; i++ {
		unitNumber, err := s.nextBatchNumber(tx, spec.stage.UnitPrefix())
		if err != nil {
			return domain.Batch{}, nil, err
		}
		unit, err := tx.CreateUnit(domain.Unit{
			BatchID:     batch.ID,
			BatchNumber: unitNumber,
			Stage:       spec.stage,
		})
		if err != nil {
			return domain.Batch{}, nil, err
		}
		units = append(units, unit)
	}
	return batch, units, nil
}

// selectUnits picks the units a request consumes. Explicit ids must all be
// live units of the batch; without ids the first quantity live units in batch
// number order are taken.
func selectUnits(batch domain.Batch, units []domain.Unit, quantity int, unitIDs []string) ([]domain.Unit, error) {
	live := make([]domain.Unit, 0, len(units))
	byID := make(map[string]domain.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
		if u.Live() {
			live = append(live, u)
		}
	}
	if len(unitIDs) == 0 {
		if err := ledger.CheckCount(domain.EntityBatch, batch.ID, quantity, len(live)); err != nil {
			return nil, err
		}
		return live[:quantity], nil
	}

	picked := make([]domain.Unit, 0, len(unitIDs))
	seen := make(map[string]struct{}, len(unitIDs))
	for _, id := range unitIDs {
		if _, dup := seen[id]; dup {
			return nil, &domain.ValidationError{Field: "unit_ids", Reason: fmt.Sprintf("unit %s listed more than once", id)}
		}
		seen[id] = struct{}{}
		u, ok := byID[id]
		if !ok {
			return nil, &domain.ValidationError{Field: "unit_ids", Reason: fmt.Sprintf("unit %s does not belong to batch %s", id, batch.BatchNumber)}
		}
		if err := ledger.RequireActive(domain.EntityUnit, u.ID, u.Status()); err != nil {
			return nil, err
		}
		picked = append(picked, u)
	}
	if quantity != 0 && quantity != len(picked) {
		return nil, &domain.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("quantity %d does not match %d unit ids", quantity, len(picked)),
		}
	}
	if err := ledger.CheckCount(domain.EntityBatch, batch.ID, len(picked), len(live)); err != nil {
		return nil, err
	}
	return picked, nil
}

// retireUnits marks units terminal. A non-empty targetID records a conversion
// into that lot; otherwise the units are destroyed.
func retireUnits(tx domain.Transaction, units []domain.Unit, reason, member, targetID string, now time.Time) error {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	if err := tx.Lock(ids...); err != nil {
		return err
	}
	for _, u := range units {
		_, err := tx.UpdateUnit(u.ID, func(unit *domain.Unit) error {
			if err := ledger.RequireActive(domain.EntityUnit, unit.ID, unit.Status()); err != nil {
				return err
			}
			at := now
			unit.IsDestroyed = true
			unit.DestroyReason = reason
			unit.DestroyedAt = &at
			unit.DestroyedBy = optional(member)
			if targetID != "" {
				target := targetID
				unit.ConvertedTo = &target
				unit.ConvertedAt = &at
				unit.ConvertedBy = optional(member)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// lockBatch locks a batch and returns it with its units as of the lock.
func lockBatch(tx domain.Transaction, id string) (domain.Batch, []domain.Unit, error) {
	if err := tx.Lock(id); err != nil {
		return domain.Batch{}, nil, err
	}
	batch, ok := tx.FindBatch(id)
	if !ok {
		return domain.Batch{}, nil, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	units := tx.ListUnits(id)
	if err := ledger.RequireActive(domain.EntityBatch, batch.ID, ledger.Units(batch, units).Status()); err != nil {
		return domain.Batch{}, nil, err
	}
	return batch, units, nil
}

func unitIDs(units []domain.Unit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

// IntakeSeeds registers an externally sourced root seed lot.
func (s *Service) IntakeSeeds(ctx context.Context, req IntakeRequest) (domain.SeedLot, error) {
	var created domain.SeedLot
	_, err := s.run(ctx, "intake_seeds", func(tx domain.Transaction, sub *subject) error {
		if req.Quantity <= 0 {
			return &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
		}
		number, err := s.nextBatchNumber(tx, domain.StagePropagationSeed.Prefix())
		if err != nil {
			return err
		}
		created, err = tx.CreateSeedLot(domain.SeedLot{
			Base: domain.Base{
				BatchNumber:       number,
				Stage:             domain.StagePropagationSeed,
				ResponsibleMember: optional(req.Member),
				Room:              optional(req.Room),
				Notes:             req.Notes,
			},
			StrainID:          optional(req.StrainID),
			Quantity:          req.Quantity,
			RemainingQuantity: req.Quantity,
		})
		if err != nil {
			return err
		}
		sub.set(created.ID, created.BatchNumber)
		return appendAudit(tx, domain.AuditEvent{
			Operation:     "intake_seeds",
			Entity:        domain.EntitySeedLot,
			EntityID:      created.ID,
			BatchNumber:   created.BatchNumber,
			Actor:         req.Member,
			QuantityAfter: strconv.Itoa(created.Quantity),
		})
	})
	return created, err
}

type seedConverter struct{}

func (seedConverter) convert(c *conversion) (Lot, error) {
	tx, req := c.tx, c.req
	id := c.source.id()
	if err := tx.Lock(id); err != nil {
		return Lot{}, err
	}
	seed, ok := tx.FindSeedLot(id)
	if !ok {
		return Lot{}, domain.NotFoundError{Entity: domain.EntitySeedLot, ID: id}
	}
	if len(req.UnitIDs) > 0 {
		return Lot{}, &domain.ValidationError{Field: "unit_ids", Reason: "seed lots are counted, not tracked per unit"}
	}
	if err := ledger.RequireActive(domain.EntitySeedLot, seed.ID, seed.Status()); err != nil {
		return Lot{}, err
	}
	if err := ledger.CheckSeed(seed, req.Quantity); err != nil {
		return Lot{}, err
	}

	batch, units, err := c.svc.createBatch(tx, batchSpec{
		stage:       req.TargetStage,
		quantity:    req.Quantity,
		strainID:    seed.StrainID,
		sourceID:    seed.ID,
		sourceStage: domain.StagePropagationSeed,
		member:      req.Member,
		room:        req.Room,
		notes:       req.Notes,
	})
	if err != nil {
		return Lot{}, err
	}
	updated, err := tx.UpdateSeedLot(seed.ID, func(s *domain.SeedLot) error {
		s.RemainingQuantity -= req.Quantity
		s.ConvertedQuantity += req.Quantity
		return nil
	})
	if err != nil {
		return Lot{}, err
	}

	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "convert",
		Entity:         domain.EntitySeedLot,
		EntityID:       seed.ID,
		BatchNumber:    seed.BatchNumber,
		Actor:          req.Member,
		Reason:         convertedReason(req.TargetStage, batch.BatchNumber),
		QuantityBefore: strconv.Itoa(seed.RemainingQuantity),
		QuantityAfter:  strconv.Itoa(updated.RemainingQuantity),
		Related:        []string{batch.ID},
	}); err != nil {
		return Lot{}, err
	}
	if err := auditBatchCreated(tx, batch, seed.ID, seed.BatchNumber, req.Member); err != nil {
		return Lot{}, err
	}
	return batchLot(batch, units), nil
}

func auditBatchCreated(tx domain.Transaction, batch domain.Batch, sourceID, sourceNumber, member string) error {
	return appendAudit(tx, domain.AuditEvent{
		Operation:     "convert",
		Entity:        domain.EntityBatch,
		EntityID:      batch.ID,
		BatchNumber:   batch.BatchNumber,
		Actor:         member,
		Reason:        "converted from " + sourceNumber,
		QuantityAfter: strconv.Itoa(batch.Quantity),
		Related:       []string{sourceID},
	})
}

type unitGroupConverter struct{}

func (unitGroupConverter) convert(c *conversion) (Lot, error) {
	tx, req := c.tx, c.req
	if c.source.batch == nil {
		return Lot{}, &domain.ValidationError{Field: "source_id", Reason: "expected a batch"}
	}
	batch, units, err := lockBatch(tx, c.source.batch.ID)
	if err != nil {
		return Lot{}, err
	}
	if req.TargetStage.Shape() == domain.ShapeWeightChain {
		return harvest(c, batch, units)
	}
	if c.edge == domain.EdgePropagating {
		return propagate(c, batch, units)
	}

	picked, err := selectUnits(batch, units, req.Quantity, req.UnitIDs)
	if err != nil {
		return Lot{}, err
	}
	target, created, err := c.svc.createBatch(tx, batchSpec{
		stage:       req.TargetStage,
		quantity:    len(picked),
		strainID:    batch.StrainID,
		sourceID:    batch.ID,
		sourceStage: batch.Stage,
		member:      req.Member,
		room:        req.Room,
		notes:       req.Notes,
	})
	if err != nil {
		return Lot{}, err
	}
	reason := convertedReason(req.TargetStage, target.BatchNumber)
	if err := retireUnits(tx, picked, reason, req.Member, target.ID, c.now); err != nil {
		return Lot{}, err
	}

	live := ledger.Units(batch, units).Live
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "convert",
		Entity:         domain.EntityBatch,
		EntityID:       batch.ID,
		BatchNumber:    batch.BatchNumber,
		Actor:          req.Member,
		Reason:         reason,
		QuantityBefore: strconv.Itoa(live),
		QuantityAfter:  strconv.Itoa(live - len(picked)),
		Related:        append([]string{target.ID}, unitIDs(picked)...),
	}); err != nil {
		return Lot{}, err
	}
	if err := auditBatchCreated(tx, target, batch.ID, batch.BatchNumber, req.Member); err != nil {
		return Lot{}, err
	}
	return batchLot(target, created), nil
}

// propagate takes cuttings from a mother batch. The mother units stay live;
// the batch only needs at least one of them.
func propagate(c *conversion, mother domain.Batch, units []domain.Unit) (Lot, error) {
	req := c.req
	if len(req.UnitIDs) > 0 {
		return Lot{}, &domain.ValidationError{Field: "unit_ids", Reason: "taking cuttings does not consume mother plants"}
	}
	if req.Quantity <= 0 {
		return Lot{}, &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	target, created, err := c.svc.createBatch(c.tx, batchSpec{
		stage:       req.TargetStage,
		quantity:    req.Quantity,
		strainID:    mother.StrainID,
		sourceID:    mother.ID,
		sourceStage: mother.Stage,
		member:      req.Member,
		room:        req.Room,
		notes:       req.Notes,
	})
	if err != nil {
		return Lot{}, err
	}
	live := strconv.Itoa(ledger.Units(mother, units).Live)
	if err := appendAudit(c.tx, domain.AuditEvent{
		Operation:      "propagate",
		Entity:         domain.EntityBatch,
		EntityID:       mother.ID,
		BatchNumber:    mother.BatchNumber,
		Actor:          req.Member,
		Reason:         fmt.Sprintf("%d %s taken as batch %s", req.Quantity, req.TargetStage.Label(), target.BatchNumber),
		QuantityBefore: live,
		QuantityAfter:  live,
		Related:        []string{target.ID},
	}); err != nil {
		return Lot{}, err
	}
	if err := auditBatchCreated(c.tx, target, mother.ID, mother.BatchNumber, req.Member); err != nil {
		return Lot{}, err
	}
	return batchLot(target, created), nil
}
