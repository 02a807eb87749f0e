package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

// Destroy records the permanent destruction of a lot or part of one. Units
// and weight records are destroyed whole; batches destroy Quantity live units
// or the named UnitIDs, all live units when neither is given; seed lots split
// off Quantity seeds, all remaining when Quantity is zero.
func (s *Service) Destroy(ctx context.Context, req DestroyRequest) (Lot, error) {
	var out Lot
	_, err := s.run(ctx, "destroy", func(tx domain.Transaction, sub *subject) error {
		if err := validateDestroy(req); err != nil {
			return err
		}
		target, err := resolve(tx, req.LotID)
		if err != nil {
			return err
		}
		sub.set(target.id(), target.batchNumber())
		switch target.entity {
		case domain.EntitySeedLot:
			var split domain.SeedLot
			split, err = s.destroySeeds(tx, target.id(), req)
			out = seedLot(split)
		case domain.EntityBatch:
			out, err = destroyBatchUnits(tx, target.id(), req)
		case domain.EntityUnit:
			out, err = destroyUnit(tx, *target.unit, req)
		case domain.EntityWeightLot:
			out, err = s.destroyWeightLot(tx, target.id(), req)
		}
		return err
	})
	return out, err
}

// DestroySeeds splits quantity seeds off a root seed lot into a destroyed
// record linked to it.
func (s *Service) DestroySeeds(ctx context.Context, seedID string, quantity int, reason, member string) (domain.SeedLot, error) {
	req := DestroyRequest{LotID: seedID, Quantity: quantity, Reason: reason, Member: member}
	var split domain.SeedLot
	_, err := s.run(ctx, "destroy_seeds", func(tx domain.Transaction, sub *subject) error {
		if err := validateDestroy(req); err != nil {
			return err
		}
		if quantity <= 0 {
			return &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
		}
		sub.set(seedID, "")
		var err error
		split, err = s.destroySeeds(tx, seedID, req)
		return err
	})
	return split, err
}

func validateDestroy(req DestroyRequest) error {
	if strings.TrimSpace(req.Reason) == "" {
		return &domain.ValidationError{Field: "reason", Reason: "required"}
	}
	if strings.TrimSpace(req.Member) == "" {
		return &domain.ValidationError{Field: "member", Reason: "required"}
	}
	if req.Quantity < 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

func (s *Service) destroySeeds(tx domain.Transaction, id string, req DestroyRequest) (domain.SeedLot, error) {
	if len(req.UnitIDs) > 0 {
		return domain.SeedLot{}, &domain.ValidationError{Field: "unit_ids", Reason: "seed lots are counted, not tracked per unit"}
	}
	if err := tx.Lock(id); err != nil {
		return domain.SeedLot{}, err
	}
	seed, ok := tx.FindSeedLot(id)
	if !ok {
		return domain.SeedLot{}, domain.NotFoundError{Entity: domain.EntitySeedLot, ID: id}
	}
	if err := ledger.RequireActive(domain.EntitySeedLot, seed.ID, seed.Status()); err != nil {
		return domain.SeedLot{}, err
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = seed.RemainingQuantity
	}
	if err := ledger.CheckSeed(seed, quantity); err != nil {
		return domain.SeedLot{}, err
	}

	number, err := s.nextBatchNumber(tx, domain.StagePropagationSeed.Prefix())
	if err != nil {
		return domain.SeedLot{}, err
	}
	parentID := seed.ID
	split, err := tx.CreateSeedLot(domain.SeedLot{
		Base: domain.Base{
			BatchNumber:       number,
			Stage:             domain.StagePropagationSeed,
			ResponsibleMember: optional(req.Member),
			Room:              seed.Room,
		},
		StrainID:          seed.StrainID,
		Quantity:          quantity,
		DestroyedQuantity: quantity,
		ParentID:          &parentID,
		Relation:          domain.RelationSplitForDestruction,
		Destruction:       &domain.Destruction{Reason: req.Reason, At: tx.Now(), By: req.Member},
	})
	if err != nil {
		return domain.SeedLot{}, err
	}
	updated, err := tx.UpdateSeedLot(seed.ID, func(s *domain.SeedLot) error {
		s.RemainingQuantity -= quantity
		s.DestroyedQuantity += quantity
		return nil
	})
	if err != nil {
		return domain.SeedLot{}, err
	}

	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "destroy",
		Entity:         domain.EntitySeedLot,
		EntityID:       seed.ID,
		BatchNumber:    seed.BatchNumber,
		Actor:          req.Member,
		Reason:         req.Reason,
		QuantityBefore: strconv.Itoa(seed.RemainingQuantity),
		QuantityAfter:  strconv.Itoa(updated.RemainingQuantity),
		Related:        []string{split.ID},
	}); err != nil {
		return domain.SeedLot{}, err
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "destroy",
		Entity:         domain.EntitySeedLot,
		EntityID:       split.ID,
		BatchNumber:    split.BatchNumber,
		Actor:          req.Member,
		Reason:         req.Reason,
		QuantityBefore: strconv.Itoa(quantity),
		QuantityAfter:  "0",
		Related:        []string{seed.ID},
	}); err != nil {
		return domain.SeedLot{}, err
	}
	return split, nil
}

func destroyBatchUnits(tx domain.Transaction, id string, req DestroyRequest) (Lot, error) {
	batch, units, err := lockBatch(tx, id)
	if err != nil {
		return Lot{}, err
	}
	quantity := req.Quantity
	if quantity == 0 && len(req.UnitIDs) == 0 {
		quantity = ledger.Units(batch, units).Live
	}
	picked, err := selectUnits(batch, units, quantity, req.UnitIDs)
	if err != nil {
		return Lot{}, err
	}
	if err := retireUnits(tx, picked, req.Reason, req.Member, "", tx.Now()); err != nil {
		return Lot{}, err
	}
	live := ledger.Units(batch, units).Live
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "destroy",
		Entity:         domain.EntityBatch,
		EntityID:       batch.ID,
		BatchNumber:    batch.BatchNumber,
		Actor:          req.Member,
		Reason:         req.Reason,
		QuantityBefore: strconv.Itoa(live),
		QuantityAfter:  strconv.Itoa(live - len(picked)),
		Related:        unitIDs(picked),
	}); err != nil {
		return Lot{}, err
	}
	return batchLot(batch, tx.ListUnits(batch.ID)), nil
}

// destroyUnit locks the owning batch before the unit, the same order every
// unit-group conversion uses.
func destroyUnit(tx domain.Transaction, unit domain.Unit, req DestroyRequest) (Lot, error) {
	if req.Quantity > 1 || len(req.UnitIDs) > 0 {
		return Lot{}, &domain.ValidationError{Field: "quantity", Reason: "a unit is destroyed whole"}
	}
	if err := tx.Lock(unit.BatchID); err != nil {
		return Lot{}, err
	}
	current, ok := tx.FindUnit(unit.ID)
	if !ok {
		return Lot{}, domain.NotFoundError{Entity: domain.EntityUnit, ID: unit.ID}
	}
	if err := ledger.RequireActive(domain.EntityUnit, current.ID, current.Status()); err != nil {
		return Lot{}, err
	}
	if err := retireUnits(tx, []domain.Unit{current}, req.Reason, req.Member, "", tx.Now()); err != nil {
		return Lot{}, err
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "destroy",
		Entity:         domain.EntityUnit,
		EntityID:       current.ID,
		BatchNumber:    current.BatchNumber,
		Actor:          req.Member,
		Reason:         req.Reason,
		QuantityBefore: "1",
		QuantityAfter:  "0",
		Related:        []string{current.BatchID},
	}); err != nil {
		return Lot{}, err
	}
	destroyed, _ := tx.FindUnit(current.ID)
	return unitLot(destroyed), nil
}

// destroyWeightLot destroys whatever weight the record still holds. An
// untested lab lot also books its sample, which has already left the output.
func (s *Service) destroyWeightLot(tx domain.Transaction, id string, req DestroyRequest) (Lot, error) {
	if req.Quantity != 0 || len(req.UnitIDs) > 0 {
		return Lot{}, &domain.ValidationError{Field: "quantity", Reason: "weight lots are destroyed whole"}
	}
	lot, err := lockWeightLot(tx, id)
	if err != nil {
		return Lot{}, err
	}
	if lot.Stage == domain.StageDistribution {
		return Lot{}, &domain.ValidationError{Field: "lot_id", Reason: fmt.Sprintf("%s has left custody", lot.BatchNumber)}
	}
	if err := ledger.RequireActive(domain.EntityWeightLot, lot.ID, lot.Status()); err != nil {
		return Lot{}, err
	}
	now := tx.Now()
	var sample *domain.WeightLot
	if lot.Lab != nil && lot.Lab.Status == domain.LabPending {
		if sample, err = s.recordSample(tx, lot, req.Member, now); err != nil {
			return Lot{}, err
		}
	}
	children := tx.ListWeightChildren(lot.ID)
	available := ledger.Weight(lot, children).Available
	updated, err := tx.UpdateWeightLot(lot.ID, func(w *domain.WeightLot) error {
		w.Destruction = &domain.Destruction{Reason: req.Reason, At: now, By: req.Member}
		if sample != nil {
			id := sample.ID
			w.Lab.SampleLotID = &id
		}
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	var related []string
	if sample != nil {
		related = []string{sample.ID}
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "destroy",
		Entity:         domain.EntityWeightLot,
		EntityID:       lot.ID,
		BatchNumber:    lot.BatchNumber,
		Actor:          req.Member,
		Reason:         req.Reason,
		QuantityBefore: available.String(),
		QuantityAfter:  "0",
		Related:        related,
	}); err != nil {
		return Lot{}, err
	}
	return weightLot(updated, children), nil
}
