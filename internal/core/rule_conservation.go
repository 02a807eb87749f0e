package core

import (
	"context"
	"fmt"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

const conservationRuleName = "conservation"

// ConservationRule re-checks the ledger balance of every lot touched by a
// transaction: seed counters, batch unit counts and weight consumption.
func ConservationRule() domain.Rule {
	return conservationRule{}
}

type conservationRule struct{}

func (conservationRule) Name() string { return conservationRuleName }

func (conservationRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seeds := make(map[string]struct{})
	batches := make(map[string]struct{})
	weights := make(map[string]struct{})

	for _, change := range changes {
		switch after := change.After.(type) {
		case domain.SeedLot:
			seeds[after.ID] = struct{}{}
			if after.ParentID != nil {
				seeds[*after.ParentID] = struct{}{}
			}
		case domain.Batch:
			batches[after.ID] = struct{}{}
		case domain.Unit:
			batches[after.BatchID] = struct{}{}
		case domain.WeightLot:
			weights[after.ID] = struct{}{}
			if after.SourceID != nil && after.Harvest == nil {
				weights[*after.SourceID] = struct{}{}
			}
		}
	}

	for _, id := range sortedKeys(seeds) {
		seed, ok := view.FindSeedLot(id)
		if !ok {
			continue
		}
		checkSeedBalance(&res, view, seed)
	}
	for _, id := range sortedKeys(batches) {
		batch, ok := view.FindBatch(id)
		if !ok {
			continue
		}
		bal := ledger.Units(batch, view.ListUnits(id))
		if !bal.Balanced() {
			res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityBatch, id,
				fmt.Sprintf("batch %s has %d units (%d live, %d converted, %d destroyed) for quantity %d",
					batch.BatchNumber, bal.Units, bal.Live, bal.Converted, bal.Destroyed, bal.Quantity)))
		}
	}
	for _, id := range sortedKeys(weights) {
		lot, ok := view.FindWeightLot(id)
		if !ok {
			continue
		}
		checkWeightBalance(&res, view, lot)
	}
	return res, nil
}

func checkSeedBalance(res *domain.Result, view domain.TransactionView, seed domain.SeedLot) {
	if seed.IsSplit() {
		if seed.DestroyedQuantity != seed.Quantity || seed.RemainingQuantity != 0 || seed.ConvertedQuantity != 0 {
			res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntitySeedLot, seed.ID,
				fmt.Sprintf("destruction split %s must destroy exactly its %d seeds", seed.BatchNumber, seed.Quantity)))
		}
		return
	}
	bal := ledger.Seed(seed)
	if !bal.Balanced() {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s: converted %d + destroyed %d + remaining %d != %d",
				seed.BatchNumber, bal.Converted, bal.Destroyed, bal.Remaining, bal.Total)))
	}
	split := 0
	for _, s := range view.ListSeedSplits(seed.ID) {
		split += s.DestroyedQuantity
	}
	if split != seed.DestroyedQuantity {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s records %d destroyed seeds but its splits hold %d", seed.BatchNumber, seed.DestroyedQuantity, split)))
	}
	converted := 0
	for _, b := range view.ListBatchesBySource(seed.ID) {
		converted += b.Quantity
	}
	if converted != seed.ConvertedQuantity {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s records %d converted seeds but its batches hold %d", seed.BatchNumber, seed.ConvertedQuantity, converted)))
	}
}

func checkWeightBalance(res *domain.Result, view domain.TransactionView, lot domain.WeightLot) {
	if lot.OutputWeight.IsNegative() || lot.InputWeight.IsNegative() {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityWeightLot, lot.ID,
			fmt.Sprintf("%s has a negative weight", lot.BatchNumber)))
	}
	if lot.OutputWeight.GreaterThan(lot.InputWeight) {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityWeightLot, lot.ID,
			fmt.Sprintf("%s output %s g exceeds input %s g", lot.BatchNumber, lot.OutputWeight, lot.InputWeight)))
	}
	if lot.Lab != nil && !lot.Synthetic() && lot.OutputWeight.Add(lot.Lab.SampleWeight).GreaterThan(lot.InputWeight) {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityWeightLot, lot.ID,
			fmt.Sprintf("%s output plus sample exceeds input %s g", lot.BatchNumber, lot.InputWeight)))
	}
	if lot.Lab != nil && !lot.Synthetic() && lot.Lab.SampleWeight.IsPositive() && lot.Lab.SampleLotID == nil &&
		(lot.Lab.Status != domain.LabPending || lot.Status().Terminal()) {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityWeightLot, lot.ID,
			fmt.Sprintf("%s took a %s g sample that is not on the ledger", lot.BatchNumber, lot.Lab.SampleWeight)))
	}
	bal := ledger.Weight(lot, view.ListWeightChildren(lot.ID))
	if !bal.Balanced() {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityWeightLot, lot.ID,
			fmt.Sprintf("%s children consume %s g of %s g", lot.BatchNumber, bal.Consumed, bal.Output)))
	}
	if lot.ConvertedToNextStage && !bal.Available.IsZero() {
		res.Violations = append(res.Violations, blockViolation(conservationRuleName, domain.EntityWeightLot, lot.ID,
			fmt.Sprintf("%s is converted but %s g are unaccounted for", lot.BatchNumber, bal.Available)))
	}
}
