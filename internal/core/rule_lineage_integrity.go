package core

import (
	"context"
	"fmt"

	"lotledger/pkg/domain"
)

const lineageRuleName = "lineage_integrity"

// LineageIntegrityRule enforces that every derived record points at an
// existing source over a legal pipeline edge.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return lineageRuleName }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch after := change.After.(type) {
		case domain.SeedLot:
			checkSeedLineage(&res, view, after)
		case domain.Batch:
			checkBatchLineage(&res, view, after)
		case domain.Unit:
			checkUnitLineage(&res, view, after)
		case domain.WeightLot:
			checkWeightLineage(&res, view, after)
		}
	}
	return res, nil
}

func lineageViolation(entity domain.EntityType, id, message string) domain.Violation {
	return blockViolation(lineageRuleName, entity, id, message)
}

func checkSeedLineage(res *domain.Result, view domain.TransactionView, seed domain.SeedLot) {
	if seed.Stage != domain.StagePropagationSeed {
		res.Violations = append(res.Violations, lineageViolation(domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s has stage %s", seed.BatchNumber, seed.Stage)))
	}
	if !seed.IsSplit() {
		if seed.Relation != "" {
			res.Violations = append(res.Violations, lineageViolation(domain.EntitySeedLot, seed.ID,
				fmt.Sprintf("seed lot %s has relation %s without a parent", seed.BatchNumber, seed.Relation)))
		}
		return
	}
	if seed.Relation != domain.RelationSplitForDestruction {
		res.Violations = append(res.Violations, lineageViolation(domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s is split off with relation %q", seed.BatchNumber, seed.Relation)))
	}
	parent, ok := view.FindSeedLot(*seed.ParentID)
	switch {
	case !ok:
		res.Violations = append(res.Violations, lineageViolation(domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s references missing parent %s", seed.BatchNumber, *seed.ParentID)))
	case parent.IsSplit():
		res.Violations = append(res.Violations, lineageViolation(domain.EntitySeedLot, seed.ID,
			fmt.Sprintf("seed lot %s is split off another split %s", seed.BatchNumber, parent.BatchNumber)))
	}
}

func checkBatchLineage(res *domain.Result, view domain.TransactionView, batch domain.Batch) {
	if batch.Stage.Shape() != domain.ShapeUnitGroup || batch.Stage == domain.StagePropagationSeed {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityBatch, batch.ID,
			fmt.Sprintf("batch %s cannot hold stage %s", batch.BatchNumber, batch.Stage)))
		return
	}
	if batch.SourceID == nil {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityBatch, batch.ID,
			fmt.Sprintf("batch %s has no source", batch.BatchNumber)))
		return
	}
	var exists bool
	if batch.SourceStage == domain.StagePropagationSeed {
		_, exists = view.FindSeedLot(*batch.SourceID)
	} else {
		var src domain.Batch
		src, exists = view.FindBatch(*batch.SourceID)
		if exists && src.Stage != batch.SourceStage {
			res.Violations = append(res.Violations, lineageViolation(domain.EntityBatch, batch.ID,
				fmt.Sprintf("batch %s records source stage %s but its source is %s", batch.BatchNumber, batch.SourceStage, src.Stage)))
		}
	}
	if !exists {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityBatch, batch.ID,
			fmt.Sprintf("batch %s references missing source %s", batch.BatchNumber, *batch.SourceID)))
	}
	if _, ok := domain.Edge(batch.SourceStage, batch.Stage); !ok {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityBatch, batch.ID,
			fmt.Sprintf("batch %s: %s cannot become %s", batch.BatchNumber, batch.SourceStage.Label(), batch.Stage.Label())))
	}
}

func checkUnitLineage(res *domain.Result, view domain.TransactionView, unit domain.Unit) {
	batch, ok := view.FindBatch(unit.BatchID)
	if !ok {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityUnit, unit.ID,
			fmt.Sprintf("unit %s references missing batch %s", unit.BatchNumber, unit.BatchID)))
		return
	}
	if batch.Stage != unit.Stage {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityUnit, unit.ID,
			fmt.Sprintf("unit %s has stage %s inside %s batch %s", unit.BatchNumber, unit.Stage, batch.Stage, batch.BatchNumber)))
	}
}

func checkWeightLineage(res *domain.Result, view domain.TransactionView, lot domain.WeightLot) {
	fail := func(format string, args ...any) {
		res.Violations = append(res.Violations, lineageViolation(domain.EntityWeightLot, lot.ID, fmt.Sprintf(format, args...)))
	}
	if lot.Stage.Shape() != domain.ShapeWeightChain {
		fail("weight lot %s cannot hold stage %s", lot.BatchNumber, lot.Stage)
		return
	}
	if lot.SourceID == nil {
		fail("weight lot %s has no source", lot.BatchNumber)
		return
	}

	if lot.Stage == domain.StageHarvest {
		if lot.Harvest == nil || lot.Harvest.BatchID() != *lot.SourceID {
			fail("harvest %s must reference exactly its source batch", lot.BatchNumber)
			return
		}
		if lot.Harvest.FloweringPlantBatchID != nil && lot.Harvest.BloomingCuttingBatchID != nil {
			fail("harvest %s references both a flowering and a blooming batch", lot.BatchNumber)
		}
		batch, ok := view.FindBatch(*lot.SourceID)
		if !ok {
			fail("harvest %s references missing batch %s", lot.BatchNumber, *lot.SourceID)
			return
		}
		if _, ok := domain.Edge(batch.Stage, domain.StageHarvest); !ok {
			fail("harvest %s cannot come from %s", lot.BatchNumber, batch.Stage.Label())
		}
		return
	}

	parent, ok := view.FindWeightLot(*lot.SourceID)
	if !ok {
		fail("weight lot %s references missing source %s", lot.BatchNumber, *lot.SourceID)
		return
	}
	if lot.Synthetic() {
		if lot.Stage != domain.StageLabTesting || parent.Stage != domain.StageLabTesting || parent.Synthetic() {
			fail("%s record %s must hang off a lab testing lot", lot.Relation, lot.BatchNumber)
		}
		if lot.Destruction == nil {
			fail("%s record %s must be destroyed", lot.Relation, lot.BatchNumber)
		}
		return
	}
	if _, ok := domain.Edge(parent.Stage, lot.Stage); !ok {
		fail("weight lot %s: %s cannot become %s", lot.BatchNumber, parent.Stage.Label(), lot.Stage.Label())
	}
	switch lot.Stage {
	case domain.StagePackaging:
		if parent.Lab == nil || parent.Lab.Status != domain.LabPassed {
			fail("packaging %s drawn from lab lot %s that has not passed", lot.BatchNumber, parent.BatchNumber)
		}
		if lot.Packaging == nil || !lot.Packaging.TotalWeight().Equal(lot.OutputWeight) {
			fail("packaging %s weight does not match its package lines", lot.BatchNumber)
		}
	case domain.StageDistribution:
		if lot.Recipient == nil {
			fail("distribution %s has no recipient", lot.BatchNumber)
		}
	}
}
