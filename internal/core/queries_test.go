package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

func TestTraceFromPackagingUnitToSeed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lab := labLot(t, svc)
	passLab(t, svc, lab.ID)
	res, err := svc.Package(ctx, core.PackageRequest{LabID: lab.ID, Lines: []core.PackageLine{{UnitCount: 11, UnitWeight: grams("5")}}, Member: "packer"})
	require.NoError(t, err)

	lineage, err := svc.Trace(ctx, res.Units[0].BatchNumber)
	require.NoError(t, err)
	assert.Equal(t, res.Units[0].ID, lineage.Subject.ID)

	stages := make([]domain.Stage, 0, len(lineage.Ancestors))
	for _, n := range lineage.Ancestors {
		stages = append(stages, n.Stage)
	}
	assert.Equal(t, []domain.Stage{
		domain.StagePackaging,
		domain.StageLabTesting,
		domain.StageProcessing,
		domain.StageDrying,
		domain.StageHarvest,
		domain.StageFloweringPlant,
		domain.StagePropagationSeed,
	}, stages)
	assert.Equal(t, -1, lineage.Ancestors[0].Depth)
	assert.Equal(t, lineage.Ancestors[1].ID, lineage.Ancestors[0].ParentID)

	nodes := lineage.Nodes()
	assert.Equal(t, domain.StagePropagationSeed, nodes[0].Stage)
	assert.Equal(t, res.Units[0].ID, nodes[len(nodes)-1].ID)
}

func TestTraceDescendantsOfSeed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seed := intake(t, svc, 6)
	mothers := convert(t, svc, core.ConvertRequest{SourceID: seed.ID, TargetStage: domain.StageMotherPlant, Quantity: 2})
	_, err := svc.DestroySeeds(ctx, seed.ID, 1, "cracked", "member-1")
	require.NoError(t, err)

	lineage, err := svc.Trace(ctx, seed.ID)
	require.NoError(t, err)
	assert.Empty(t, lineage.Ancestors)

	var splits, batches, units int
	for _, n := range lineage.Descendants {
		switch {
		case n.Entity == domain.EntitySeedLot:
			splits++
			assert.Equal(t, domain.RelationSplitForDestruction, n.Relation)
			assert.Equal(t, domain.StatusDestroyed, n.Status)
		case n.Entity == domain.EntityBatch:
			batches++
			assert.Equal(t, mothers.ID, n.ID)
			assert.Equal(t, 1, n.Depth)
		case n.Entity == domain.EntityUnit:
			units++
			assert.Equal(t, mothers.ID, n.ParentID)
			assert.Equal(t, 2, n.Depth)
		}
	}
	assert.Equal(t, 1, splits)
	assert.Equal(t, 1, batches)
	assert.Equal(t, 2, units)
}

func TestHistoryIncludesRelatedEvents(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lab := labLot(t, svc)
	passed := passLab(t, svc, lab.ID)

	history, err := svc.History(ctx, lab.ID)
	require.NoError(t, err)
	var sawSample bool
	for _, e := range history {
		if e.EntityID == *passed.Lab.SampleLotID {
			sawSample = true
			assert.Equal(t, core.SampleReason, e.Reason)
		}
	}
	assert.True(t, sawSample, "sample destruction references the lab lot")

	_, err = svc.History(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyCleanLedger(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lab := labLot(t, svc)
	passLab(t, svc, lab.ID)
	res, err := svc.Package(ctx, core.PackageRequest{
		LabID:           lab.ID,
		Lines:           []core.PackageLine{{UnitCount: 10, UnitWeight: grams("5")}},
		RemainderWeight: grams("5"),
		Member:          "packer",
	})
	require.NoError(t, err)
	_, err = svc.Distribute(ctx, core.DistributeRequest{PackagingUnitID: res.Units[0].ID, Recipient: "member-9", Member: "member-1"})
	require.NoError(t, err)
	seed := intake(t, svc, 3)
	_, err = svc.DestroySeeds(ctx, seed.ID, 2, "cracked", "member-1")
	require.NoError(t, err)

	report, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "violations: %+v", report.Violations)
	assert.Equal(t, 3, report.SeedLots)
	assert.Greater(t, report.WeightLots, 15)
}

func TestVerifyReportsTamperedRecords(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seed := intake(t, svc, 5)

	// Write past the service, bypassing the rules the service relies on.
	store := svc.Store()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateSeedLot(seed.ID, func(s *domain.SeedLot) error {
			s.RemainingQuantity = 7
			return nil
		})
		return err
	})
	require.Error(t, err, "the commit-time conservation rule rejects the write")
	var ruleErr domain.RuleViolationError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, domain.CodeRuleViolation, domain.Code(err))

	report, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}
