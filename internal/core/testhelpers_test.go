package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

var testDay = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func fixedClock() core.Clock {
	return core.ClockFunc(func() time.Time { return testDay })
}

func grams(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestService(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	opts = append([]core.ServiceOption{core.WithClock(fixedClock())}, opts...)
	return core.NewInMemoryService(nil, opts...)
}

func intake(t *testing.T, svc *core.Service, quantity int) domain.SeedLot {
	t.Helper()
	seed, err := svc.IntakeSeeds(context.Background(), core.IntakeRequest{Quantity: quantity, StrainID: "strain-1", Member: "member-1", Room: "room-a"})
	require.NoError(t, err)
	return seed
}

func convert(t *testing.T, svc *core.Service, req core.ConvertRequest) core.Lot {
	t.Helper()
	if req.Member == "" {
		req.Member = "member-1"
	}
	lot, err := svc.Convert(context.Background(), req)
	require.NoError(t, err)
	return lot
}

// harvestOf grows plants plants from fresh seed and harvests weight grams,
// consuming every plant.
func harvestOf(t *testing.T, svc *core.Service, plants int, weight string) core.Lot {
	t.Helper()
	seed := intake(t, svc, plants)
	flowering := convert(t, svc, core.ConvertRequest{SourceID: seed.ID, TargetStage: domain.StageFloweringPlant, Quantity: plants})
	return convert(t, svc, core.ConvertRequest{
		SourceID:     flowering.ID,
		TargetStage:  domain.StageHarvest,
		Quantity:     plants,
		OutputWeight: grams(weight),
	})
}

// labLot walks a harvest of 500 g through drying (80 g) and processing
// (60 g) into a lab lot that took a 5 g sample.
func labLot(t *testing.T, svc *core.Service) core.Lot {
	t.Helper()
	harvest := harvestOf(t, svc, 4, "500")
	drying := convert(t, svc, core.ConvertRequest{SourceID: harvest.ID, TargetStage: domain.StageDrying, OutputWeight: grams("80")})
	processing := convert(t, svc, core.ConvertRequest{SourceID: drying.ID, TargetStage: domain.StageProcessing, OutputWeight: grams("60")})
	return convert(t, svc, core.ConvertRequest{SourceID: processing.ID, TargetStage: domain.StageLabTesting, SampleWeight: grams("5")})
}

func passLab(t *testing.T, svc *core.Service, labID string) domain.WeightLot {
	t.Helper()
	thc, cbd := grams("21.4"), grams("0.6")
	lab, err := svc.RecordLabResult(context.Background(), core.LabResultRequest{
		LabID:  labID,
		Status: domain.LabPassed,
		THC:    &thc,
		CBD:    &cbd,
		Member: "analyst",
	})
	require.NoError(t, err)
	return lab
}

func countWeightLots(t *testing.T, svc *core.Service) int {
	t.Helper()
	var n int
	require.NoError(t, svc.Store().View(context.Background(), func(v domain.TransactionView) error {
		n = len(v.ListWeightLots())
		return nil
	}))
	return n
}

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("time zone %s unavailable: %v", name, err)
	}
	return loc
}
