package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSeedLotStatus(t *testing.T) {
	tests := []struct {
		name string
		seed SeedLot
		want Status
	}{
		{"remaining", SeedLot{Quantity: 10, RemainingQuantity: 4, ConvertedQuantity: 6}, StatusActive},
		{"depleted by conversion", SeedLot{Quantity: 10, ConvertedQuantity: 4, DestroyedQuantity: 6}, StatusConverted},
		{"depleted by destruction", SeedLot{Quantity: 10, DestroyedQuantity: 10}, StatusDestroyed},
		{"split record", SeedLot{Quantity: 3, Destruction: &Destruction{Reason: "mold"}}, StatusDestroyed},
	}
	for _, tt := range tests {
		if got := tt.seed.Status(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestUnitStatus(t *testing.T) {
	target := "batch-2"
	if (Unit{}).Status() != StatusActive || !(Unit{}).Live() {
		t.Fatalf("new unit must be live")
	}
	if (Unit{IsDestroyed: true}).Status() != StatusDestroyed {
		t.Fatalf("expected destroyed")
	}
	if (Unit{IsDestroyed: true, ConvertedTo: &target}).Status() != StatusConverted {
		t.Fatalf("converted units are told apart by ConvertedTo")
	}
}

func TestWeightLotDerivedMetrics(t *testing.T) {
	w := WeightLot{InputWeight: dec("500"), OutputWeight: dec("80")}
	if got := w.YieldPercent(); !got.Equal(dec("16")) {
		t.Fatalf("yield = %s", got)
	}
	if got := w.WeightLossPercent(); !got.Equal(dec("84")) {
		t.Fatalf("loss = %s", got)
	}
	if !(WeightLot{}).YieldPercent().IsZero() {
		t.Fatalf("zero input must not divide")
	}
	sample := WeightLot{InputWeight: dec("5"), Relation: RelationSample}
	if !sample.Consumption().IsZero() || !sample.Synthetic() {
		t.Fatalf("samples consume nothing from the lab lot")
	}
	if !w.Consumption().Equal(dec("500")) {
		t.Fatalf("consumption = %s", w.Consumption())
	}
}

func TestLabAndPackagingDetail(t *testing.T) {
	thc, cbd := dec("21.4"), dec("0.6")
	lab := LabDetail{THC: &thc}
	if _, ok := lab.TotalCannabinoids(); ok {
		t.Fatalf("total needs both values")
	}
	lab.CBD = &cbd
	if total, ok := lab.TotalCannabinoids(); !ok || !total.Equal(dec("22")) {
		t.Fatalf("total = %s, %v", total, ok)
	}
	p := PackagingDetail{UnitCount: 4, UnitWeight: dec("2.5")}
	if !p.TotalWeight().Equal(dec("10")) {
		t.Fatalf("total weight = %s", p.TotalWeight())
	}
}

func TestWeightLotCloneIsDeep(t *testing.T) {
	thc := dec("20")
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	recipient := "member-1"
	orig := WeightLot{
		Recipient: &recipient,
		Lab:       &LabDetail{THC: &thc, TestedAt: &at},
	}
	cp := orig.Clone()
	*cp.Recipient = "member-2"
	*cp.Lab.THC = dec("1")
	cp.Lab.Status = LabFailed
	if *orig.Recipient != "member-1" || !orig.Lab.THC.Equal(dec("20")) || orig.Lab.Status != "" {
		t.Fatalf("clone shares state with original")
	}
	ev := AuditEvent{Related: []string{"a"}}
	evc := ev.Clone()
	evc.Related[0] = "b"
	if ev.Related[0] != "a" {
		t.Fatalf("audit clone shares related ids")
	}
}
