// Package domain defines the lot records, pipeline stages, error taxonomy and
// transactional persistence contracts used by lotledger.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the kind of record stored in the lot store.
type EntityType string

// Record kinds used in Change entries, audit events and persistence buckets.
const (
	EntitySeedLot   EntityType = "seed_lot"
	EntityBatch     EntityType = "batch"
	EntityUnit      EntityType = "unit"
	EntityWeightLot EntityType = "weight_lot"
)

// Status is the derived lifecycle state shared by every lot.
type Status string

const (
	StatusActive    Status = "active"
	StatusDestroyed Status = "destroyed"
	StatusConverted Status = "converted"
)

// Terminal reports whether no further conversion or destruction is allowed.
func (s Status) Terminal() bool { return s == StatusDestroyed || s == StatusConverted }

// Relation qualifies a parent/child link that is not a plain stage conversion.
type Relation string

const (
	// RelationSplitForDestruction marks the destroyed part split off a seed lot.
	RelationSplitForDestruction Relation = "SPLIT_FOR_DESTRUCTION"
	// RelationSample marks the analytical sample consumed by a lab test.
	RelationSample Relation = "SAMPLE"
	// RelationRemainder marks residual weight destroyed to close out a lot.
	RelationRemainder Relation = "REMAINDER"
)

// LabStatus is the quality gate state of a lab testing lot.
type LabStatus string

const (
	LabPending LabStatus = "PENDING"
	LabPassed  LabStatus = "PASSED"
	LabFailed  LabStatus = "FAILED"
)

// Base holds the fields common to every lot record.
type Base struct {
	ID                string    `json:"id"`
	BatchNumber       string    `json:"batch_number"`
	Stage             Stage     `json:"stage"`
	CreatedAt         time.Time `json:"created_at"`
	ResponsibleMember *string   `json:"responsible_member,omitempty"`
	Room              *string   `json:"room,omitempty"`
	Notes             string    `json:"notes,omitempty"`
}

// Destruction records who destroyed a record, when, and why.
type Destruction struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
}

// SeedLot is the root PropagationSeed lot. It has no child units; its
// quantity is consumed through explicit counters.
type SeedLot struct {
	Base
	StrainID          *string      `json:"strain_id,omitempty"`
	Quantity          int          `json:"quantity"`
	RemainingQuantity int          `json:"remaining_quantity"`
	ConvertedQuantity int          `json:"converted_quantity"`
	DestroyedQuantity int          `json:"destroyed_quantity"`
	ParentID          *string      `json:"parent_id,omitempty"`
	Relation          Relation     `json:"relation,omitempty"`
	Destruction       *Destruction `json:"destruction,omitempty"`
}

// Status derives the seed lot state. A split record is destroyed; a root lot
// stays active while seeds remain and is converted once depleted by any
// conversion.
func (s SeedLot) Status() Status {
	switch {
	case s.Destruction != nil:
		return StatusDestroyed
	case s.RemainingQuantity > 0:
		return StatusActive
	case s.ConvertedQuantity > 0:
		return StatusConverted
	default:
		return StatusDestroyed
	}
}

// IsSplit reports whether the record is the destroyed part of another seed lot.
func (s SeedLot) IsSplit() bool { return s.ParentID != nil }

// Batch groups the units produced by one unit-group conversion. It has no
// destroyed state of its own; status derives from its units.
type Batch struct {
	Base
	StrainID    *string `json:"strain_id,omitempty"`
	Quantity    int     `json:"quantity"`
	SourceID    *string `json:"source_id,omitempty"`
	SourceStage Stage   `json:"source_stage,omitempty"`
}

// Unit is one individually destroyable member of a batch.
type Unit struct {
	ID            string     `json:"id"`
	BatchID       string     `json:"batch_id"`
	BatchNumber   string     `json:"batch_number"`
	Stage         Stage      `json:"stage"`
	CreatedAt     time.Time  `json:"created_at"`
	Notes         string     `json:"notes,omitempty"`
	IsDestroyed   bool       `json:"is_destroyed"`
	DestroyReason string     `json:"destroy_reason,omitempty"`
	DestroyedAt   *time.Time `json:"destroyed_at,omitempty"`
	DestroyedBy   *string    `json:"destroyed_by,omitempty"`
	ConvertedTo   *string    `json:"converted_to,omitempty"`
	ConvertedAt   *time.Time `json:"converted_at,omitempty"`
	ConvertedBy   *string    `json:"converted_by,omitempty"`
}

// Status derives the unit state. A converted unit also carries the destroyed
// flag; ConvertedTo distinguishes consumption from destruction.
func (u Unit) Status() Status {
	switch {
	case u.ConvertedTo != nil:
		return StatusConverted
	case u.IsDestroyed:
		return StatusDestroyed
	default:
		return StatusActive
	}
}

// Live reports whether the unit can still be converted or destroyed.
func (u Unit) Live() bool { return u.Status() == StatusActive }

// HarvestSource references the unit-group batch a harvest came from. Exactly
// one of the two fields is set.
type HarvestSource struct {
	FloweringPlantBatchID  *string `json:"flowering_plant_batch_id,omitempty"`
	BloomingCuttingBatchID *string `json:"blooming_cutting_batch_id,omitempty"`
}

// BatchID returns whichever source reference is set.
func (h HarvestSource) BatchID() string {
	switch {
	case h.FloweringPlantBatchID != nil:
		return *h.FloweringPlantBatchID
	case h.BloomingCuttingBatchID != nil:
		return *h.BloomingCuttingBatchID
	}
	return ""
}

// LabDetail carries the quality gate fields of a lab testing lot.
type LabDetail struct {
	SampleWeight decimal.Decimal  `json:"sample_weight"`
	Status       LabStatus        `json:"status"`
	THC          *decimal.Decimal `json:"thc,omitempty"`
	CBD          *decimal.Decimal `json:"cbd,omitempty"`
	TestedAt     *time.Time       `json:"tested_at,omitempty"`
	TestedBy     *string          `json:"tested_by,omitempty"`
	SampleLotID  *string          `json:"sample_lot_id,omitempty"`
}

// TotalCannabinoids returns thc + cbd content once both are known.
func (l LabDetail) TotalCannabinoids() (decimal.Decimal, bool) {
	if l.THC == nil || l.CBD == nil {
		return decimal.Zero, false
	}
	return l.THC.Add(*l.CBD), true
}

// PackagingDetail describes one package line.
type PackagingDetail struct {
	UnitCount  int              `json:"unit_count"`
	UnitWeight decimal.Decimal  `json:"unit_weight"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Label      string           `json:"label,omitempty"`
}

// TotalWeight is unit_count × unit_weight.
func (p PackagingDetail) TotalWeight() decimal.Decimal {
	return p.UnitWeight.Mul(decimal.NewFromInt(int64(p.UnitCount)))
}

// WeightLot is one hop of the weight chain. Stage-specific detail lives in the
// optional Harvest, Lab and Packaging fields selected by Stage.
type WeightLot struct {
	Base
	StrainID             *string          `json:"strain_id,omitempty"`
	InputWeight          decimal.Decimal  `json:"input_weight"`
	OutputWeight         decimal.Decimal  `json:"output_weight"`
	SourceID             *string          `json:"source_id,omitempty"`
	Relation             Relation         `json:"relation,omitempty"`
	Category             string           `json:"category,omitempty"`
	Recipient            *string          `json:"recipient,omitempty"`
	ConvertedToNextStage bool             `json:"converted_to_next_stage"`
	ConvertedAt          *time.Time       `json:"converted_at,omitempty"`
	NextStageID          *string          `json:"next_stage_id,omitempty"`
	Destruction          *Destruction     `json:"destruction,omitempty"`
	Harvest              *HarvestSource   `json:"harvest,omitempty"`
	Lab                  *LabDetail       `json:"lab,omitempty"`
	Packaging            *PackagingDetail `json:"packaging,omitempty"`
}

// Status derives the weight lot state.
func (w WeightLot) Status() Status {
	switch {
	case w.Destruction != nil:
		return StatusDestroyed
	case w.ConvertedToNextStage:
		return StatusConverted
	default:
		return StatusActive
	}
}

// Synthetic reports whether the record represents a sample or remainder split
// off its source rather than a stage conversion.
func (w WeightLot) Synthetic() bool {
	return w.Relation == RelationSample || w.Relation == RelationRemainder
}

// YieldPercent is output/input × 100.
func (w WeightLot) YieldPercent() decimal.Decimal {
	if w.InputWeight.IsZero() {
		return decimal.Zero
	}
	return w.OutputWeight.Div(w.InputWeight).Mul(decimal.NewFromInt(100)).Round(2)
}

// WeightLossPercent is (1 − output/input) × 100.
func (w WeightLot) WeightLossPercent() decimal.Decimal {
	if w.InputWeight.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(100).Sub(w.YieldPercent())
}

// Consumption is the weight this record draws from its source.
func (w WeightLot) Consumption() decimal.Decimal {
	if w.Relation == RelationSample {
		// The sample is already excluded from the lab lot's output weight.
		return decimal.Zero
	}
	return w.InputWeight
}

// AuditEvent is one append-only history entry written in the same
// transaction as the mutation it describes.
type AuditEvent struct {
	ID             string     `json:"id"`
	OccurredAt     time.Time  `json:"occurred_at"`
	Operation      string     `json:"operation"`
	Entity         EntityType `json:"entity"`
	EntityID       string     `json:"entity_id"`
	BatchNumber    string     `json:"batch_number"`
	Actor          string     `json:"actor,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	QuantityBefore string     `json:"quantity_before,omitempty"`
	QuantityAfter  string     `json:"quantity_after,omitempty"`
	Related        []string   `json:"related,omitempty"`
}
