package core

import (
	"time"

	"github.com/shopspring/decimal"

	"lotledger/pkg/domain"
)

// Lot is the stage-independent summary returned by every engine operation.
// Unit-group lots report counts; weight-chain lots report grams.
type Lot struct {
	ID              string            `json:"id"`
	BatchNumber     string            `json:"batch_number"`
	Entity          domain.EntityType `json:"entity"`
	Stage           domain.Stage      `json:"stage"`
	Status          domain.Status     `json:"status"`
	Quantity        int               `json:"quantity,omitempty"`
	Available       int               `json:"available,omitempty"`
	Weight          decimal.Decimal   `json:"weight"`
	AvailableWeight decimal.Decimal   `json:"available_weight"`
	SourceID        string            `json:"source_id,omitempty"`
	Relation        domain.Relation   `json:"relation,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// IntakeRequest registers externally sourced propagation seeds.
type IntakeRequest struct {
	Quantity int
	StrainID string
	Member   string
	Room     string
	Notes    string
}

// ConvertRequest moves material from SourceID into TargetStage. Unit-group
// sources use Quantity and UnitIDs; weight sources use OutputWeight.
// SampleWeight applies to lab testing targets only.
type ConvertRequest struct {
	SourceID     string
	TargetStage  domain.Stage
	Quantity     int
	UnitIDs      []string
	OutputWeight decimal.Decimal
	SampleWeight decimal.Decimal
	Category     string
	Recipient    string
	Member       string
	Room         string
	Notes        string
}

// DestroyRequest destroys a whole lot, a single unit, or part of a batch or
// seed lot. Quantity and UnitIDs are only meaningful for batches and seeds.
type DestroyRequest struct {
	LotID    string
	Quantity int
	UnitIDs  []string
	Reason   string
	Member   string
}

// LabResultRequest records the outcome of a lab analysis.
type LabResultRequest struct {
	LabID  string
	Status domain.LabStatus
	THC    *decimal.Decimal
	CBD    *decimal.Decimal
	Member string
	Notes  string
}

// PackageLine requests UnitCount packages of UnitWeight grams each.
type PackageLine struct {
	UnitCount  int
	UnitWeight decimal.Decimal
	Price      *decimal.Decimal
	Label      string
}

// PackageRequest draws one or more package lines and an optional destroyed
// remainder from a passed lab lot.
type PackageRequest struct {
	LabID           string
	Lines           []PackageLine
	RemainderWeight decimal.Decimal
	Member          string
	Room            string
	Notes           string
}

// PackageResult lists everything a packaging run created.
type PackageResult struct {
	Lab       domain.WeightLot
	Packages  []domain.WeightLot
	Units     []domain.WeightLot
	Remainder *domain.WeightLot
}

// DistributeRequest hands one packaging unit to a recipient.
type DistributeRequest struct {
	PackagingUnitID string
	Recipient       string
	Member          string
	Notes           string
}

// LineageNode is one lot in a custody trace. Depth is negative for
// ancestors and positive for descendants.
type LineageNode struct {
	Lot
	ParentID string `json:"parent_id,omitempty"`
	Depth    int    `json:"depth"`
}

// Lineage is the chain of custody around one lot.
type Lineage struct {
	Subject     Lot           `json:"subject"`
	Ancestors   []LineageNode `json:"ancestors"`
	Descendants []LineageNode `json:"descendants"`
}

// Nodes returns ancestors root first, the subject, then descendants.
func (l Lineage) Nodes() []LineageNode {
	out := make([]LineageNode, 0, len(l.Ancestors)+len(l.Descendants)+1)
	for i := len(l.Ancestors) - 1; i >= 0; i-- {
		out = append(out, l.Ancestors[i])
	}
	out = append(out, LineageNode{Lot: l.Subject})
	return append(out, l.Descendants...)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
