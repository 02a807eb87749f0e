// Package ledger implements the conservation checks that every conversion and
// destruction runs before mutating the lot store. All functions are pure.
package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"

	"lotledger/pkg/domain"
)

// SeedBalance is the counter view of a root seed lot.
type SeedBalance struct {
	Total     int
	Remaining int
	Converted int
	Destroyed int
}

// Seed returns the balance of a seed lot.
func Seed(seed domain.SeedLot) SeedBalance {
	return SeedBalance{
		Total:     seed.Quantity,
		Remaining: seed.RemainingQuantity,
		Converted: seed.ConvertedQuantity,
		Destroyed: seed.DestroyedQuantity,
	}
}

// Balanced reports converted + destroyed + remaining == total with no
// negative counter.
func (b SeedBalance) Balanced() bool {
	if b.Remaining < 0 || b.Converted < 0 || b.Destroyed < 0 {
		return false
	}
	return b.Converted+b.Destroyed+b.Remaining == b.Total
}

// UnitBalance counts the units of a batch by state.
type UnitBalance struct {
	Quantity  int
	Units     int
	Live      int
	Converted int
	Destroyed int
}

// Units returns the balance of a batch from its child units.
func Units(batch domain.Batch, units []domain.Unit) UnitBalance {
	b := UnitBalance{Quantity: batch.Quantity, Units: len(units)}
	for _, u := range units {
		switch u.Status() {
		case domain.StatusActive:
			b.Live++
		case domain.StatusConverted:
			b.Converted++
		case domain.StatusDestroyed:
			b.Destroyed++
		}
	}
	return b
}

// Balanced reports that the batch has exactly Quantity units and every unit
// is live, converted or destroyed.
func (b UnitBalance) Balanced() bool {
	return b.Units == b.Quantity && b.Live+b.Converted+b.Destroyed == b.Quantity
}

// Status derives the state of the grouping batch: active while any unit is
// live, converted once any unit was converted, destroyed otherwise.
func (b UnitBalance) Status() domain.Status {
	switch {
	case b.Live > 0:
		return domain.StatusActive
	case b.Converted > 0:
		return domain.StatusConverted
	default:
		return domain.StatusDestroyed
	}
}

// WeightBalance is the consumption view of a weight-chain lot.
type WeightBalance struct {
	Output    decimal.Decimal
	Consumed  decimal.Decimal
	Available decimal.Decimal
}

// Weight returns how much of lot's output weight its children already consumed.
func Weight(lot domain.WeightLot, children []domain.WeightLot) WeightBalance {
	consumed := decimal.Zero
	for _, child := range children {
		consumed = consumed.Add(child.Consumption())
	}
	return WeightBalance{
		Output:    lot.OutputWeight,
		Consumed:  consumed,
		Available: lot.OutputWeight.Sub(consumed),
	}
}

// Balanced reports that children never consumed more than the output weight.
func (b WeightBalance) Balanced() bool {
	return !b.Available.IsNegative()
}

// RequireActive returns a TerminalStateError when status is terminal.
func RequireActive(entity domain.EntityType, id string, status domain.Status) error {
	if status.Terminal() {
		return &domain.TerminalStateError{Entity: entity, ID: id, Status: status}
	}
	return nil
}

// CheckCount validates a unit-group request against the eligible pool size.
func CheckCount(entity domain.EntityType, id string, requested, available int) error {
	if requested <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if requested > available {
		return &domain.QuantityExceededError{
			Entity:    entity,
			ID:        id,
			Requested: strconv.Itoa(requested),
			Available: strconv.Itoa(available),
		}
	}
	return nil
}

// CheckSeed validates a request against the remaining seeds of a root lot.
func CheckSeed(seed domain.SeedLot, requested int) error {
	if seed.IsSplit() {
		return &domain.TerminalStateError{Entity: domain.EntitySeedLot, ID: seed.ID, Status: seed.Status()}
	}
	return CheckCount(domain.EntitySeedLot, seed.ID, requested, seed.RemainingQuantity)
}

// CheckWeight validates that weight is positive and does not exceed available.
func CheckWeight(id string, weight, available decimal.Decimal) error {
	if !weight.IsPositive() {
		return &domain.ValidationError{Field: "weight", Reason: "must be greater than zero"}
	}
	if weight.GreaterThan(available) {
		return &domain.QuantityExceededError{
			Entity:    domain.EntityWeightLot,
			ID:        id,
			Requested: weight.String(),
			Available: available.String(),
		}
	}
	return nil
}

// CheckSample validates a lab sample: non-negative and strictly less than the
// lab lot's input weight.
func CheckSample(id string, sample, input decimal.Decimal) error {
	if sample.IsNegative() {
		return &domain.ValidationError{Field: "sample_weight", Reason: "must not be negative"}
	}
	if !sample.LessThan(input) {
		return &domain.QuantityExceededError{
			Entity:    domain.EntityWeightLot,
			ID:        id,
			Requested: sample.String(),
			Available: input.String(),
		}
	}
	return nil
}

// PackagingLine is the ledger view of one requested package line.
type PackagingLine struct {
	UnitCount  int
	UnitWeight decimal.Decimal
}

// Total is unit_count × unit_weight.
func (l PackagingLine) Total() decimal.Decimal {
	return l.UnitWeight.Mul(decimal.NewFromInt(int64(l.UnitCount)))
}

// CheckPackaging validates every line and the sum of all lines plus the
// remainder against the available weight. Nothing is created unless the whole
// request passes.
func CheckPackaging(id string, lines []PackagingLine, remainder, available decimal.Decimal) error {
	if len(lines) == 0 && !remainder.IsPositive() {
		return &domain.ValidationError{Field: "lines", Reason: "at least one package line or a remainder is required"}
	}
	if remainder.IsNegative() {
		return &domain.ValidationError{Field: "remainder_weight", Reason: "must not be negative"}
	}
	total := remainder
	for i, line := range lines {
		if line.UnitCount <= 0 {
			return &domain.ValidationError{Field: "lines[" + strconv.Itoa(i) + "].unit_count", Reason: "must be greater than zero"}
		}
		if !line.UnitWeight.IsPositive() {
			return &domain.ValidationError{Field: "lines[" + strconv.Itoa(i) + "].unit_weight", Reason: "must be greater than zero"}
		}
		total = total.Add(line.Total())
	}
	if total.GreaterThan(available) {
		return &domain.QuantityExceededError{
			Entity:    domain.EntityWeightLot,
			ID:        id,
			Requested: total.String(),
			Available: available.String(),
		}
	}
	return nil
}
