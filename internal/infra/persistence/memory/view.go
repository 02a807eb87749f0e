package memory

import (
	"lotledger/pkg/domain"
)

// layeredView reads through an optional transaction overlay onto a base
// state. Callers hold whatever lock protects base.
type layeredView struct {
	base *memoryState
	over *memoryState
}

var _ domain.TransactionView = layeredView{}

func (v layeredView) exists(id string) bool {
	if _, ok := v.FindSeedLot(id); ok {
		return true
	}
	if _, ok := v.FindBatch(id); ok {
		return true
	}
	if _, ok := v.FindUnit(id); ok {
		return true
	}
	_, ok := v.FindWeightLot(id)
	return ok
}

func (v layeredView) lookupNumber(number string) (lotRef, bool) {
	if v.over != nil {
		if ref, ok := v.over.numbers[number]; ok {
			return ref, true
		}
	}
	ref, ok := v.base.numbers[number]
	return ref, ok
}

// FindSeedLot returns a seed lot by id.
func (v layeredView) FindSeedLot(id string) (domain.SeedLot, bool) {
	if v.over != nil {
		if s, ok := v.over.seeds[id]; ok {
			return s.Clone(), true
		}
	}
	s, ok := v.base.seeds[id]
	if !ok {
		return domain.SeedLot{}, false
	}
	return s.Clone(), true
}

// FindBatch returns a batch by id.
func (v layeredView) FindBatch(id string) (domain.Batch, bool) {
	if v.over != nil {
		if b, ok := v.over.batches[id]; ok {
			return b.Clone(), true
		}
	}
	b, ok := v.base.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return b.Clone(), true
}

// FindUnit returns a unit by id.
func (v layeredView) FindUnit(id string) (domain.Unit, bool) {
	if v.over != nil {
		if u, ok := v.over.units[id]; ok {
			return u.Clone(), true
		}
	}
	u, ok := v.base.units[id]
	if !ok {
		return domain.Unit{}, false
	}
	return u.Clone(), true
}

// FindWeightLot returns a weight lot by id.
func (v layeredView) FindWeightLot(id string) (domain.WeightLot, bool) {
	if v.over != nil {
		if w, ok := v.over.weights[id]; ok {
			return w.Clone(), true
		}
	}
	w, ok := v.base.weights[id]
	if !ok {
		return domain.WeightLot{}, false
	}
	return w.Clone(), true
}

// FindByBatchNumber resolves a batch number to its record kind and id.
func (v layeredView) FindByBatchNumber(number string) (domain.EntityType, string, bool) {
	ref, ok := v.lookupNumber(number)
	if !ok {
		return "", "", false
	}
	return ref.Entity, ref.ID, true
}

func (v layeredView) seeds() map[string]domain.SeedLot {
	if v.over == nil || len(v.over.seeds) == 0 {
		return v.base.seeds
	}
	merged := make(map[string]domain.SeedLot, len(v.base.seeds)+len(v.over.seeds))
	for k, s := range v.base.seeds {
		merged[k] = s
	}
	for k, s := range v.over.seeds {
		merged[k] = s
	}
	return merged
}

func (v layeredView) batches() map[string]domain.Batch {
	if v.over == nil || len(v.over.batches) == 0 {
		return v.base.batches
	}
	merged := make(map[string]domain.Batch, len(v.base.batches)+len(v.over.batches))
	for k, b := range v.base.batches {
		merged[k] = b
	}
	for k, b := range v.over.batches {
		merged[k] = b
	}
	return merged
}

func (v layeredView) units() map[string]domain.Unit {
	if v.over == nil || len(v.over.units) == 0 {
		return v.base.units
	}
	merged := make(map[string]domain.Unit, len(v.base.units)+len(v.over.units))
	for k, u := range v.base.units {
		merged[k] = u
	}
	for k, u := range v.over.units {
		merged[k] = u
	}
	return merged
}

func (v layeredView) weights() map[string]domain.WeightLot {
	if v.over == nil || len(v.over.weights) == 0 {
		return v.base.weights
	}
	merged := make(map[string]domain.WeightLot, len(v.base.weights)+len(v.over.weights))
	for k, w := range v.base.weights {
		merged[k] = w
	}
	for k, w := range v.over.weights {
		merged[k] = w
	}
	return merged
}

// ListUnits returns the units of batchID ordered by batch number.
func (v layeredView) ListUnits(batchID string) []domain.Unit {
	var out []domain.Unit
	for _, u := range v.units() {
		if u.BatchID == batchID {
			out = append(out, u.Clone())
		}
	}
	sortUnits(out)
	return out
}

// ListSeedSplits returns the records split off seedID.
func (v layeredView) ListSeedSplits(seedID string) []domain.SeedLot {
	var out []domain.SeedLot
	for _, s := range v.seeds() {
		if s.ParentID != nil && *s.ParentID == seedID {
			out = append(out, s.Clone())
		}
	}
	sortSeedLots(out)
	return out
}

// ListBatchesBySource returns batches whose source is sourceID.
func (v layeredView) ListBatchesBySource(sourceID string) []domain.Batch {
	var out []domain.Batch
	for _, b := range v.batches() {
		if b.SourceID != nil && *b.SourceID == sourceID {
			out = append(out, b.Clone())
		}
	}
	sortBatches(out)
	return out
}

// ListWeightChildren returns weight records drawn from parentID.
func (v layeredView) ListWeightChildren(parentID string) []domain.WeightLot {
	var out []domain.WeightLot
	for _, w := range v.weights() {
		if w.SourceID != nil && *w.SourceID == parentID && w.ID != parentID {
			out = append(out, w.Clone())
		}
	}
	sortWeightLots(out)
	return out
}

// ListSeedLots returns every seed record.
func (v layeredView) ListSeedLots() []domain.SeedLot {
	seeds := v.seeds()
	out := make([]domain.SeedLot, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, s.Clone())
	}
	sortSeedLots(out)
	return out
}

// ListBatches returns every unit-group batch.
func (v layeredView) ListBatches() []domain.Batch {
	batches := v.batches()
	out := make([]domain.Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, b.Clone())
	}
	sortBatches(out)
	return out
}

// ListWeightLots returns every weight-chain record.
func (v layeredView) ListWeightLots() []domain.WeightLot {
	weights := v.weights()
	out := make([]domain.WeightLot, 0, len(weights))
	for _, w := range weights {
		out = append(out, w.Clone())
	}
	sortWeightLots(out)
	return out
}

// ListAudit returns history entries for entityID in append order. An empty
// id returns the whole log.
func (v layeredView) ListAudit(entityID string) []domain.AuditEvent {
	var out []domain.AuditEvent
	collect := func(events []domain.AuditEvent) {
		for _, e := range events {
			if entityID == "" || e.EntityID == entityID || containsString(e.Related, entityID) {
				out = append(out, e.Clone())
			}
		}
	}
	collect(v.base.audit)
	if v.over != nil {
		collect(v.over.audit)
	}
	return out
}

func containsString(values []string, id string) bool {
	for _, v := range values {
		if v == id {
			return true
		}
	}
	return false
}
