package memory

import (
	"lotledger/pkg/domain"
)

type lotRef struct {
	Entity domain.EntityType
	ID     string
}

// memoryState holds committed records, or the writes of one open transaction
// when used as an overlay.
type memoryState struct {
	seeds     map[string]domain.SeedLot
	batches   map[string]domain.Batch
	units     map[string]domain.Unit
	weights   map[string]domain.WeightLot
	audit     []domain.AuditEvent
	sequences map[string]int
	numbers   map[string]lotRef
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	SeedLots   map[string]domain.SeedLot   `json:"seed_lots"`
	Batches    map[string]domain.Batch     `json:"batches"`
	Units      map[string]domain.Unit      `json:"units"`
	WeightLots map[string]domain.WeightLot `json:"weight_lots"`
	Audit      []domain.AuditEvent         `json:"audit"`
	Sequences  map[string]int              `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		seeds:     make(map[string]domain.SeedLot),
		batches:   make(map[string]domain.Batch),
		units:     make(map[string]domain.Unit),
		weights:   make(map[string]domain.WeightLot),
		sequences: make(map[string]int),
		numbers:   make(map[string]lotRef),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		SeedLots:   make(map[string]domain.SeedLot, len(state.seeds)),
		Batches:    make(map[string]domain.Batch, len(state.batches)),
		Units:      make(map[string]domain.Unit, len(state.units)),
		WeightLots: make(map[string]domain.WeightLot, len(state.weights)),
		Audit:      make([]domain.AuditEvent, 0, len(state.audit)),
		Sequences:  make(map[string]int, len(state.sequences)),
	}
	for k, v := range state.seeds {
		s.SeedLots[k] = v.Clone()
	}
	for k, v := range state.batches {
		s.Batches[k] = v.Clone()
	}
	for k, v := range state.units {
		s.Units[k] = v.Clone()
	}
	for k, v := range state.weights {
		s.WeightLots[k] = v.Clone()
	}
	for _, e := range state.audit {
		s.Audit = append(s.Audit, e.Clone())
	}
	for k, v := range state.sequences {
		s.Sequences[k] = v
	}
	return s
}

// memoryStateFromSnapshot rebuilds state and the batch number index.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.SeedLots {
		state.seeds[k] = v.Clone()
		state.numbers[v.BatchNumber] = lotRef{Entity: domain.EntitySeedLot, ID: k}
	}
	for k, v := range s.Batches {
		state.batches[k] = v.Clone()
		state.numbers[v.BatchNumber] = lotRef{Entity: domain.EntityBatch, ID: k}
	}
	for k, v := range s.Units {
		state.units[k] = v.Clone()
		state.numbers[v.BatchNumber] = lotRef{Entity: domain.EntityUnit, ID: k}
	}
	for k, v := range s.WeightLots {
		state.weights[k] = v.Clone()
		state.numbers[v.BatchNumber] = lotRef{Entity: domain.EntityWeightLot, ID: k}
	}
	for _, e := range s.Audit {
		state.audit = append(state.audit, e.Clone())
	}
	for k, v := range s.Sequences {
		state.sequences[k] = v
	}
	return state
}

// apply merges an overlay into s. Records are stored as private clones and
// never mutated in place, so sharing values between maps is safe.
func (s *memoryState) apply(over *memoryState) {
	for k, v := range over.seeds {
		s.seeds[k] = v
	}
	for k, v := range over.batches {
		s.batches[k] = v
	}
	for k, v := range over.units {
		s.units[k] = v
	}
	for k, v := range over.weights {
		s.weights[k] = v
	}
	s.audit = append(s.audit, over.audit...)
	for k, v := range over.sequences {
		s.sequences[k] = v
	}
	for k, v := range over.numbers {
		s.numbers[k] = v
	}
}

// shallowCopy duplicates the maps but shares record values.
func (s memoryState) shallowCopy() memoryState {
	cp := newMemoryState()
	cp.apply(&s)
	cp.audit = append([]domain.AuditEvent(nil), s.audit...)
	return cp
}

func sortSeedLots(out []domain.SeedLot) {
	domain.SortByBatchNumber(out, func(s domain.SeedLot) string { return s.BatchNumber })
}

func sortBatches(out []domain.Batch) {
	domain.SortByBatchNumber(out, func(b domain.Batch) string { return b.BatchNumber })
}

func sortWeightLots(out []domain.WeightLot) {
	domain.SortByBatchNumber(out, func(w domain.WeightLot) string { return w.BatchNumber })
}

func sortUnits(out []domain.Unit) {
	domain.SortByBatchNumber(out, func(u domain.Unit) string { return u.BatchNumber })
}
