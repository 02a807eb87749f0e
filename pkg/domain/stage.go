package domain

import "fmt"

// Stage identifies one fixed step of the production pipeline.
type Stage string

// Pipeline stages, ordered from propagation material to distributed units.
const (
	StagePropagationSeed Stage = "propagation_seed"
	StageMotherPlant     Stage = "mother_plant"
	StageCutting         Stage = "cutting"
	StageBloomingCutting Stage = "blooming_cutting"
	StageFloweringPlant  Stage = "flowering_plant"
	StageHarvest         Stage = "harvest"
	StageDrying          Stage = "drying"
	StageProcessing      Stage = "processing"
	StageLabTesting      Stage = "lab_testing"
	StagePackaging       Stage = "packaging"
	StagePackagingUnit   Stage = "packaging_unit"
	StageDistribution    Stage = "distribution"
)

// Shape distinguishes the two lot shapes tracked by the ledger.
type Shape string

const (
	// ShapeUnitGroup lots are counted in discrete units.
	ShapeUnitGroup Shape = "unit_group"
	// ShapeWeightChain lots carry a decimal weight in grams.
	ShapeWeightChain Shape = "weight_chain"
)

// EdgeKind describes how a conversion treats its source.
type EdgeKind string

const (
	// EdgeConsuming removes the converted quantity from the source.
	EdgeConsuming EdgeKind = "consuming"
	// EdgePropagating derives new material without consuming source units
	// (cuttings taken from a mother plant).
	EdgePropagating EdgeKind = "propagating"
)

type stageInfo struct {
	shape      Shape
	prefix     string
	unitPrefix string
	label      string
}

var stages = map[Stage]stageInfo{
	StagePropagationSeed: {shape: ShapeUnitGroup, prefix: "seed", label: "propagation seed"},
	StageMotherPlant:     {shape: ShapeUnitGroup, prefix: "mother", unitPrefix: "mother-unit", label: "mother plant"},
	StageCutting:         {shape: ShapeUnitGroup, prefix: "cutting", unitPrefix: "cutting-unit", label: "cutting"},
	StageBloomingCutting: {shape: ShapeUnitGroup, prefix: "bloomcut", unitPrefix: "bloomcut-unit", label: "blooming cutting"},
	StageFloweringPlant:  {shape: ShapeUnitGroup, prefix: "flower", unitPrefix: "flower-unit", label: "flowering plant"},
	StageHarvest:         {shape: ShapeWeightChain, prefix: "harvest", label: "harvest"},
	StageDrying:          {shape: ShapeWeightChain, prefix: "drying", label: "drying"},
	StageProcessing:      {shape: ShapeWeightChain, prefix: "processing", label: "processing"},
	StageLabTesting:      {shape: ShapeWeightChain, prefix: "lab", label: "lab testing"},
	StagePackaging:       {shape: ShapeWeightChain, prefix: "pack", label: "packaging"},
	StagePackagingUnit:   {shape: ShapeWeightChain, prefix: "pack-unit", label: "packaging unit"},
	StageDistribution:    {shape: ShapeWeightChain, prefix: "dist", label: "distribution"},
}

// pipeline lists every legal conversion edge.
var pipeline = map[Stage]map[Stage]EdgeKind{
	StagePropagationSeed: {StageMotherPlant: EdgeConsuming, StageFloweringPlant: EdgeConsuming},
	StageMotherPlant:     {StageCutting: EdgePropagating},
	StageCutting:         {StageMotherPlant: EdgeConsuming, StageBloomingCutting: EdgeConsuming, StageFloweringPlant: EdgeConsuming},
	StageBloomingCutting: {StageHarvest: EdgeConsuming},
	StageFloweringPlant:  {StageHarvest: EdgeConsuming},
	StageHarvest:         {StageDrying: EdgeConsuming},
	StageDrying:          {StageProcessing: EdgeConsuming},
	StageProcessing:      {StageLabTesting: EdgeConsuming},
	StageLabTesting:      {StagePackaging: EdgeConsuming},
	StagePackaging:       {StagePackagingUnit: EdgeConsuming},
	StagePackagingUnit:   {StageDistribution: EdgeConsuming},
}

// Stages returns every pipeline stage in pipeline order.
func Stages() []Stage {
	return []Stage{
		StagePropagationSeed, StageMotherPlant, StageCutting, StageBloomingCutting, StageFloweringPlant,
		StageHarvest, StageDrying, StageProcessing, StageLabTesting, StagePackaging, StagePackagingUnit,
		StageDistribution,
	}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stages[s]
	return ok
}

// Shape returns the lot shape used at this stage.
func (s Stage) Shape() Shape { return stages[s].shape }

// Prefix returns the batch-number prefix for records of this stage.
func (s Stage) Prefix() string { return stages[s].prefix }

// UnitPrefix returns the batch-number prefix for child units of a unit-group
// stage. The root seed stage has no child units and returns "".
func (s Stage) UnitPrefix() string { return stages[s].unitPrefix }

// Label is the human readable stage name used in audit reasons.
func (s Stage) Label() string {
	if info, ok := stages[s]; ok {
		return info.label
	}
	return string(s)
}

// FanOut reports whether a conversion out of s creates several sibling
// records (lab lot into packaging lines, packaging line into units).
func (s Stage) FanOut() bool {
	return s == StageLabTesting || s == StagePackaging
}

// Edge returns the conversion kind for from→to and whether the edge exists.
func Edge(from, to Stage) (EdgeKind, bool) {
	kind, ok := pipeline[from][to]
	return kind, ok
}

// Targets lists the stages reachable from s in one conversion.
func (s Stage) Targets() []Stage {
	var out []Stage
	for _, candidate := range Stages() {
		if _, ok := pipeline[s][candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// ParseStage validates a stage name.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", &ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", raw)}
	}
	return s, nil
}
