package core

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

type weightSpec struct {
	stage       domain.Stage
	strainID    *string
	input       decimal.Decimal
	output      decimal.Decimal
	sourceID    string
	relation    domain.Relation
	category    string
	member      string
	room        string
	notes       string
	destruction *domain.Destruction
	harvest     *domain.HarvestSource
	lab         *domain.LabDetail
	packaging   *domain.PackagingDetail
	recipient   string
	converted   bool
}

func (s *Service) createWeightLot(tx domain.Transaction, spec weightSpec) (domain.WeightLot, error) {
	number, err := s.nextBatchNumber(tx, spec.stage.Prefix())
	if err != nil {
		return domain.WeightLot{}, err
	}
	lot := domain.WeightLot{
		Base: domain.Base{
			BatchNumber:       number,
			Stage:             spec.stage,
			ResponsibleMember: optional(spec.member),
			Room:              optional(spec.room),
			Notes:             spec.notes,
		},
		StrainID:     spec.strainID,
		InputWeight:  spec.input,
		OutputWeight: spec.output,
		SourceID:     optional(spec.sourceID),
		Relation:     spec.relation,
		Category:     spec.category,
		Recipient:    optional(spec.recipient),
		Destruction:  spec.destruction,
		Harvest:      spec.harvest,
		Lab:          spec.lab,
		Packaging:    spec.packaging,
	}
	if spec.converted {
		at := tx.Now()
		lot.ConvertedToNextStage = true
		lot.ConvertedAt = &at
	}
	return tx.CreateWeightLot(lot)
}

// lockWeightLot locks a weight record and returns it as of the lock.
func lockWeightLot(tx domain.Transaction, id string) (domain.WeightLot, error) {
	if err := tx.Lock(id); err != nil {
		return domain.WeightLot{}, err
	}
	w, ok := tx.FindWeightLot(id)
	if !ok {
		return domain.WeightLot{}, domain.NotFoundError{Entity: domain.EntityWeightLot, ID: id}
	}
	return w, nil
}

// markConverted flags a weight record as converted into next.
func markConverted(tx domain.Transaction, id, next string) (domain.WeightLot, error) {
	at := tx.Now()
	return tx.UpdateWeightLot(id, func(w *domain.WeightLot) error {
		if err := ledger.RequireActive(domain.EntityWeightLot, w.ID, w.Status()); err != nil {
			return err
		}
		w.ConvertedToNextStage = true
		w.ConvertedAt = &at
		if next != "" {
			n := next
			w.NextStageID = &n
		}
		return nil
	})
}

func auditWeightCreated(tx domain.Transaction, op string, lot domain.WeightLot, source domain.WeightLot, member string) error {
	return appendAudit(tx, domain.AuditEvent{
		Operation:     op,
		Entity:        domain.EntityWeightLot,
		EntityID:      lot.ID,
		BatchNumber:   lot.BatchNumber,
		Actor:         member,
		Reason:        "converted from " + source.BatchNumber,
		QuantityAfter: lot.OutputWeight.String(),
		Related:       []string{source.ID},
	})
}

// harvest turns a flowering or blooming batch into a weighed harvest lot. Units
// named by quantity or UnitIDs are consumed; with neither the plants stay live,
// which a batch allows only once.
func harvest(c *conversion, batch domain.Batch, units []domain.Unit) (Lot, error) {
	tx, req := c.tx, c.req
	if !req.OutputWeight.IsPositive() {
		return Lot{}, &domain.ValidationError{Field: "output_weight", Reason: "must be greater than zero"}
	}
	if !req.SampleWeight.IsZero() {
		return Lot{}, &domain.ValidationError{Field: "sample_weight", Reason: "only lab testing takes a sample"}
	}
	var picked []domain.Unit
	if req.Quantity != 0 || len(req.UnitIDs) > 0 {
		var err error
		picked, err = selectUnits(batch, units, req.Quantity, req.UnitIDs)
		if err != nil {
			return Lot{}, err
		}
	} else if prior, ok := weightOnlyHarvest(tx.ListWeightChildren(batch.ID), units); ok {
		return Lot{}, &domain.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("%s was already harvested as %s without consuming plants; name the plants harvested", batch.BatchNumber, prior.BatchNumber),
		}
	}

	source := &domain.HarvestSource{}
	batchID := batch.ID
	switch batch.Stage {
	case domain.StageFloweringPlant:
		source.FloweringPlantBatchID = &batchID
	case domain.StageBloomingCutting:
		source.BloomingCuttingBatchID = &batchID
	default:
		return Lot{}, &domain.ValidationError{Field: "source_id", Reason: fmt.Sprintf("cannot harvest %s", batch.Stage.Label())}
	}
	lot, err := c.svc.createWeightLot(tx, weightSpec{
		stage:    domain.StageHarvest,
		strainID: batch.StrainID,
		input:    req.OutputWeight,
		output:   req.OutputWeight,
		sourceID: batch.ID,
		category: req.Category,
		member:   req.Member,
		room:     req.Room,
		notes:    req.Notes,
		harvest:  source,
	})
	if err != nil {
		return Lot{}, err
	}
	if len(picked) > 0 {
		if err := retireUnits(tx, picked, "converted to harvest", req.Member, lot.ID, c.now); err != nil {
			return Lot{}, err
		}
	}

	live := ledger.Units(batch, units).Live
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "harvest",
		Entity:         domain.EntityBatch,
		EntityID:       batch.ID,
		BatchNumber:    batch.BatchNumber,
		Actor:          req.Member,
		Reason:         convertedReason(domain.StageHarvest, lot.BatchNumber),
		QuantityBefore: fmt.Sprint(live),
		QuantityAfter:  fmt.Sprint(live - len(picked)),
		Related:        append([]string{lot.ID}, unitIDs(picked)...),
	}); err != nil {
		return Lot{}, err
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:     "harvest",
		Entity:        domain.EntityWeightLot,
		EntityID:      lot.ID,
		BatchNumber:   lot.BatchNumber,
		Actor:         req.Member,
		Reason:        "harvested from " + batch.BatchNumber,
		QuantityAfter: lot.OutputWeight.String(),
		Related:       []string{batch.ID},
	}); err != nil {
		return Lot{}, err
	}
	return weightLot(lot, nil), nil
}

// weightOnlyHarvest finds an earlier harvest of the batch that consumed none
// of its units.
func weightOnlyHarvest(children []domain.WeightLot, units []domain.Unit) (domain.WeightLot, bool) {
	consumed := make(map[string]struct{})
	for _, u := range units {
		if u.ConvertedTo != nil {
			consumed[*u.ConvertedTo] = struct{}{}
		}
	}
	for _, c := range children {
		if c.Stage != domain.StageHarvest {
			continue
		}
		if _, ok := consumed[c.ID]; !ok {
			return c, true
		}
	}
	return domain.WeightLot{}, false
}

type weightConverter struct{}

// convert runs one linear weight hop: the new record's input is the source's
// output, its output may only shrink, and the source becomes converted.
func (weightConverter) convert(c *conversion) (Lot, error) {
	tx, req := c.tx, c.req
	src, err := lockWeightLot(tx, c.source.id())
	if err != nil {
		return Lot{}, err
	}
	if err := ledger.RequireActive(domain.EntityWeightLot, src.ID, src.Status()); err != nil {
		return Lot{}, err
	}
	input := ledger.Weight(src, tx.ListWeightChildren(src.ID)).Available

	output := req.OutputWeight
	var lab *domain.LabDetail
	if req.TargetStage == domain.StageLabTesting {
		if err := ledger.CheckSample(src.ID, req.SampleWeight, input); err != nil {
			return Lot{}, err
		}
		if output.IsZero() {
			output = input.Sub(req.SampleWeight)
		}
		if err := ledger.CheckWeight(src.ID, output.Add(req.SampleWeight), input); err != nil {
			return Lot{}, err
		}
		lab = &domain.LabDetail{SampleWeight: req.SampleWeight, Status: domain.LabPending}
	} else {
		if !req.SampleWeight.IsZero() {
			return Lot{}, &domain.ValidationError{Field: "sample_weight", Reason: "only lab testing takes a sample"}
		}
		if err := ledger.CheckWeight(src.ID, output, input); err != nil {
			return Lot{}, err
		}
	}

	lot, err := c.svc.createWeightLot(tx, weightSpec{
		stage:    req.TargetStage,
		strainID: src.StrainID,
		input:    input,
		output:   output,
		sourceID: src.ID,
		category: firstNonEmpty(req.Category, src.Category),
		member:   req.Member,
		room:     req.Room,
		notes:    req.Notes,
		lab:      lab,
	})
	if err != nil {
		return Lot{}, err
	}
	if _, err := markConverted(tx, src.ID, lot.ID); err != nil {
		return Lot{}, err
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "convert",
		Entity:         domain.EntityWeightLot,
		EntityID:       src.ID,
		BatchNumber:    src.BatchNumber,
		Actor:          req.Member,
		Reason:         convertedReason(req.TargetStage, lot.BatchNumber),
		QuantityBefore: input.String(),
		QuantityAfter:  "0",
		Related:        []string{lot.ID},
	}); err != nil {
		return Lot{}, err
	}
	if err := auditWeightCreated(tx, "convert", lot, src, req.Member); err != nil {
		return Lot{}, err
	}
	return weightLot(lot, nil), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
