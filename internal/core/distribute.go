package core

import (
	"context"
	"strings"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

// Distribute hands a packaging unit to a recipient. The unit becomes
// converted and a terminal distribution record carries its weight.
func (s *Service) Distribute(ctx context.Context, req DistributeRequest) (domain.WeightLot, error) {
	var out domain.WeightLot
	_, err := s.run(ctx, "distribute", func(tx domain.Transaction, sub *subject) error {
		var err error
		out, err = s.distribute(tx, req, sub)
		return err
	})
	return out, err
}

func (s *Service) distribute(tx domain.Transaction, req DistributeRequest, sub *subject) (domain.WeightLot, error) {
	if strings.TrimSpace(req.Recipient) == "" {
		return domain.WeightLot{}, &domain.ValidationError{Field: "recipient", Reason: "required"}
	}
	unit, err := lockWeightLot(tx, req.PackagingUnitID)
	if err != nil {
		return domain.WeightLot{}, err
	}
	sub.set(unit.ID, unit.BatchNumber)
	if unit.Stage != domain.StagePackagingUnit {
		return domain.WeightLot{}, &domain.ValidationError{Field: "packaging_unit_id", Reason: unit.BatchNumber + " is not a packaging unit"}
	}
	if err := ledger.RequireActive(domain.EntityWeightLot, unit.ID, unit.Status()); err != nil {
		return domain.WeightLot{}, err
	}

	dist, err := s.createWeightLot(tx, weightSpec{
		stage:     domain.StageDistribution,
		strainID:  unit.StrainID,
		input:     unit.OutputWeight,
		output:    unit.OutputWeight,
		sourceID:  unit.ID,
		category:  unit.Category,
		member:    req.Member,
		notes:     req.Notes,
		packaging: unit.Packaging,
		recipient: req.Recipient,
	})
	if err != nil {
		return domain.WeightLot{}, err
	}
	if _, err := markConverted(tx, unit.ID, dist.ID); err != nil {
		return domain.WeightLot{}, err
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "distribute",
		Entity:         domain.EntityWeightLot,
		EntityID:       unit.ID,
		BatchNumber:    unit.BatchNumber,
		Actor:          req.Member,
		Reason:         "distributed to " + req.Recipient,
		QuantityBefore: unit.OutputWeight.String(),
		QuantityAfter:  "0",
		Related:        []string{dist.ID},
	}); err != nil {
		return domain.WeightLot{}, err
	}
	if err := auditWeightCreated(tx, "distribute", dist, unit, req.Member); err != nil {
		return domain.WeightLot{}, err
	}
	return dist, nil
}

type distributionConverter struct{}

func (distributionConverter) convert(c *conversion) (Lot, error) {
	dist, err := c.svc.distribute(c.tx, DistributeRequest{
		PackagingUnitID: c.source.id(),
		Recipient:       c.req.Recipient,
		Member:          c.req.Member,
		Notes:           c.req.Notes,
	}, &subject{})
	if err != nil {
		return Lot{}, err
	}
	return weightLot(dist, nil), nil
}
