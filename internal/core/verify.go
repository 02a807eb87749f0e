package core

import (
	"context"
	"fmt"

	"lotledger/pkg/domain"
)

const auditRuleName = "audit_trail"

// VerifyReport summarizes a full ledger check.
type VerifyReport struct {
	SeedLots   int
	Batches    int
	Units      int
	WeightLots int
	Violations []domain.Violation
}

// OK reports whether no violation was found.
func (r VerifyReport) OK() bool { return len(r.Violations) == 0 }

// Verify re-runs the conservation, lifecycle and lineage rules over every
// record in the store and checks that each record has a history entry. It
// takes no locks and changes nothing.
func (s *Service) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	err := s.view(ctx, "verify", func(v domain.TransactionView, _ *subject) error {
		var changes []domain.Change
		audited := make(map[string]struct{})
		for _, e := range v.ListAudit("") {
			audited[e.EntityID] = struct{}{}
			for _, id := range e.Related {
				audited[id] = struct{}{}
			}
		}
		expectAudit := func(entity domain.EntityType, id, number string) {
			if _, ok := audited[id]; !ok {
				report.Violations = append(report.Violations, domain.Violation{
					Rule:     auditRuleName,
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("%s has no history", number),
					Entity:   entity,
					EntityID: id,
				})
			}
		}
		for _, seed := range v.ListSeedLots() {
			report.SeedLots++
			changes = append(changes, domain.Change{Entity: domain.EntitySeedLot, Action: domain.ActionUpdate, ID: seed.ID, After: seed})
			expectAudit(domain.EntitySeedLot, seed.ID, seed.BatchNumber)
		}
		for _, batch := range v.ListBatches() {
			report.Batches++
			changes = append(changes, domain.Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, ID: batch.ID, After: batch})
			expectAudit(domain.EntityBatch, batch.ID, batch.BatchNumber)
			for _, unit := range v.ListUnits(batch.ID) {
				report.Units++
				changes = append(changes, domain.Change{Entity: domain.EntityUnit, Action: domain.ActionUpdate, ID: unit.ID, After: unit})
			}
		}
		for _, lot := range v.ListWeightLots() {
			report.WeightLots++
			changes = append(changes, domain.Change{Entity: domain.EntityWeightLot, Action: domain.ActionUpdate, ID: lot.ID, After: lot})
			expectAudit(domain.EntityWeightLot, lot.ID, lot.BatchNumber)
		}

		res, err := NewDefaultRulesEngine().Evaluate(ctx, v, changes)
		if err != nil {
			return err
		}
		report.Violations = append(report.Violations, res.Violations...)
		return nil
	})
	return report, err
}
