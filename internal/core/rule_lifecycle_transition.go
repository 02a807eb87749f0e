package core

import (
	"context"
	"fmt"

	"lotledger/pkg/domain"
)

const lifecycleRuleName = "lifecycle_transition"

// LifecycleTransitionRule blocks any change to a terminal record, records
// that are both destroyed and converted, and illegal lab gate transitions.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleState struct {
	entity domain.EntityType
	id     string
	label  string
	status domain.Status
	// conflict describes a record that is destroyed and converted in
	// incompatible ways.
	conflict string
}

func lifecycleOf(payload any) (lifecycleState, bool) {
	switch v := payload.(type) {
	case domain.SeedLot:
		return lifecycleState{entity: domain.EntitySeedLot, id: v.ID, label: v.BatchNumber, status: v.Status()}, true
	case domain.Unit:
		state := lifecycleState{entity: domain.EntityUnit, id: v.ID, label: v.BatchNumber, status: v.Status()}
		if v.ConvertedTo != nil && !v.IsDestroyed {
			state.conflict = "is converted but still counted as live"
		}
		return state, true
	case domain.WeightLot:
		state := lifecycleState{entity: domain.EntityWeightLot, id: v.ID, label: v.BatchNumber, status: v.Status()}
		if v.Destruction != nil && v.ConvertedToNextStage {
			state.conflict = "is both destroyed and converted"
		}
		return state, true
	}
	return lifecycleState{}, false
}

var labTransitions = map[domain.LabStatus]map[domain.LabStatus]struct{}{
	domain.LabPending: {domain.LabPending: {}, domain.LabPassed: {}, domain.LabFailed: {}},
	domain.LabPassed:  {domain.LabPassed: {}},
	domain.LabFailed:  {domain.LabFailed: {}},
}

func (lifecycleTransitionRule) Name() string { return lifecycleRuleName }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after, ok := lifecycleOf(change.After)
		if !ok {
			continue
		}
		if after.conflict != "" {
			res.Violations = append(res.Violations, blockViolation(lifecycleRuleName, after.entity, after.id,
				fmt.Sprintf("%s %s", after.label, after.conflict)))
		}
		if lot, ok := change.After.(domain.WeightLot); ok && lot.Lab != nil {
			if _, valid := labTransitions[lot.Lab.Status]; !valid {
				res.Violations = append(res.Violations, blockViolation(lifecycleRuleName, after.entity, after.id,
					fmt.Sprintf("%s has invalid lab status %q", after.label, lot.Lab.Status)))
			}
			if change.Action == domain.ActionCreate && lot.Lab.Status != domain.LabPending {
				res.Violations = append(res.Violations, blockViolation(lifecycleRuleName, after.entity, after.id,
					fmt.Sprintf("%s must start with lab status %s", after.label, domain.LabPending)))
			}
		}

		before, ok := lifecycleOf(change.Before)
		if !ok {
			continue
		}
		if before.status.Terminal() {
			res.Violations = append(res.Violations, blockViolation(lifecycleRuleName, after.entity, after.id,
				fmt.Sprintf("cannot modify %s: already %s", before.label, before.status)))
			continue
		}
		prev, okPrev := change.Before.(domain.WeightLot)
		next, okNext := change.After.(domain.WeightLot)
		if okPrev && okNext && prev.Lab != nil && next.Lab != nil {
			if _, allowed := labTransitions[prev.Lab.Status][next.Lab.Status]; !allowed {
				res.Violations = append(res.Violations, blockViolation(lifecycleRuleName, after.entity, after.id,
					fmt.Sprintf("cannot move %s from lab status %s to %s", after.label, prev.Lab.Status, next.Lab.Status)))
			}
		}
	}
	return res, nil
}
