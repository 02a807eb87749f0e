package core

import (
	"context"

	"lotledger/pkg/domain"
)

// History returns the audit trail of a lot in append order, including events
// of other lots that reference it.
func (s *Service) History(ctx context.Context, ref string) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	err := s.view(ctx, "history", func(v domain.TransactionView, sub *subject) error {
		r, err := resolve(v, ref)
		if err != nil {
			return err
		}
		sub.set(r.id(), r.batchNumber())
		out = v.ListAudit(r.id())
		return nil
	})
	return out, err
}

// Trace walks the chain of custody of a lot: source references up to the
// root and conversions, splits, units and samples down to the leaves.
func (s *Service) Trace(ctx context.Context, ref string) (Lineage, error) {
	var out Lineage
	err := s.view(ctx, "trace", func(v domain.TransactionView, sub *subject) error {
		r, err := resolve(v, ref)
		if err != nil {
			return err
		}
		sub.set(r.id(), r.batchNumber())
		out = traceLineage(v, r)
		return nil
	})
	return out, err
}

func traceLineage(v domain.TransactionView, r resolved) Lineage {
	lineage := Lineage{Subject: summarize(v, r)}
	seen := map[string]struct{}{r.id(): {}}

	child := r
	for depth := -1; ; depth-- {
		parent, ok := parentOf(v, child)
		if !ok {
			break
		}
		if _, dup := seen[parent.id()]; dup {
			break
		}
		seen[parent.id()] = struct{}{}
		lineage.Ancestors = append(lineage.Ancestors, LineageNode{Lot: summarize(v, parent), Depth: depth})
		if len(lineage.Ancestors) > 1 {
			lineage.Ancestors[len(lineage.Ancestors)-2].ParentID = parent.id()
		}
		child = parent
	}

	type queued struct {
		node  resolved
		depth int
	}
	queue := []queued{{node: r}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, c := range childrenOf(v, next.node) {
			if _, dup := seen[c.id()]; dup {
				continue
			}
			seen[c.id()] = struct{}{}
			lineage.Descendants = append(lineage.Descendants, LineageNode{
				Lot:      summarize(v, c),
				ParentID: next.node.id(),
				Depth:    next.depth + 1,
			})
			queue = append(queue, queued{node: c, depth: next.depth + 1})
		}
	}
	return lineage
}

func parentOf(v domain.TransactionView, r resolved) (resolved, bool) {
	switch {
	case r.seed != nil && r.seed.ParentID != nil:
		return resolveKind(v, domain.EntitySeedLot, *r.seed.ParentID)
	case r.batch != nil && r.batch.SourceID != nil:
		if r.batch.SourceStage == domain.StagePropagationSeed {
			return resolveKind(v, domain.EntitySeedLot, *r.batch.SourceID)
		}
		return resolveKind(v, domain.EntityBatch, *r.batch.SourceID)
	case r.unit != nil:
		return resolveKind(v, domain.EntityBatch, r.unit.BatchID)
	case r.weight != nil && r.weight.SourceID != nil:
		if r.weight.Harvest != nil {
			return resolveKind(v, domain.EntityBatch, *r.weight.SourceID)
		}
		return resolveKind(v, domain.EntityWeightLot, *r.weight.SourceID)
	}
	return resolved{}, false
}

func childrenOf(v domain.TransactionView, r resolved) []resolved {
	var out []resolved
	addBatches := func(batches []domain.Batch) {
		for i := range batches {
			out = append(out, resolved{entity: domain.EntityBatch, stage: batches[i].Stage, batch: &batches[i]})
		}
	}
	addWeights := func(lots []domain.WeightLot) {
		for i := range lots {
			out = append(out, resolved{entity: domain.EntityWeightLot, stage: lots[i].Stage, weight: &lots[i]})
		}
	}
	switch {
	case r.seed != nil:
		splits := v.ListSeedSplits(r.seed.ID)
		for i := range splits {
			out = append(out, resolved{entity: domain.EntitySeedLot, stage: domain.StagePropagationSeed, seed: &splits[i]})
		}
		addBatches(v.ListBatchesBySource(r.seed.ID))
	case r.batch != nil:
		units := v.ListUnits(r.batch.ID)
		for i := range units {
			out = append(out, resolved{entity: domain.EntityUnit, stage: units[i].Stage, unit: &units[i]})
		}
		addBatches(v.ListBatchesBySource(r.batch.ID))
		addWeights(v.ListWeightChildren(r.batch.ID))
	case r.weight != nil:
		addWeights(v.ListWeightChildren(r.weight.ID))
	}
	return out
}
