package core

import (
	"context"
	"fmt"
	"time"

	"lotledger/pkg/domain"
)

// conversion carries one Convert call through its stage converter.
type conversion struct {
	svc    *Service
	tx     domain.Transaction
	req    ConvertRequest
	source resolved
	edge   domain.EdgeKind
	now    time.Time
}

// stageConverter moves material out of one source stage. The converter is
// chosen by the source stage; the target stage has already been checked
// against the pipeline.
type stageConverter interface {
	convert(c *conversion) (Lot, error)
}

var converters = map[domain.Stage]stageConverter{
	domain.StagePropagationSeed: seedConverter{},
	domain.StageMotherPlant:     unitGroupConverter{},
	domain.StageCutting:         unitGroupConverter{},
	domain.StageBloomingCutting: unitGroupConverter{},
	domain.StageFloweringPlant:  unitGroupConverter{},
	domain.StageHarvest:         weightConverter{},
	domain.StageDrying:          weightConverter{},
	domain.StageProcessing:      weightConverter{},
	domain.StageLabTesting:      labConverter{},
	domain.StagePackaging:       packagingLineConverter{},
	domain.StagePackagingUnit:   distributionConverter{},
}

// Convert moves material from req.SourceID, an id or batch number, into
// req.TargetStage. Unit records cannot be converted on their own; convert
// their batch and name them in UnitIDs.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (Lot, error) {
	var out Lot
	_, err := s.run(ctx, "convert", func(tx domain.Transaction, sub *subject) error {
		src, err := resolve(tx, req.SourceID)
		if err != nil {
			return err
		}
		sub.set(src.id(), src.batchNumber())
		if src.entity == domain.EntityUnit {
			return &domain.ValidationError{Field: "source_id", Reason: "units are converted through their batch with unit_ids"}
		}
		if !req.TargetStage.Valid() {
			return &domain.ValidationError{Field: "target_stage", Reason: fmt.Sprintf("unknown stage %q", req.TargetStage)}
		}
		edge, ok := domain.Edge(src.stage, req.TargetStage)
		if !ok {
			return &domain.ValidationError{
				Field:  "target_stage",
				Reason: fmt.Sprintf("%s cannot be converted to %s", src.stage.Label(), req.TargetStage.Label()),
			}
		}
		conv, ok := converters[src.stage]
		if !ok {
			return &domain.ValidationError{Field: "source_id", Reason: fmt.Sprintf("%s lots cannot be converted", src.stage.Label())}
		}
		out, err = conv.convert(&conversion{svc: s, tx: tx, req: req, source: src, edge: edge, now: tx.Now()})
		return err
	})
	return out, err
}

// convertedReason is the destroy reason recorded on consumed units.
func convertedReason(target domain.Stage, batchNumber string) string {
	return fmt.Sprintf("converted to %s batch %s", target.Label(), batchNumber)
}

func appendAudit(tx domain.Transaction, e domain.AuditEvent) error {
	if _, err := tx.AppendAudit(e); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
