package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lotledger/internal/ledger"
	"lotledger/pkg/domain"
)

// SampleReason is recorded on the destroyed record of an analysed sample.
const SampleReason = "sample consumed by analysis"

// RemainderReason is recorded on residual weight destroyed during packaging.
const RemainderReason = "remainder destroyed to close out lot"

// lockLabLot locks a lab testing lot that carries the quality gate.
func lockLabLot(tx domain.Transaction, id string) (domain.WeightLot, error) {
	lab, err := lockWeightLot(tx, id)
	if err != nil {
		return domain.WeightLot{}, err
	}
	if lab.Stage != domain.StageLabTesting || lab.Lab == nil || lab.Synthetic() {
		return domain.WeightLot{}, &domain.ValidationError{Field: "lab_id", Reason: fmt.Sprintf("%s is not a lab testing lot", lab.BatchNumber)}
	}
	return lab, nil
}

// RecordLabResult closes the quality gate of a pending lab lot. When the lot
// took a sample, the sample is recorded as a destroyed lab record and
// cross-referenced from the lab lot's notes.
func (s *Service) RecordLabResult(ctx context.Context, req LabResultRequest) (domain.WeightLot, error) {
	var out domain.WeightLot
	_, err := s.run(ctx, "record_lab_result", func(tx domain.Transaction, sub *subject) error {
		if req.Status != domain.LabPassed && req.Status != domain.LabFailed {
			return &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("must be %s or %s", domain.LabPassed, domain.LabFailed)}
		}
		for field, v := range map[string]*decimal.Decimal{"thc": req.THC, "cbd": req.CBD} {
			if v != nil && v.IsNegative() {
				return &domain.ValidationError{Field: field, Reason: "must not be negative"}
			}
		}
		lab, err := lockLabLot(tx, req.LabID)
		if err != nil {
			return err
		}
		sub.set(lab.ID, lab.BatchNumber)
		if err := ledger.RequireActive(domain.EntityWeightLot, lab.ID, lab.Status()); err != nil {
			return err
		}
		if lab.Lab.Status != domain.LabPending {
			return &domain.GateStateError{ID: lab.ID, Status: lab.Lab.Status, Want: domain.LabPending}
		}

		now := tx.Now()
		sample, err := s.recordSample(tx, lab, req.Member, now)
		if err != nil {
			return err
		}

		out, err = tx.UpdateWeightLot(lab.ID, func(w *domain.WeightLot) error {
			at := now
			w.Lab.Status = req.Status
			w.Lab.THC = req.THC
			w.Lab.CBD = req.CBD
			w.Lab.TestedAt = &at
			w.Lab.TestedBy = optional(req.Member)
			var notes []string
			if w.Notes != "" {
				notes = append(notes, w.Notes)
			}
			if req.Notes != "" {
				notes = append(notes, req.Notes)
			}
			if sample != nil {
				id := sample.ID
				w.Lab.SampleLotID = &id
				notes = append(notes, fmt.Sprintf("sample %s g destroyed as %s", sample.OutputWeight, sample.BatchNumber))
			}
			w.Notes = strings.Join(notes, "\n")
			return nil
		})
		if err != nil {
			return err
		}

		related := []string(nil)
		if sample != nil {
			related = []string{sample.ID}
		}
		return appendAudit(tx, domain.AuditEvent{
			Operation:   "record_lab_result",
			Entity:      domain.EntityWeightLot,
			EntityID:    lab.ID,
			BatchNumber: lab.BatchNumber,
			Actor:       req.Member,
			Reason:      fmt.Sprintf("lab result %s", req.Status),
			Related:     related,
		})
	})
	return out, err
}

// recordSample books the sample a lab lot took at conversion as a destroyed
// sample record. It returns nil when there is no sample or it is already
// booked.
func (s *Service) recordSample(tx domain.Transaction, lab domain.WeightLot, member string, at time.Time) (*domain.WeightLot, error) {
	if lab.Lab == nil || lab.Synthetic() || !lab.Lab.SampleWeight.IsPositive() || lab.Lab.SampleLotID != nil {
		return nil, nil
	}
	sample, err := s.createWeightLot(tx, weightSpec{
		stage:       domain.StageLabTesting,
		strainID:    lab.StrainID,
		input:       lab.Lab.SampleWeight,
		output:      lab.Lab.SampleWeight,
		sourceID:    lab.ID,
		relation:    domain.RelationSample,
		category:    lab.Category,
		member:      member,
		destruction: &domain.Destruction{Reason: SampleReason, At: at, By: member},
	})
	if err != nil {
		return nil, err
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "destroy",
		Entity:         domain.EntityWeightLot,
		EntityID:       sample.ID,
		BatchNumber:    sample.BatchNumber,
		Actor:          member,
		Reason:         SampleReason,
		QuantityBefore: sample.OutputWeight.String(),
		QuantityAfter:  "0",
		Related:        []string{lab.ID},
	}); err != nil {
		return nil, err
	}
	return &sample, nil
}

// Package draws package lines, and optionally a destroyed remainder, from a
// passed lab lot. The whole request is checked against the available weight
// before anything is created. Each line fans out into one packaging unit per
// package. Once nothing is left the lab lot is closed.
func (s *Service) Package(ctx context.Context, req PackageRequest) (PackageResult, error) {
	var out PackageResult
	_, err := s.run(ctx, "package", func(tx domain.Transaction, sub *subject) error {
		var err error
		out, err = s.packageLab(tx, req, sub)
		return err
	})
	return out, err
}

func (s *Service) packageLab(tx domain.Transaction, req PackageRequest, sub *subject) (PackageResult, error) {
	lab, err := lockLabLot(tx, req.LabID)
	if err != nil {
		return PackageResult{}, err
	}
	sub.set(lab.ID, lab.BatchNumber)
	if err := ledger.RequireActive(domain.EntityWeightLot, lab.ID, lab.Status()); err != nil {
		return PackageResult{}, err
	}
	if lab.Lab.Status != domain.LabPassed {
		return PackageResult{}, &domain.GateStateError{ID: lab.ID, Status: lab.Lab.Status, Want: domain.LabPassed}
	}

	children := tx.ListWeightChildren(lab.ID)
	balance := ledger.Weight(lab, children)
	lines := make([]ledger.PackagingLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = ledger.PackagingLine{UnitCount: l.UnitCount, UnitWeight: l.UnitWeight}
	}
	if err := ledger.CheckPackaging(lab.ID, lines, req.RemainderWeight, balance.Available); err != nil {
		return PackageResult{}, err
	}

	now := tx.Now()
	result := PackageResult{}
	drawn := decimal.Zero
	for i, l := range req.Lines {
		total := lines[i].Total()
		detail := domain.PackagingDetail{UnitCount: l.UnitCount, UnitWeight: l.UnitWeight, Price: l.Price, Label: l.Label}
		pkg, err := s.createWeightLot(tx, weightSpec{
			stage:     domain.StagePackaging,
			strainID:  lab.StrainID,
			input:     total,
			output:    total,
			sourceID:  lab.ID,
			category:  lab.Category,
			member:    req.Member,
			room:      req.Room,
			notes:     req.Notes,
			packaging: &detail,
			converted: true,
		})
		if err != nil {
			return PackageResult{}, err
		}
		unitDetail := detail
		unitDetail.UnitCount = 1
		related := make([]string, 0, l.UnitCount+1)
		related = append(related, lab.ID)
		for n := 0; n < l.UnitCount; n++ {
			d := unitDetail
			unit, err := s.createWeightLot(tx, weightSpec{
				stage:     domain.StagePackagingUnit,
				strainID:  lab.StrainID,
				input:     l.UnitWeight,
				output:    l.UnitWeight,
				sourceID:  pkg.ID,
				category:  lab.Category,
				member:    req.Member,
				room:      req.Room,
				packaging: &d,
			})
			if err != nil {
				return PackageResult{}, err
			}
			result.Units = append(result.Units, unit)
			related = append(related, unit.ID)
		}
		result.Packages = append(result.Packages, pkg)
		drawn = drawn.Add(total)
		if err := appendAudit(tx, domain.AuditEvent{
			Operation:     "package",
			Entity:        domain.EntityWeightLot,
			EntityID:      pkg.ID,
			BatchNumber:   pkg.BatchNumber,
			Actor:         req.Member,
			Reason:        fmt.Sprintf("%d × %s g packaged from %s", l.UnitCount, l.UnitWeight, lab.BatchNumber),
			QuantityAfter: total.String(),
			Related:       related,
		}); err != nil {
			return PackageResult{}, err
		}
	}

	if req.RemainderWeight.IsPositive() {
		rem, err := s.createWeightLot(tx, weightSpec{
			stage:       domain.StageLabTesting,
			strainID:    lab.StrainID,
			input:       req.RemainderWeight,
			output:      req.RemainderWeight,
			sourceID:    lab.ID,
			relation:    domain.RelationRemainder,
			category:    lab.Category,
			member:      req.Member,
			destruction: &domain.Destruction{Reason: RemainderReason, At: now, By: req.Member},
		})
		if err != nil {
			return PackageResult{}, err
		}
		result.Remainder = &rem
		drawn = drawn.Add(req.RemainderWeight)
		if err := appendAudit(tx, domain.AuditEvent{
			Operation:      "destroy",
			Entity:         domain.EntityWeightLot,
			EntityID:       rem.ID,
			BatchNumber:    rem.BatchNumber,
			Actor:          req.Member,
			Reason:         RemainderReason,
			QuantityBefore: rem.OutputWeight.String(),
			QuantityAfter:  "0",
			Related:        []string{lab.ID},
		}); err != nil {
			return PackageResult{}, err
		}
	}

	remaining := balance.Available.Sub(drawn)
	updated := lab
	if remaining.IsZero() {
		// A close-out with nothing packaged converts into the remainder; the
		// destroyed weight is booked once, on the remainder record.
		next := ""
		if result.Remainder != nil && len(result.Packages) == 0 && !packaged(children) {
			next = result.Remainder.ID
		}
		updated, err = markConverted(tx, lab.ID, next)
		if err != nil {
			return PackageResult{}, err
		}
	}
	result.Lab = updated

	related := make([]string, 0, len(result.Packages)+1)
	for _, p := range result.Packages {
		related = append(related, p.ID)
	}
	if result.Remainder != nil {
		related = append(related, result.Remainder.ID)
	}
	if err := appendAudit(tx, domain.AuditEvent{
		Operation:      "package",
		Entity:         domain.EntityWeightLot,
		EntityID:       lab.ID,
		BatchNumber:    lab.BatchNumber,
		Actor:          req.Member,
		Reason:         fmt.Sprintf("%d package lines drawn", len(result.Packages)),
		QuantityBefore: balance.Available.String(),
		QuantityAfter:  remaining.String(),
		Related:        related,
	}); err != nil {
		return PackageResult{}, err
	}
	return result, nil
}

func packaged(children []domain.WeightLot) bool {
	for _, c := range children {
		if c.Stage == domain.StagePackaging {
			return true
		}
	}
	return false
}

type labConverter struct{}

// convert packages a single line of Quantity × OutputWeight from a lab lot.
func (labConverter) convert(c *conversion) (Lot, error) {
	sub := &subject{}
	res, err := c.svc.packageLab(c.tx, PackageRequest{
		LabID:  c.source.id(),
		Lines:  []PackageLine{{UnitCount: c.req.Quantity, UnitWeight: c.req.OutputWeight}},
		Member: c.req.Member,
		Room:   c.req.Room,
		Notes:  c.req.Notes,
	}, sub)
	if err != nil {
		return Lot{}, err
	}
	pkg := res.Packages[0]
	return weightLot(pkg, res.Units), nil
}

type packagingLineConverter struct{}

// convert refuses: a packaging line is fanned out into its units by the
// packaging run that creates it.
func (packagingLineConverter) convert(c *conversion) (Lot, error) {
	return Lot{}, &domain.ValidationError{
		Field:  "source_id",
		Reason: fmt.Sprintf("%s is a packaging line and already holds its units; package from the lab lot instead", c.source.batchNumber()),
	}
}
