package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDecimal(p *decimal.Decimal) *decimal.Decimal {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (b Base) clone() Base {
	cp := b
	cp.ResponsibleMember = cloneString(b.ResponsibleMember)
	cp.Room = cloneString(b.Room)
	return cp
}

func cloneDestruction(d *Destruction) *Destruction {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Clone returns a deep copy safe to mutate.
func (s SeedLot) Clone() SeedLot {
	cp := s
	cp.Base = s.Base.clone()
	cp.StrainID = cloneString(s.StrainID)
	cp.ParentID = cloneString(s.ParentID)
	cp.Destruction = cloneDestruction(s.Destruction)
	return cp
}

// Clone returns a deep copy safe to mutate.
func (b Batch) Clone() Batch {
	cp := b
	cp.Base = b.Base.clone()
	cp.StrainID = cloneString(b.StrainID)
	cp.SourceID = cloneString(b.SourceID)
	return cp
}

// Clone returns a deep copy safe to mutate.
func (u Unit) Clone() Unit {
	cp := u
	cp.DestroyedAt = cloneTime(u.DestroyedAt)
	cp.DestroyedBy = cloneString(u.DestroyedBy)
	cp.ConvertedTo = cloneString(u.ConvertedTo)
	cp.ConvertedAt = cloneTime(u.ConvertedAt)
	cp.ConvertedBy = cloneString(u.ConvertedBy)
	return cp
}

// Clone returns a deep copy safe to mutate.
func (w WeightLot) Clone() WeightLot {
	cp := w
	cp.Base = w.Base.clone()
	cp.StrainID = cloneString(w.StrainID)
	cp.SourceID = cloneString(w.SourceID)
	cp.Recipient = cloneString(w.Recipient)
	cp.ConvertedAt = cloneTime(w.ConvertedAt)
	cp.NextStageID = cloneString(w.NextStageID)
	cp.Destruction = cloneDestruction(w.Destruction)
	if w.Harvest != nil {
		h := HarvestSource{
			FloweringPlantBatchID:  cloneString(w.Harvest.FloweringPlantBatchID),
			BloomingCuttingBatchID: cloneString(w.Harvest.BloomingCuttingBatchID),
		}
		cp.Harvest = &h
	}
	if w.Lab != nil {
		l := *w.Lab
		l.THC = cloneDecimal(w.Lab.THC)
		l.CBD = cloneDecimal(w.Lab.CBD)
		l.TestedAt = cloneTime(w.Lab.TestedAt)
		l.TestedBy = cloneString(w.Lab.TestedBy)
		l.SampleLotID = cloneString(w.Lab.SampleLotID)
		cp.Lab = &l
	}
	if w.Packaging != nil {
		p := *w.Packaging
		p.Price = cloneDecimal(w.Packaging.Price)
		cp.Packaging = &p
	}
	return cp
}

// Clone returns a deep copy safe to mutate.
func (a AuditEvent) Clone() AuditEvent {
	cp := a
	cp.Related = append([]string(nil), a.Related...)
	return cp
}
