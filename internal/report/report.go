// Package report renders chain-of-custody reports for a lot and publishes
// them to a blob store.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q (want json, csv or xlsx)", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Source is the part of the engine a report reads from.
type Source interface {
	Trace(ctx context.Context, ref string) (core.Lineage, error)
	History(ctx context.Context, ref string) ([]domain.AuditEvent, error)
}

// Document is everything a rendered report contains.
type Document struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Subject     core.Lot            `json:"subject"`
	Lineage     []core.LineageNode  `json:"lineage"`
	History     []domain.AuditEvent `json:"history"`
}

// Build traces ref and gathers the history of every lot on the trace. Events
// are ordered by time, ties keep the order they were appended in.
func Build(ctx context.Context, src Source, ref string, now time.Time) (Document, error) {
	lineage, err := src.Trace(ctx, ref)
	if err != nil {
		return Document{}, fmt.Errorf("trace %s: %w", ref, err)
	}
	doc := Document{GeneratedAt: now.UTC(), Subject: lineage.Subject, Lineage: lineage.Nodes()}
	seen := make(map[string]struct{})
	for _, n := range doc.Lineage {
		events, err := src.History(ctx, n.ID)
		if err != nil {
			return Document{}, fmt.Errorf("history %s: %w", n.BatchNumber, err)
		}
		for _, e := range events {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			doc.History = append(doc.History, e)
		}
	}
	sort.SliceStable(doc.History, func(i, j int) bool {
		return doc.History[i].OccurredAt.Before(doc.History[j].OccurredAt)
	})
	return doc, nil
}

// position labels a lineage node relative to the subject.
func position(n core.LineageNode) string {
	switch {
	case n.Depth < 0:
		return "ancestor"
	case n.Depth > 0:
		return "descendant"
	}
	return "subject"
}

var lineageHeader = []string{
	"position", "depth", "batch_number", "entity", "stage", "status",
	"quantity", "available", "weight_g", "available_weight_g", "relation", "parent_id", "id", "created_at",
}

var historyHeader = []string{
	"occurred_at", "operation", "batch_number", "entity", "actor", "reason", "quantity_before", "quantity_after", "entity_id",
}

func lineageRecord(n core.LineageNode) []string {
	return []string{
		position(n),
		fmt.Sprint(n.Depth),
		n.BatchNumber,
		string(n.Entity),
		n.Stage.Label(),
		string(n.Status),
		fmt.Sprint(n.Quantity),
		fmt.Sprint(n.Available),
		n.Weight.String(),
		n.AvailableWeight.String(),
		string(n.Relation),
		n.ParentID,
		n.ID,
		n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func historyRecord(e domain.AuditEvent) []string {
	return []string{
		e.OccurredAt.UTC().Format(time.RFC3339),
		e.Operation,
		e.BatchNumber,
		string(e.Entity),
		e.Actor,
		e.Reason,
		e.QuantityBefore,
		e.QuantityAfter,
		e.EntityID,
	}
}
