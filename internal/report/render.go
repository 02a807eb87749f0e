package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	lineageSheet = "Lineage"
	historySheet = "History"
)

// Render writes doc to w in format f.
func Render(w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatJSON:
		return renderJSON(w, doc)
	case FormatCSV:
		return renderCSV(w, doc)
	case FormatXLSX:
		return renderXLSX(w, doc)
	}
	return fmt.Errorf("unknown report format %q", f)
}

func renderJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// renderCSV writes the lineage table, a blank record, then the history table.
func renderCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	records := [][]string{lineageHeader}
	for _, n := range doc.Lineage {
		records = append(records, lineageRecord(n))
	}
	records = append(records, []string{""}, historyHeader)
	for _, e := range doc.History {
		records = append(records, historyRecord(e))
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv report: %w", err)
	}
	return nil
}

func renderXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), lineageSheet); err != nil {
		return fmt.Errorf("xlsx report: %w", err)
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return fmt.Errorf("xlsx report: %w", err)
	}

	lineageRows := make([][]any, 0, len(doc.Lineage))
	for _, n := range doc.Lineage {
		lineageRows = append(lineageRows, []any{
			position(n),
			n.Depth,
			n.BatchNumber,
			string(n.Entity),
			n.Stage.Label(),
			string(n.Status),
			n.Quantity,
			n.Available,
			n.Weight.InexactFloat64(),
			n.AvailableWeight.InexactFloat64(),
			string(n.Relation),
			n.ParentID,
			n.ID,
			n.CreatedAt.UTC(),
		})
	}
	if err := writeSheet(f, lineageSheet, lineageHeader, lineageRows); err != nil {
		return err
	}

	historyRows := make([][]any, 0, len(doc.History))
	for _, e := range doc.History {
		rec := historyRecord(e)
		row := make([]any, len(rec))
		row[0] = e.OccurredAt.UTC()
		for i := 1; i < len(rec); i++ {
			row[i] = rec[i]
		}
		historyRows = append(historyRows, row)
	}
	if err := writeSheet(f, historySheet, historyHeader, historyRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx report: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("xlsx %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx %s row %d: %w", sheet, i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx %s row %d: %w", sheet, i, err)
		}
	}
	return nil
}
