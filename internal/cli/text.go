package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

// amount renders a lot's size in the unit its stage is counted in.
func amount(l core.Lot) string {
	if l.Entity == domain.EntityWeightLot {
		return fmt.Sprintf("%s g (available %s g)", l.Weight, l.AvailableWeight)
	}
	return fmt.Sprintf("%d (available %d)", l.Quantity, l.Available)
}

func lotText(l core.Lot) textFunc {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "batch number\t%s\n", l.BatchNumber)
		fmt.Fprintf(tw, "id\t%s\n", l.ID)
		fmt.Fprintf(tw, "stage\t%s\n", l.Stage.Label())
		fmt.Fprintf(tw, "status\t%s\n", l.Status)
		fmt.Fprintf(tw, "amount\t%s\n", amount(l))
		if l.SourceID != "" {
			fmt.Fprintf(tw, "source\t%s\n", l.SourceID)
		}
		if l.Relation != "" {
			fmt.Fprintf(tw, "relation\t%s\n", l.Relation)
		}
		return tw.Flush()
	}
}

func lotsText(lots []core.Lot) textFunc {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BATCH NUMBER\tSTAGE\tSTATUS\tAMOUNT")
		for _, l := range lots {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.BatchNumber, l.Stage.Label(), l.Status, amount(l))
		}
		return tw.Flush()
	}
}

func historyText(events []domain.AuditEvent) textFunc {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tOPERATION\tBATCH NUMBER\tACTOR\tCHANGE\tREASON")
		for _, e := range events {
			change := ""
			if e.QuantityBefore != "" || e.QuantityAfter != "" {
				change = e.QuantityBefore + " -> " + e.QuantityAfter
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.OccurredAt.UTC().Format("2006-01-02 15:04:05"), e.Operation, e.BatchNumber, e.Actor, change, e.Reason)
		}
		return tw.Flush()
	}
}

func lineageText(l core.Lineage) textFunc {
	return func(w io.Writer) error {
		base := 0
		if n := len(l.Ancestors); n > 0 {
			base = -l.Ancestors[n-1].Depth
		}
		for _, n := range l.Nodes() {
			marker := "  "
			if n.ID == l.Subject.ID {
				marker = "* "
			}
			indent := strings.Repeat("  ", n.Depth+base)
			if _, err := fmt.Fprintf(w, "%s%s%s  %s  %s  %s\n", marker, indent, n.BatchNumber, n.Stage.Label(), n.Status, amount(n.Lot)); err != nil {
				return err
			}
		}
		return nil
	}
}

func parseGrams(flag, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, NewExitError(ExitCommandError, fmt.Sprintf("--%s: %q is not a decimal number", flag, raw))
	}
	return d, nil
}
