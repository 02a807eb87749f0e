package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-check every lot against the ledger rules",
		Long: `Verify reads the whole store and re-runs the conservation, lifecycle and
lineage checks. It never writes. The exit code is 1 when any violation is
found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed bool
			err := runOperation(cmd, rootOpts, "verification failed", func(ctx context.Context, a *app) (any, textFunc, error) {
				rep, err := a.svc.Verify(ctx)
				if err != nil {
					return nil, nil, err
				}
				failed = !rep.OK()
				return rep, verifyText(rep), nil
			})
			if err != nil || !failed {
				return err
			}
			return &ExitError{Code: ExitFailure, Message: "ledger verification found violations", reported: true}
		},
	}
}

func verifyText(rep core.VerifyReport) textFunc {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "checked %d seed lots, %d batches, %d units, %d weight lots\n",
			rep.SeedLots, rep.Batches, rep.Units, rep.WeightLots)
		if rep.OK() {
			_, err := fmt.Fprintln(w, "ledger is consistent")
			return err
		}
		for _, v := range rep.Violations {
			fmt.Fprintf(w, "%s  %s %s: %s\n", v.Rule, v.Entity, v.EntityID, v.Message)
		}
		_, err := fmt.Fprintf(w, "%d violations\n", len(rep.Violations))
		return err
	}
}
