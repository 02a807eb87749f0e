package cli

import (
	"context"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
)

// DestroyOptions holds flags for the destroy command.
type DestroyOptions struct {
	*RootOptions
	Lot      string
	Quantity int
	Units    []string
	Reason   string
	Member   string
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DestroyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Record the destruction of a lot, unit or part of a batch",
		Long: `Destroy records permanent destruction with a reason and a responsible member.

Seed lots split off --quantity seeds (all remaining when omitted). Batches
destroy --quantity live units or the named --unit ids (all live units when
neither is given). Units and weight lots are destroyed whole.`,
		Example: `  lotledger destroy --lot seed:19:10:2026:0001 --quantity 20 --reason "mold" --member alice
  lotledger destroy --lot drying:19:10:2026:0003 --reason "contaminated" --member bob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts.RootOptions, "destruction rejected", func(ctx context.Context, a *app) (any, textFunc, error) {
				lot, err := a.svc.Destroy(ctx, core.DestroyRequest{
					LotID:    opts.Lot,
					Quantity: opts.Quantity,
					UnitIDs:  opts.Units,
					Reason:   opts.Reason,
					Member:   opts.Member,
				})
				return lot, lotText(lot), err
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Lot, "lot", "l", "", "lot id or batch number (required)")
	_ = cmd.MarkFlagRequired("lot")
	cmd.Flags().IntVarP(&opts.Quantity, "quantity", "q", 0, "seeds or units to destroy")
	cmd.Flags().StringSliceVar(&opts.Units, "unit", nil, "explicit unit ids (repeatable)")
	cmd.Flags().StringVarP(&opts.Reason, "reason", "r", "", "destruction reason (required)")
	_ = cmd.MarkFlagRequired("reason")
	cmd.Flags().StringVarP(&opts.Member, "member", "m", "", "responsible member (required)")
	_ = cmd.MarkFlagRequired("member")

	return cmd
}
