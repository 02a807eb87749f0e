package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

// DistributeOptions holds flags for the distribute command.
type DistributeOptions struct {
	*RootOptions
	Unit      string
	Recipient string
	Member    string
	Notes     string
}

// NewDistributeCommand creates the distribute command.
func NewDistributeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DistributeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "distribute",
		Short:   "Hand a packaging unit to a recipient",
		Example: `  lotledger distribute --unit pack-unit:19:10:2026:0004 --recipient member-118 --member erin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts.RootOptions, "distribution rejected", func(ctx context.Context, a *app) (any, textFunc, error) {
				ref, err := a.svc.GetLot(ctx, opts.Unit)
				if err != nil {
					return nil, nil, err
				}
				dist, err := a.svc.Distribute(ctx, core.DistributeRequest{
					PackagingUnitID: ref.ID,
					Recipient:       opts.Recipient,
					Member:          opts.Member,
					Notes:           opts.Notes,
				})
				if err != nil {
					return nil, nil, err
				}
				return dist, distributionText(ref, dist), nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Unit, "unit", "u", "", "packaging unit id or batch number (required)")
	_ = cmd.MarkFlagRequired("unit")
	cmd.Flags().StringVar(&opts.Recipient, "recipient", "", "receiving member (required)")
	_ = cmd.MarkFlagRequired("recipient")
	cmd.Flags().StringVarP(&opts.Member, "member", "m", "", "handing member (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")

	return cmd
}

func distributionText(unit core.Lot, dist domain.WeightLot) textFunc {
	return func(w io.Writer) error {
		recipient := ""
		if dist.Recipient != nil {
			recipient = *dist.Recipient
		}
		_, err := fmt.Fprintf(w, "%s (%s g) distributed to %s as %s\n", unit.BatchNumber, dist.OutputWeight, recipient, dist.BatchNumber)
		return err
	}
}
