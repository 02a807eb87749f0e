package cli

import (
	"context"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
)

// IntakeOptions holds flags for the intake command.
type IntakeOptions struct {
	*RootOptions
	Quantity int
	Strain   string
	Member   string
	Room     string
	Notes    string
}

// NewIntakeCommand creates the intake command.
func NewIntakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Register externally sourced propagation seeds",
		Example: `  lotledger intake --quantity 100 --strain strain-7 --member alice
  lotledger intake --quantity 25 --member alice --room germination --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts.RootOptions, "intake rejected", func(ctx context.Context, a *app) (any, textFunc, error) {
				seed, err := a.svc.IntakeSeeds(ctx, core.IntakeRequest{
					Quantity: opts.Quantity,
					StrainID: opts.Strain,
					Member:   opts.Member,
					Room:     opts.Room,
					Notes:    opts.Notes,
				})
				if err != nil {
					return nil, nil, err
				}
				lot, err := a.svc.GetLot(ctx, seed.ID)
				return lot, lotText(lot), err
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Quantity, "quantity", "q", 0, "number of seeds (required)")
	_ = cmd.MarkFlagRequired("quantity")
	cmd.Flags().StringVar(&opts.Strain, "strain", "", "strain id")
	cmd.Flags().StringVarP(&opts.Member, "member", "m", "", "responsible member (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&opts.Room, "room", "", "storage room")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")

	return cmd
}
