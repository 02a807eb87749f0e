package cli

import (
	"context"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var units bool

	cmd := &cobra.Command{
		Use:   "show <lot>",
		Short: "Show a lot by id or batch number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, rootOpts, "lookup failed", func(ctx context.Context, a *app) (any, textFunc, error) {
				lot, err := a.svc.GetLot(ctx, args[0])
				if err != nil {
					return nil, nil, err
				}
				if !units || lot.Entity != domain.EntityBatch {
					return lot, lotText(lot), nil
				}
				list, err := a.svc.ListUnits(ctx, lot.ID)
				if err != nil {
					return nil, nil, err
				}
				lots := make([]core.Lot, 0, len(list))
				for _, u := range list {
					l, err := a.svc.GetLot(ctx, u.ID)
					if err != nil {
						return nil, nil, err
					}
					lots = append(lots, l)
				}
				return lots, lotsText(lots), nil
			})
		},
	}

	cmd.Flags().BoolVar(&units, "units", false, "list the units of a batch")

	return cmd
}
