package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <lot>",
		Short: "Print the audit trail of a lot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, rootOpts, "history failed", func(ctx context.Context, a *app) (any, textFunc, error) {
				events, err := a.svc.History(ctx, args[0])
				return events, historyText(events), err
			})
		},
	}
}
