package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
	"lotledger/internal/infra/blob"
	"lotledger/internal/report"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Report string
}

type traceOutput struct {
	Lineage core.Lineage `json:"lineage"`
	Report  *blob.Info   `json:"report,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <lot>",
		Short: "Print the chain of custody around a lot",
		Long: `Trace walks from a lot back to its originating seed intake and forward
to everything derived from it. With --report the lineage and history are also
rendered and written to the configured report store.`,
		Example: `  lotledger trace pack-unit:19:10:2026:0004
  lotledger trace harvest:12:09:2026:0001 --report xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var format report.Format
			if opts.Report != "" {
				f, err := report.ParseFormat(opts.Report)
				if err != nil {
					return reportError(opts.formatter(cmd), WrapExitError(ExitCommandError, "invalid --report", err), "")
				}
				format = f
			}
			return runOperation(cmd, opts.RootOptions, "trace failed", func(ctx context.Context, a *app) (any, textFunc, error) {
				lineage, err := a.svc.Trace(ctx, args[0])
				if err != nil {
					return nil, nil, err
				}
				out := traceOutput{Lineage: lineage}
				if format != "" {
					info, err := publishReport(ctx, a, args[0], format)
					if err != nil {
						return nil, nil, err
					}
					out.Report = &info
				}
				return out, traceText(out), nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Report, "report", "", "also publish a report (json|csv|xlsx)")

	return cmd
}

func publishReport(ctx context.Context, a *app, ref string, format report.Format) (blob.Info, error) {
	store, err := openBlobStore(ctx, a.cfg)
	if err != nil {
		return blob.Info{}, WrapExitError(ExitCommandError, "failed to open report store", err)
	}
	doc, err := report.Build(ctx, a.svc, ref, time.Now())
	if err != nil {
		return blob.Info{}, err
	}
	info, err := report.NewPublisher(store).Publish(ctx, doc, format)
	if err != nil {
		return blob.Info{}, fmt.Errorf("publish report: %w", err)
	}
	a.log.Info("report published", "key", info.Key, "driver", store.Driver())
	return info, nil
}

func traceText(out traceOutput) textFunc {
	return func(w io.Writer) error {
		if err := lineageText(out.Lineage)(w); err != nil {
			return err
		}
		if out.Report == nil {
			return nil
		}
		location := out.Report.Key
		if out.Report.URL != "" {
			location = out.Report.URL
		}
		_, err := fmt.Fprintf(w, "report written to %s\n", location)
		return err
	}
}
