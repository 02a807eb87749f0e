package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

// LabOptions holds flags for the lab command.
type LabOptions struct {
	*RootOptions
	Lot    string
	Status string
	THC    string
	CBD    string
	Member string
	Notes  string
}

// NewLabCommand creates the lab command.
func NewLabCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LabOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lab",
		Short: "Record the result of a lab analysis",
		Long: `Lab closes the quality gate of a pending lab testing lot. Only a passed lot
can be packaged. The sample taken at conversion is recorded as destroyed.`,
		Example: `  lotledger lab --lot lab:19:10:2026:0001 --status passed --thc 21.4 --cbd 0.6 --member carol`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts.RootOptions, "lab result rejected", func(ctx context.Context, a *app) (any, textFunc, error) {
				req, err := opts.request()
				if err != nil {
					return nil, nil, err
				}
				ref, err := a.svc.GetLot(ctx, opts.Lot)
				if err != nil {
					return nil, nil, err
				}
				req.LabID = ref.ID
				lab, err := a.svc.RecordLabResult(ctx, req)
				if err != nil {
					return nil, nil, err
				}
				return lab, labText(lab), nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Lot, "lot", "l", "", "lab lot id or batch number (required)")
	_ = cmd.MarkFlagRequired("lot")
	cmd.Flags().StringVar(&opts.Status, "status", "", "passed or failed (required)")
	_ = cmd.MarkFlagRequired("status")
	cmd.Flags().StringVar(&opts.THC, "thc", "", "THC content in percent")
	cmd.Flags().StringVar(&opts.CBD, "cbd", "", "CBD content in percent")
	cmd.Flags().StringVarP(&opts.Member, "member", "m", "", "analyst (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")

	return cmd
}

func (o *LabOptions) request() (core.LabResultRequest, error) {
	req := core.LabResultRequest{
		Status: domain.LabStatus(strings.ToUpper(strings.TrimSpace(o.Status))),
		Member: o.Member,
		Notes:  o.Notes,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{{"thc", o.THC, &req.THC}, {"cbd", o.CBD, &req.CBD}} {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		v, err := parseGrams(f.name, f.raw)
		if err != nil {
			return req, err
		}
		*f.dst = &v
	}
	return req, nil
}

func labText(lab domain.WeightLot) textFunc {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "%s  %s\n", lab.BatchNumber, lab.Lab.Status)
		if total, ok := lab.Lab.TotalCannabinoids(); ok {
			fmt.Fprintf(w, "thc %s%%  cbd %s%%  total %s%%\n", lab.Lab.THC, lab.Lab.CBD, total)
		}
		if lab.Lab.SampleLotID != nil {
			_, err := fmt.Fprintf(w, "sample of %s g destroyed\n", lab.Lab.SampleWeight)
			return err
		}
		return nil
	}
}
