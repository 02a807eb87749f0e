package cli

import (
	"context"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Source       string
	Target       string
	Quantity     int
	Units        []string
	OutputWeight string
	SampleWeight string
	Category     string
	Recipient    string
	Member       string
	Room         string
	Notes        string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Move material from a lot into the next stage",
		Long: `Convert draws from a source lot and creates a lot at the target stage.

Unit-group sources (plants, cuttings) take --quantity or explicit --unit ids.
Weight sources (harvest onwards) take --output-weight in grams. A lab testing
target also takes --sample-weight, which is destroyed when the result is
recorded.

Stages: propagation_seed, mother_plant, cutting, blooming_cutting,
flowering_plant, harvest, drying, processing, lab_testing, packaging,
packaging_unit, distribution.`,
		Example: `  lotledger convert --source seed:19:10:2026:0001 --to flowering_plant --quantity 20 --member alice
  lotledger convert --source flower:19:10:2026:0001 --to harvest --quantity 20 --output-weight 2400 --member alice
  lotledger convert --source processing:19:10:2026:0001 --to lab_testing --sample-weight 5 --member bob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts.RootOptions, "conversion rejected", func(ctx context.Context, a *app) (any, textFunc, error) {
				req, err := opts.request()
				if err != nil {
					return nil, nil, err
				}
				lot, err := a.svc.Convert(ctx, req)
				return lot, lotText(lot), err
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "source lot id or batch number (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVarP(&opts.Target, "to", "t", "", "target stage (required)")
	_ = cmd.MarkFlagRequired("to")
	cmd.Flags().IntVarP(&opts.Quantity, "quantity", "q", 0, "number of units to convert")
	cmd.Flags().StringSliceVar(&opts.Units, "unit", nil, "explicit unit ids (repeatable)")
	cmd.Flags().StringVar(&opts.OutputWeight, "output-weight", "", "grams produced")
	cmd.Flags().StringVar(&opts.SampleWeight, "sample-weight", "", "grams taken as lab sample")
	cmd.Flags().StringVar(&opts.Category, "category", "", "product category")
	cmd.Flags().StringVar(&opts.Recipient, "recipient", "", "recipient for distribution")
	cmd.Flags().StringVarP(&opts.Member, "member", "m", "", "responsible member (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&opts.Room, "room", "", "room of the new lot")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")

	return cmd
}

func (o *ConvertOptions) request() (core.ConvertRequest, error) {
	target, err := domain.ParseStage(o.Target)
	if err != nil {
		return core.ConvertRequest{}, err
	}
	output, err := parseGrams("output-weight", o.OutputWeight)
	if err != nil {
		return core.ConvertRequest{}, err
	}
	sample, err := parseGrams("sample-weight", o.SampleWeight)
	if err != nil {
		return core.ConvertRequest{}, err
	}
	return core.ConvertRequest{
		SourceID:     o.Source,
		TargetStage:  target,
		Quantity:     o.Quantity,
		UnitIDs:      o.Units,
		OutputWeight: output,
		SampleWeight: sample,
		Category:     o.Category,
		Recipient:    o.Recipient,
		Member:       o.Member,
		Room:         o.Room,
		Notes:        o.Notes,
	}, nil
}
