package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lotledger/internal/core"
)

// PackageOptions holds flags for the package command.
type PackageOptions struct {
	*RootOptions
	Lab       string
	Lines     []string
	Remainder string
	Member    string
	Room      string
	Notes     string
}

// NewPackageCommand creates the package command.
func NewPackageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PackageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "package",
		Short: "Package weight from a passed lab lot",
		Long: `Package draws package lines from a passed lab lot. Each --line is
COUNTxGRAMS, optionally followed by @PRICE and :LABEL, and fans out into
COUNT packaging units. --remainder destroys leftover weight. The request is
rejected as a whole when it needs more than the lot has available.`,
		Example: `  lotledger package --lab lab:19:10:2026:0001 --line 10x5 --line 2x2.5@12.50:sample-pack --member dave
  lotledger package --lab lab:19:10:2026:0001 --remainder 0.5 --member dave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts.RootOptions, "packaging rejected", func(ctx context.Context, a *app) (any, textFunc, error) {
				req, err := opts.request()
				if err != nil {
					return nil, nil, err
				}
				ref, err := a.svc.GetLot(ctx, opts.Lab)
				if err != nil {
					return nil, nil, err
				}
				req.LabID = ref.ID
				res, err := a.svc.Package(ctx, req)
				if err != nil {
					return nil, nil, err
				}
				return res, packageText(res), nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Lab, "lab", "l", "", "lab lot id or batch number (required)")
	_ = cmd.MarkFlagRequired("lab")
	cmd.Flags().StringArrayVar(&opts.Lines, "line", nil, "package line COUNTxGRAMS[@PRICE][:LABEL] (repeatable)")
	cmd.Flags().StringVar(&opts.Remainder, "remainder", "", "grams to destroy as remainder")
	cmd.Flags().StringVarP(&opts.Member, "member", "m", "", "responsible member (required)")
	_ = cmd.MarkFlagRequired("member")
	cmd.Flags().StringVar(&opts.Room, "room", "", "room of the packages")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")

	return cmd
}

func (o *PackageOptions) request() (core.PackageRequest, error) {
	remainder, err := parseGrams("remainder", o.Remainder)
	if err != nil {
		return core.PackageRequest{}, err
	}
	req := core.PackageRequest{RemainderWeight: remainder, Member: o.Member, Room: o.Room, Notes: o.Notes}
	for _, raw := range o.Lines {
		line, err := parsePackageLine(raw)
		if err != nil {
			return core.PackageRequest{}, err
		}
		req.Lines = append(req.Lines, line)
	}
	return req, nil
}

// parsePackageLine reads COUNTxGRAMS[@PRICE][:LABEL].
func parsePackageLine(raw string) (core.PackageLine, error) {
	bad := func(reason string) error {
		return NewExitError(ExitCommandError, fmt.Sprintf("--line %q: %s", raw, reason))
	}
	body, label, _ := strings.Cut(strings.TrimSpace(raw), ":")
	body, price, hasPrice := strings.Cut(body, "@")
	count, grams, ok := strings.Cut(strings.ToLower(body), "x")
	if !ok {
		return core.PackageLine{}, bad("want COUNTxGRAMS")
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return core.PackageLine{}, bad("count is not an integer")
	}
	weight, err := parseGrams("line", grams)
	if err != nil || weight.IsZero() {
		return core.PackageLine{}, bad("unit weight is not a positive number")
	}
	line := core.PackageLine{UnitCount: n, UnitWeight: weight, Label: strings.TrimSpace(label)}
	if hasPrice {
		p, err := parseGrams("line", price)
		if err != nil {
			return core.PackageLine{}, bad("price is not a number")
		}
		line.Price = &p
	}
	return line, nil
}

func packageText(res core.PackageResult) textFunc {
	return func(w io.Writer) error {
		for _, p := range res.Packages {
			fmt.Fprintf(w, "%s  %d x %s g\n", p.BatchNumber, p.Packaging.UnitCount, p.Packaging.UnitWeight)
		}
		fmt.Fprintf(w, "%d packaging units created\n", len(res.Units))
		if res.Remainder != nil {
			fmt.Fprintf(w, "remainder %s g destroyed as %s\n", res.Remainder.OutputWeight, res.Remainder.BatchNumber)
		}
		_, err := fmt.Fprintf(w, "%s is %s\n", res.Lab.BatchNumber, res.Lab.Status())
		return err
	}
}
