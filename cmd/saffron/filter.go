package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/harness"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/predicate"
	"github.com/Veraticus/saffron/internal/search"
	"github.com/Veraticus/saffron/internal/service"
)

// filterInput is an advanced filter as given on the command line.
type filterInput struct {
	where    []string
	matchAny bool
	order    string
	limit    int
}

func (in filterInput) set(ctx context.Context, store service.Storage) (model.ConditionSet, error) {
	conditions, err := parseConditions(in.where)
	if err != nil {
		return model.ConditionSet{}, err
	}
	conditions, err = resolveConditionLabels(ctx, store, conditions)
	if err != nil {
		return model.ConditionSet{}, err
	}
	set := model.ConditionSet{Conditions: conditions, Conjunction: model.ConjunctionAnd}
	if in.matchAny {
		set.Conjunction = model.ConjunctionOr
	}
	return set, nil
}

// parseOrder reads "column" or "column:desc" terms separated by commas.
func parseOrder(s string) ([]predicate.Order, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	ref := predicate.TransactionsTable()
	var order []predicate.Order
	for _, term := range strings.Split(s, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(term), ":")
		column, ok := ref.Columns[model.FieldKind(strings.ToLower(field))]
		if !ok {
			return nil, fmt.Errorf("invalid sort field %q", field)
		}
		switch strings.ToLower(dir) {
		case "", "asc":
			order = append(order, predicate.Order{Column: column})
		case "desc":
			order = append(order, predicate.Order{Column: column, Desc: true})
		default:
			return nil, fmt.Errorf("invalid sort direction %q (valid: asc, desc)", dir)
		}
	}
	return order, nil
}

func (in *filterInput) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&in.where, "where", "w", nil, "condition field:operator:value (repeatable)")
	cmd.Flags().BoolVar(&in.matchAny, "any", false, "match any condition instead of all")
}

func filterCmd() *cobra.Command {
	var in filterInput
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Find transactions with an advanced filter",
		Long: `Find transactions matching every condition, or any with --any. With no
conditions every transaction matches. Conditions that are not complete yet
are ignored with a warning.

` + whereHelp,
		Example: `  saffron filter --where amount:greater_than:100
  saffron filter --any --where description:contains:coffee --where label:equals:Coffee --order date:desc`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(settings *config.Settings, store service.Storage) error {
				return runFilter(ctx, settings, store, in, cmd.OutOrStdout())
			})
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&in.order, "order", "", "sort terms such as date:desc,amount (default: date:desc)")
	cmd.Flags().IntVar(&in.limit, "limit", 0, "maximum results (0: all)")

	cmd.AddCommand(filterTestCmd())
	return cmd
}

func runFilter(ctx context.Context, settings *config.Settings, store service.Storage, in filterInput, out io.Writer) error {
	set, err := in.set(ctx, store)
	if err != nil {
		return err
	}
	order, err := parseOrder(in.order)
	if err != nil {
		return err
	}

	result, err := newSearch(settings, store).Find(ctx, set, search.Query{Order: order, Limit: in.limit})
	if err != nil {
		return err
	}
	if len(result.Dropped) > 0 {
		fmt.Fprintln(out, cli.RenderDropped(result.Dropped))
	}
	if len(result.Drift) > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d stored matches were rejected on re-check", len(result.Drift))))
	}
	fmt.Fprintln(out, cli.FormatTitle("🔎 "+cli.RenderConditions(set)))
	fmt.Fprintln(out, cli.RenderTransactions(result.Transactions))
	return nil
}

func filterTestCmd() *cobra.Command {
	var in filterInput
	var sample sampleFlags
	var against string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Dry-run a filter against a sample or the store",
		Long: `Check a filter before using it. Against a sample, report whether the
sample matches; against the store, show the first few matches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withStorage(ctx, func(settings *config.Settings, store service.Storage) error {
				set, err := in.set(ctx, store)
				if err != nil {
					return err
				}

				switch against {
				case "store":
					h := harness.New(newSearch(settings, store), nil, settings.Harness.Limit)
					return renderStoreResult(out, h.TestAgainstStore(ctx, set))
				case "sample":
					labelIDs, err := resolveLabels(ctx, store, sample.labels)
					if err != nil {
						return err
					}
					txn, err := sample.transaction(labelIDs)
					if err != nil {
						return err
					}
					r := harness.TestAgainstSample(set, txn)
					if len(r.Dropped) > 0 {
						fmt.Fprintln(out, cli.RenderDropped(r.Dropped))
					}
					if r.Matches {
						fmt.Fprintln(out, cli.FormatSuccess("The sample matches"))
					} else {
						fmt.Fprintln(out, cli.FormatInfo("The sample does not match"))
					}
					return nil
				default:
					return fmt.Errorf("invalid --against %q (valid: sample, store)", against)
				}
			})
		},
	}
	in.register(cmd)
	sample.register(cmd)
	cmd.Flags().StringVar(&against, "against", "store", "what to test against (sample, store)")
	return cmd
}
