package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/harness"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/search"
	"github.com/Veraticus/saffron/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage labeling rules",
		Long: `🟡 Rule Management

A rule attaches labels to every transaction that satisfies all of its
conditions. Active rules run in order; labels applied by an earlier rule are
visible to later ones in the same pass.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesEditCmd())
	cmd.AddCommand(rulesToggleCmd("enable", true))
	cmd.AddCommand(rulesToggleCmd("disable", false))
	cmd.AddCommand(rulesReorderCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesApplyCmd())
	cmd.AddCommand(rulesTestCmd())
	cmd.AddCommand(rulesExportCmd())
	cmd.AddCommand(rulesImportCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in application order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				var list []model.Rule
				var err error
				if activeOnly {
					list, err = store.ListActiveRules(ctx)
				} else {
					list, err = store.ListRules(ctx)
				}
				if err != nil {
					return fmt.Errorf("failed to list rules: %w", err)
				}
				names, err := labelNames(ctx, store)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("🟡 Rules"))
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRules(list, names))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show active rules")
	return cmd
}

// ruleInput is a rule as given on the command line.
type ruleInput struct {
	name     string
	where    []string
	labels   []string
	order    int
	inactive bool
}

// build parses the input into a rule. An order below zero means last.
func (in ruleInput) build(ctx context.Context, store service.Storage) (model.Rule, error) {
	conditions, err := parseConditions(in.where)
	if err != nil {
		return model.Rule{}, err
	}
	conditions, err = resolveConditionLabels(ctx, store, conditions)
	if err != nil {
		return model.Rule{}, err
	}
	labelIDs, err := resolveLabels(ctx, store, in.labels)
	if err != nil {
		return model.Rule{}, err
	}

	order := in.order
	if order < 0 {
		if order, err = store.NextRuleOrderIndex(ctx); err != nil {
			return model.Rule{}, fmt.Errorf("failed to get next order index: %w", err)
		}
	}

	return model.Rule{
		Name:          in.name,
		Conditions:    conditions,
		LabelsToApply: labelIDs,
		OrderIndex:    order,
		IsActive:      !in.inactive,
	}, nil
}

func addRule(ctx context.Context, store service.Storage, in ruleInput) (*model.Rule, error) {
	rule, err := in.build(ctx, store)
	if err != nil {
		return nil, err
	}
	if err := store.CreateRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return &rule, nil
}

func rulesAddCmd() *cobra.Command {
	in := ruleInput{order: -1}
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a rule",
		Long:  "Create a rule that applies labels when every condition holds.\n\n" + whereHelp,
		Example: `  saffron rules add "Coffee" --where description:contains:coffee --where amount:between:-20..0 --label Coffee`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in.name = args[0]
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				rule, err := addRule(ctx, store, in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule created: %q (%s)", rule.Name, rule.ID)))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&in.where, "where", "w", nil, "condition field:operator:value (repeatable)")
	cmd.Flags().StringSliceVarP(&in.labels, "label", "l", nil, "label to apply, by name or id (repeatable)")
	cmd.Flags().IntVar(&in.order, "order", -1, "order index (default: after the last rule)")
	cmd.Flags().BoolVar(&in.inactive, "inactive", false, "create the rule disabled")
	_ = cmd.MarkFlagRequired("where")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func rulesEditCmd() *cobra.Command {
	var in ruleInput
	cmd := &cobra.Command{
		Use:   "edit <rule-id>",
		Short: "Change a rule",
		Long: `Change a rule's name, conditions, labels or order. Conditions and labels
given on the command line replace the existing ones.

` + whereHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				rule, err := store.GetRule(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get rule: %w", err)
				}

				if flags.Changed("name") {
					rule.Name = in.name
				}
				if flags.Changed("where") {
					conditions, err := parseConditions(in.where)
					if err != nil {
						return err
					}
					if rule.Conditions, err = resolveConditionLabels(ctx, store, conditions); err != nil {
						return err
					}
				}
				if flags.Changed("label") {
					if rule.LabelsToApply, err = resolveLabels(ctx, store, in.labels); err != nil {
						return err
					}
				}
				if flags.Changed("order") {
					rule.OrderIndex = in.order
				}

				if err := store.UpdateRule(ctx, rule); err != nil {
					return fmt.Errorf("failed to update rule: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule updated: %q", rule.Name)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.name, "name", "", "new name")
	cmd.Flags().StringArrayVarP(&in.where, "where", "w", nil, "replacement condition (repeatable)")
	cmd.Flags().StringSliceVarP(&in.labels, "label", "l", nil, "replacement label (repeatable)")
	cmd.Flags().IntVar(&in.order, "order", 0, "new order index")
	return cmd
}

func rulesToggleCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <rule-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				if err := store.SetRuleActive(ctx, args[0], active); err != nil {
					return fmt.Errorf("failed to %s rule: %w", verb, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %s %sd", args[0], verb)))
				return nil
			})
		},
	}
}

func rulesReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <rule-id>...",
		Short: "Set the application order",
		Long: `Assign order indexes by position: the first id runs first. Rules not named
keep their current index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				if err := store.ReorderRules(ctx, args); err != nil {
					return fmt.Errorf("failed to reorder rules: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Reordered %d rules", len(args))))
				return nil
			})
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Long: `Delete a rule. Labels it already applied stay on their transactions.
Use 'saffron rules disable' to keep the rule but stop running it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				rule, err := store.GetRule(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get rule: %w", err)
				}

				fmt.Fprintln(out, cli.FormatTitle("🟡 Delete Rule"))
				fmt.Fprintf(out, "Name: %s\n", rule.Name)
				fmt.Fprintf(out, "Conditions: %s\n\n", cli.RenderConditions(rule.ConditionSet()))

				if !force && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete rule %q?", rule.Name)) {
					fmt.Fprintln(out, "Operation canceled.")
					return nil
				}

				if err := store.DeleteRule(ctx, rule.ID); err != nil {
					return fmt.Errorf("failed to delete rule: %w", err)
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rule %q deleted", rule.Name)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func rulesApplyCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply active rules to pending transactions",
		Long: `Run every active rule, in order, over all pending transactions. Labels
already attached are left alone, so running apply twice changes nothing the
second time. Interrupting keeps the labels applied so far.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			handler := cli.NewInterruptHandler(out)
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Rule application", "saffron rules apply")
			defer stop()

			return withStorage(ctx, func(settings *config.Settings, store service.Storage) error {
				names, err := labelNames(ctx, store)
				if err != nil {
					return err
				}

				if dryRun {
					return previewApply(ctx, settings, store, out, names)
				}

				report, err := applyRules(ctx, settings, store, cli.NewProgress(os.Stderr, "Applying rules"))
				if report != nil {
					fmt.Fprintln(out, cli.RenderReport("Rules applied", report, names))
				}
				if err != nil && handler.WasInterrupted() {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "show what would be labeled without writing")
	return cmd
}

// applyRules runs the pending pass, reporting progress to progress when set.
func applyRules(ctx context.Context, settings *config.Settings, store service.Storage, progress *cli.Progress) (*rules.Report, error) {
	cfg := engineConfig(settings)
	if progress != nil {
		cfg.OnProgress = progress.Update
	}
	runner := rules.NewRunner(store, store, rules.NewWithConfig(store, cfg))
	return runner.ApplyPending(ctx)
}

func previewApply(ctx context.Context, settings *config.Settings, store service.Storage, out io.Writer, names cli.LabelNames) error {
	active, err := store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	result, err := newSearch(settings, store).Find(ctx, rules.PendingFilter(), search.Query{})
	if err != nil {
		return err
	}

	h := harness.New(nil, rules.NewWithConfig(store, engineConfig(settings)), settings.Harness.Limit)
	rows := [][]string{}
	for _, txn := range result.Transactions {
		r := h.TestRules(active, txn)
		if len(r.Labels) == 0 {
			continue
		}
		rows = append(rows, []string{txn.ID, txn.Description, strings.Join(labelList(names, r.Labels), ", ")})
	}

	fmt.Fprintln(out, cli.FormatTitle("🟡 Dry run"))
	if len(rows) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No pending transaction would get a new label."))
		return nil
	}
	fmt.Fprintln(out, cli.Table([]string{"ID", "DESCRIPTION", "WOULD APPLY"}, rows))
	return nil
}

func rulesTestCmd() *cobra.Command {
	var sample sampleFlags
	var against string
	cmd := &cobra.Command{
		Use:   "test <rule-id>",
		Short: "Dry-run a rule against a sample or the store",
		Long: `Test a rule without changing anything. By default the rule runs against a
sample transaction built from the flags; with --against store its conditions
run against stored transactions and the first few matches are shown.`,
		Example: `  saffron rules test 3f2a... --description "Blue Bottle Coffee" --amount -5.50
  saffron rules test 3f2a... --against store`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withStorage(ctx, func(settings *config.Settings, store service.Storage) error {
				rule, err := store.GetRule(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get rule: %w", err)
				}
				names, err := labelNames(ctx, store)
				if err != nil {
					return err
				}
				h := harness.New(newSearch(settings, store), rules.NewWithConfig(store, engineConfig(settings)), settings.Harness.Limit)

				switch against {
				case "store":
					return renderStoreResult(out, h.TestAgainstStore(ctx, rule.ConditionSet()))
				case "sample":
					labelIDs, err := resolveLabels(ctx, store, sample.labels)
					if err != nil {
						return err
					}
					txn, err := sample.transaction(labelIDs)
					if err != nil {
						return err
					}
					r := h.TestRule(*rule, txn)
					if !r.Matches {
						fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%q does not match the sample", rule.Name)))
						return nil
					}
					msg := fmt.Sprintf("%q matches the sample", rule.Name)
					if len(r.Labels) > 0 {
						msg += "; would apply " + strings.Join(labelList(names, r.Labels), ", ")
					}
					fmt.Fprintln(out, cli.FormatSuccess(msg))
					return nil
				default:
					return fmt.Errorf("invalid --against %q (valid: sample, store)", against)
				}
			})
		},
	}
	sample.register(cmd)
	cmd.Flags().StringVar(&against, "against", "sample", "what to test against (sample, store)")
	return cmd
}

func renderStoreResult(out io.Writer, r harness.StoreResult) error {
	if r.Error != "" {
		fmt.Fprintln(out, cli.FormatError(r.Error))
		return nil
	}
	if len(r.Dropped) > 0 {
		fmt.Fprintln(out, cli.RenderDropped(r.Dropped))
	}
	if !r.Matches {
		fmt.Fprintln(out, cli.FormatInfo("No stored transaction matches."))
		return nil
	}
	fmt.Fprintln(out, cli.RenderTransactions(r.Results))
	return nil
}

func labelNames(ctx context.Context, store service.Storage) (cli.LabelNames, error) {
	labels, err := store.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return cli.NewLabelNames(labels), nil
}

func labelList(names cli.LabelNames, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, names.Name(id))
	}
	return out
}
