package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/search"
	"github.com/Veraticus/saffron/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "Inspect and label transactions",
	}

	cmd.AddCommand(transactionsListCmd())
	cmd.AddCommand(transactionsShowCmd())
	cmd.AddCommand(transactionsStatusCmd())
	cmd.AddCommand(transactionsLabelCmd())
	cmd.AddCommand(transactionsUnlabelCmd())

	return cmd
}

func parseStatus(s string) (model.TransactionStatus, error) {
	status := model.TransactionStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case model.StatusPending, model.StatusReviewed, model.StatusArchived:
		return status, nil
	default:
		return "", fmt.Errorf("invalid status %q (valid: pending, reviewed, archived)", s)
	}
}

func transactionsListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var set model.ConditionSet
			if status != "" {
				parsed, err := parseStatus(status)
				if err != nil {
					return err
				}
				set.Conditions = []model.Condition{{
					Field: model.FieldStatus, Operator: model.OpEquals, Value: model.Scalar(string(parsed)),
				}}
			}
			return withStorage(ctx, func(settings *config.Settings, store service.Storage) error {
				result, err := newSearch(settings, store).Find(ctx, set, search.Query{Limit: limit})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTransactions(result.Transactions))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only this status (pending, reviewed, archived)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results (0: all)")
	return cmd
}

func transactionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <transaction-id>",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				txn, err := store.GetTransaction(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get transaction: %w", err)
				}

				date := "(none)"
				if !txn.Date.IsZero() {
					date = txn.Date.Format("2006-01-02")
				}
				labels := make([]string, 0, len(txn.Labels))
				for _, l := range txn.Labels {
					labels = append(labels, l.Name)
				}
				body := strings.Join([]string{
					"Description: " + txn.Description,
					fmt.Sprintf("Amount:      %.2f", txn.Amount),
					"Date:        " + date,
					"Identifier:  " + txn.Identifier,
					"Source:      " + txn.Source,
					"Status:      " + string(txn.Status),
					"Labels:      " + strings.Join(labels, ", "),
				}, "\n")
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(txn.ID, body))
				return nil
			})
		},
	}
}

func transactionsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <transaction-id> <status>",
		Short: "Move a transaction to pending, reviewed or archived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			status, err := parseStatus(args[1])
			if err != nil {
				return err
			}
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				if err := store.SetTransactionStatus(ctx, args[0], status); err != nil {
					return fmt.Errorf("failed to set status: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s is now %s", args[0], status)))
				return nil
			})
		},
	}
}

func transactionsLabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "label <transaction-id> <label>...",
		Short: "Attach labels by hand",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				ids, err := resolveLabels(ctx, store, args[1:])
				if err != nil {
					return err
				}
				for _, id := range ids {
					if err := store.AttachLabel(ctx, args[0], id); err != nil {
						return fmt.Errorf("failed to attach label: %w", err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Labeled %s", args[0])))
				return nil
			})
		},
	}
}

func transactionsUnlabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlabel <transaction-id> <label>...",
		Short: "Detach labels",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				ids, err := resolveLabels(ctx, store, args[1:])
				if err != nil {
					return err
				}
				for _, id := range ids {
					if err := store.DetachLabel(ctx, args[0], id); err != nil {
						return fmt.Errorf("failed to detach label: %w", err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Unlabeled %s", args[0])))
				return nil
			})
		},
	}
}
