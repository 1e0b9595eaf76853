package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/service"
)

func labelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Manage labels",
		Long: `🏷️  Label Management

Labels are attached to transactions by hand or by rules. Names are unique
regardless of case.`,
	}

	cmd.AddCommand(labelsListCmd())
	cmd.AddCommand(labelsAddCmd())
	cmd.AddCommand(labelsEditCmd())
	cmd.AddCommand(labelsDeleteCmd())

	return cmd
}

func labelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List labels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				labels, err := store.ListLabels(ctx)
				if err != nil {
					return fmt.Errorf("failed to list labels: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderLabels(labels))
				return nil
			})
		},
	}
}

func labelsAddCmd() *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				label, err := store.CreateLabel(ctx, args[0], color)
				if err != nil {
					return fmt.Errorf("failed to create label: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Label created: %s (%s)", label.Name, label.ID)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "display color")
	return cmd
}

func labelsEditCmd() *cobra.Command {
	var name, color string
	cmd := &cobra.Command{
		Use:   "edit <label>",
		Short: "Rename or recolor a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				label, err := resolveLabel(ctx, store, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					label.Name = name
				}
				if cmd.Flags().Changed("color") {
					label.Color = color
				}
				if err := store.UpdateLabel(ctx, label); err != nil {
					return fmt.Errorf("failed to update label: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Label updated: "+label.Name))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&color, "color", "", "new color")
	return cmd
}

func labelsDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <label>",
		Short: "Delete a label",
		Long: `Delete a label and detach it from every transaction. A label that a rule
still applies cannot be deleted; edit or delete the rule first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				label, err := resolveLabel(ctx, store, args[0])
				if err != nil {
					return err
				}
				if !force && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete label %q?", label.Name)) {
					fmt.Fprintln(out, "Operation canceled.")
					return nil
				}
				if err := store.DeleteLabel(ctx, label.ID); err != nil {
					return fmt.Errorf("failed to delete label: %w", err)
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Label %q deleted", label.Name)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}
