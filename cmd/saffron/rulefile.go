package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// ruleFile is the portable YAML form of a rule set. Labels are referenced by
// name, in both labels and label conditions, so a file moves between stores.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Name       string            `yaml:"name"`
	Conditions []model.Condition `yaml:"conditions"`
	Labels     []string          `yaml:"labels"`
	Order      int               `yaml:"order"`
	Active     bool              `yaml:"active"`
}

// exportRules writes every rule to w in order.
func exportRules(ctx context.Context, store service.Storage, w io.Writer) (int, error) {
	list, err := store.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rules: %w", err)
	}
	names, err := labelNames(ctx, store)
	if err != nil {
		return 0, err
	}

	file := ruleFile{Rules: make([]ruleEntry, 0, len(list))}
	for _, r := range list {
		conditions := make([]model.Condition, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			if c.Field == model.FieldLabel {
				c.Value = model.List(labelList(names, c.Value.Items())...)
			}
			conditions = append(conditions, c)
		}
		file.Rules = append(file.Rules, ruleEntry{
			Name:       r.Name,
			Conditions: conditions,
			Labels:     labelList(names, r.LabelsToApply),
			Order:      r.OrderIndex,
			Active:     r.IsActive,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return 0, fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("failed to encode rules: %w", err)
	}
	return len(file.Rules), nil
}

// importRules creates every rule in r in file order, creating labels that do
// not exist yet. The first invalid rule stops the import.
func importRules(ctx context.Context, store service.Storage, r io.Reader) (int, error) {
	var file ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, common.NewUserError("Could not read rule file", err)
	}

	ids := make(map[string]string)
	labelID := func(name string) (string, error) {
		if id, ok := ids[name]; ok {
			return id, nil
		}
		label, err := store.GetLabelByName(ctx, name)
		if errors.Is(err, common.ErrNotFound) {
			label, err = store.CreateLabel(ctx, name, "")
		}
		if err != nil {
			return "", fmt.Errorf("failed to resolve label %q: %w", name, err)
		}
		ids[name] = label.ID
		return label.ID, nil
	}

	created := 0
	for i, entry := range file.Rules {
		rule := model.Rule{
			Name:       entry.Name,
			OrderIndex: entry.Order,
			IsActive:   entry.Active,
		}
		for _, c := range entry.Conditions {
			if c.Field == model.FieldLabel {
				items := c.Value.Items()
				for j, name := range items {
					id, err := labelID(name)
					if err != nil {
						return created, err
					}
					items[j] = id
				}
				c.Value = model.List(items...)
			}
			rule.Conditions = append(rule.Conditions, c)
		}
		for _, name := range entry.Labels {
			id, err := labelID(name)
			if err != nil {
				return created, err
			}
			rule.LabelsToApply = append(rule.LabelsToApply, id)
		}

		if err := store.CreateRule(ctx, &rule); err != nil {
			return created, fmt.Errorf("rule %d (%q): %w", i+1, entry.Name, err)
		}
		created++
	}
	return created, nil
}

func rulesExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all rules as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(config.ExpandPath(output))
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer func() { _ = f.Close() }()
					w = f
				}
				n, err := exportRules(ctx, store, w)
				if err != nil {
					return err
				}
				if output != "" {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d rules to %s", n, output)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default: stdout)")
	return cmd
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create rules from a YAML file",
		Long: `Create rules from a file written by 'saffron rules export'. Labels are
matched by name and created when missing. Existing rules are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(config.ExpandPath(args[0]))
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			return withStorage(ctx, func(_ *config.Settings, store service.Storage) error {
				n, err := importRules(ctx, store, f)
				if n > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d rules", n)))
				}
				return err
			})
		},
	}
}
