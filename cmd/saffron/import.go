package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/ofx"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/service"
)

func importCmd() *cobra.Command {
	var dryRun, noRules bool
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import transactions from OFX or QFX files exported from your bank. New
transactions land as pending and the active rules run over them right away.
Transactions already imported are skipped.`,
		Example: `  saffron import ~/Downloads/checking_2024.qfx
  saffron import ~/Downloads/*.ofx --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			handler := cli.NewInterruptHandler(out)
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Import", "saffron rules apply")
			defer stop()

			txns := parseFiles(ctx, ofx.NewParser(slog.Default()), files)
			if len(txns) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file"))
				return nil
			}
			if dryRun {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions parsed, nothing saved", len(txns))))
				fmt.Fprintln(out, cli.RenderTransactions(txns))
				return nil
			}

			return withStorage(ctx, func(settings *config.Settings, store service.Storage) error {
				inserted, report, err := importTransactions(ctx, settings, store, txns, !noRules)
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d new transactions (%d already present)",
					len(inserted), len(txns)-len(inserted))))
				if report != nil {
					names, nameErr := labelNames(ctx, store)
					if nameErr != nil {
						return nameErr
					}
					fmt.Fprintln(out, cli.RenderReport("Rules applied", report, names))
				}
				if err != nil && handler.WasInterrupted() {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "parse and show without saving")
	cmd.Flags().BoolVar(&noRules, "no-rules", false, "do not run rules over the new transactions")
	return cmd
}

// expandFiles expands glob patterns, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		pattern = config.ExpandPath(pattern)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

// parseFiles parses every file, skipping ones that fail, and drops
// transactions repeated across files.
func parseFiles(ctx context.Context, parser *ofx.Parser, files []string) []model.Transaction {
	var all []model.Transaction
	seen := make(map[string]bool)

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		txns, err := parseFile(ctx, parser, path)
		if err != nil {
			common.LogError(err, "Failed to parse OFX file", common.Fields{"file": path})
			continue
		}

		added := 0
		for _, txn := range txns {
			if seen[txn.ID] {
				continue
			}
			seen[txn.ID] = true
			all = append(all, txn)
			added++
		}
		common.LogInfo("Processed file", common.Fields{
			"file":               filepath.Base(path),
			"transactions_found": len(txns),
			"added":              added,
			"duplicates":         len(txns) - added,
		})
	}
	return all
}

func parseFile(ctx context.Context, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parser.ParseFile(ctx, f)
}

// importTransactions saves txns and, when runRules is set, applies the
// active rules to the ones that were new.
func importTransactions(ctx context.Context, settings *config.Settings, store service.Storage, txns []model.Transaction, runRules bool) ([]model.Transaction, *rules.Report, error) {
	inserted, err := store.SaveTransactions(ctx, txns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	if !runRules || len(inserted) == 0 {
		return inserted, nil, nil
	}

	cfg := engineConfig(settings)
	runner := rules.NewRunner(store, store, rules.NewWithConfig(store, cfg))
	report, err := runner.OnInserted(ctx, inserted)
	return inserted, report, err
}
