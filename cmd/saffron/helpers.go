package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/pgstore"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/search"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/Veraticus/saffron/internal/storage"
)

// loadSettings resolves and validates the current configuration.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("Invalid configuration", err)
	}
	return settings, nil
}

// initStorage opens the configured store and brings its schema up to date.
func initStorage(ctx context.Context, settings *config.Settings) (service.Storage, error) {
	var store service.Storage

	switch settings.Database.Driver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, pgstore.Config{DSN: settings.Database.DSN}, slog.Default())
		if err != nil {
			return nil, err
		}
		store = pg
	default:
		sqlite, err := storage.NewSQLiteStorage(settings.Database.Path)
		if err != nil {
			return nil, err
		}
		store = sqlite
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	common.LogDebug("Opened store", common.Fields{"driver": settings.Database.Driver})
	return store, nil
}

// withStorage loads settings, opens the store and closes it after fn.
func withStorage(ctx context.Context, fn func(*config.Settings, service.Storage) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	return fn(settings, store)
}

func matchingOptions(settings *config.Settings) match.Options {
	return match.Options{AmountTolerance: settings.Matching.AmountTolerance}
}

// engineConfig builds the rule engine configuration from settings.
func engineConfig(settings *config.Settings) rules.Config {
	cfg := rules.DefaultConfig()
	cfg.Matching = matchingOptions(settings)
	cfg.Attach.MaxAttempts = settings.Rules.AttachAttempts
	if settings.Rules.AttachDelay > 0 {
		cfg.Attach.InitialDelay = settings.Rules.AttachDelay
	}
	return cfg
}

func newSearch(settings *config.Settings, reader service.RecordReader) *search.Service {
	return search.NewWithConfig(reader, search.Config{Matching: matchingOptions(settings)})
}

// labelStore is the part of the store label references resolve against.
type labelStore interface {
	GetLabel(ctx context.Context, id string) (*model.Label, error)
	GetLabelByName(ctx context.Context, name string) (*model.Label, error)
}

// resolveLabel finds a label by name, falling back to its id.
func resolveLabel(ctx context.Context, store labelStore, ref string) (*model.Label, error) {
	ref = strings.TrimSpace(ref)
	label, err := store.GetLabelByName(ctx, ref)
	if err == nil {
		return label, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	label, err = store.GetLabel(ctx, ref)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewUserError(fmt.Sprintf("Label %q does not exist. Create it with 'saffron labels add'.", ref), err)
	}
	return label, err
}

// resolveLabels maps names or ids to label ids, keeping their order.
func resolveLabels(ctx context.Context, store labelStore, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		label, err := resolveLabel(ctx, store, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, label.ID)
	}
	return ids, nil
}

// resolveConditionLabels rewrites label names in label conditions to ids.
func resolveConditionLabels(ctx context.Context, store labelStore, conditions []model.Condition) ([]model.Condition, error) {
	out := make([]model.Condition, 0, len(conditions))
	for _, c := range conditions {
		if c.Field == model.FieldLabel && c.Value.IsSet() {
			ids, err := resolveLabels(ctx, store, c.Value.Items())
			if err != nil {
				return nil, err
			}
			c.Value = model.List(ids...)
		}
		out = append(out, c)
	}
	return out, nil
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s (y/N): ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
