package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// CreateLabel creates a label with a generated id. Names are unique
// ignoring case.
func (s *SQLiteStorage) CreateLabel(ctx context.Context, name, color string) (*model.Label, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	label := &model.Label{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Color:     strings.TrimSpace(color),
		CreatedAt: time.Now().UTC(),
	}
	if err := validateLabel(label); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO labels (id, name, color, created_at) VALUES (?, ?, ?, ?)",
		label.ID, label.Name, label.Color, label.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", label.Name, classify(err))
	}

	return label, nil
}

// GetLabel retrieves a label by id.
func (s *SQLiteStorage) GetLabel(ctx context.Context, id string) (*model.Label, error) {
	return s.getLabel(ctx, "id", id)
}

// GetLabelByName retrieves a label by name, ignoring case.
func (s *SQLiteStorage) GetLabelByName(ctx context.Context, name string) (*model.Label, error) {
	return s.getLabel(ctx, "name", strings.TrimSpace(name))
}

func (s *SQLiteStorage) getLabel(ctx context.Context, column, value string) (*model.Label, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(value, column); err != nil {
		return nil, err
	}

	var label model.Label
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, color, created_at FROM labels WHERE "+column+" = ?", value,
	).Scan(&label.ID, &label.Name, &label.Color, &label.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("label %q: %w", value, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return &label, nil
}

// ListLabels returns every label ordered by name.
func (s *SQLiteStorage) ListLabels(ctx context.Context) ([]model.Label, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, color, created_at FROM labels ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []model.Label
	for rows.Next() {
		var label model.Label
		if err := rows.Scan(&label.ID, &label.Name, &label.Color, &label.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

// UpdateLabel renames or recolors a label.
func (s *SQLiteStorage) UpdateLabel(ctx context.Context, label *model.Label) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLabel(label); err != nil {
		return err
	}
	if err := validateString(label.ID, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE labels SET name = ?, color = ? WHERE id = ?",
		strings.TrimSpace(label.Name), strings.TrimSpace(label.Color), label.ID)
	if err != nil {
		return fmt.Errorf("failed to update label: %w", classify(err))
	}
	return expectOneRow(result, "label "+label.ID)
}

// DeleteLabel deletes a label and its attachments. A label still named by a
// rule cannot be deleted.
func (s *SQLiteStorage) DeleteLabel(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	var uses int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rules, json_each(rules.labels_to_apply)
		WHERE json_each.value = ?
	`, id).Scan(&uses)
	if err != nil {
		return fmt.Errorf("failed to check label usage: %w", err)
	}
	if uses > 0 {
		return fmt.Errorf("%w: %s is applied by %d rule(s)", ErrLabelInUse, id, uses)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM labels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", classify(err))
	}
	return expectOneRow(result, "label "+id)
}

// missingLabels returns the ids in ids that do not name a label.
func (s *SQLiteStorage) missingLabels(ctx context.Context, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		var exists bool
		if err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM labels WHERE id = ?)", id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to verify label: %w", err)
		}
		if !exists {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
