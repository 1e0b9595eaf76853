package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// CreateLabel creates a label. Names are unique ignoring case.
func (s *Store) CreateLabel(ctx context.Context, name, color string) (*model.Label, error) {
	label := &model.Label{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Color:     strings.TrimSpace(color),
		CreatedAt: time.Now().UTC(),
	}
	if label.Name == "" {
		return nil, fmt.Errorf("%w: label name", common.ErrInvalidLabel)
	}

	_, err := s.pool.Exec(ctx,
		"INSERT INTO labels (id, name, color, created_at) VALUES ($1, $2, $3, $4)",
		label.ID, label.Name, label.Color, label.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", label.Name, classify(err))
	}
	return label, nil
}

// GetLabel retrieves a label by id.
func (s *Store) GetLabel(ctx context.Context, id string) (*model.Label, error) {
	return s.getLabel(ctx, "id = $1", id)
}

// GetLabelByName retrieves a label by name, ignoring case.
func (s *Store) GetLabelByName(ctx context.Context, name string) (*model.Label, error) {
	return s.getLabel(ctx, "lower(name) = lower($1)", strings.TrimSpace(name))
}

func (s *Store) getLabel(ctx context.Context, where, value string) (*model.Label, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, color, created_at FROM labels WHERE "+where, value)
	if err != nil {
		return nil, fmt.Errorf("failed to get label: %w", classify(err))
	}
	label, err := pgx.CollectExactlyOneRow(rows, scanLabel)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("label %q: %w", value, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return &label, nil
}

// ListLabels returns all labels ordered by name.
func (s *Store) ListLabels(ctx context.Context) ([]model.Label, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, color, created_at FROM labels ORDER BY lower(name), id")
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", classify(err))
	}
	labels, err := pgx.CollectRows(rows, scanLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to scan labels: %w", err)
	}
	return labels, nil
}

func scanLabel(row pgx.CollectableRow) (model.Label, error) {
	var l model.Label
	err := row.Scan(&l.ID, &l.Name, &l.Color, &l.CreatedAt)
	return l, err
}

// UpdateLabel renames or recolors a label.
func (s *Store) UpdateLabel(ctx context.Context, label *model.Label) error {
	if label == nil || strings.TrimSpace(label.Name) == "" {
		return fmt.Errorf("%w: label name", common.ErrInvalidLabel)
	}
	tag, err := s.pool.Exec(ctx, "UPDATE labels SET name = $1, color = $2 WHERE id = $3",
		strings.TrimSpace(label.Name), strings.TrimSpace(label.Color), label.ID)
	if err != nil {
		return fmt.Errorf("failed to update label: %w", classify(err))
	}
	return expectOne(tag, "label "+label.ID)
}

// DeleteLabel deletes a label unless a rule still applies it.
func (s *Store) DeleteLabel(ctx context.Context, id string) error {
	var uses int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM rules WHERE labels_to_apply ? $1", id).Scan(&uses)
	if err != nil {
		return fmt.Errorf("failed to check label usage: %w", classify(err))
	}
	if uses > 0 {
		return fmt.Errorf("%w: %s is applied by %d rule(s)", common.ErrLabelInUse, id, uses)
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM labels WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", classify(err))
	}
	return expectOne(tag, "label "+id)
}

func (s *Store) missingLabels(ctx context.Context, q querier, ids []string) ([]string, error) {
	rows, err := q.Query(ctx, "SELECT id FROM labels WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to verify labels: %w", classify(err))
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to verify labels: %w", err)
	}

	present := make(map[string]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
