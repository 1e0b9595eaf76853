package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

const ruleColumns = `id, name, conditions, labels_to_apply, order_index, is_active, created_at, updated_at`

// CreateRule validates and stores a rule. An empty id is generated.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := s.checkRule(ctx, rule); err != nil {
		return err
	}

	conditions, labels, err := encodeRule(rule)
	if err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, conditions, labels, rule.OrderIndex, rule.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", classify(err))
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a rule by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM rules WHERE id = ?", id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
		}
		return nil, err
	}
	return &rule, nil
}

// ListRules returns every rule ordered by order index, then id.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM rules ORDER BY order_index ASC, id ASC")
}

// ListActiveRules returns active rules ordered by order index, then id.
func (s *SQLiteStorage) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM rules WHERE is_active = 1 ORDER BY order_index ASC, id ASC")
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var out []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

// UpdateRule replaces a rule's name, conditions, labels, order and state.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.ID, "id"); err != nil {
		return err
	}
	if err := s.checkRule(ctx, rule); err != nil {
		return err
	}

	conditions, labels, err := encodeRule(rule)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET name = ?, conditions = ?, labels_to_apply = ?, order_index = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, rule.Name, conditions, labels, rule.OrderIndex, rule.IsActive, now, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", classify(err))
	}
	if err := expectOneRow(result, "rule "+rule.ID); err != nil {
		return err
	}

	rule.UpdatedAt = now
	return nil
}

// SetRuleActive enables or disables a rule.
func (s *SQLiteStorage) SetRuleActive(ctx context.Context, id string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE rules SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", classify(err))
	}
	return expectOneRow(result, "rule "+id)
}

// ReorderRules assigns order indexes by position. ids must name every rule
// exactly once.
func (s *SQLiteStorage) ReorderRules(ctx context.Context, ids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: rule %s listed twice", common.ErrInvalidRule, id)
		}
		seen[id] = true
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var total int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM rules").Scan(&total); err != nil {
			return fmt.Errorf("failed to count rules: %w", err)
		}
		if total != len(ids) {
			return fmt.Errorf("%w: reorder lists %d of %d rules", common.ErrInvalidRule, len(ids), total)
		}

		now := time.Now().UTC()
		for i, id := range ids {
			result, err := tx.ExecContext(ctx,
				"UPDATE rules SET order_index = ?, updated_at = ? WHERE id = ?", i, now, id)
			if err != nil {
				return fmt.Errorf("failed to reorder rule %s: %w", id, classify(err))
			}
			if err := expectOneRow(result, "rule "+id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRule deletes a rule. Labels it applied stay attached.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", classify(err))
	}
	return expectOneRow(result, "rule "+id)
}

// NextRuleOrderIndex returns the index that places a new rule last.
func (s *SQLiteStorage) NextRuleOrderIndex(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var next int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(order_index) + 1, 0) FROM rules").Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to get next order index: %w", err)
	}
	return next, nil
}

// checkRule validates the rule and ensures its labels exist.
func (s *SQLiteStorage) checkRule(ctx context.Context, rule *model.Rule) error {
	if err := rules.Validate(*rule); err != nil {
		return err
	}

	missing, err := s.missingLabels(ctx, rule.LabelsToApply)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", common.ErrUnknownLabels, strings.Join(missing, ", "))
	}
	return nil
}

func encodeRule(rule *model.Rule) (conditions, labels string, err error) {
	c, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode conditions: %w", err)
	}
	l, err := json.Marshal(rule.LabelsToApply)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode labels: %w", err)
	}
	return string(c), string(l), nil
}

func scanRule(row scanner) (model.Rule, error) {
	var rule model.Rule
	var conditions, labels string

	err := row.Scan(
		&rule.ID, &rule.Name, &conditions, &labels,
		&rule.OrderIndex, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return model.Rule{}, err
		}
		return model.Rule{}, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return model.Rule{}, fmt.Errorf("failed to decode conditions of rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(labels), &rule.LabelsToApply); err != nil {
		return model.Rule{}, fmt.Errorf("failed to decode labels of rule %s: %w", rule.ID, err)
	}
	return rule, nil
}
