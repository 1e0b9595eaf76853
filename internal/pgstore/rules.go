package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

const ruleColumns = `id, name, conditions, labels_to_apply, order_index, is_active, created_at, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CreateRule validates and stores a rule. An empty id is generated.
func (s *Store) CreateRule(ctx context.Context, rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: nil rule", common.ErrInvalidRule)
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO rules (`+ruleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rule.ID, rule.Name, conditions, labels, rule.OrderIndex, rule.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", classify(err))
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a rule by id.
func (s *Store) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+ruleColumns+" FROM rules WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", classify(err))
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("rule %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns every rule in application order.
func (s *Store) ListRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM rules ORDER BY order_index, id")
}

// ListActiveRules returns active rules ordered by order index, then id.
func (s *Store) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM rules WHERE is_active ORDER BY order_index, id")
}

func (s *Store) queryRules(ctx context.Context, query string) ([]model.Rule, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", classify(err))
	}
	list, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return list, nil
}

// UpdateRule replaces a rule's definition.
func (s *Store) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: nil rule", common.ErrInvalidRule)
	}
	if err := s.checkRule(ctx, rule); err != nil {
		return err
	}
	conditions, labels, err := encodeRule(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE rules
		SET name = $1, conditions = $2, labels_to_apply = $3, order_index = $4, is_active = $5, updated_at = $6
		WHERE id = $7
	`, rule.Name, conditions, labels, rule.OrderIndex, rule.IsActive, rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", classify(err))
	}
	return expectOne(tag, "rule "+rule.ID)
}

// SetRuleActive enables or disables a rule.
func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE rules SET is_active = $1, updated_at = $2 WHERE id = $3",
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", classify(err))
	}
	return expectOne(tag, "rule "+id)
}

// ReorderRules assigns order indexes by position. ids must name every rule
// exactly once.
func (s *Store) ReorderRules(ctx context.Context, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: rule %s listed twice", common.ErrInvalidRule, id)
		}
		seen[id] = true
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		var total int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM rules").Scan(&total); err != nil {
			return fmt.Errorf("failed to count rules: %w", classify(err))
		}
		if total != len(ids) {
			return fmt.Errorf("%w: reorder lists %d of %d rules", common.ErrInvalidRule, len(ids), total)
		}

		now := time.Now().UTC()
		for i, id := range ids {
			tag, err := tx.Exec(ctx,
				"UPDATE rules SET order_index = $1, updated_at = $2 WHERE id = $3", i, now, id)
			if err != nil {
				return fmt.Errorf("failed to reorder rule %s: %w", id, classify(err))
			}
			if err := expectOne(tag, "rule "+id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRule deletes a rule. Labels it applied stay attached.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", classify(err))
	}
	return expectOne(tag, "rule "+id)
}

// NextRuleOrderIndex returns the index that places a new rule last.
func (s *Store) NextRuleOrderIndex(ctx context.Context) (int, error) {
	var next int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(order_index) + 1, 0) FROM rules").Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to get next order index: %w", classify(err))
	}
	return next, nil
}

func (s *Store) checkRule(ctx context.Context, rule *model.Rule) error {
	if err := rules.Validate(*rule); err != nil {
		return err
	}
	missing, err := s.missingLabels(ctx, s.pool, rule.LabelsToApply)
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

func scanRule(row pgx.CollectableRow) (model.Rule, error) {
	var rule model.Rule
	var conditions, labels string

	err := row.Scan(
		&rule.ID, &rule.Name, &conditions, &labels,
		&rule.OrderIndex, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return model.Rule{}, err
	}

	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return model.Rule{}, fmt.Errorf("failed to decode conditions of rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(labels), &rule.LabelsToApply); err != nil {
		return model.Rule{}, fmt.Errorf("failed to decode labels of rule %s: %w", rule.ID, err)
	}
	return rule, nil
}
