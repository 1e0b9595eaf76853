package rules

import (
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
)

// Validate checks a rule before it is stored. Every condition must pass
// match.Validate, so a stored rule is never unsatisfiable on arrival.
func Validate(rule model.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name is required", common.ErrInvalidRule)
	}
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("%w: at least one condition is required", common.ErrInvalidRule)
	}
	for i, c := range rule.Conditions {
		if err := match.Validate(c); err != nil {
			return fmt.Errorf("%w: condition %d: %w", common.ErrInvalidRule, i+1, err)
		}
	}
	if len(rule.LabelsToApply) == 0 {
		return fmt.Errorf("%w: at least one label to apply is required", common.ErrInvalidRule)
	}
	for _, id := range rule.LabelsToApply {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: label id cannot be empty", common.ErrInvalidRule)
		}
	}
	if rule.OrderIndex < 0 {
		return fmt.Errorf("%w: order index cannot be negative", common.ErrInvalidRule)
	}
	return nil
}
