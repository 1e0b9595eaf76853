package model

import (
	"time"
)

// Rule auto-labels transactions whose attributes satisfy all of its conditions.
// Rules always combine their conditions with AND.
type Rule struct {
	CreatedAt     time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time   `json:"updated_at" yaml:"-"`
	ID            string      `json:"id" yaml:"id,omitempty"`
	Name          string      `json:"name" yaml:"name"`
	Conditions    []Condition `json:"conditions" yaml:"conditions"`
	LabelsToApply []string    `json:"labels_to_apply" yaml:"labels_to_apply"`
	OrderIndex    int         `json:"order_index" yaml:"order_index"`
	IsActive      bool        `json:"is_active" yaml:"is_active"`
}

// ConditionSet returns the rule's conditions as an AND set.
func (r Rule) ConditionSet() ConditionSet {
	return ConditionSet{
		Conditions:  r.Conditions,
		Conjunction: ConjunctionAnd,
	}
}
