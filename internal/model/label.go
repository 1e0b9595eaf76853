package model

import "time"

// Label is a user-defined tag attached to transactions by hand or by rules.
type Label struct {
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Color     string    `json:"color" yaml:"color,omitempty"`
}
