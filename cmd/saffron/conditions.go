package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
)

const whereExamples = `Conditions are written field:operator:value, for example
  description:contains:coffee
  amount:between:-20..0
  date:greater_than:2024-01-01
  status:not_in:archived,reviewed
  label:equals:Coffee
`

var whereHelp = whereExamples + "\n" + fieldHelp() +
	"\nStatus and label values are comma separated; between takes min..max."

// fieldHelp lists each field with the operators it accepts.
func fieldHelp() string {
	var b strings.Builder
	b.WriteString("Fields:\n")
	for _, field := range model.AllFields() {
		ops := match.Operators(field)
		names := make([]string, 0, len(ops))
		for _, op := range ops {
			names = append(names, string(op))
		}
		fmt.Fprintf(&b, "  %-12s %s\n", field, strings.Join(names, ", "))
	}
	return b.String()
}

// parseCondition parses one field:operator:value condition. The value keeps
// any further colons. Empty values are kept so filters can drop them.
func parseCondition(s string) (model.Condition, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return model.Condition{}, fmt.Errorf("invalid condition %q: expected field:operator:value", s)
	}

	field := model.FieldKind(strings.ToLower(strings.TrimSpace(parts[0])))
	op := model.Operator(strings.ToLower(strings.TrimSpace(parts[1])))
	raw := parts[2]

	if _, ok := match.TypeOf(field); !ok {
		return model.Condition{}, fmt.Errorf("invalid condition %q: %w", s, match.ErrUnknownField)
	}

	c := model.Condition{Field: field, Operator: op}
	switch {
	case op == model.OpBetween:
		lo, hi, ok := strings.Cut(raw, "..")
		if !ok {
			return model.Condition{}, fmt.Errorf("invalid condition %q: between takes min..max", s)
		}
		c.Value = model.Range(strings.TrimSpace(lo), strings.TrimSpace(hi))
	case field == model.FieldStatus || field == model.FieldLabel:
		items := strings.Split(raw, ",")
		for i := range items {
			items[i] = strings.TrimSpace(items[i])
		}
		c.Value = model.List(items...)
	case field == model.FieldAmount || field == model.FieldDate:
		c.Value = model.Scalar(strings.TrimSpace(raw))
	default:
		c.Value = model.Scalar(raw)
	}

	checked, err := match.NewCondition(c.Field, c.Operator, c.Value)
	if errors.Is(err, match.ErrEmptyValue) {
		return c, nil
	}
	if err != nil {
		return model.Condition{}, fmt.Errorf("invalid condition %q: %w", s, err)
	}
	return checked, nil
}

// parseConditions parses every --where flag value.
func parseConditions(values []string) ([]model.Condition, error) {
	conditions := make([]model.Condition, 0, len(values))
	for _, v := range values {
		c, err := parseCondition(v)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, c)
	}
	return conditions, nil
}

// sampleFlags describes a hand-written transaction for dry runs.
type sampleFlags struct {
	description string
	amount      float64
	date        string
	identifier  string
	source      string
	status      string
	labels      []string
}

func (f *sampleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "sample description")
	cmd.Flags().Float64Var(&f.amount, "amount", 0, "sample amount")
	cmd.Flags().StringVar(&f.date, "date", "", "sample date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.identifier, "identifier", "", "sample identifier")
	cmd.Flags().StringVar(&f.source, "source", "", "sample source")
	cmd.Flags().StringVar(&f.status, "status", string(model.StatusPending), "sample status")
	cmd.Flags().StringSliceVar(&f.labels, "has-label", nil, "labels already on the sample")
}

// transaction builds the sample carrying the given label ids. A missing
// date means now.
func (f *sampleFlags) transaction(labelIDs []string) (model.Transaction, error) {
	txn := model.Transaction{
		ID:          "sample",
		Description: f.description,
		Amount:      f.amount,
		Identifier:  f.identifier,
		Source:      f.source,
		Status:      model.TransactionStatus(f.status),
	}
	if f.date != "" {
		date, err := match.ParseDate(f.date)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("invalid sample date: %w", err)
		}
		txn.Date = date
	} else {
		txn.Date = time.Now().UTC()
	}
	for _, id := range labelIDs {
		txn.Labels = append(txn.Labels, model.Label{ID: id})
	}
	return txn, nil
}
