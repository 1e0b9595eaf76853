package match

import (
	"github.com/Veraticus/saffron/internal/model"
)

// Dropped describes a draft condition removed by Prune.
type Dropped struct {
	Err       error
	Condition model.Condition
	Index     int
}

// Prune removes unsatisfiable conditions from a draft filter, as a filter
// builder does before running a query. The conjunction is preserved. A set
// whose conditions are all dropped becomes empty and matches everything.
func Prune(set model.ConditionSet) (model.ConditionSet, []Dropped) {
	kept := make([]model.Condition, 0, len(set.Conditions))
	var dropped []Dropped

	for i, c := range set.Conditions {
		if err := Validate(c); err != nil {
			dropped = append(dropped, Dropped{Index: i, Condition: c, Err: err})
			continue
		}
		kept = append(kept, c)
	}

	return model.ConditionSet{
		Conditions:  kept,
		Conjunction: set.Mode(),
	}, dropped
}
