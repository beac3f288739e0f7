// Package scorer derives completion scores for potential bid cards. Scoring
// is a pure function of a field snapshot and the schema weight table so it
// can be tested without any storage.
package scorer

import (
	"math"
	"sort"

	"github.com/instabids/bidcard-cli/internal/model"
)

// Result holds the derived completion state for one field snapshot.
type Result struct {
	Percentage      int      `json:"percentage"`
	MissingRequired []string `json:"missing_required"`
}

// Score computes the weighted completion percentage and the list of required
// fields that are still empty. A field counts as filled only when its value
// is non-empty; an entry written with an empty value is "known to be absent"
// and contributes nothing.
func Score(schema *model.Schema, fields map[string]model.FieldEntry) Result {
	total := schema.TotalWeight()
	if total == 0 {
		return Result{}
	}

	filled := 0
	for _, spec := range schema.Fields {
		entry, ok := fields[spec.Key]
		if ok && !model.IsEmpty(entry.Value) {
			filled += spec.Weight
		}
	}

	var missing []string
	for _, spec := range schema.Required() {
		entry, ok := fields[spec.Key]
		if !ok || model.IsEmpty(entry.Value) {
			missing = append(missing, spec.Key)
		}
	}
	sort.Strings(missing)

	pct := int(math.Round(100 * float64(filled) / float64(total)))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return Result{Percentage: pct, MissingRequired: missing}
}

// Ready reports whether the snapshot satisfies the conversion-readiness
// predicate: every required field is non-empty. The percentage is
// informational and never gates readiness.
func Ready(schema *model.Schema, fields map[string]model.FieldEntry) bool {
	for _, spec := range schema.Required() {
		entry, ok := fields[spec.Key]
		if !ok || model.IsEmpty(entry.Value) {
			return false
		}
	}
	return true
}
