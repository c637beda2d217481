package classify

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/crimemap/internal/model"
)

// folder performs Unicode case folding for case-insensitive comparison.
// Built once; cases.Caser values are safe for concurrent use via String.
var folder = cases.Fold()

// Normalize trims surrounding whitespace and case-folds a raw category so
// lookups are insensitive to casing and padding in the source data.
func Normalize(raw string) string {
	return folder.String(strings.TrimSpace(raw))
}

// Classify returns the bucket for a raw category label. Classification is
// total: an empty, unknown, or whitespace-only category maps to BucketOther
// rather than failing.
func (t *Table) Classify(raw string) model.Bucket {
	key := Normalize(raw)
	if key == "" {
		return model.BucketOther
	}
	for _, label := range t.order {
		if _, ok := t.members[label][key]; ok {
			return label
		}
	}
	return model.BucketOther
}

// Apply returns a copy of the incidents with Bucket assigned on each record.
// The input slice is not mutated.
func (t *Table) Apply(incidents []model.Incident) []model.Incident {
	out := make([]model.Incident, len(incidents))
	for i, inc := range incidents {
		inc.Bucket = t.Classify(inc.Category)
		out[i] = inc
	}
	return out
}
