package pipeline

import (
	"github.com/sells-group/crimemap/internal/classify"
	"github.com/sells-group/crimemap/internal/model"
)

// FilterBuckets returns the incidents whose bucket is in the selection.
// A nil selection means "no filter" and returns a copy of every incident;
// an empty non-nil selection is a real selection of nothing and returns an
// empty slice. A selection covering every defined bucket is the dashboard's
// "show everything" gesture and is treated as no filter: records that fell
// through to Other are included too. The snapshot is never mutated.
func FilterBuckets(incidents []model.Incident, buckets []model.Bucket) []model.Incident {
	if buckets == nil {
		out := make([]model.Incident, len(incidents))
		copy(out, incidents)
		return out
	}

	selected := make(map[model.Bucket]struct{}, len(buckets)+1)
	for _, b := range buckets {
		selected[b] = struct{}{}
	}
	if coversAllBuckets(selected) {
		selected[model.BucketOther] = struct{}{}
	}

	out := make([]model.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if _, ok := selected[inc.Bucket]; ok {
			out = append(out, inc)
		}
	}
	return out
}

// coversAllBuckets reports whether the selection includes every defined
// bucket.
func coversAllBuckets(selected map[model.Bucket]struct{}) bool {
	for _, b := range model.Buckets {
		if _, ok := selected[b]; !ok {
			return false
		}
	}
	return true
}

// FilterCategories returns the incidents whose raw category is in the
// selection, compared on normalized keys so the filter is insensitive to
// casing and padding. Nil means "no filter"; empty non-nil selects nothing.
func FilterCategories(incidents []model.Incident, categories []string) []model.Incident {
	if categories == nil {
		out := make([]model.Incident, len(incidents))
		copy(out, incidents)
		return out
	}

	selected := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		selected[classify.Normalize(c)] = struct{}{}
	}

	out := make([]model.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if _, ok := selected[classify.Normalize(inc.Category)]; ok {
			out = append(out, inc)
		}
	}
	return out
}
