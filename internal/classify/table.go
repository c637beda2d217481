// Package classify maps raw crime-category labels onto the dashboard's
// aggregate buckets. The table is built once and read-only afterward.
package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crimemap/internal/model"
)

// BucketDef pairs a bucket label with its member raw categories.
type BucketDef struct {
	Label      model.Bucket `yaml:"label"`
	Categories []string     `yaml:"categories"`
}

// defaultDefs is the built-in classification table, matching the categories
// of the county sheriff's published dataset.
var defaultDefs = []BucketDef{
	{
		Label: model.BucketPerson,
		Categories: []string{
			"NON-AGGRAVATED ASSAULTS", "AGGRAVATED ASSAULT", "FORCIBLE RAPE",
			"ROBBERY", "CRIMINAL HOMICIDE", "SEX OFFENSES MISDEMEANORS",
			"SEX OFFENSES FELONIES", "OFFENSES AGAINST FAMILY", "WEAPON LAWS",
			"DISORDERLY CONDUCT",
		},
	},
	{
		Label: model.BucketProperty,
		Categories: []string{
			"GRAND THEFT AUTO", "LARCENY THEFT", "BURGLARY", "ARSON",
			"VANDALISM", "RECEIVING STOLEN PROPERTY", "FORGERY",
			"FRAUD AND NSF CHECKS",
		},
	},
	{
		Label: model.BucketDrugAlcohol,
		Categories: []string{
			"NARCOTICS", "DRUNK / ALCOHOL / DRUGS", "LIQUOR LAWS",
			"DRUNK DRIVING VEHICLE / BOAT",
		},
	},
	{
		Label: model.BucketMiscellaneous,
		Categories: []string{
			"VEHICLE / BOATING LAWS", "MISDEMEANORS MISCELLANEOUS",
			"FELONIES MISCELLANEOUS", "WARRANTS", "VAGRANCY", "GAMBLING",
			"FEDERAL OFFENSES WITH MONEY", "FEDERAL OFFENSES W/O MONEY",
		},
	},
}

// Table is the compiled classification lookup. Buckets are evaluated in
// definition order and the first bucket containing the normalized category
// wins, so the result stays deterministic even if a category were ever
// duplicated across buckets.
type Table struct {
	order   []model.Bucket
	members map[model.Bucket]map[string]struct{}
}

// NewTable compiles bucket definitions into a lookup table. Member strings
// are normalized at build time so lookups compare normalized keys only.
func NewTable(defs []BucketDef) (*Table, error) {
	if len(defs) == 0 {
		return nil, eris.New("classify: no bucket definitions")
	}

	t := &Table{
		members: make(map[model.Bucket]map[string]struct{}, len(defs)),
	}
	for _, def := range defs {
		if def.Label == "" {
			return nil, eris.New("classify: bucket definition with empty label")
		}
		if len(def.Categories) == 0 {
			return nil, eris.Errorf("classify: bucket %q has no categories", def.Label)
		}
		if _, ok := t.members[def.Label]; ok {
			return nil, eris.Errorf("classify: duplicate bucket %q", def.Label)
		}

		set := make(map[string]struct{}, len(def.Categories))
		for _, c := range def.Categories {
			key := Normalize(c)
			if key == "" {
				return nil, eris.Errorf("classify: bucket %q has an empty category", def.Label)
			}
			set[key] = struct{}{}
		}
		t.order = append(t.order, def.Label)
		t.members[def.Label] = set
	}
	return t, nil
}

// DefaultTable returns the built-in classification table.
func DefaultTable() *Table {
	t, err := NewTable(defaultDefs)
	if err != nil {
		// The built-in definitions are static; a failure here is a programming error.
		panic(err)
	}
	return t
}

// LoadTable reads bucket definitions from a YAML file and compiles them.
// The file holds a list of {label, categories} entries in priority order.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read table %s", path)
	}

	var defs []BucketDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, eris.Wrapf(err, "classify: parse table %s", path)
	}
	return NewTable(defs)
}

// Buckets returns the bucket labels in priority order.
func (t *Table) Buckets() []model.Bucket {
	out := make([]model.Bucket, len(t.order))
	copy(out, t.order)
	return out
}
