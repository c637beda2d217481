package dataset

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap/internal/model"
)

// ErrNoData marks a requested year with no registered source. It is a
// normal, expected condition: callers map it to an empty result, never a
// failure.
var ErrNoData = eris.New("dataset: no data for requested year")

// Source supplies one year's raw incident records.
type Source interface {
	Year() int
	Load(ctx context.Context) ([]model.Incident, error)
}

// Registry maps years to incident sources. It is safe for concurrent use;
// Refresh swaps the source map atomically so readers never observe a
// partially scanned directory.
type Registry struct {
	dir string

	mu      sync.RWMutex
	sources map[int]Source
}

// crimeFilePattern matches the per-year incident file naming convention,
// e.g. 2023crimedata.csv.
var crimeFilePattern = regexp.MustCompile(`^(\d{4})crimedata\.csv$`)

// NewRegistry scans a data directory for per-year incident files and builds
// a registry over them. An empty directory is valid: every year is simply
// unavailable until files appear and Refresh runs.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir, sources: map[int]Source{}}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry builds a registry over explicit sources. Used by tests
// and by callers that supply incidents from somewhere other than files.
func NewStaticRegistry(sources ...Source) *Registry {
	m := make(map[int]Source, len(sources))
	for _, s := range sources {
		m[s.Year()] = s
	}
	return &Registry{sources: m}
}

// Refresh rescans the data directory and atomically replaces the year map.
func (r *Registry) Refresh() error {
	if r.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return eris.Wrapf(err, "dataset: scan %s", r.dir)
	}

	found := make(map[int]Source)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := crimeFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found[year] = fileSource{year: year, path: filepath.Join(r.dir, e.Name())}
	}

	r.mu.Lock()
	r.sources = found
	r.mu.Unlock()
	return nil
}

// Years returns the available years in ascending order.
func (r *Registry) Years() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	years := make([]int, 0, len(r.sources))
	for y := range r.sources {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Source returns the source for a year, or ErrNoData when none is
// registered.
func (r *Registry) Source(year int) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[year]
	if !ok {
		return nil, ErrNoData
	}
	return s, nil
}
