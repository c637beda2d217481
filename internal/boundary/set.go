package boundary

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/crimemap/internal/model"
)

// Set is an immutable, ordered collection of regions. The order is the
// attribution tie-break order: when boundaries overlap, the first containing
// region in this order wins. The reference centroid over the union of all
// polygons is derived lazily and cached for the lifetime of the set, keyed
// implicitly by the set's identity (a new region collection is a new Set).
type Set struct {
	regions []Region
	id      string

	centroidOnce sync.Once
	centroid     model.Coordinate
	centroidErr  error
}

// NewSet builds a Set from regions in their given order.
func NewSet(regions []Region) (*Set, error) {
	if len(regions) == 0 {
		return nil, eris.New("boundary: empty region set")
	}

	owned := make([]Region, len(regions))
	copy(owned, regions)

	h := sha256.New()
	for _, r := range owned {
		fmt.Fprintf(h, "%s|%v;", r.Name, r.Geometry.Bounds())
	}

	return &Set{
		regions: owned,
		id:      fmt.Sprintf("%x", h.Sum(nil)),
	}, nil
}

// ID identifies this region collection; two sets with the same regions in
// the same order share an ID.
func (s *Set) ID() string { return s.id }

// Len returns the number of regions.
func (s *Set) Len() int { return len(s.regions) }

// Regions returns the regions in tie-break order. Callers must not mutate
// the returned geometries.
func (s *Set) Regions() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// Names returns the region names in tie-break order.
func (s *Set) Names() []string {
	names := make([]string, len(s.regions))
	for i, r := range s.regions {
		names[i] = r.Name
	}
	return names
}

// Centroid returns the centroid over the union of all region polygons,
// used as the default map-view center. Computed once per set.
func (s *Set) Centroid() (model.Coordinate, error) {
	s.centroidOnce.Do(func() {
		combined := geom.NewMultiPolygon(geom.XY).SetSRID(SRIDWGS84)
		for _, r := range s.regions {
			for i := 0; i < r.Geometry.NumPolygons(); i++ {
				if err := combined.Push(mustClonePolygon(r.Geometry.Polygon(i))); err != nil {
					s.centroidErr = eris.Wrap(err, "boundary: combine region polygons")
					return
				}
			}
		}
		c, err := xy.Centroid(combined)
		if err != nil {
			s.centroidErr = eris.Wrap(err, "boundary: compute centroid")
			return
		}
		s.centroid = model.Coordinate{Longitude: c[0], Latitude: c[1]}
	})
	return s.centroid, s.centroidErr
}

// mustClonePolygon deep-copies a polygon so the combined multipolygon never
// aliases a region's geometry.
func mustClonePolygon(p *geom.Polygon) *geom.Polygon {
	flat := make([]float64, len(p.FlatCoords()))
	copy(flat, p.FlatCoords())
	ends := make([]int, len(p.Ends()))
	copy(ends, p.Ends())
	return geom.NewPolygonFlat(p.Layout(), flat, ends)
}
