// Package attribute assigns a containing municipal region to each incident
// point via planar point-in-polygon testing.
package attribute

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/model"
)

// Attributor performs containment tests against an immutable region set.
// It carries no per-request state and is safe for concurrent use.
type Attributor struct {
	set *boundary.Set
}

// New creates an Attributor over the given region set.
func New(set *boundary.Set) (*Attributor, error) {
	if set == nil || set.Len() == 0 {
		return nil, eris.New("attribute: nil or empty region set")
	}
	return &Attributor{set: set}, nil
}

// Set returns the region set this attributor tests against.
func (a *Attributor) Set() *boundary.Set { return a.set }

// Result is the outcome of attributing one incident collection.
type Result struct {
	Incidents []model.Incident // attributed copies, input order preserved
	Skipped   int              // records dropped for invalid coordinates
}

// Attribute returns an attributed copy of the incidents. Records with
// non-finite or out-of-range coordinates are dropped and counted rather than
// failing the collection. The input slice is never mutated, so two calls
// over the same input yield identical results.
func (a *Attributor) Attribute(incidents []model.Incident) Result {
	out := make([]model.Incident, 0, len(incidents))
	var skipped int

	for _, inc := range incidents {
		if !inc.HasValidCoordinates() {
			skipped++
			continue
		}
		inc.Region = a.Locate(inc.Longitude, inc.Latitude)
		out = append(out, inc)
	}

	if skipped > 0 {
		zap.L().Warn("attribute: dropped records with invalid coordinates",
			zap.Int("skipped", skipped),
			zap.Int("kept", len(out)),
		)
	}
	return Result{Incidents: out, Skipped: skipped}
}

// Locate returns the name of the first region containing the point, in the
// set's stable order, or the empty string when no region contains it.
// Administrative boundaries are expected not to overlap, but the first-match
// rule makes the result deterministic if they ever do.
func (a *Attributor) Locate(lon, lat float64) string {
	p := geom.Coord{lon, lat}
	for _, r := range a.set.Regions() {
		if multiPolygonContains(r.Geometry, p) {
			return r.Name
		}
	}
	return ""
}

// multiPolygonContains tests strict containment of a point in a
// multipolygon: inside some polygon's outer ring and inside none of that
// polygon's holes. Points exactly on a ring follow the ray-crossing
// convention of the underlying predicate; this service treats that edge
// behavior as the documented containment policy.
func multiPolygonContains(mp *geom.MultiPolygon, p geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(j).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
