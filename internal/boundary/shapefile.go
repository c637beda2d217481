// Package boundary loads municipal boundary polygons from shapefiles and
// normalizes them into EPSG:4326 for containment testing.
package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// nameFieldCandidates are the attribute fields checked, in order, for the
// region name when no explicit field is configured.
var nameFieldCandidates = []string{"CITY_NAME", "CITY_LABEL", "NAME"}

// Region is one administrative boundary: a named multipolygon in EPSG:4326.
// Regions are immutable reference data loaded once per process.
type Region struct {
	Name     string
	Geometry *geom.MultiPolygon
}

// LoadOptions configures shapefile loading.
type LoadOptions struct {
	NameField string // attribute holding the region name; empty = auto-detect
}

// LoadShapefile reads region polygons from a shapefile, reprojecting them to
// EPSG:4326 when the .prj sidecar declares another supported frame. Records
// without a usable shape or name are skipped; the load fails only when no
// region at all can be read.
func LoadShapefile(path string, opts LoadOptions) ([]Region, error) {
	srid, err := DetectSRID(path)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx, err := resolveNameField(reader, opts.NameField)
	if err != nil {
		return nil, err
	}

	var regions []Region
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			skipped++
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		mp, err = ToWGS84(mp, srid)
		if err != nil {
			return nil, err
		}

		regions = append(regions, Region{Name: name, Geometry: mp})
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(regions) == 0 {
		return nil, eris.Errorf("boundary: no usable regions in %s", path)
	}

	zap.L().Info("boundary shapefile loaded",
		zap.String("path", path),
		zap.Int("regions", len(regions)),
		zap.Int("srid", srid),
	)
	return regions, nil
}

// resolveNameField returns the attribute index holding the region name.
func resolveNameField(reader *shp.Reader, field string) (int, error) {
	candidates := nameFieldCandidates
	if field != "" {
		candidates = []string{field}
	}
	for _, c := range candidates {
		if idx := fieldIndex(reader, c); idx >= 0 {
			return idx, nil
		}
	}
	return -1, eris.Errorf("boundary: no name field found (tried %s)", strings.Join(candidates, ", "))
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile ring order convention: outer rings are clockwise, holes
// counterclockwise. Holes are attached to the most recent outer ring.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRIDWGS84)
	var current *geom.Polygon

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		// Clockwise (negative signed area) starts a new outer ring; a hole
		// arriving before any outer ring is promoted to an outer ring.
		if signedArea(flat) < 0 || current == nil {
			if current != nil {
				if err := mp.Push(current); err != nil {
					zap.L().Debug("boundary: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
				}
			}
			current = geom.NewPolygon(geom.XY)
			if err := current.Push(ring); err != nil {
				zap.L().Debug("boundary: skipping malformed outer ring", zap.Int32("part", i), zap.Error(err))
				current = nil
			}
			continue
		}

		if err := current.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed hole ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	if current != nil {
		if err := mp.Push(current); err != nil {
			zap.L().Debug("boundary: skipping trailing polygon part", zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea computes the shoelace signed area of a flat XY ring.
// Counterclockwise rings have positive area.
func signedArea(flat []float64) float64 {
	n := len(flat) / 2
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
