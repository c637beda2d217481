package boundary

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

const webMercatorPRJ = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Mercator_Auxiliary_Sphere"]]`

func writePRJ(t *testing.T, dir, stem, wkt string) string {
	t.Helper()
	shpPath := filepath.Join(dir, stem+".shp")
	require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".prj"), []byte(wkt), 0o644))
	return shpPath
}

func TestDetectSRID(t *testing.T) {
	dir := t.TempDir()

	path := writePRJ(t, dir, "wgs84", wgs84PRJ)
	srid, err := DetectSRID(path)
	require.NoError(t, err)
	assert.Equal(t, SRIDWGS84, srid)

	path = writePRJ(t, dir, "merc", webMercatorPRJ)
	srid, err = DetectSRID(path)
	require.NoError(t, err)
	assert.Equal(t, SRIDWebMercator, srid)

	// No sidecar: assume the incident frame.
	srid, err = DetectSRID(filepath.Join(dir, "bare.shp"))
	require.NoError(t, err)
	assert.Equal(t, SRIDWGS84, srid)

	// Unknown frame must fail, never silently join mismatched frames.
	path = writePRJ(t, dir, "stateplane", `PROJCS["NAD_1983_StatePlane_California_V",UNIT["Foot_US",0.3048]]`)
	_, err = DetectSRID(path)
	assert.Error(t, err)
}

func squareMultiPolygon(t *testing.T, minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	t.Helper()
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(ring))
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRIDWGS84)
	require.NoError(t, mp.Push(poly))
	return mp
}

func TestToWGS84(t *testing.T) {
	// WGS84 input passes through untouched.
	mp := squareMultiPolygon(t, -118.5, 33.7, -117.6, 34.8)
	out, err := ToWGS84(mp, SRIDWGS84)
	require.NoError(t, err)
	assert.Same(t, mp, out)

	// Web Mercator origin maps to (0, 0).
	merc := squareMultiPolygon(t, -1000, -1000, 1000, 1000)
	out, err = ToWGS84(merc, SRIDWebMercator)
	require.NoError(t, err)
	flat := out.FlatCoords()
	for i := 0; i+1 < len(flat); i += 2 {
		assert.InDelta(t, 0, flat[i], 0.01, "longitude near origin")
		assert.InDelta(t, 0, flat[i+1], 0.01, "latitude near origin")
	}

	// A quarter of the equator east maps to 90 degrees longitude.
	quarter := squareMultiPolygon(t, webMercatorRadius*math.Pi/2, 0, webMercatorRadius*math.Pi/2+1, 1)
	out, err = ToWGS84(quarter, SRIDWebMercator)
	require.NoError(t, err)
	assert.InDelta(t, 90, out.FlatCoords()[0], 1e-6)

	_, err = ToWGS84(mp, 2229)
	assert.Error(t, err)
}

func TestPolygonToMultiPolygonRingOrientation(t *testing.T) {
	// One clockwise outer square with a counterclockwise hole, then a second
	// clockwise outer square.
	points := []shp.Point{
		// outer A, clockwise
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
		// hole in A, counterclockwise
		{X: 2, Y: 2}, {X: 8, Y: 2}, {X: 8, Y: 8}, {X: 2, Y: 8}, {X: 2, Y: 2},
		// outer B, clockwise
		{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0},
	}
	poly := &shp.Polygon{
		NumParts:  3,
		NumPoints: int32(len(points)),
		Parts:     []int32{0, 5, 10},
		Points:    points,
	}

	mp := polygonToMultiPolygon(poly)
	require.NotNil(t, mp)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings(), "first polygon carries its hole")
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
}

func TestPolygonToMultiPolygonEmpty(t *testing.T) {
	assert.Nil(t, polygonToMultiPolygon(nil))
	assert.Nil(t, polygonToMultiPolygon(&shp.Polygon{}))
}

func TestSignedArea(t *testing.T) {
	ccw := []float64{0, 0, 4, 0, 4, 4, 0, 4, 0, 0}
	assert.InDelta(t, 16, signedArea(ccw), 1e-9)

	cw := []float64{0, 0, 0, 4, 4, 4, 4, 0, 0, 0}
	assert.InDelta(t, -16, signedArea(cw), 1e-9)

	assert.Zero(t, signedArea([]float64{0, 0, 1, 1}))
}

func TestSetCentroidAndIdentity(t *testing.T) {
	a := Region{Name: "Alpha", Geometry: squareMultiPolygon(t, 0, 0, 2, 2)}
	b := Region{Name: "Beta", Geometry: squareMultiPolygon(t, 2, 0, 4, 2)}

	set, err := NewSet([]Region{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"Alpha", "Beta"}, set.Names())

	c, err := set.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, c.Longitude, 1e-9)
	assert.InDelta(t, 1.0, c.Latitude, 1e-9)

	// Centroid is cached: a second call returns the identical value.
	c2, err := set.Centroid()
	require.NoError(t, err)
	assert.Equal(t, c, c2)

	// Same regions, same order: same identity. Different order: different.
	same, err := NewSet([]Region{a, b})
	require.NoError(t, err)
	assert.Equal(t, set.ID(), same.ID())

	reordered, err := NewSet([]Region{b, a})
	require.NoError(t, err)
	assert.NotEqual(t, set.ID(), reordered.ID())

	_, err = NewSet(nil)
	assert.Error(t, err)
}
