package boundary

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID identifiers for the coordinate reference systems this loader accepts.
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

const webMercatorRadius = 6378137.0

// DetectSRID inspects the .prj sidecar next to a shapefile and returns the
// SRID of the coordinate reference system it declares. A missing sidecar is
// treated as WGS84, matching the convention of the incident data. An
// unrecognized frame is an error: containment tests across mismatched frames
// are meaningless, so the load must fail rather than join silently.
func DetectSRID(shpPath string) (int, error) {
	prjPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		if os.IsNotExist(err) {
			return SRIDWGS84, nil
		}
		return 0, eris.Wrapf(err, "boundary: read %s", prjPath)
	}

	wkt := strings.ToUpper(string(data))
	switch {
	case strings.Contains(wkt, "WEB_MERCATOR"),
		strings.Contains(wkt, "PSEUDO-MERCATOR"),
		strings.Contains(wkt, "3857"):
		return SRIDWebMercator, nil
	case strings.Contains(wkt, "GCS_WGS_1984"),
		strings.Contains(wkt, `GEOGCS["WGS 84"`),
		strings.Contains(wkt, "4326"):
		return SRIDWGS84, nil
	default:
		return 0, eris.Errorf("boundary: unsupported coordinate reference system in %s", prjPath)
	}
}

// ToWGS84 reprojects a multipolygon into EPSG:4326 in place of a copy.
// WGS84 input passes through untouched; Web Mercator is inverted with the
// closed-form spherical formulas.
func ToWGS84(mp *geom.MultiPolygon, srid int) (*geom.MultiPolygon, error) {
	switch srid {
	case SRIDWGS84:
		return mp, nil
	case SRIDWebMercator:
		flat := mp.FlatCoords()
		out := make([]float64, len(flat))
		stride := mp.Stride()
		for i := 0; i+1 < len(flat); i += stride {
			lon, lat := webMercatorToLonLat(flat[i], flat[i+1])
			out[i] = lon
			out[i+1] = lat
		}
		return geom.NewMultiPolygonFlat(mp.Layout(), out, mp.Endss()).SetSRID(SRIDWGS84), nil
	default:
		return nil, eris.Errorf("boundary: cannot reproject SRID %d", srid)
	}
}

// webMercatorToLonLat inverts the spherical Web Mercator projection.
func webMercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x / webMercatorRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}
