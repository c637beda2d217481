package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/crimemap/internal/attribute"
	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/classify"
	"github.com/sells-group/crimemap/internal/dataset"
	"github.com/sells-group/crimemap/internal/model"
	"github.com/sells-group/crimemap/internal/pipeline"
)

type memSource struct {
	year      int
	incidents []model.Incident
}

func (s *memSource) Year() int { return s.year }
func (s *memSource) Load(context.Context) ([]model.Incident, error) {
	out := make([]model.Incident, len(s.incidents))
	copy(out, s.incidents)
	return out, nil
}

func testRegion(t *testing.T, name string, minX, minY, maxX, maxY float64) boundary.Region {
	t.Helper()
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(ring))
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(boundary.SRIDWGS84)
	require.NoError(t, mp.Push(poly))
	return boundary.Region{Name: name, Geometry: mp}
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	set, err := boundary.NewSet([]boundary.Region{
		testRegion(t, "Lakewood", -1, -1, 0, 1),
		testRegion(t, "Norwalk", 0, -1, 1, 1),
	})
	require.NoError(t, err)
	attr, err := attribute.New(set)
	require.NoError(t, err)

	reg := dataset.NewStaticRegistry(&memSource{year: 2023, incidents: []model.Incident{
		{ID: 0, Longitude: -0.5, Latitude: 0, Category: "ROBBERY", Year: 2023},
		{ID: 1, Longitude: 0.5, Latitude: 0, Category: "BURGLARY", Year: 2023},
		{ID: 2, Longitude: 0.5, Latitude: 0.5, Category: "Jaywalking", Year: 2023},
	}})
	table := classify.DefaultTable()

	pipe, err := pipeline.New(reg, attr, table)
	require.NoError(t, err)

	srv, err := New(pipe, reg, set, table, opts)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body map[string]string
	code := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestYearsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body struct {
		Years []int `json:"years"`
	}
	code := getJSON(t, ts.URL+"/api/years", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int{2023}, body.Years)
}

func TestBucketsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body struct {
		Buckets []string `json:"buckets"`
	}
	code := getJSON(t, ts.URL+"/api/buckets", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Buckets, 5)
	assert.Equal(t, string(model.BucketPerson), body.Buckets[0])
	assert.Equal(t, string(model.BucketOther), body.Buckets[4])
}

func TestCategoriesEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body struct {
		Year       int      `json:"year"`
		Categories []string `json:"categories"`
	}
	code := getJSON(t, ts.URL+"/api/categories?year=2023", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2023, body.Year)
	assert.Equal(t, []string{"BURGLARY", "Jaywalking", "ROBBERY"}, body.Categories)
}

func TestRegionsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body struct {
		Regions  []string `json:"regions"`
		Centroid struct {
			Longitude float64 `json:"longitude"`
			Latitude  float64 `json:"latitude"`
		} `json:"centroid"`
	}
	code := getJSON(t, ts.URL+"/api/regions", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"Lakewood", "Norwalk"}, body.Regions)
	assert.InDelta(t, 0.0, body.Centroid.Longitude, 1e-9)
	assert.InDelta(t, 0.0, body.Centroid.Latitude, 1e-9)
}

type incidentsResponse struct {
	Year      int              `json:"year"`
	Count     int              `json:"count"`
	Skipped   int              `json:"skipped"`
	Incidents []model.Incident `json:"incidents"`
}

func TestIncidentsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body incidentsResponse
	code := getJSON(t, ts.URL+"/api/incidents?year=2023", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "Lakewood", body.Incidents[0].Region)
}

func TestIncidentsBucketFilter(t *testing.T) {
	ts := newTestServer(t, Options{})

	url := fmt.Sprintf("%s/api/incidents?year=2023&buckets=%s", ts.URL, "Property%20Crimes")
	var body incidentsResponse
	code := getJSON(t, url, &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "BURGLARY", body.Incidents[0].Category)
}

func TestIncidentsAllBucketsIsIdentity(t *testing.T) {
	ts := newTestServer(t, Options{})

	labels := make([]string, len(model.Buckets))
	for i, b := range model.Buckets {
		labels[i] = url.QueryEscape(string(b))
	}

	// The fixture's Jaywalking incident classifies as Other; selecting all
	// four buckets must still return the full collection.
	var filtered incidentsResponse
	code := getJSON(t, ts.URL+"/api/incidents?year=2023&buckets="+strings.Join(labels, ","), &filtered)
	assert.Equal(t, http.StatusOK, code)

	var unfiltered incidentsResponse
	getJSON(t, ts.URL+"/api/incidents?year=2023", &unfiltered)
	assert.Equal(t, unfiltered.Incidents, filtered.Incidents)
}

func TestIncidentsUnknownBucket(t *testing.T) {
	ts := newTestServer(t, Options{})

	code := getJSON(t, ts.URL+"/api/incidents?year=2023&buckets=Nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIncidentsCategoryFilterNormalized(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body incidentsResponse
	code := getJSON(t, ts.URL+"/api/incidents?year=2023&categories=robbery", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "ROBBERY", body.Incidents[0].Category)
}

func TestIncidentsMissingYearIsEmpty(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body incidentsResponse
	code := getJSON(t, ts.URL+"/api/incidents?year=1999", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Incidents)
}

func TestIncidentsYearValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/incidents", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/incidents?year=abc", nil))
}

func TestSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body struct {
		Year    int                   `json:"year"`
		Regions []model.RegionSummary `json:"regions"`
	}
	code := getJSON(t, ts.URL+"/api/summary?year=2023", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Regions, 2)
	assert.Equal(t, "Lakewood", body.Regions[0].Region)
	assert.Equal(t, 1, body.Regions[0].Total)
	assert.Equal(t, 2, body.Regions[1].Total)
}

func TestExportEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/export?year=2023")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "crime-summary-2023.xlsx")

	buf := make([]byte, 2)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{'P', 'K'}, buf)
}

func TestRateLimiting(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, getJSON(t, ts.URL+"/health", nil))
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}
