package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap/internal/export"
	"github.com/sells-group/crimemap/internal/model"
	"github.com/sells-group/crimemap/internal/pipeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"years": s.reg.Years()})
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	buckets := s.table.Buckets()
	labels := make([]string, 0, len(buckets)+1)
	for _, b := range buckets {
		labels = append(labels, string(b))
	}
	labels = append(labels, string(model.BucketOther))
	writeJSON(w, http.StatusOK, map[string]any{"buckets": labels})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}
	categories := snap.Categories
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":       snap.Year,
		"categories": categories,
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	centroid, err := s.set.Centroid()
	if err != nil {
		zap.L().Error("boundary centroid", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute boundary centroid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"regions":  s.set.Names(),
		"centroid": centroid,
	})
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}

	buckets, err := parseBuckets(r.URL.Query().Get("buckets"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	categories := parseList(r.URL.Query().Get("categories"))

	incidents := pipeline.FilterBuckets(snap.Incidents, buckets)
	incidents = pipeline.FilterCategories(incidents, categories)
	if incidents == nil {
		incidents = []model.Incident{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"year":      snap.Year,
		"count":     len(incidents),
		"skipped":   snap.Skipped,
		"incidents": incidents,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}
	summaries := pipeline.Summarize(snap)
	if summaries == nil {
		summaries = []model.RegionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":    snap.Year,
		"regions": summaries,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotFor(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(snap.Year)+`"`)
	if err := export.Write(w, snap, pipeline.Summarize(snap)); err != nil {
		// Headers are already sent; just log.
		zap.L().Error("write export", zap.Int("year", snap.Year), zap.Error(err))
	}
}

// snapshotFor resolves the year query parameter to a snapshot. It
// writes the error response itself and returns ok=false on failure.
// A year with no data comes back as an empty snapshot, not an error.
func (s *Server) snapshotFor(w http.ResponseWriter, r *http.Request) (*model.YearSnapshot, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "year query parameter is required")
		return nil, false
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return nil, false
	}

	snap, err := s.pipe.Year(r.Context(), year)
	if err != nil {
		zap.L().Error("build snapshot", zap.Int("year", year), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build year snapshot")
		return nil, false
	}
	return snap, true
}

// parseList splits a comma-separated query value. An absent parameter
// yields nil, which downstream filters treat as "no filter".
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBuckets(raw string) ([]model.Bucket, error) {
	labels := parseList(raw)
	if labels == nil {
		return nil, nil
	}
	known := make(map[string]model.Bucket, len(model.Buckets)+1)
	for _, b := range model.Buckets {
		known[string(b)] = b
	}
	known[string(model.BucketOther)] = model.BucketOther

	out := make([]model.Bucket, 0, len(labels))
	for _, l := range labels {
		b, ok := known[l]
		if !ok {
			return nil, eris.Errorf("unknown bucket %q", l)
		}
		out = append(out, b)
	}
	return out, nil
}
