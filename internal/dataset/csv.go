// Package dataset resolves per-year incident sources and parses incident
// tables. The attribution and classification core depends only on the
// Registry and Source abstractions, never on file naming.
package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap/internal/model"
)

// ParseIncidents reads incident records from a delimited text stream.
// Headers are normalized to lower case so source files with mixed-case
// columns decode uniformly. Rows that fail to decode (for example
// unparsable coordinates) are skipped with a warning; parsing continues
// over the rest of the stream. The year parameter fills records whose
// source has no year column.
func ParseIncidents(ctx context.Context, r io.Reader, year int) ([]model.Incident, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv header")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: init csv decoder")
	}

	var incidents []model.Incident
	var skipped int
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "dataset: parse cancelled")
		}

		var inc model.Incident
		err := dec.Decode(&inc)
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		inc.ID = len(incidents)
		if inc.Year == 0 {
			inc.Year = year
		}
		inc.Category = strings.TrimSpace(inc.Category)
		incidents = append(incidents, inc)
	}

	if skipped > 0 {
		zap.L().Warn("dataset: skipped malformed csv rows",
			zap.Int("skipped", skipped),
			zap.Int("parsed", len(incidents)),
		)
	}
	return incidents, nil
}

// fileSource loads incidents from a CSV file on disk.
type fileSource struct {
	year int
	path string
}

func (s fileSource) Year() int { return s.year }

func (s fileSource) Load(ctx context.Context) ([]model.Incident, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", s.path)
	}
	defer func() { _ = f.Close() }()
	return ParseIncidents(ctx, f, s.year)
}
