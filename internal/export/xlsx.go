// Package export renders year snapshots as XLSX workbooks for
// offline analysis.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crimemap/internal/model"
)

const (
	summarySheet   = "Summary"
	incidentsSheet = "Incidents"
)

// Workbook builds an XLSX workbook for one year snapshot: a Summary
// sheet with per-region bucket counts and an Incidents sheet with the
// attributed rows.
func Workbook(snap *model.YearSnapshot, summaries []model.RegionSummary) (*xlsx.File, error) {
	if snap == nil {
		return nil, eris.New("export: nil snapshot")
	}

	f := xlsx.NewFile()

	sheet, err := f.AddSheet(summarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	header := sheet.AddRow()
	header.AddCell().SetString("Region")
	for _, b := range model.Buckets {
		header.AddCell().SetString(string(b))
	}
	header.AddCell().SetString(string(model.BucketOther))
	header.AddCell().SetString("Total")

	for _, s := range summaries {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Region)
		for _, b := range model.Buckets {
			row.AddCell().SetInt(s.Counts[b])
		}
		row.AddCell().SetInt(s.Counts[model.BucketOther])
		row.AddCell().SetInt(s.Total)
	}

	inc, err := f.AddSheet(incidentsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add incidents sheet")
	}
	ih := inc.AddRow()
	for _, col := range []string{"Latitude", "Longitude", "Category", "Year", "Region", "Bucket"} {
		ih.AddCell().SetString(col)
	}
	for _, i := range snap.Incidents {
		row := inc.AddRow()
		row.AddCell().SetFloat(i.Latitude)
		row.AddCell().SetFloat(i.Longitude)
		row.AddCell().SetString(i.Category)
		row.AddCell().SetInt(i.Year)
		row.AddCell().SetString(i.Region)
		row.AddCell().SetString(string(i.Bucket))
	}

	return f, nil
}

// Write streams the workbook for snap to w.
func Write(w io.Writer, snap *model.YearSnapshot, summaries []model.RegionSummary) error {
	f, err := Workbook(snap, summaries)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// WriteFile saves the workbook for snap to path, creating parent
// directories as needed.
func WriteFile(path string, snap *model.YearSnapshot, summaries []model.RegionSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}
	f, err := Workbook(snap, summaries)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", filepath.Base(path))
	}
	return nil
}

// Filename returns the conventional download name for a year export.
func Filename(year int) string {
	return fmt.Sprintf("crime-summary-%d.xlsx", year)
}
