// Package model defines the core data types shared across the crime map pipeline.
package model

import (
	"math"
	"time"
)

// Bucket is one of the coarse aggregate crime groupings used by the
// dashboard's aggregated view, or Other for anything unclassified.
type Bucket string

const (
	BucketPerson        Bucket = "Person-Related Crimes"
	BucketProperty      Bucket = "Property Crimes"
	BucketDrugAlcohol   Bucket = "Drug and Alcohol-Related Crimes"
	BucketMiscellaneous Bucket = "Miscellaneous Crimes"
	BucketOther         Bucket = "Other"
)

// Buckets lists the four defined aggregate buckets in display order.
// BucketOther is the implicit default and is not part of this list.
var Buckets = []Bucket{
	BucketPerson,
	BucketProperty,
	BucketDrugAlcohol,
	BucketMiscellaneous,
}

// Incident is a single crime record. Region and Bucket are empty until the
// record has passed through attribution and classification.
type Incident struct {
	ID        int     `json:"id" csv:"-"`
	Latitude  float64 `json:"latitude" csv:"latitude"`
	Longitude float64 `json:"longitude" csv:"longitude"`
	Category  string  `json:"category" csv:"category"`
	Year      int     `json:"year" csv:"year,omitempty"`
	Region    string  `json:"region,omitempty" csv:"-"`
	Bucket    Bucket  `json:"bucket,omitempty" csv:"-"`
}

// HasValidCoordinates reports whether the incident's coordinates are finite
// and within geographic bounds. Records failing this check are excluded from
// attribution rather than failing the whole collection.
func (i Incident) HasValidCoordinates() bool {
	if math.IsNaN(i.Latitude) || math.IsInf(i.Latitude, 0) {
		return false
	}
	if math.IsNaN(i.Longitude) || math.IsInf(i.Longitude, 0) {
		return false
	}
	return i.Latitude >= -90 && i.Latitude <= 90 &&
		i.Longitude >= -180 && i.Longitude <= 180
}

// Coordinate is a geographic point in EPSG:4326, longitude first to match
// the (x, y) convention of the geometry layer.
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// YearSnapshot is the immutable result of running one year's incidents
// through attribution and classification. Snapshots are never mutated after
// construction; filtering always produces fresh slices over the snapshot.
type YearSnapshot struct {
	ID         string     `json:"id"` // uuid assigned at build time
	Year       int        `json:"year"`
	Incidents  []Incident `json:"incidents"`
	Categories []string   `json:"categories"` // sorted distinct raw categories
	Skipped    int        `json:"skipped"`    // records dropped for invalid coordinates
	BuiltAt    time.Time  `json:"built_at"`
}

// Empty reports whether the snapshot holds no incidents, which is the normal
// result for a year with no data source.
func (s *YearSnapshot) Empty() bool {
	return s == nil || len(s.Incidents) == 0
}

// RegionSummary aggregates incident counts for one region, split by bucket.
type RegionSummary struct {
	Region string         `json:"region"`
	Total  int            `json:"total"`
	Counts map[Bucket]int `json:"counts"`
}
