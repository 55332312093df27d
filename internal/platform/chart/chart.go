// Package chart prepares record series for trend charts.
package chart

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

// ErrNotChartable is returned by Build for series that cannot be plotted.
var ErrNotChartable = errors.New("series is not chartable")

// numericLead is how many leading entries must be numeric for a series to be
// charted.
const numericLead = 3

// bandPattern finds "low - high" anywhere in a reference range.
var bandPattern = regexp.MustCompile(`(\d+\.?\d*)\s*-\s*(\d+\.?\d*)`)

// Color classes for bars.
const (
	ColorHigh   = "high"
	ColorLow    = "low"
	ColorNormal = "normal"
)

// Point is one plotted value.
type Point struct {
	Date   string  `json:"date"`
	Value  float64 `json:"value"`
	Status string  `json:"status"`
	Color  string  `json:"color"`
}

// Band is the reference range drawn behind the bars.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Chart is the data behind a trend chart.
type Chart struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit,omitempty"`
	Points []Point `json:"points"`
	Band   *Band   `json:"band,omitempty"`
}

// CanChart reports whether a series has at least two entries and numeric
// values in its first three entries.
func CanChart(entries []record.Entry) bool {
	if len(entries) < 2 {
		return false
	}
	for i, e := range entries {
		if i == numericLead {
			break
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64); err != nil {
			return false
		}
	}
	return true
}

// ParseBand extracts the first "low - high" pair from a reference range.
func ParseBand(refRange string) (Band, bool) {
	m := bandPattern.FindStringSubmatch(refRange)
	if m == nil {
		return Band{}, false
	}
	low, errLow := strconv.ParseFloat(m[1], 64)
	high, errHigh := strconv.ParseFloat(m[2], 64)
	if errLow != nil || errHigh != nil {
		return Band{}, false
	}
	return Band{Low: low, High: high}, true
}

// Build turns a series into chart points ordered oldest first. Entries whose
// value is not numeric are left out. The band comes from the range of the
// oldest entry.
func Build(name string, entries []record.Entry) (*Chart, error) {
	if !CanChart(entries) {
		return nil, ErrNotChartable
	}

	sorted := append([]record.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, okI := sorted[i].Time()
		tj, okJ := sorted[j].Time()
		switch {
		case okI && okJ:
			return ti.Before(tj)
		case okI:
			return true
		}
		return false
	})

	c := &Chart{Name: name, Unit: sorted[0].Unit}
	for _, e := range sorted {
		v, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
		if err != nil {
			continue
		}
		c.Points = append(c.Points, Point{Date: e.Date, Value: v, Status: e.Status(), Color: colorFor(e.Classification)})
	}
	if len(c.Points) == 0 {
		return nil, ErrNotChartable
	}
	if b, ok := ParseBand(sorted[0].ReferenceRange); ok {
		c.Band = &b
	}
	return c, nil
}

func colorFor(c record.Classification) string {
	switch c {
	case record.High:
		return ColorHigh
	case record.Low:
		return ColorLow
	}
	return ColorNormal
}
