// Package reporting renders record series as plain-text reports and
// summarizes out-of-range results across a corpus.
package reporting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

const defaultProcedureReport = "See full report"

// SortNewestFirst returns a copy of entries ordered by date, newest first.
// Entries with unparseable dates keep their relative order at the end.
func SortNewestFirst(entries []record.Entry) []record.Entry {
	out := append([]record.Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := out[i].Time()
		tj, okJ := out[j].Time()
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI:
			return true
		}
		return false
	})
	return out
}

// Stats summarizes the numeric values of a series.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// Statistics computes Stats when every value is numeric and there is more
// than one of them.
func Statistics(entries []record.Entry) (Stats, bool) {
	if len(entries) < 2 {
		return Stats{}, false
	}
	s := Stats{Count: len(entries)}
	var sum float64
	for i, e := range entries {
		v, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
		if err != nil {
			return Stats{}, false
		}
		if i == 0 || v < s.Min {
			s.Min = v
		}
		if i == 0 || v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(len(entries))
	return s, true
}

// FormatSeries renders one series newest first. The layout of each line
// depends on the record type of the series.
func FormatSeries(entries []record.Entry) string {
	if len(entries) == 0 {
		return "No results found."
	}

	sorted := SortNewestFirst(entries)
	typ := record.SeriesType(entries)

	lines := []string{
		fmt.Sprintf("Total entries: %d", len(sorted)),
		fmt.Sprintf("Record type: %s", typ),
		"",
		"All Results (newest to oldest):",
	}

	for i, e := range sorted {
		n := i + 1
		switch typ {
		case record.TypeLabTest, record.TypeVitalSign:
			lines = append(lines, measurementLine(n, e))
		case record.TypeMedication, record.TypeProblem:
			lines = append(lines, fmt.Sprintf("  %d. %s: %s (Status: %s)", n, e.Date, e.Value, e.Status()))
		case record.TypeProcedure:
			lines = append(lines, fmt.Sprintf("  %d. %s: %s", n, e.Date, e.Value))
			if r := e.Status(); r != "" && r != defaultProcedureReport {
				lines = append(lines, "      Finding: "+r)
			}
		default:
			lines = append(lines, fmt.Sprintf("  %d. %s: %s", n, e.Date, e.Value))
		}
	}

	if typ == record.TypeLabTest || typ == record.TypeVitalSign {
		if s, ok := Statistics(sorted); ok {
			lines = append(lines,
				"",
				"Statistics:",
				"  Min: "+formatNumber(s.Min),
				"  Max: "+formatNumber(s.Max),
				fmt.Sprintf("  Avg: %.2f", s.Avg),
			)
		}
	}

	return strings.Join(lines, "\n")
}

func measurementLine(n int, e record.Entry) string {
	return fmt.Sprintf("  %d. %s: %s %s (Ref: %s, Status: %s)", n, e.Date, e.Value, e.Unit, e.ReferenceRange, e.Status())
}

// formatNumber prints whole numbers with a trailing ".0" so that integral
// and fractional statistics read alike.
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// AbnormalSeries holds the out-of-range entries of one series, newest first.
type AbnormalSeries struct {
	Name     string         `json:"name"`
	Category Category       `json:"category"`
	Entries  []record.Entry `json:"entries"`
}

// FindAbnormal collects every entry classified Low, High or Critical,
// grouped by series and sorted by series name.
func FindAbnormal(c record.Corpus) []AbnormalSeries {
	var out []AbnormalSeries
	for _, name := range c.Names() {
		var abnormal []record.Entry
		for _, e := range c[name] {
			if e.Classification.Abnormal() {
				abnormal = append(abnormal, e)
			}
		}
		if len(abnormal) == 0 {
			continue
		}
		out = append(out, AbnormalSeries{
			Name:     name,
			Category: Categorize(name),
			Entries:  SortNewestFirst(abnormal),
		})
	}
	return out
}

// FormatAbnormal renders the output of FindAbnormal.
func FormatAbnormal(groups []AbnormalSeries) string {
	if len(groups) == 0 {
		return "No abnormal tests found. All results are within normal range!"
	}

	lines := []string{fmt.Sprintf("Found %d tests with abnormal values:\n", len(groups))}
	for _, g := range groups {
		lines = append(lines,
			fmt.Sprintf("=== %s ===", g.Name),
			fmt.Sprintf("Abnormal entries: %d", len(g.Entries)),
		)
		for i, e := range g.Entries {
			lines = append(lines, measurementLine(i+1, e))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// ListNames renders a numbered listing of every series with its size.
func ListNames(c record.Corpus) string {
	names := c.Names()
	lines := []string{fmt.Sprintf("Available tests (%d):", len(names))}
	for i, name := range names {
		lines = append(lines, fmt.Sprintf("  %d. %s (%d entries)", i+1, name, len(c[name])))
	}
	return strings.Join(lines, "\n")
}
