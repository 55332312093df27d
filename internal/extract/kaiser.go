package extract

import (
	"regexp"
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

var (
	// "CBC WITH DIFFERENTIAL - Final result (01/02/2024)"
	kaiserPanelHeader = regexp.MustCompile(`([A-Z][A-Z\s,()/-]+?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`)

	// "WBC'S AUTO 4.2 3.5 - 11.0 10*3/uL"
	kaiserComponentRange = regexp.MustCompile(
		`^([A-Z][A-Z\s,()'/-]+?)\s+([\d.]+)\s+(\d[\d.]*\s*-\s*\d[\d.]*)(?:\s+([a-zA-Z0-9/*%]+))?`)

	// Looser row form; the range absorbs any run of digits, dots, dashes and spaces.
	kaiserComponent = regexp.MustCompile(
		`^([A-Z][A-Z\s,()'/-]+?)\s+([\d.]+)\s+([\d.\s-]+)\s*([a-zA-Z0-9/*%]+)?`)
)

// kaiserSkipMarkers identify table header rows inside a panel.
var kaiserSkipMarkers = []string{"Component", "Analysis", "Test Method"}

// kaiserStopMarkers end the component table of a panel.
var kaiserStopMarkers = []string{"Final result", "Specimen", "Comment:"}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// matchKaiserComponent returns name, value, range and unit of a component row.
func matchKaiserComponent(line string) (name, value, refRange, unit string, ok bool) {
	m := kaiserComponentRange.FindStringSubmatch(line)
	if m == nil {
		m = kaiserComponent.FindStringSubmatch(line)
	}
	if m == nil {
		return "", "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), strings.TrimSpace(m[4]), true
}

// ParseKaiserLab extracts component results that follow each
// "<PANEL> - Final result (<date>)" header.
func (x *Extractor) ParseKaiserLab(text string) record.Corpus {
	results := record.Corpus{}

	for _, loc := range kaiserPanelHeader.FindAllStringSubmatchIndex(text, -1) {
		date := text[loc[4]:loc[5]]
		panel := window(text, loc[1], x.limits.PanelWindow)

		for _, line := range strings.Split(panel, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || containsAny(line, kaiserSkipMarkers) {
				continue
			}
			if containsAny(line, kaiserStopMarkers) {
				break
			}
			name, value, refRange, unit, ok := matchKaiserComponent(line)
			if !ok {
				continue
			}
			results.Add(name, record.Entry{
				Date:           date,
				Value:          value,
				Unit:           unit,
				ReferenceRange: refRange,
				Type:           record.TypeLabTest,
				Classification: Classify(value, refRange, NoFlag),
			})
		}
	}

	if n := results.EntryCount(); n > 0 {
		x.logger.Debug().Int("results", n).Msg("parsed Kaiser lab results")
	}
	return results
}
