package extract

import (
	"regexp"
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

var (
	labcorpCollected         = regexp.MustCompile(`Date Collected:\s*(\d{1,2}/\d{1,2}/\d{4})`)
	labcorpCollectedFallback = regexp.MustCompile(`Collected:\s*(\d{2}/\d{2}/\d{4})`)

	// "WBC 01 3.9 3.2 10/18/2024 x10E3/uL 3.4-10.8"
	labcorpWithPrevious = regexp.MustCompile(
		`^([A-Za-z][A-Za-z\s,()/-]+?)\s+01\s+([\d.<>]+)\s+(?:(Low|High|Critical)\s+)?([\d.<>]+)?\s+(\d{1,2}/\d{1,2}/\d{4})?\s+([a-zA-Z0-9/*%]+)?\s+([\d.<>-]+)?`)

	// "Glucose 01 100 High mg/dL 70-99"
	labcorpCurrentOnly = regexp.MustCompile(
		`^([A-Za-z][A-Za-z\s,()/-]+?)\s+01\s+([\d.<>]+)\s+(?:(Low|High|Critical)\s+)?([a-zA-Z0-9/*%]+)?\s+([\d.<>-]+)?`)
)

// labcorpLine is one result row pulled out of a LabCorp table.
type labcorpLine struct {
	name, value, unit, refRange string
	flag                        Flag
}

// matchLabCorpLine tries the two LabCorp row layouts, with-previous first.
func matchLabCorpLine(line string) (labcorpLine, bool) {
	if m := labcorpWithPrevious.FindStringSubmatch(line); m != nil {
		return labcorpLine{
			name:     strings.TrimSpace(m[1]),
			value:    strings.TrimSpace(m[2]),
			flag:     Flag(m[3]),
			unit:     strings.TrimSpace(m[6]),
			refRange: strings.TrimSpace(m[7]),
		}, true
	}
	if m := labcorpCurrentOnly.FindStringSubmatch(line); m != nil {
		return labcorpLine{
			name:     strings.TrimSpace(m[1]),
			value:    strings.TrimSpace(m[2]),
			flag:     Flag(m[3]),
			unit:     strings.TrimSpace(m[4]),
			refRange: strings.TrimSpace(m[5]),
		}, true
	}
	return labcorpLine{}, false
}

// ParseLabCorp extracts results from a LabCorp report. The whole document
// shares one collection date; without it nothing is extracted.
func (x *Extractor) ParseLabCorp(text string) record.Corpus {
	results := record.Corpus{}

	m := labcorpCollected.FindStringSubmatch(text)
	if m == nil {
		m = labcorpCollectedFallback.FindStringSubmatch(text)
	}
	if m == nil {
		x.logger.Debug().Msg("no collection date found in LabCorp report")
		return results
	}
	date := m[1]

	count := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "Current Result") || strings.Contains(line, "Reference Interval") {
			continue
		}
		row, ok := matchLabCorpLine(line)
		if !ok {
			continue
		}
		results.Add(row.name, record.Entry{
			Date:           date,
			Value:          row.value,
			Unit:           row.unit,
			ReferenceRange: row.refRange,
			Type:           record.TypeLabTest,
			Classification: Classify(row.value, row.refRange, row.flag),
		})
		count++
	}

	if count > 0 {
		x.logger.Debug().Int("results", count).Str("date", date).Msg("parsed LabCorp results")
	}
	return results
}
