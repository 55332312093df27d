package extract

import (
	"regexp"
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

const defaultReport = "See full report"

// Procedure headers of the form "<NAME> - Final result (<date>)".
var finalResultProcedures = []*regexp.Regexp{
	regexp.MustCompile(`(COLONOSCOPY[^\n-]*?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`),
	regexp.MustCompile(`(ULTRASOUND[^\n-]*?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`),
	regexp.MustCompile(`(OPTICAL COHERENCE[^\n-]*?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`),
	regexp.MustCompile(`(FLUORO[^\n-]*?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`),
	regexp.MustCompile(`(XR [^\n-]*?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`),
	regexp.MustCompile(`(SARS-COV-2[^\n-]*?)\s*-\s*Final result\s*\((\d{2}/\d{2}/\d{4})`),
}

// Procedure headers of the form "<NAME> (<date> <time> <AM|PM> <zone>)".
var timestampedProcedures = []*regexp.Regexp{
	regexp.MustCompile(`(COLONOSCOPY[^\n(]*?)\s*\((\d{2}/\d{2}/\d{4})\s+\d{1,2}:\d{2}\s+[AP]M\s+[A-Z]+\)`),
	regexp.MustCompile(`(OPTICAL COHERENCE[^\n(]*?)\s*\((\d{2}/\d{2}/\d{4})\s+\d{1,2}:\d{2}\s+[AP]M\s+[A-Z]+\)`),
}

// report section markers
var (
	impressionStarts = []string{"IMPRESSION:", "Impressions"}
	impressionEnds   = []string{"\n\n", "Narrative", "Authorizing", "Performing"}
	narrativeEnds    = []string{"Authorizing Provider", "Performing"}
	findingsEnds     = []string{"COMPLICATIONS:", "IMPRESSION:", "Narrative", "Authorizing"}
	summaryEnds      = []string{"RECOMMENDATIONS:", "Narrative", "Authorizing"}
	recommendEnds    = []string{"Narrative", "Authorizing"}
)

// section returns the trimmed, truncated body of a report block, or "".
func section(text string, starts, ends []string, untilEOF bool, limit int) string {
	body, ok := block(text, starts, ends, untilEOF)
	if !ok {
		return ""
	}
	return truncate(strings.TrimSpace(body), limit)
}

// ParseProcedures extracts procedures and imaging studies. Each procedure is
// stored under its own whitespace-collapsed name with its report text as the
// narrative.
func (x *Extractor) ParseProcedures(text string) record.Corpus {
	results := record.Corpus{}

	for _, re := range finalResultProcedures {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			name := collapseSpace(text[loc[2]:loc[3]])
			date := text[loc[4]:loc[5]]
			following := window(text, loc[1], x.limits.ProcedureWindow)

			impression := defaultReport
			if body, ok := block(following, impressionStarts, impressionEnds, false); ok {
				impression = truncate(strings.TrimSpace(body), x.limits.ImpressionLimit)
			}
			report := impression
			if narrative := section(following, []string{"Narrative"}, narrativeEnds, true, x.limits.NarrativeLimit); narrative != "" {
				report = impression + "\n\nNarrative: " + narrative
			}

			results.Add(name, procedureEntry(name, date, report))
		}
	}

	for _, re := range timestampedProcedures {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			name := collapseSpace(text[loc[2]:loc[3]])
			date := text[loc[4]:loc[5]]
			following := window(text, loc[1], x.limits.ProcedureAltWindow)

			var parts []string
			if s := section(following, []string{"FINDINGS:"}, findingsEnds, true, x.limits.FindingsLimit); s != "" {
				parts = append(parts, "Findings: "+s)
			}
			if s := section(following, []string{"IMPRESSION:"}, summaryEnds, true, x.limits.ImpressionLimit); s != "" {
				parts = append(parts, "Impression: "+s)
			}
			if s := section(following, []string{"RECOMMENDATIONS:"}, recommendEnds, true, x.limits.RecommendationLimit); s != "" {
				parts = append(parts, "Recommendations: "+s)
			}
			report := defaultReport
			if len(parts) > 0 {
				report = strings.Join(parts, "\n\n")
			}

			results.Add(name, procedureEntry(name, date, report))
		}
	}

	if n := results.EntryCount(); n > 0 {
		x.logger.Debug().Int("procedures", n).Msg("parsed procedures")
	}
	return results
}

func procedureEntry(name, date, report string) record.Entry {
	return record.Entry{
		Date:      date,
		Value:     name,
		Type:      record.TypeProcedure,
		Narrative: report,
	}
}
