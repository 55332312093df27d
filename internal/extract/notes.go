package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/labtrend/labtrend/internal/domain/record"
)

var (
	noteHeader   = regexp.MustCompile(`(?s)Procedure Note\s+(.*?)\s+Procedure Note`)
	noteDate     = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})`)
	noteProvider = regexp.MustCompile(`([A-Z][A-Z\s]+(?:MD|DO|PA))`)
	noteEnds     = []string{"Authorizing Provider", "Performing"}
)

// ParseClinicalNotes extracts "Procedure Note" narratives. The provider
// block between the two headers supplies the date and author; notes without
// a date are skipped.
func (x *Extractor) ParseClinicalNotes(text string) record.Corpus {
	results := record.Corpus{}

	pos := 0
	for pos < len(text) {
		loc := noteHeader.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		info := strings.TrimSpace(text[pos+loc[2] : pos+loc[3]])
		bodyStart := pos + loc[1]
		rest := text[bodyStart:]
		bodyLen := len(rest)
		if i := indexAny(rest, noteEnds...); i >= 0 {
			bodyLen = i
		}
		body := strings.TrimSpace(rest[:bodyLen])
		pos = bodyStart + bodyLen

		dm := noteDate.FindStringSubmatch(info)
		if dm == nil {
			continue
		}
		provider := "Provider"
		if pm := noteProvider.FindStringSubmatch(info); pm != nil {
			provider = pm[1]
		}

		summary := body
		if limit := x.limits.NoteLimit; limit > 0 && utf8.RuneCountInString(body) > limit {
			summary = truncate(body, limit) + "..."
		}

		results.Add(NameClinicalNotes, record.Entry{
			Date:      dm[1],
			Value:     provider + " - Clinical Note",
			Type:      record.TypeClinicalNote,
			Narrative: summary,
		})
	}
	return results
}
