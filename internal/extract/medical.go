package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

// Fixed record names used by the medical-record parsers.
const (
	NameMedications      = "Medications"
	NameImmunizations    = "Immunizations"
	NameActiveProblems   = "Active Problems"
	NameResolvedProblems = "Resolved Problems"
	NameClinicalNotes    = "Clinical Notes"
)

// vitalGrammar describes one vital-sign row in the "Last Filed Vital Signs"
// table. valueGroup and dateGroup index into the pattern submatches.
type vitalGrammar struct {
	name       string
	pattern    *regexp.Regexp
	valueGroup int
	dateGroup  int
	unit       string
	refRange   string
}

var vitalGrammars = []vitalGrammar{
	{
		name:       "Blood Pressure",
		pattern:    regexp.MustCompile(`Blood Pressure\s+(\d+/\d+)\s+(\d{2}/\d{2}/\d{4})`),
		valueGroup: 1, dateGroup: 2,
		unit: "mmHg", refRange: "90-120/60-80",
	},
	{
		name:       "Pulse",
		pattern:    regexp.MustCompile(`Pulse\s+(\d+)\s+(\d{2}/\d{2}/\d{4})`),
		valueGroup: 1, dateGroup: 2,
		unit: "bpm", refRange: "60-100",
	},
	{
		name:       "Temperature",
		pattern:    regexp.MustCompile(`Temperature\s+([\d.]+)\s*°C\s*\(([\d.]+)\s*°F\)\s+(\d{2}/\d{2}/\d{4})`),
		valueGroup: 2, dateGroup: 3,
		unit: "°F", refRange: "97.0-99.0",
	},
	{
		name:       "Weight",
		pattern:    regexp.MustCompile(`Weight\s+([\d.]+)\s*kg\s*\(([\d.]+)\s*lb.*?\)\s+(\d{2}/\d{2}/\d{4})`),
		valueGroup: 2, dateGroup: 3,
		unit: "lb", refRange: "N/A",
	},
	{
		name:       "Height",
		pattern:    regexp.MustCompile(`Height\s+([\d.]+)\s*cm\s*\(([\d'" .]+)\)\s+(\d{2}/\d{2}/\d{4})`),
		valueGroup: 1, dateGroup: 3,
		unit: "cm", refRange: "N/A",
	},
	{
		name:       "BMI",
		pattern:    regexp.MustCompile(`Body Mass Index\s+([\d.]+)\s+(\d{2}/\d{2}/\d{4})`),
		valueGroup: 1, dateGroup: 2,
		unit: "", refRange: "18.5-24.9",
	},
}

var (
	medicationPattern   = regexp.MustCompile(`([A-Z][A-Za-z\s-]+(?:\([A-Z]+\))?)\s+.*?\(Started\s+(\d{1,2}/\d{1,2}/\d{4})\)`)
	immunizationPattern = regexp.MustCompile(`([A-Z][A-Za-z0-9\s,()/-]+?)\s+\(Given\s+([\d/,\s]+)\)`)
	givenDatePattern    = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	activeProblem       = regexp.MustCompile(`([A-Z][A-Z\s,()/-]+?)\s+(\d{2}/\d{2}/\d{4})`)
	resolvedProblem     = regexp.MustCompile(`([A-Z][A-Z\s,()/-]+?)\s+(\d{2}/\d{2}/\d{4})\s+.*?(\d{2}/\d{2}/\d{4})`)
)

// ParseVitalSigns reads the most recent value of each vital sign. Every
// vital is classified Normal regardless of its value.
func (x *Extractor) ParseVitalSigns(text string) record.Corpus {
	results := record.Corpus{}
	section, ok := FindSection(text, SectionVitalSigns)
	if !ok {
		return results
	}
	for _, g := range vitalGrammars {
		m := g.pattern.FindStringSubmatch(section)
		if m == nil {
			continue
		}
		results.Add(g.name, record.Entry{
			Date:           m[g.dateGroup],
			Value:          m[g.valueGroup],
			Unit:           g.unit,
			ReferenceRange: g.refRange,
			Type:           record.TypeVitalSign,
			Classification: record.Normal,
		})
	}
	return results
}

// ParseMedications reads the Ended Medications section. Each medication is
// dated by its start date.
func (x *Extractor) ParseMedications(text string) record.Corpus {
	results := record.Corpus{}
	section, ok := FindSection(text, SectionEndedMedications)
	if !ok {
		return results
	}
	for _, m := range medicationPattern.FindAllStringSubmatch(section, -1) {
		results.Add(NameMedications, record.Entry{
			Date:           m[2],
			Value:          strings.TrimSpace(m[1]),
			Type:           record.TypeMedication,
			Classification: record.Ended,
		})
	}
	return results
}

// ParseImmunizations emits one entry per administration date.
func (x *Extractor) ParseImmunizations(text string) record.Corpus {
	results := record.Corpus{}
	section, ok := FindSection(text, SectionImmunizations)
	if !ok {
		return results
	}
	for _, m := range immunizationPattern.FindAllStringSubmatch(section, -1) {
		vaccine := strings.TrimSpace(m[1])
		for _, date := range givenDatePattern.FindAllString(m[2], -1) {
			results.Add(NameImmunizations, record.Entry{
				Date:           date,
				Value:          vaccine,
				Type:           record.TypeImmunization,
				Classification: record.Completed,
			})
		}
	}
	return results
}

// ParseProblems reads the active and resolved problem lists. Resolved
// problems are dated by resolution and keep the noted date in the value.
func (x *Extractor) ParseProblems(text string) record.Corpus {
	results := record.Corpus{}

	if section, ok := FindSection(text, SectionActiveProblems); ok {
		for _, m := range activeProblem.FindAllStringSubmatch(section, -1) {
			results.Add(NameActiveProblems, record.Entry{
				Date:           m[2],
				Value:          strings.TrimSpace(m[1]),
				Type:           record.TypeProblem,
				Classification: record.Active,
			})
		}
	}

	if section, ok := FindSection(text, SectionResolvedProblems); ok {
		for _, m := range resolvedProblem.FindAllStringSubmatch(section, -1) {
			results.Add(NameResolvedProblems, record.Entry{
				Date:           m[3],
				Value:          strings.TrimSpace(m[1]) + " (noted " + m[2] + ")",
				Type:           record.TypeProblem,
				Classification: record.Resolved,
			})
		}
	}
	return results
}

// ParseMedicalRecord runs every medical-record parser over a Kaiser export
// and merges their output.
func (x *Extractor) ParseMedicalRecord(text string) record.Corpus {
	parsers := []struct {
		name string
		fn   func(string) record.Corpus
	}{
		{"vitals", x.ParseVitalSigns},
		{"medications", x.ParseMedications},
		{"immunizations", x.ParseImmunizations},
		{"problems", x.ParseProblems},
		{"procedures", x.ParseProcedures},
		{"notes", x.ParseClinicalNotes},
	}

	if e := x.logger.Debug(); e.Enabled() {
		found := Sections(text)
		names := make([]string, 0, len(found))
		for s := range found {
			names = append(names, string(s))
		}
		sort.Strings(names)
		e.Strs("sections", names).Msg("medical record sections")
	}

	results := record.Corpus{}
	for _, p := range parsers {
		x.mergeInto(results, p.fn(text), p.name)
	}
	return results
}
