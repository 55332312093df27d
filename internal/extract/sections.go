package extract

// Section names a labeled region of a Kaiser medical-record export.
type Section string

const (
	SectionVitalSigns       Section = "Vital Signs"
	SectionEndedMedications Section = "Ended Medications"
	SectionImmunizations    Section = "Immunizations"
	SectionActiveProblems   Section = "Active Problems"
	SectionResolvedProblems Section = "Resolved Problems"
)

// sectionBoundary declares where a section starts and which headers close it.
// A section always closes at end of text when none of its end markers follow.
type sectionBoundary struct {
	start string
	ends  []string
}

var sectionBoundaries = map[Section]sectionBoundary{
	SectionVitalSigns:       {start: "Last Filed Vital Signs", ends: []string{"Results", "Immunizations"}},
	SectionEndedMedications: {start: "Ended Medications", ends: []string{"Active Problems", "Immunizations"}},
	SectionImmunizations:    {start: "Immunizations", ends: []string{"Social History"}},
	SectionActiveProblems:   {start: "Active Problems", ends: []string{"Resolved Problems", "Immunizations"}},
	SectionResolvedProblems: {start: "Resolved Problems", ends: []string{"Immunizations"}},
}

// FindSection returns the body of section s: the text after the first
// occurrence of its start header, up to the nearest closing header.
func FindSection(text string, s Section) (string, bool) {
	b, ok := sectionBoundaries[s]
	if !ok {
		return "", false
	}
	return block(text, []string{b.start}, b.ends, true)
}

// Sections locates every known section in text. Sections are resolved
// independently, so a reordered export still yields each body.
func Sections(text string) map[Section]string {
	out := make(map[Section]string, len(sectionBoundaries))
	for s := range sectionBoundaries {
		if body, ok := FindSection(text, s); ok {
			out[s] = body
		}
	}
	return out
}
