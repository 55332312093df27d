package extract

import "strings"

// Format identifies a report layout with its own parser.
type Format string

const (
	FormatLabCorp      Format = "labcorp"
	FormatKaiserLab    Format = "kaiser-lab"
	FormatKaiserRecord Format = "kaiser-record"
)

// detectionRule selects formats when any of its markers occurs in the text.
type detectionRule struct {
	markers []string
	formats []Format
}

// detectionRules are evaluated in order; every matching rule contributes.
var detectionRules = []detectionRule{
	{
		markers: []string{"Laboratory Corporation of America", "LabCorp", "Date Collected:"},
		formats: []Format{FormatLabCorp},
	},
	{
		markers: []string{"Kaiser Permanente", "Final result"},
		formats: []Format{FormatKaiserLab, FormatKaiserRecord},
	},
}

// Detect returns every format whose markers appear in text, in parse order.
// A document may match several formats; no match yields an empty slice.
func Detect(text string) []Format {
	var formats []Format
	for _, rule := range detectionRules {
		for _, m := range rule.markers {
			if strings.Contains(text, m) {
				formats = append(formats, rule.formats...)
				break
			}
		}
	}
	return formats
}
