package reporting

import "strings"

// Category groups series for display.
type Category string

const (
	CategoryBlood Category = "blood"
	CategoryOther Category = "other"
)

// Imaging and procedure keywords. These are checked before the blood-test
// keywords so that, for example, a colonoscopy is never filed as a blood test.
var otherKeywords = []string{
	"fluoro", "xr", "x-ray", "colon", "air", "imaging", "scan",
	"colonoscopy", "endoscopy", "biopsy", "procedure",
}

var bloodKeywords = []string{
	"wbc", "rbc", "hemoglobin", "hematocrit", "platelet",
	"glucose", "cholesterol", "triglyceride", "hdl", "ldl",
	"sodium", "potassium", "chloride", "calcium", "magnesium",
	"creatinine", "bun", "alt", "ast", "alkaline phosphatase",
	"bilirubin", "albumin", "protein", "globulin",
	"neutrophil", "lymphocyte", "monocyte", "eosinophil", "basophil",
	"mcv", "mch", "mchc", "rdw", "mpv",
	"tsh", "vitamin", "iron", "ferritin", "b12", "folate",
	"psa", "a1c", "hemoglobin a1c", "egfr", "inr",
}

// Categorize files a series name under blood tests or other tests by
// keyword.
func Categorize(name string) Category {
	lower := strings.ToLower(name)
	if containsAny(lower, otherKeywords) {
		return CategoryOther
	}
	if containsAny(lower, bloodKeywords) {
		return CategoryBlood
	}
	return CategoryOther
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
