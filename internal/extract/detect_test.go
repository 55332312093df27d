package extract

import (
	"reflect"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Format
	}{
		{"labcorp banner", "Laboratory Corporation of America\nWBC 01 4.0", []Format{FormatLabCorp}},
		{"labcorp date only", "Date Collected: 01/15/2024", []Format{FormatLabCorp}},
		{"kaiser banner", "Kaiser Permanente Northern California", []Format{FormatKaiserLab, FormatKaiserRecord}},
		{"kaiser final result", "CBC - Final result (01/02/2024)", []Format{FormatKaiserLab, FormatKaiserRecord}},
		{"both", "LabCorp\nKaiser Permanente", []Format{FormatLabCorp, FormatKaiserLab, FormatKaiserRecord}},
		{"none", "Quest Diagnostics report", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}
