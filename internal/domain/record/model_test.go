package record

import (
	"encoding/json"
	"testing"
)

func TestEntry_StatusVariant(t *testing.T) {
	lab := Entry{Date: "01/15/2024", Value: "105", Classification: High}
	if got := lab.Status(); got != "High" {
		t.Errorf("lab Status() = %q, want High", got)
	}
	if lab.RecordType() != TypeLabTest {
		t.Errorf("RecordType() = %q, want default Lab Test", lab.RecordType())
	}

	proc := Entry{Date: "02/01/2024", Value: "COLONOSCOPY", Type: TypeProcedure, Narrative: "No polyps."}
	if got := proc.Status(); got != "No polyps." {
		t.Errorf("procedure Status() = %q, want narrative", got)
	}
}

func TestEntry_MarshalJSON_BoundaryNames(t *testing.T) {
	e := Entry{Date: "01/15/2024", Value: "105", Unit: "mg/dL", ReferenceRange: "70-99", Classification: High}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	want := map[string]string{
		"Date":            "01/15/2024",
		"Value":           "105",
		"Unit":            "mg/dL",
		"Reference Range": "70-99",
		"Status":          "High",
		"Type":            "Lab Test",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
}

func TestEntry_UnmarshalJSON_RoutesStatus(t *testing.T) {
	var e Entry
	body := `{"Date":"03/03/2023","Value":"XR CHEST","Status":"Clear lungs","Type":"Procedure"}`
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Narrative != "Clear lungs" || e.Classification != "" {
		t.Errorf("expected narrative routing, got %+v", e)
	}

	body = `{"Date":"03/03/2023","Value":"72","Status":"Normal","Type":"Vital Sign"}`
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Classification != Normal || e.Narrative != "" {
		t.Errorf("expected classification routing, got %+v", e)
	}
}

func TestCorpus_MergeConcatenates(t *testing.T) {
	a := Corpus{}
	a.Add("Glucose", Entry{Date: "01/01/2024", Value: "90"})
	b := Corpus{}
	b.Add("Glucose", Entry{Date: "02/01/2024", Value: "95"})
	b.Add("BUN", Entry{Date: "02/01/2024", Value: "12"})

	a.Merge(b)
	a.Merge(b)

	if len(a["Glucose"]) != 3 {
		t.Fatalf("expected 3 glucose entries, got %d", len(a["Glucose"]))
	}
	if a["Glucose"][0].Value != "90" || a["Glucose"][1].Value != "95" {
		t.Errorf("merge did not preserve insertion order: %+v", a["Glucose"])
	}
	if len(a["BUN"]) != 2 {
		t.Errorf("expected duplicated BUN entries, got %d", len(a["BUN"]))
	}
	if a.EntryCount() != 5 {
		t.Errorf("EntryCount() = %d, want 5", a.EntryCount())
	}
}

func TestCorpus_CloneIsIndependent(t *testing.T) {
	c := Corpus{"WBC": {{Value: "4.2"}}}
	clone := c.Clone()
	clone.Add("WBC", Entry{Value: "5.0"})
	if len(c["WBC"]) != 1 {
		t.Errorf("original mutated by clone append: %d entries", len(c["WBC"]))
	}
}

func TestCorpus_Names(t *testing.T) {
	c := Corpus{"b": nil, "a": nil, "C": nil}
	names := c.Names()
	if len(names) != 3 || names[0] != "C" || names[1] != "a" || names[2] != "b" {
		t.Errorf("Names() = %v", names)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"105", 105, true},
		{"<0.5", 0.5, true},
		{">60", 60, true},
		{" 4.2 ", 4.2, true},
		{"X", 0, false},
		{"", 0, false},
		{"120/80", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDate(t *testing.T) {
	if _, ok := ParseDate("1/5/2024"); !ok {
		t.Error("expected single-digit month/day to parse")
	}
	d, ok := ParseDate("10/18/2024")
	if !ok || d.Month() != 10 || d.Day() != 18 || d.Year() != 2024 {
		t.Errorf("ParseDate(10/18/2024) = %v, %v", d, ok)
	}
	if _, ok := ParseDate("2024-10-18"); ok {
		t.Error("expected ISO date to be rejected")
	}
}

func TestType_Normalizable(t *testing.T) {
	if !TypeLabTest.Normalizable() || !Type("").Normalizable() {
		t.Error("lab tests should be normalizable")
	}
	for _, typ := range []Type{TypeVitalSign, TypeMedication, TypeImmunization, TypeProblem, TypeProcedure, TypeClinicalNote} {
		if typ.Normalizable() {
			t.Errorf("%s should bypass normalization", typ)
		}
	}
}
