package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Type discriminates what kind of clinical record an entry holds.
type Type string

const (
	TypeLabTest      Type = "Lab Test"
	TypeVitalSign    Type = "Vital Sign"
	TypeMedication   Type = "Medication"
	TypeImmunization Type = "Immunization"
	TypeProblem      Type = "Problem"
	TypeProcedure    Type = "Procedure"
	TypeClinicalNote Type = "Clinical Note"
)

// HasNarrative reports whether entries of this type carry report text
// instead of a categorical classification.
func (t Type) HasNarrative() bool {
	return t == TypeProcedure || t == TypeClinicalNote
}

// Normalizable reports whether series of this type are lab-code variants
// whose names should be canonicalized before merging.
func (t Type) Normalizable() bool {
	return t == TypeLabTest || t == ""
}

// Classification is the categorical status of a non-narrative entry.
type Classification string

const (
	Normal    Classification = "Normal"
	Low       Classification = "Low"
	High      Classification = "High"
	Critical  Classification = "Critical"
	Active    Classification = "Active"
	Resolved  Classification = "Resolved"
	Ended     Classification = "Ended"
	Completed Classification = "Completed"
)

// Abnormal reports whether the classification flags an out-of-range result.
func (c Classification) Abnormal() bool {
	return c == Low || c == High || c == Critical
}

// Entry is one extracted record. Entries are built once by a parser and
// treated as immutable afterwards.
//
// Classification and Narrative form a tagged variant keyed by Type: only
// Procedure and Clinical Note entries carry a Narrative.
type Entry struct {
	Date           string
	Value          string
	Unit           string
	ReferenceRange string
	Type           Type
	Classification Classification
	Narrative      string
}

// RecordType returns the entry type, defaulting to Lab Test.
func (e Entry) RecordType() Type {
	if e.Type == "" {
		return TypeLabTest
	}
	return e.Type
}

// Status returns the value exposed as "Status" to display consumers.
func (e Entry) Status() string {
	if e.RecordType().HasNarrative() {
		return e.Narrative
	}
	return string(e.Classification)
}

// Numeric parses the entry value as a number, ignoring a leading < or >.
func (e Entry) Numeric() (float64, bool) {
	return ParseNumber(e.Value)
}

// Time parses the entry date. Entries with unparseable dates report false.
func (e Entry) Time() (time.Time, bool) {
	return ParseDate(e.Date)
}

// wireEntry is the boundary shape expected by formatting and chart consumers.
type wireEntry struct {
	Date           string `json:"Date"`
	Value          string `json:"Value"`
	Unit           string `json:"Unit"`
	ReferenceRange string `json:"Reference Range"`
	Status         string `json:"Status"`
	Type           string `json:"Type"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry{
		Date:           e.Date,
		Value:          e.Value,
		Unit:           e.Unit,
		ReferenceRange: e.ReferenceRange,
		Status:         e.Status(),
		Type:           string(e.RecordType()),
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}
	*e = FromStatus(w.Date, w.Value, w.Unit, w.ReferenceRange, w.Status, Type(w.Type))
	return nil
}

// FromStatus builds an entry from the flat boundary representation,
// routing status into the variant selected by typ.
func FromStatus(date, value, unit, refRange, status string, typ Type) Entry {
	e := Entry{Date: date, Value: value, Unit: unit, ReferenceRange: refRange, Type: typ}
	if typ.HasNarrative() {
		e.Narrative = status
	} else {
		e.Classification = Classification(status)
	}
	return e
}

// Corpus maps a canonical record name to its series. Series order follows
// source file and match order, not chronology.
type Corpus map[string][]Entry

// Add appends entries to the named series.
func (c Corpus) Add(name string, entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	c[name] = append(c[name], entries...)
}

// Merge concatenates every series of other onto c. Nothing is de-duplicated.
func (c Corpus) Merge(other Corpus) {
	for _, name := range other.Names() {
		c.Add(name, other[name]...)
	}
}

// Names returns the series names in sorted order.
func (c Corpus) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntryCount returns the total number of entries across all series.
func (c Corpus) EntryCount() int {
	n := 0
	for _, entries := range c {
		n += len(entries)
	}
	return n
}

// Clone returns a copy whose series can be appended to independently.
func (c Corpus) Clone() Corpus {
	out := make(Corpus, len(c))
	for name, entries := range c {
		out[name] = append([]Entry(nil), entries...)
	}
	return out
}

// SeriesType is the type of the first entry, which decides how a series is
// displayed and whether its name is normalized.
func SeriesType(entries []Entry) Type {
	if len(entries) == 0 {
		return TypeLabTest
	}
	return entries[0].RecordType()
}

// ParseNumber parses s as a float after trimming space and stripping
// comparison markers.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseDate parses the M/D/YYYY dates printed by the supported reports.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse("1/2/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
