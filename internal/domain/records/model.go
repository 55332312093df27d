package records

import (
	"time"

	"github.com/google/uuid"

	"github.com/labtrend/labtrend/internal/domain/record"
	"github.com/labtrend/labtrend/internal/platform/reporting"
)

// Snapshot is a stored copy of a corpus.
type Snapshot struct {
	ID        uuid.UUID  `json:"id"`
	Label     string     `json:"label"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"`
	Names     int        `json:"names"`
	Entries   int        `json:"entries"`
	CreatedAt time.Time  `json:"created_at"`
}

// LoadStatus describes the corpus currently being served.
type LoadStatus struct {
	Source   string     `json:"source"`
	BatchID  *uuid.UUID `json:"batch_id,omitempty"`
	LoadedAt time.Time  `json:"loaded_at"`
	Files    int        `json:"files"`
	Parsed   int        `json:"parsed"`
	Empty    int        `json:"empty"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Names    int        `json:"names"`
	Entries  int        `json:"entries"`
}

// Load sources.
const (
	SourceNone     = "none"
	SourceFiles    = "files"
	SourceSnapshot = "snapshot"
)

// SeriesSummary is the listing form of a series.
type SeriesSummary struct {
	Name     string             `json:"name"`
	Type     record.Type        `json:"type"`
	Count    int                `json:"count"`
	Category reporting.Category `json:"category"`
}

// Series is a named list of entries.
type Series struct {
	Name    string         `json:"name"`
	Type    record.Type    `json:"type"`
	Entries []record.Entry `json:"entries"`
}

// QueryResult is the resolution of a free-text query.
type QueryResult struct {
	Query   string   `json:"query"`
	Tier    string   `json:"tier"`
	Matches []Series `json:"matches"`
}

// Report is the plain-text rendering of a series.
type Report struct {
	Name string `json:"name"`
	Text string `json:"text"`
}
