package extract

// Default bounds on how much text a parser scans or keeps. They bound entry
// size; none of them changes which records are found.
const (
	DefaultPanelWindow         = 4000
	DefaultProcedureWindow     = 3000
	DefaultProcedureAltWindow  = 4000
	DefaultImpressionLimit     = 500
	DefaultNarrativeLimit      = 1000
	DefaultFindingsLimit       = 800
	DefaultRecommendationLimit = 300
	DefaultNoteLimit           = 500
)

// Limits holds the scan windows and truncation lengths used by the parsers.
// A zero value disables the corresponding bound.
type Limits struct {
	PanelWindow         int `mapstructure:"LIMIT_PANEL_WINDOW"`
	ProcedureWindow     int `mapstructure:"LIMIT_PROCEDURE_WINDOW"`
	ProcedureAltWindow  int `mapstructure:"LIMIT_PROCEDURE_ALT_WINDOW"`
	ImpressionLimit     int `mapstructure:"LIMIT_IMPRESSION"`
	NarrativeLimit      int `mapstructure:"LIMIT_NARRATIVE"`
	FindingsLimit       int `mapstructure:"LIMIT_FINDINGS"`
	RecommendationLimit int `mapstructure:"LIMIT_RECOMMENDATIONS"`
	NoteLimit           int `mapstructure:"LIMIT_NOTE"`
}

// DefaultLimits returns the bounds the report formats were tuned against.
func DefaultLimits() Limits {
	return Limits{
		PanelWindow:         DefaultPanelWindow,
		ProcedureWindow:     DefaultProcedureWindow,
		ProcedureAltWindow:  DefaultProcedureAltWindow,
		ImpressionLimit:     DefaultImpressionLimit,
		NarrativeLimit:      DefaultNarrativeLimit,
		FindingsLimit:       DefaultFindingsLimit,
		RecommendationLimit: DefaultRecommendationLimit,
		NoteLimit:           DefaultNoteLimit,
	}
}
