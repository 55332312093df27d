// Package extract turns free-form LabCorp and Kaiser Permanente report text
// into record series.
//
// Each parser is a set of line or section grammars evaluated first-match-wins.
// Lines or segments that match no grammar are dropped silently; parsers never
// return errors.
package extract

import (
	"github.com/rs/zerolog"

	"github.com/labtrend/labtrend/internal/domain/record"
)

// Extractor runs the format parsers with a shared set of limits. Diagnostic
// output goes to the logger at debug level.
type Extractor struct {
	limits Limits
	logger zerolog.Logger
}

// New returns an Extractor using the given limits and logger.
func New(limits Limits, logger zerolog.Logger) *Extractor {
	return &Extractor{limits: limits, logger: logger}
}

// NewDefault returns an Extractor with default limits and no logging.
func NewDefault() *Extractor {
	return New(DefaultLimits(), zerolog.Nop())
}

// Limits returns the limits in effect.
func (x *Extractor) Limits() Limits { return x.limits }

// Result is the output of running every applicable parser over one document.
type Result struct {
	Formats []Format
	Records record.Corpus
}

// Parse runs the parser for a single format.
func (x *Extractor) Parse(format Format, text string) record.Corpus {
	switch format {
	case FormatLabCorp:
		return x.ParseLabCorp(text)
	case FormatKaiserLab:
		return x.ParseKaiserLab(text)
	case FormatKaiserRecord:
		return x.ParseMedicalRecord(text)
	}
	return record.Corpus{}
}

// Extract detects the formats present in text and merges the output of each
// matching parser. No matching format yields an empty result.
func (x *Extractor) Extract(text string) Result {
	res := Result{Formats: Detect(text), Records: record.Corpus{}}
	for _, f := range res.Formats {
		out := x.Parse(f, text)
		x.logger.Debug().Str("format", string(f)).Int("names", len(out)).Int("entries", out.EntryCount()).Msg("parser finished")
		x.mergeInto(res.Records, out, string(f))
	}
	return res
}

// mergeInto concatenates src onto dst. Keys produced by two different
// parsers of the same document are kept side by side and reported.
func (x *Extractor) mergeInto(dst, src record.Corpus, origin string) {
	for _, name := range src.Names() {
		if _, exists := dst[name]; exists {
			x.logger.Warn().Str("name", name).Str("parser", origin).Msg("record name produced by more than one parser")
		}
		dst.Add(name, src[name]...)
	}
}
