// Package convert turns extracted report text and saved HTML reports into
// the JSON documents read by the loader.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	// ErrNoText is returned for input that carries no usable text layer, as
	// with scanned or image-only reports.
	ErrNoText = errors.New("could not extract text (file may be scanned or image-based)")
	// ErrInProgress is returned when another conversion holds the output
	// folder.
	ErrInProgress = errors.New("another conversion is writing to the output folder")
)

// minTextLength is the shortest trimmed text accepted as a report.
const minTextLength = 10

// Conversion methods recorded in document metadata.
const (
	ConversionMethod     = "text_import"
	HTMLConversionMethod = "html_import"
)

// lockFile guards an output folder against concurrent conversions.
const lockFile = ".convert.lock"

// DefaultOutputDir is the folder created inside the input folder when no
// output folder is given.
const DefaultOutputDir = "txt_json"

// sketchKeywords select lines copied into the tests sketch.
var sketchKeywords = []string{"glucose", "cholesterol", "hemoglobin", "wbc", "rbc"}

// TestSketch is a candidate result line. Only Test and RawLine are filled;
// the other fields exist for consumers that expect them.
type TestSketch struct {
	Test           string `json:"Test"`
	Value          string `json:"Value"`
	Unit           string `json:"Unit"`
	ReferenceRange string `json:"Reference Range"`
	Status         string `json:"Status"`
	Date           string `json:"Date"`
	RawLine        string `json:"raw_line"`
}

type Metadata struct {
	ConversionMethod string `json:"conversion_method"`
}

// Document is the JSON written for each converted report.
type Document struct {
	SourceFile string       `json:"source_file"`
	RawText    string       `json:"raw_text"`
	Tests      []TestSketch `json:"tests"`
	Metadata   Metadata     `json:"metadata"`
}

// FromText builds the document for one report. Text shorter than ten
// non-blank characters yields ErrNoText.
func FromText(text, sourceFile string) (Document, error) {
	return fromText(text, sourceFile, ConversionMethod)
}

// FromHTML builds the document for a saved HTML report from its visible
// text. Scripts and styles are dropped; block elements and table rows each
// become one line.
func FromHTML(r io.Reader, sourceFile string) (Document, error) {
	text, err := HTMLText(r)
	if err != nil {
		return Document{}, err
	}
	return fromText(text, sourceFile, HTMLConversionMethod)
}

// HTMLText extracts the visible text of an HTML document, one line per
// block element, with runs of whitespace collapsed.
func HTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var b strings.Builder
	writeText(&b, doc.Find("body"))

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "tr": true, "li": true, "table": true, "section": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "header": true, "footer": true, "article": true,
}

func writeText(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		name := goquery.NodeName(child)
		switch {
		case name == "#text":
			b.WriteString(child.Text())
		case name == "br":
			b.WriteByte('\n')
		case skippedElements[name]:
		default:
			writeText(b, child)
			if blockElements[name] {
				b.WriteByte('\n')
			} else if name == "td" || name == "th" {
				b.WriteByte(' ')
			}
		}
	})
}

func fromText(text, sourceFile, method string) (Document, error) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minTextLength {
		return Document{}, ErrNoText
	}
	doc := Document{
		SourceFile: sourceFile,
		RawText:    text,
		Tests:      []TestSketch{},
		Metadata:   Metadata{ConversionMethod: method},
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, k := range sketchKeywords {
			if strings.Contains(lower, k) {
				doc.Tests = append(doc.Tests, TestSketch{Test: line, RawLine: line})
				break
			}
		}
	}
	return doc, nil
}

// Result reports what ConvertDir did. Errors holds one message per file that
// could not be converted.
type Result struct {
	Converted int      `json:"converted"`
	OutputDir string   `json:"output_dir"`
	Errors    []string `json:"errors,omitempty"`
}

// Converter writes JSON documents for a folder of .txt and .html reports.
type Converter struct {
	logger zerolog.Logger
}

func NewConverter(logger zerolog.Logger) *Converter {
	return &Converter{logger: logger}
}

// ConvertDir converts every .txt, .html and .htm file in inputDir. An empty
// outputDir selects inputDir/txt_json. Per-file failures are collected, not
// returned. Only one conversion may write to an output folder at a time;
// a second one fails with ErrInProgress.
func (c *Converter) ConvertDir(ctx context.Context, inputDir, outputDir string) (*Result, error) {
	if outputDir == "" {
		outputDir = filepath.Join(inputDir, DefaultOutputDir)
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	lock := flock.New(filepath.Join(outputDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output dir: %w", err)
	}
	if !locked {
		return nil, ErrInProgress
	}
	defer lock.Unlock()

	res := &Result{OutputDir: outputDir}
	found := 0
	for _, e := range entries {
		if e.IsDir() || !convertible(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		found++
		if err := c.convertFile(filepath.Join(inputDir, e.Name()), outputDir); err != nil {
			c.logger.Warn().Str("file", e.Name()).Err(err).Msg("conversion failed")
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		res.Converted++
	}
	if found == 0 {
		res.Errors = append(res.Errors, "No text or HTML files found in the selected folder")
	}

	c.logger.Info().Int("converted", res.Converted).Int("errors", len(res.Errors)).Str("output_dir", outputDir).Msg("conversion complete")
	return res, nil
}

func isHTML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}

func convertible(name string) bool {
	return isHTML(name) || strings.EqualFold(filepath.Ext(name), ".txt")
}

func (c *Converter) convertFile(path, outputDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var doc Document
	if isHTML(path) {
		doc, err = FromHTML(bytes.NewReader(data), stem)
	} else {
		doc, err = FromText(string(data), stem)
	}
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return os.WriteFile(filepath.Join(outputDir, stem+".json"), out, 0o644)
}
