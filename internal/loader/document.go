package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is one input file: the text of a converted report plus optional
// converter metadata. Only the text fields are read by the pipeline.
type Document struct {
	SourceFile string `json:"source_file,omitempty"`
	FullText   string `json:"full_text,omitempty"`
	RawText    string `json:"raw_text,omitempty"`
}

// Text returns full_text, falling back to raw_text.
func (d Document) Text() string {
	if d.FullText != "" {
		return d.FullText
	}
	return d.RawText
}

// ReadDocument reads path as a JSON document, or as plain text when the
// file has a .txt extension.
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return Document{SourceFile: filepath.Base(path), RawText: string(data)}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}
