// Package loader builds a corpus from a folder of converted report documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/labtrend/labtrend/internal/domain/record"
	"github.com/labtrend/labtrend/internal/extract"
)

// ErrDataDirNotFound is returned when the input folder does not exist.
var ErrDataDirNotFound = errors.New("data directory not found")

// DefaultExtensions are the file extensions read when none are configured.
var DefaultExtensions = []string{".json"}

// Normalizer canonicalizes lab-test names before merging.
type Normalizer interface {
	Normalize(name string) string
}

// Options controls which files are read and how many are parsed at once.
type Options struct {
	Extensions []string
	Workers    int
}

// FileStatus is the per-file outcome of a load.
type FileStatus string

const (
	FileParsed  FileStatus = "parsed"
	FileEmpty   FileStatus = "empty"
	FileSkipped FileStatus = "skipped"
	FileFailed  FileStatus = "failed"
)

// FileResult describes one file of a batch.
type FileResult struct {
	Name    string
	Status  FileStatus
	Formats []extract.Format
	Names   int
	Entries int
	Err     error

	records record.Corpus
}

// Summary holds the diagnostic counts of a batch.
type Summary struct {
	BatchID uuid.UUID
	Files   int
	Parsed  int
	Empty   int
	Skipped int
	Failed  int
	Names   int
	Entries int
	Results []FileResult
}

// Batch is a fully built corpus and how it was built.
type Batch struct {
	Corpus  record.Corpus
	Summary Summary
}

// Loader runs the extract pipeline over every document in a folder.
type Loader struct {
	extractor  *extract.Extractor
	normalizer Normalizer
	logger     zerolog.Logger
	opts       Options
}

// New returns a Loader. Missing options fall back to .json files parsed one
// at a time.
func New(x *extract.Extractor, n Normalizer, logger zerolog.Logger, opts Options) *Loader {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Loader{extractor: x, normalizer: n, logger: logger, opts: opts}
}

// Load reads every matching file in dir, in file-name order, and merges the
// results into a new corpus. Per-file problems are logged and counted but
// never fail the batch. Files are parsed in parallel when more than one
// worker is configured; the merge order stays sorted by file name.
func (l *Loader) Load(ctx context.Context, dir string) (*Batch, error) {
	files, err := l.listFiles(dir)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	log := l.logger.With().Str("batch_id", batchID.String()).Str("dir", dir).Logger()

	batch := &Batch{Corpus: record.Corpus{}, Summary: Summary{BatchID: batchID, Files: len(files)}}
	if len(files) == 0 {
		log.Warn().Strs("extensions", l.opts.Extensions).Msg("no input files found")
		return batch, nil
	}
	log.Info().Int("files", len(files)).Int("workers", l.opts.Workers).
		Interface("limits", l.extractor.Limits()).Msg("loading files")

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = l.LoadFile(filepath.Join(dir, name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}

	for _, res := range results {
		l.report(log, res)
		switch res.Status {
		case FileParsed:
			batch.Summary.Parsed++
			l.Merge(batch.Corpus, res.records)
		case FileEmpty:
			batch.Summary.Empty++
		case FileSkipped:
			batch.Summary.Skipped++
		case FileFailed:
			batch.Summary.Failed++
		}
		res.records = nil
		batch.Summary.Results = append(batch.Summary.Results, res)
	}
	batch.Summary.Names = len(batch.Corpus)
	batch.Summary.Entries = batch.Corpus.EntryCount()

	log.Info().
		Int("files", batch.Summary.Files).
		Int("parsed", batch.Summary.Parsed).
		Int("empty", batch.Summary.Empty).
		Int("skipped", batch.Summary.Skipped).
		Int("failed", batch.Summary.Failed).
		Int("names", batch.Summary.Names).
		Int("entries", batch.Summary.Entries).
		Msg("load complete")

	return batch, nil
}

// LoadFile parses a single document. A panic inside the pipeline is
// recovered and reported as a failed file.
func (l *Loader) LoadFile(path string) (res FileResult) {
	res.Name = filepath.Base(path)
	defer func() {
		if r := recover(); r != nil {
			res = FileResult{Name: res.Name, Status: FileFailed, Err: fmt.Errorf("parse panic: %v", r)}
		}
	}()

	doc, err := ReadDocument(path)
	if err != nil {
		res.Status, res.Err = FileFailed, err
		return res
	}
	text := doc.Text()
	if text == "" {
		res.Status = FileSkipped
		res.Err = errors.New("no text content (missing full_text or raw_text)")
		return res
	}

	out := l.extractor.Extract(text)
	res.Formats = out.Formats
	res.records = out.Records
	res.Names = len(out.Records)
	res.Entries = out.Records.EntryCount()
	if res.Entries == 0 {
		res.Status = FileEmpty
		return res
	}
	res.Status = FileParsed
	return res
}

// Merge appends src onto dst, canonicalizing the names of lab-test series.
// Other record types keep their literal names. Nothing is de-duplicated.
func (l *Loader) Merge(dst, src record.Corpus) {
	for _, name := range src.Names() {
		entries := src[name]
		key := name
		if record.SeriesType(entries).Normalizable() {
			key = l.normalizer.Normalize(name)
		}
		if key != name {
			l.logger.Debug().Str("from", name).Str("to", key).Msg("normalized name")
		}
		dst.Add(key, entries...)
	}
}

func (l *Loader) report(log zerolog.Logger, res FileResult) {
	switch res.Status {
	case FileParsed:
		formats := make([]string, len(res.Formats))
		for i, f := range res.Formats {
			formats[i] = string(f)
		}
		log.Info().Str("file", res.Name).Int("names", res.Names).Int("entries", res.Entries).Strs("formats", formats).Msg("file parsed")
	case FileEmpty:
		log.Warn().Str("file", res.Name).Msg("no records found")
	case FileSkipped:
		log.Warn().Str("file", res.Name).Err(res.Err).Msg("file skipped")
	case FileFailed:
		log.Error().Str("file", res.Name).Err(res.Err).Msg("file failed")
	}
}

// listFiles returns the names of the files in dir with a configured
// extension, sorted.
func (l *Loader) listFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDataDirNotFound, dir)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDataDirNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !l.hasExtension(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

func (l *Loader) hasExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range l.opts.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
