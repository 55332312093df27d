package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labtrend/labtrend/internal/domain/record"
	"github.com/labtrend/labtrend/internal/loader"
	"github.com/labtrend/labtrend/internal/match"
	"github.com/labtrend/labtrend/internal/platform/chart"
	"github.com/labtrend/labtrend/internal/platform/reporting"
	"github.com/labtrend/labtrend/internal/platform/websocket"
)

var (
	ErrSeriesNotFound = errors.New("series not found")
	ErrNoMatch        = errors.New("no match")
	ErrNoRepository   = errors.New("snapshot storage is not configured")
)

// CorpusLoader builds a corpus from a folder of documents.
type CorpusLoader interface {
	Load(ctx context.Context, dir string) (*loader.Batch, error)
}

// Service owns the corpus being served. Readers see either the previous
// corpus or the next one, never a partial build.
type Service struct {
	loader    CorpusLoader
	dataDir   string
	matcher   *match.Matcher
	snapshots SnapshotRepository
	events    []websocket.EventPublisher
	queries   *ristretto.Cache
	logger    zerolog.Logger

	// reloadMu serializes rebuilds; mu guards the swap.
	reloadMu sync.Mutex
	mu       sync.RWMutex
	corpus   record.Corpus
	status   LoadStatus
	// generation changes on every swap so cached matches never outlive
	// the corpus they were computed against.
	generation uint64
}

// NewService wires the corpus service. snapshots may be nil when no
// database is configured.
func NewService(l CorpusLoader, dataDir string, m *match.Matcher, snapshots SnapshotRepository, logger zerolog.Logger) *Service {
	return &Service{
		loader:    l,
		dataDir:   dataDir,
		matcher:   m,
		snapshots: snapshots,
		logger:    logger.With().Str("component", "records").Logger(),
		corpus:    record.Corpus{},
		status:    LoadStatus{Source: SourceNone},
	}
}

// AddPublisher sends change events to p after reloads, restores and
// snapshot changes. Call before serving.
func (s *Service) AddPublisher(p websocket.EventPublisher) {
	s.events = append(s.events, p)
}

func (s *Service) publish(ctx context.Context, topic, eventType string, data interface{}) {
	if len(s.events) == 0 {
		return
	}
	ev, err := websocket.NewEvent(topic, eventType, data)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("encode event failed")
		return
	}
	for _, p := range s.events {
		if err := p.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
		}
	}
}

// EnableQueryCache memoizes up to size query resolutions. Zero or a
// negative size leaves caching off.
func (s *Service) EnableQueryCache(size int64) error {
	if size <= 0 {
		return nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
		Metrics:     true,
		// Each resolution costs one slot regardless of its size.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return fmt.Errorf("create query cache: %w", err)
	}
	s.queries = cache
	return nil
}

// QueryCacheStats returns cache hits and misses since the cache was enabled.
func (s *Service) QueryCacheStats() (hits, misses uint64) {
	if s.queries == nil {
		return 0, 0
	}
	return s.queries.Metrics.Hits(), s.queries.Metrics.Misses()
}

// Close releases the query cache.
func (s *Service) Close() {
	if s.queries != nil {
		s.queries.Close()
	}
}

// HasSnapshots reports whether snapshot storage is configured.
func (s *Service) HasSnapshots() bool { return s.snapshots != nil }

func (s *Service) swap(c record.Corpus, status LoadStatus) {
	status.Names = len(c)
	status.Entries = c.EntryCount()
	status.LoadedAt = time.Now().UTC()

	s.mu.Lock()
	s.corpus = c
	s.status = status
	s.generation++
	s.mu.Unlock()
}

func (s *Service) current() record.Corpus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corpus
}

// resolve runs the matcher, consulting the query cache when enabled.
func (s *Service) resolve(query string) (record.Corpus, match.Result) {
	s.mu.RLock()
	c, gen := s.corpus, s.generation
	s.mu.RUnlock()

	if s.queries == nil {
		return c, s.matcher.Find(query, c.Names())
	}
	key := strconv.FormatUint(gen, 10) + "\x00" + query
	if v, ok := s.queries.Get(key); ok {
		return c, v.(match.Result)
	}
	res := s.matcher.Find(query, c.Names())
	s.queries.Set(key, res, 1)
	return c, res
}

// Reload rebuilds the corpus from the data folder and swaps it in. On
// error the previous corpus keeps being served.
func (s *Service) Reload(ctx context.Context) (*LoadStatus, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	batch, err := s.loader.Load(ctx, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("reload corpus: %w", err)
	}

	sum := batch.Summary
	batchID := sum.BatchID
	s.swap(batch.Corpus, LoadStatus{
		Source:  SourceFiles,
		BatchID: &batchID,
		Files:   sum.Files,
		Parsed:  sum.Parsed,
		Empty:   sum.Empty,
		Skipped: sum.Skipped,
		Failed:  sum.Failed,
	})

	status := s.Status()
	s.publish(ctx, websocket.TopicCorpus, websocket.EventCorpusReloaded, status)
	return &status, nil
}

// Replace serves a copy of c, bypassing the loader. The caller keeps
// ownership of c.
func (s *Service) Replace(c record.Corpus, source string) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	s.swap(c.Clone(), LoadStatus{Source: source})
}

// Status describes the corpus currently served.
func (s *Service) Status() LoadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Corpus returns the served corpus. Callers must not modify it.
func (s *Service) Corpus() record.Corpus {
	return s.current()
}

// Names lists every series. A non-empty category keeps only series in
// that display bucket.
func (s *Service) Names(category reporting.Category) []SeriesSummary {
	c := s.current()
	out := make([]SeriesSummary, 0, len(c))
	for _, name := range c.Names() {
		cat := reporting.Categorize(name)
		if category != "" && cat != category {
			continue
		}
		out = append(out, SeriesSummary{
			Name:     name,
			Type:     record.SeriesType(c[name]),
			Count:    len(c[name]),
			Category: cat,
		})
	}
	return out
}

// Series returns the entries of one series by its exact name, newest first.
func (s *Service) Series(name string) (*Series, error) {
	entries, ok := s.current()[name]
	if !ok {
		return nil, ErrSeriesNotFound
	}
	return &Series{
		Name:    name,
		Type:    record.SeriesType(entries),
		Entries: reporting.SortNewestFirst(entries),
	}, nil
}

// Query resolves free text to series using the matcher tiers.
func (s *Service) Query(query string) (*QueryResult, error) {
	c, res := s.resolve(query)
	if !res.Matched() {
		return nil, ErrNoMatch
	}

	out := &QueryResult{Query: query, Tier: res.Tier.String()}
	for _, name := range res.Names {
		entries := c[name]
		out.Matches = append(out.Matches, Series{
			Name:    name,
			Type:    record.SeriesType(entries),
			Entries: reporting.SortNewestFirst(entries),
		})
	}
	return out, nil
}

// Abnormal returns every out-of-range entry grouped by series.
func (s *Service) Abnormal() []reporting.AbnormalSeries {
	return reporting.FindAbnormal(s.current())
}

// Chart builds the trend chart data for one series.
func (s *Service) Chart(name string) (*chart.Chart, error) {
	entries, ok := s.current()[name]
	if !ok {
		return nil, ErrSeriesNotFound
	}
	return chart.Build(name, entries)
}

// Report renders one series as display text.
func (s *Service) Report(name string) (*Report, error) {
	entries, ok := s.current()[name]
	if !ok {
		return nil, ErrSeriesNotFound
	}
	return &Report{Name: name, Text: reporting.FormatSeries(entries)}, nil
}

// -- Snapshots --

func (s *Service) SaveSnapshot(ctx context.Context, label string) (*Snapshot, error) {
	if s.snapshots == nil {
		return nil, ErrNoRepository
	}

	s.mu.RLock()
	c, status := s.corpus, s.status
	s.mu.RUnlock()

	snap := &Snapshot{Label: strings.TrimSpace(label), BatchID: status.BatchID}
	if err := s.snapshots.Create(ctx, snap, c); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Info().
		Str("snapshot_id", snap.ID.String()).
		Int("names", snap.Names).
		Int("entries", snap.Entries).
		Msg("snapshot saved")
	s.publish(ctx, websocket.TopicSnapshots, websocket.EventSnapshotSaved, snap)
	return snap, nil
}

func (s *Service) ListSnapshots(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	if s.snapshots == nil {
		return nil, 0, ErrNoRepository
	}
	return s.snapshots.List(ctx, limit, offset)
}

// RestoreSnapshot serves a stored corpus in place of the loaded one.
func (s *Service) RestoreSnapshot(ctx context.Context, id uuid.UUID) (*LoadStatus, error) {
	if s.snapshots == nil {
		return nil, ErrNoRepository
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.snapshots.LoadCorpus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot corpus: %w", err)
	}
	s.swap(c, LoadStatus{Source: SourceSnapshot, BatchID: snap.BatchID})

	status := s.Status()
	s.logger.Info().
		Str("snapshot_id", id.String()).
		Int("names", status.Names).
		Int("entries", status.Entries).
		Msg("snapshot restored")
	s.publish(ctx, websocket.TopicCorpus, websocket.EventCorpusRestored, status)
	return &status, nil
}

func (s *Service) DeleteSnapshot(ctx context.Context, id uuid.UUID) error {
	if s.snapshots == nil {
		return ErrNoRepository
	}
	if err := s.snapshots.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, websocket.TopicSnapshots, websocket.EventSnapshotDeleted, map[string]string{"id": id.String()})
	return nil
}
