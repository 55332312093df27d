package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labtrend/labtrend/internal/domain/record"
	"github.com/labtrend/labtrend/internal/loader"
	"github.com/labtrend/labtrend/internal/platform/websocket"
)

type mockLoader struct {
	batch *loader.Batch
	err   error
	calls int
	dirs  []string
}

func (m *mockLoader) Load(ctx context.Context, dir string) (*loader.Batch, error) {
	m.calls++
	m.dirs = append(m.dirs, dir)
	if m.err != nil {
		return nil, m.err
	}
	return m.batch, nil
}

type mockSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*Snapshot
	corpora   map[uuid.UUID]record.Corpus
	clock     time.Time
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{
		snapshots: make(map[uuid.UUID]*Snapshot),
		corpora:   make(map[uuid.UUID]record.Corpus),
		clock:     time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *mockSnapshotRepo) Create(_ context.Context, s *Snapshot, corpus record.Corpus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.Names = len(corpus)
	s.Entries = corpus.EntryCount()
	m.clock = m.clock.Add(time.Minute)
	s.CreatedAt = m.clock
	cp := *s
	m.snapshots[s.ID] = &cp
	m.corpora[s.ID] = corpus.Clone()
	return nil
}

func (m *mockSnapshotRepo) GetByID(_ context.Context, id uuid.UUID) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return s, nil
}

func (m *mockSnapshotRepo) LoadCorpus(_ context.Context, id uuid.UUID) (record.Corpus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return c.Clone(), nil
}

func (m *mockSnapshotRepo) List(_ context.Context, limit, offset int) ([]*Snapshot, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Snapshot
	for _, s := range m.snapshots {
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (m *mockSnapshotRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return ErrSnapshotNotFound
	}
	delete(m.snapshots, id)
	delete(m.corpora, id)
	return nil
}

func testCorpus() record.Corpus {
	return record.Corpus{
		"Glucose": {
			{Date: "01/15/2024", Value: "105", Unit: "mg/dL", ReferenceRange: "70-99", Classification: record.High},
			{Date: "06/10/2024", Value: "92", Unit: "mg/dL", ReferenceRange: "70-99", Classification: record.Normal},
			{Date: "03/02/2024", Value: "88", Unit: "mg/dL", ReferenceRange: "70-99", Classification: record.Normal},
		},
		"WBC'S AUTO": {
			{Date: "02/01/2024", Value: "4.2", Unit: "K/uL", ReferenceRange: "4.0-11.0", Classification: record.Normal},
		},
		"Urine Calcium": {
			{Date: "02/01/2024", Value: "7.1", Unit: "mg/dL", Classification: record.Normal},
		},
		"XR CHEST 2 VIEWS": {
			{Date: "03/03/2023", Value: "XR CHEST 2 VIEWS", Type: record.TypeProcedure, Narrative: "No acute disease."},
		},
	}
}

func testBatch() *loader.Batch {
	return &loader.Batch{
		Corpus: testCorpus(),
		Summary: loader.Summary{
			BatchID: uuid.New(),
			Files:   3,
			Parsed:  2,
			Empty:   1,
		},
	}
}

type mockPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (m *mockPublisher) Publish(_ context.Context, ev websocket.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}
