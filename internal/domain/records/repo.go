package records

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/labtrend/labtrend/internal/domain/record"
)

// ErrSnapshotNotFound is returned when no snapshot has the requested id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

type SnapshotRepository interface {
	Create(ctx context.Context, s *Snapshot, corpus record.Corpus) error
	GetByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	LoadCorpus(ctx context.Context, id uuid.UUID) (record.Corpus, error)
	List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
