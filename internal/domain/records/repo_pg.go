package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labtrend/labtrend/internal/domain/record"
	"github.com/labtrend/labtrend/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type snapshotRepoPG struct{ pool *pgxpool.Pool }

func NewSnapshotRepoPG(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepoPG{pool: pool}
}

func (r *snapshotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const snapshotCols = `id, label, batch_id, names, entries, created_at`

var entryCols = []string{
	"snapshot_id", "name", "position", "date", "value", "unit",
	"reference_range", "record_type", "status",
}

func (r *snapshotRepoPG) scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.Label, &s.BatchID, &s.Names, &s.Entries, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *snapshotRepoPG) Create(ctx context.Context, s *Snapshot, corpus record.Corpus) error {
	s.ID = uuid.New()
	s.Names = len(corpus)
	s.Entries = corpus.EntryCount()

	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		err := q.QueryRow(ctx, `
			INSERT INTO corpus_snapshot (id, label, batch_id, names, entries)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING created_at`,
			s.ID, s.Label, s.BatchID, s.Names, s.Entries).Scan(&s.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}

		n, err := q.CopyFrom(ctx, pgx.Identifier{"corpus_entry"}, entryCols, pgx.CopyFromRows(entryRows(s.ID, corpus)))
		if err != nil {
			return fmt.Errorf("copy entries: %w", err)
		}
		if int(n) != s.Entries {
			return fmt.Errorf("copy entries: wrote %d of %d rows", n, s.Entries)
		}
		return nil
	})
}

// entryRows flattens a corpus into corpus_entry rows. position keeps the
// order of each series so LoadCorpus can rebuild it exactly.
func entryRows(snapshotID uuid.UUID, corpus record.Corpus) [][]interface{} {
	rows := make([][]interface{}, 0, corpus.EntryCount())
	for _, name := range corpus.Names() {
		for i, e := range corpus[name] {
			rows = append(rows, []interface{}{
				snapshotID, name, i, e.Date, e.Value, e.Unit,
				e.ReferenceRange, string(e.RecordType()), e.Status(),
			})
		}
	}
	return rows
}

func (r *snapshotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	return r.scanSnapshot(r.conn(ctx).QueryRow(ctx, `SELECT `+snapshotCols+` FROM corpus_snapshot WHERE id = $1`, id))
}

func (r *snapshotRepoPG) LoadCorpus(ctx context.Context, id uuid.UUID) (record.Corpus, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT name, date, value, unit, reference_range, record_type, status
		FROM corpus_entry WHERE snapshot_id = $1
		ORDER BY name, position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	corpus := record.Corpus{}
	for rows.Next() {
		var name, date, value, unit, refRange, typ, status string
		if err := rows.Scan(&name, &date, &value, &unit, &refRange, &typ, &status); err != nil {
			return nil, err
		}
		corpus.Add(name, record.FromStatus(date, value, unit, refRange, status, record.Type(typ)))
	}
	return corpus, rows.Err()
}

func (r *snapshotRepoPG) List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM corpus_snapshot`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+snapshotCols+` FROM corpus_snapshot ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		s, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *snapshotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM corpus_snapshot WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}
