package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// foreignKeyViolation is the SQLSTATE raised when a referenced subject does not exist.
const foreignKeyViolation = "23503"

// Repository provides PostgreSQL-backed subject, observation and watcher storage.
type Repository struct {
	pool *Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// unavailable marks err as a backend failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", database.ErrUnavailable, op, err)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

// ListSubjects returns every subject ordered by ascending ID.
// The three reads run in one repeatable-read snapshot so a concurrent create cannot
// produce a subject without its descriptor.
func (r *Repository) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	tx, err := r.pool.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	subjects, index, err := querySubjects(ctx, tx, "SELECT id, name, created_at FROM subjects ORDER BY id")
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return subjects, nil
	}

	if err := loadDescriptors(ctx, tx, subjects, index,
		"SELECT subject_id, descriptor FROM subject_descriptors ORDER BY subject_id, id"); err != nil {
		return nil, err
	}
	if err := loadObservations(ctx, tx, subjects, index, `
		SELECT id, subject_id, location, date_context, start_date, end_date, submitted_at, note, image_ref, submitter
		FROM observations
		ORDER BY subject_id, id
	`); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit transaction", err)
	}
	return subjects, nil
}

// GetSubject returns a single subject by ID.
func (r *Repository) GetSubject(ctx context.Context, id int64) (*database.Subject, error) {
	tx, err := r.pool.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	subjects, index, err := querySubjects(ctx, tx, "SELECT id, name, created_at FROM subjects WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, database.ErrNotFound
	}

	if err := loadDescriptors(ctx, tx, subjects, index,
		"SELECT subject_id, descriptor FROM subject_descriptors WHERE subject_id = $1 ORDER BY id", id); err != nil {
		return nil, err
	}
	if err := loadObservations(ctx, tx, subjects, index, `
		SELECT id, subject_id, location, date_context, start_date, end_date, submitted_at, note, image_ref, submitter
		FROM observations
		WHERE subject_id = $1
		ORDER BY id
	`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit transaction", err)
	}
	return &subjects[0], nil
}

// CreateSubject inserts the subject, its descriptor and its first observation in one transaction.
func (r *Repository) CreateSubject(ctx context.Context, ns database.NewSubject) (int64, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO subjects (name, created_at) VALUES ($1, $2) RETURNING id",
		ns.Name, ns.Observation.SubmittedAt,
	).Scan(&id)
	if err != nil {
		return 0, unavailable("insert subject", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO subject_descriptors (subject_id, descriptor, dim) VALUES ($1, $2::vector, $3)",
		id, pgvector.NewVector(ns.Descriptor), len(ns.Descriptor),
	)
	if err != nil {
		return 0, unavailable("insert descriptor", err)
	}

	if _, err := insertObservation(ctx, tx, id, &ns.Observation); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit transaction", err)
	}
	return id, nil
}

// AppendObservation inserts one observation row. A single INSERT is atomic, and
// ordering by the serial ID keeps insertion order.
func (r *Repository) AppendObservation(
	ctx context.Context, subjectID int64, obs database.Observation,
) (*database.Observation, error) {
	id, err := insertObservation(ctx, r.pool.db, subjectID, &obs)
	if err != nil {
		return nil, err
	}
	obs.ID = id
	obs.SubjectID = subjectID
	return &obs, nil
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertObservation(ctx context.Context, q execQuerier, subjectID int64, obs *database.Observation) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO observations (subject_id, location, date_context, start_date, end_date,
		                          submitted_at, note, image_ref, submitter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		subjectID,
		obs.Location,
		obs.DateContext,
		nullTime(obs.StartDate),
		nullTime(obs.EndDate),
		obs.SubmittedAt,
		obs.Note,
		obs.ImageRef,
		obs.Submitter,
	).Scan(&id)
	if isForeignKeyViolation(err) {
		return 0, database.ErrNotFound
	}
	if err != nil {
		return 0, unavailable("insert observation", err)
	}
	return id, nil
}

// AddWatch records a subscription. The primary key makes repeated calls no-ops.
func (r *Repository) AddWatch(ctx context.Context, watcher string, subjectID int64) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO watchers (watcher, subject_id)
		VALUES ($1, $2)
		ON CONFLICT (watcher, subject_id) DO NOTHING
	`, watcher, subjectID)
	if isForeignKeyViolation(err) {
		return database.ErrNotFound
	}
	if err != nil {
		return unavailable("insert watcher", err)
	}
	return nil
}

// FindWatchers returns the distinct watchers of a subject.
func (r *Repository) FindWatchers(ctx context.Context, subjectID int64) ([]string, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT watcher FROM watchers WHERE subject_id = $1 ORDER BY watcher", subjectID)
	if err != nil {
		return nil, unavailable("query watchers", err)
	}
	defer rows.Close()

	watchers := []string{}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan watcher: %w", err)
		}
		watchers = append(watchers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate watchers", err)
	}
	return watchers, nil
}

// Close closes the underlying pool.
func (r *Repository) Close() error {
	return r.pool.Close()
}

func querySubjects(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]database.Subject, map[int64]int, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, unavailable("query subjects", err)
	}
	defer rows.Close()

	var subjects []database.Subject
	index := make(map[int64]int)
	for rows.Next() {
		var s database.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan subject: %w", err)
		}
		index[s.ID] = len(subjects)
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, unavailable("iterate subjects", err)
	}
	return subjects, index, nil
}

func loadDescriptors(
	ctx context.Context, tx *sql.Tx, subjects []database.Subject, index map[int64]int, query string, args ...any,
) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return unavailable("query descriptors", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subjectID int64
		var vec pgvector.Vector
		if err := rows.Scan(&subjectID, &vec); err != nil {
			return fmt.Errorf("scan descriptor: %w", err)
		}
		if i, ok := index[subjectID]; ok {
			subjects[i].Descriptors = append(subjects[i].Descriptors, facematch.Descriptor(vec.Slice()))
		}
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterate descriptors", err)
	}
	return nil
}

func loadObservations(
	ctx context.Context, tx *sql.Tx, subjects []database.Subject, index map[int64]int, query string, args ...any,
) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return unavailable("query observations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o database.Observation
		var start, end sql.NullTime
		if err := rows.Scan(
			&o.ID, &o.SubjectID, &o.Location, &o.DateContext, &start, &end,
			&o.SubmittedAt, &o.Note, &o.ImageRef, &o.Submitter,
		); err != nil {
			return fmt.Errorf("scan observation: %w", err)
		}
		o.StartDate = timePtr(start)
		o.EndDate = timePtr(end)
		if i, ok := index[o.SubjectID]; ok {
			subjects[i].Observations = append(subjects[i].Observations, o)
		}
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterate observations", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ database.Repository = (*Repository)(nil)
