package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// errNoReferencedRow is ER_NO_REFERENCED_ROW_2, raised when the parent subject is missing.
const errNoReferencedRow = 1452

// Repository provides MariaDB-backed subject, observation and watcher storage.
type Repository struct {
	pool *Pool
}

// NewRepository creates a new MariaDB repository.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", database.ErrUnavailable, op, err)
}

func isForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errNoReferencedRow
}

// encodeDescriptor stores a descriptor as a flat JSON list.
func encodeDescriptor(d facematch.Descriptor) ([]byte, error) {
	if d == nil {
		d = facematch.Descriptor{}
	}
	data, err := json.Marshal([]float32(d))
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	return data, nil
}

func decodeDescriptor(data []byte) (facematch.Descriptor, error) {
	var values []float32
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	return facematch.Descriptor(values), nil
}

const observationColumns = `id, subject_id, location, date_context, start_date, end_date,
	submitted_at, note, image_ref, submitter`

// ListSubjects returns every subject ordered by ascending ID.
func (r *Repository) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	tx, err := r.pool.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	subjects, index, err := querySubjects(ctx, tx, "SELECT id, name, created_at FROM subjects ORDER BY id")
	if err != nil || len(subjects) == 0 {
		return subjects, err
	}
	if err := loadDescriptors(ctx, tx, subjects, index,
		"SELECT subject_id, descriptor FROM subject_descriptors ORDER BY subject_id, id"); err != nil {
		return nil, err
	}
	if err := loadObservations(ctx, tx, subjects, index,
		"SELECT "+observationColumns+" FROM observations ORDER BY subject_id, id"); err != nil {
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

	subjects, index, err := querySubjects(ctx, tx, "SELECT id, name, created_at FROM subjects WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, database.ErrNotFound
	}
	if err := loadDescriptors(ctx, tx, subjects, index,
		"SELECT subject_id, descriptor FROM subject_descriptors WHERE subject_id = ? ORDER BY id", id); err != nil {
		return nil, err
	}
	if err := loadObservations(ctx, tx, subjects, index,
		"SELECT "+observationColumns+" FROM observations WHERE subject_id = ? ORDER BY id", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit transaction", err)
	}
	return &subjects[0], nil
}

// CreateSubject inserts the subject, its descriptor and its first observation in one transaction.
func (r *Repository) CreateSubject(ctx context.Context, ns database.NewSubject) (int64, error) {
	data, err := encodeDescriptor(ns.Descriptor)
	if err != nil {
		return 0, err
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO subjects (name, created_at) VALUES (?, ?)", ns.Name, ns.Observation.SubmittedAt.UTC())
	if err != nil {
		return 0, unavailable("insert subject", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("read subject id", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO subject_descriptors (subject_id, descriptor, dim) VALUES (?, ?, ?)",
		id, data, len(ns.Descriptor),
	); err != nil {
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

// AppendObservation inserts one observation row.
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

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertObservation(ctx context.Context, e execer, subjectID int64, obs *database.Observation) (int64, error) {
	res, err := e.ExecContext(ctx, `
		INSERT INTO observations (subject_id, location, date_context, start_date, end_date,
		                          submitted_at, note, image_ref, submitter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		subjectID,
		obs.Location,
		obs.DateContext,
		nullTime(obs.StartDate),
		nullTime(obs.EndDate),
		obs.SubmittedAt.UTC(),
		obs.Note,
		obs.ImageRef,
		obs.Submitter,
	)
	if isForeignKeyViolation(err) {
		return 0, database.ErrNotFound
	}
	if err != nil {
		return 0, unavailable("insert observation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("read observation id", err)
	}
	return id, nil
}

// AddWatch records a subscription; INSERT IGNORE would also hide the foreign
// key error, so duplicates are absorbed by a no-op update instead.
func (r *Repository) AddWatch(ctx context.Context, watcher string, subjectID int64) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO watchers (watcher, subject_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE watcher = watcher
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
		"SELECT watcher FROM watchers WHERE subject_id = ? ORDER BY watcher", subjectID)
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
		var data []byte
		if err := rows.Scan(&subjectID, &data); err != nil {
			return fmt.Errorf("scan descriptor: %w", err)
		}
		d, err := decodeDescriptor(data)
		if err != nil {
			return fmt.Errorf("subject %d: %w", subjectID, err)
		}
		if i, ok := index[subjectID]; ok {
			subjects[i].Descriptors = append(subjects[i].Descriptors, d)
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
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ database.Repository = (*Repository)(nil)
