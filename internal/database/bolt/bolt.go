// Package bolt implements database.Repository on an embedded bbolt file, for
// single-node deployments that do not want a database server.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"go.etcd.io/bbolt"
)

var (
	bucketSubjects = []byte("subjects")
	bucketWatchers = []byte("watchers")
)

// Store is a bbolt-backed repository. bbolt serializes write transactions, so
// every create and append is atomic.
type Store struct {
	db *bbolt.DB
}

type subjectRecord struct {
	Name         string                 `json:"name"`
	Descriptors  []facematch.Descriptor `json:"descriptors"`
	Observations []observationRecord    `json:"observations"`
	CreatedAt    time.Time              `json:"created_at"`
	NextObsID    int64                  `json:"next_obs_id"`
}

type observationRecord struct {
	ID          int64      `json:"id"`
	Location    string     `json:"location,omitempty"`
	DateContext string     `json:"date_context,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Note        string     `json:"note,omitempty"`
	ImageRef    string     `json:"image_ref,omitempty"`
	Submitter   string     `json:"submitter"`
}

// Open opens (or creates) the bolt file at path and ensures the buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %w", database.ErrUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSubjects, bucketWatchers} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// itob encodes an ID big-endian so bucket iteration yields ascending IDs.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func unavailable(op string, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", database.ErrUnavailable, op, err)
}

func (r *subjectRecord) toSubject(id int64) database.Subject {
	s := database.Subject{
		ID:           id,
		Name:         r.Name,
		Descriptors:  r.Descriptors,
		Observations: make([]database.Observation, len(r.Observations)),
		CreatedAt:    r.CreatedAt,
	}
	for i, o := range r.Observations {
		s.Observations[i] = o.toObservation(id)
	}
	return s
}

func (o observationRecord) toObservation(subjectID int64) database.Observation {
	return database.Observation{
		ID:          o.ID,
		SubjectID:   subjectID,
		Location:    o.Location,
		DateContext: o.DateContext,
		StartDate:   o.StartDate,
		EndDate:     o.EndDate,
		SubmittedAt: o.SubmittedAt,
		Note:        o.Note,
		ImageRef:    o.ImageRef,
		Submitter:   o.Submitter,
	}
}

func newObservationRecord(id int64, o database.Observation) observationRecord {
	return observationRecord{
		ID:          id,
		Location:    o.Location,
		DateContext: o.DateContext,
		StartDate:   o.StartDate,
		EndDate:     o.EndDate,
		SubmittedAt: o.SubmittedAt,
		Note:        o.Note,
		ImageRef:    o.ImageRef,
		Submitter:   o.Submitter,
	}
}

func getRecord(b *bbolt.Bucket, id int64) (*subjectRecord, error) {
	data := b.Get(itob(id))
	if data == nil {
		return nil, database.ErrNotFound
	}
	var rec subjectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode subject %d: %w", id, err)
	}
	return &rec, nil
}

func putRecord(b *bbolt.Bucket, id int64, rec *subjectRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode subject %d: %w", id, err)
	}
	return b.Put(itob(id), data)
}

// ListSubjects returns every subject ordered by ascending ID.
func (s *Store) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list subjects", err)
	}

	var subjects []database.Subject
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubjects).ForEach(func(k, v []byte) error {
			var rec subjectRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode subject %d: %w", btoi(k), err)
			}
			subjects = append(subjects, rec.toSubject(btoi(k)))
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("list subjects", err)
	}
	return subjects, nil
}

// GetSubject returns a single subject by ID.
func (s *Store) GetSubject(ctx context.Context, id int64) (*database.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get subject", err)
	}

	var subject database.Subject
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx.Bucket(bucketSubjects), id)
		if err != nil {
			return err
		}
		subject = rec.toSubject(id)
		return nil
	})
	if err != nil {
		return nil, unavailable("get subject", err)
	}
	return &subject, nil
}

// CreateSubject stores a new subject with its first observation.
func (s *Store) CreateSubject(ctx context.Context, ns database.NewSubject) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("create subject", err)
	}

	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)

		rec := &subjectRecord{
			Name:         ns.Name,
			Descriptors:  []facematch.Descriptor{ns.Descriptor},
			Observations: []observationRecord{newObservationRecord(1, ns.Observation)},
			CreatedAt:    ns.Observation.SubmittedAt,
			NextObsID:    2,
		}
		return putRecord(b, id, rec)
	})
	if err != nil {
		return 0, unavailable("create subject", err)
	}
	return id, nil
}

// AppendObservation appends obs to the subject's stored history.
func (s *Store) AppendObservation(
	ctx context.Context, subjectID int64, obs database.Observation,
) (*database.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("append observation", err)
	}

	var stored database.Observation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSubjects)
		rec, err := getRecord(b, subjectID)
		if err != nil {
			return err
		}
		or := newObservationRecord(rec.NextObsID, obs)
		rec.NextObsID++
		rec.Observations = append(rec.Observations, or)
		if err := putRecord(b, subjectID, rec); err != nil {
			return err
		}
		stored = or.toObservation(subjectID)
		return nil
	})
	if err != nil {
		return nil, unavailable("append observation", err)
	}
	return &stored, nil
}

// AddWatch records a subscription in the subject's nested watcher bucket.
func (s *Store) AddWatch(ctx context.Context, watcher string, subjectID int64) error {
	if err := ctx.Err(); err != nil {
		return unavailable("add watch", err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSubjects).Get(itob(subjectID)) == nil {
			return database.ErrNotFound
		}
		wb, err := tx.Bucket(bucketWatchers).CreateBucketIfNotExists(itob(subjectID))
		if err != nil {
			return err
		}
		if wb.Get([]byte(watcher)) != nil {
			return nil
		}
		ts, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return wb.Put([]byte(watcher), ts)
	})
	if err != nil {
		return unavailable("add watch", err)
	}
	return nil
}

// FindWatchers returns the watchers of a subject in key order, which is ascending.
func (s *Store) FindWatchers(ctx context.Context, subjectID int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find watchers", err)
	}

	watchers := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		wb := tx.Bucket(bucketWatchers).Bucket(itob(subjectID))
		if wb == nil {
			return nil
		}
		return wb.ForEach(func(k, _ []byte) error {
			watchers = append(watchers, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("find watchers", err)
	}
	return watchers, nil
}

// Close closes the bolt file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing bolt db: %w", err)
	}
	return nil
}

var _ database.Repository = (*Store)(nil)
