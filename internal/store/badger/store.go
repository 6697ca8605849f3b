// Package badger stores contact submissions in an embedded BadgerDB, for
// single-node deployments that run without an external database.
package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/matrix-portfolio/portfolio-api/internal/store"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
	"go.mongodb.org/mongo-driver/bson"
)

const keyPrefix = "submission:"

// record is the encoded value stored under each key.
type record struct {
	ID        string `bson:"id"`
	Name      string `bson:"name"`
	Email     string `bson:"email"`
	Message   string `bson:"message"`
	IP        string `bson:"ip,omitempty"`
	CreatedAt int64  `bson:"createdAt"`
}

// Store implements store.SubmissionStore on top of a *badger.DB.
type Store struct {
	db *badger.DB
}

var _ store.SubmissionStore = (*Store)(nil)

// New wraps an open database. Close closes it.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	logger.GetLogger().Infow("Opened Badger submission store", "path", path)
	return New(db), nil
}

func (s *Store) Name() string { return "badger" }

// submissionKey formats "submission:{unix_nanos_padded}:{id}". The 19-digit
// padding keeps lexicographic order chronological and the id breaks ties.
func submissionKey(sub *types.Submission) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", keyPrefix, sub.CreatedAt.UnixNano(), sub.ID))
}

// CreateSubmission writes sub under its time-ordered key.
func (s *Store) CreateSubmission(ctx context.Context, sub *types.Submission) error {
	if err := store.CheckSubmission(sub); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := bson.Marshal(record{
		ID:        sub.ID,
		Name:      sub.Name,
		Email:     sub.Email,
		Message:   sub.Message,
		IP:        sub.OriginIP,
		CreatedAt: sub.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(submissionKey(sub), value)
	})
}

// ListSubmissions walks the keyspace in reverse, which yields newest first.
func (s *Store) ListSubmissions(ctx context.Context) ([]types.Submission, error) {
	subs := make([]types.Submission, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the largest possible timestamp so reverse iteration starts at the newest key.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return bson.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			subs = append(subs, types.Submission{
				ID:        rec.ID,
				Name:      rec.Name,
				Email:     rec.Email,
				Message:   rec.Message,
				CreatedAt: unixNano(rec.CreatedAt),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func unixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Ping fails once the database has been closed.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close(_ context.Context) error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
