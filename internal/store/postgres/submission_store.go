// Package postgres stores contact submissions in PostgreSQL through pgx.
// The schema is owned by the embedded migrations in package db.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matrix-portfolio/portfolio-api/internal/store"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
)

const defaultOpTimeout = 5 * time.Second

// DBTX is the subset of *pgxpool.Pool the store needs. pgxmock satisfies it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// SubmissionStore implements store.SubmissionStore on the contact_submissions table.
type SubmissionStore struct {
	db        DBTX
	opTimeout time.Duration
}

var _ store.SubmissionStore = (*SubmissionStore)(nil)

// NewSubmissionStore wraps db. The store takes ownership and closes db on Close.
func NewSubmissionStore(db DBTX, opTimeout time.Duration) *SubmissionStore {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &SubmissionStore{db: db, opTimeout: opTimeout}
}

// Connect opens a pool against dbURL and pings it before returning.
func Connect(ctx context.Context, dbURL string, maxConns int32, connectTimeout, opTimeout time.Duration) (*SubmissionStore, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.GetLogger().Infow("Connected to PostgreSQL",
		"url", logger.MaskConnectionString(dbURL),
		"maxConns", cfg.MaxConns)
	return NewSubmissionStore(pool, opTimeout), nil
}

func (s *SubmissionStore) Name() string { return "postgres" }

// CreateSubmission inserts sub.
func (s *SubmissionStore) CreateSubmission(ctx context.Context, sub *types.Submission) error {
	if err := store.CheckSubmission(sub); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	query := `
		INSERT INTO contact_submissions (id, name, email, message, origin_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	tag, err := s.db.Exec(ctx, query,
		sub.ID,
		sub.Name,
		sub.Email,
		sub.Message,
		sub.OriginIP,
		sub.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("failed to insert submission: %d rows affected", tag.RowsAffected())
	}
	return nil
}

// ListSubmissions returns every row newest first. origin_ip is not selected.
func (s *SubmissionStore) ListSubmissions(ctx context.Context) ([]types.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	query := `
		SELECT id, name, email, message, created_at
		FROM contact_submissions
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	subs := make([]types.Submission, 0)
	for rows.Next() {
		var sub types.Submission
		if err := rows.Scan(
			&sub.ID,
			&sub.Name,
			&sub.Email,
			&sub.Message,
			&sub.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return subs, nil
}

func (s *SubmissionStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.db.Ping(ctx)
}

func (s *SubmissionStore) Close(_ context.Context) error {
	s.db.Close()
	return nil
}
