// Package mongo stores contact submissions in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/matrix-portfolio/portfolio-api/internal/store"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultOpTimeout = 5 * time.Second

// contactDocument is the stored shape of a submission.
type contactDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Message   string    `bson:"message"`
	IP        string    `bson:"ip,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Store implements store.SubmissionStore over a single collection.
type Store struct {
	client    *mongo.Client
	coll      *mongo.Collection
	opTimeout time.Duration
}

var _ store.SubmissionStore = (*Store)(nil)

// New wraps an existing collection. The caller keeps ownership of the client.
func New(coll *mongo.Collection, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Store{coll: coll, opTimeout: opTimeout}
}

// Connect dials uri, verifies the primary answers and returns a Store that owns
// the client.
func Connect(ctx context.Context, uri, database, collection string, connectTimeout, opTimeout time.Duration) (*Store, error) {
	log := logger.GetLogger()

	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := New(client.Database(database).Collection(collection), opTimeout)
	s.client = client

	if err := s.EnsureIndexes(ctx); err != nil {
		// Listing still works without the index, only slower.
		log.Warnw("Failed to ensure createdAt index", "error", err)
	}

	log.Infow("Connected to MongoDB",
		"uri", logger.MaskConnectionString(uri),
		"database", database,
		"collection", collection)
	return s, nil
}

// EnsureIndexes creates the descending createdAt index used by listing.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("createdAt_desc"),
	})
	return err
}

func (s *Store) Name() string { return "mongo" }

// CreateSubmission inserts sub as a new document.
func (s *Store) CreateSubmission(ctx context.Context, sub *types.Submission) error {
	if err := store.CheckSubmission(sub); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	doc := contactDocument{
		ID:        sub.ID,
		Name:      sub.Name,
		Email:     sub.Email,
		Message:   sub.Message,
		IP:        sub.OriginIP,
		CreatedAt: sub.CreatedAt.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// ListSubmissions returns every submission newest first. The ip field is
// excluded by projection and never leaves the database.
func (s *Store) ListSubmissions(ctx context.Context) ([]types.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.D{{Key: "ip", Value: 0}})

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []contactDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode submissions: %w", err)
	}

	out := make([]types.Submission, 0, len(docs))
	for _, d := range docs {
		out = append(out, types.Submission{
			ID:        d.ID,
			Name:      d.Name,
			Email:     d.Email,
			Message:   d.Message,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client if this Store created it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
