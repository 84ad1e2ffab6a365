// Package mongostore keeps region snapshots in a MongoDB collection.
//
// Documents are keyed by the region id without its "shape:" prefix:
//
//	{ _id: "abc", media_type: "image/png", data: BinData, width: 640, height: 480, updated_at: ISODate }
//
// Store implements [capture.Provider], so snapshots pushed by an embedding
// host can be composited later without a live rendering surface.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/snapcomp/pkg/capture"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/raster"
)

// Defaults for [Config].
const (
	DefaultDatabase   = "snapcomp"
	DefaultCollection = "surfaces"
)

// Config locates the collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Document is one stored snapshot.
type Document struct {
	ID        string    `bson:"_id"`
	MediaType string    `bson:"media_type"`
	Data      []byte    `bson:"data"`
	Width     int       `bson:"width"`
	Height    int       `bson:"height"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store reads and writes snapshots.
type Store struct {
	client *mongo.Client // nil when built with NewWithCollection
	coll   *mongo.Collection
}

// New connects to cfg.URI and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, apperr.New(apperr.ErrCodeInvalidInput, "mongo URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCodeNetwork, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, apperr.Wrap(apperr.ErrCodeNetwork, err, "ping mongo")
	}
	return &Store{client: client, coll: client.Database(cfg.Database).Collection(cfg.Collection)}, nil
}

// NewWithCollection wraps an existing collection. Close is a no-op.
func NewWithCollection(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Close disconnects the client created by New.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// DocumentID returns the _id used for region id.
func DocumentID(id string) string {
	return capture.NormalizeID(id)
}

// Capture loads and decodes the stored snapshot for id.
func (s *Store) Capture(ctx context.Context, id string) (image.Image, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: stored snapshot %s has no data", capture.ErrSurfaceEmpty, doc.ID)
	}
	img, _, err := raster.Raw{Source: "mongo:" + doc.ID, MediaType: doc.MediaType, Data: doc.Data}.Decode()
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Get returns the stored document for id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	docID := DocumentID(id)
	var doc Document
	err := s.coll.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: no stored snapshot for %s", capture.ErrSurfaceNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot %s: %w", docID, err)
	}
	return &doc, nil
}

// Put stores raw as the snapshot for id, replacing any previous one.
func (s *Store) Put(ctx context.Context, id string, raw raster.Raw) (*Document, error) {
	doc, err := NewDocument(id, raw)
	if err != nil {
		return nil, err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("store snapshot %s: %w", doc.ID, err)
	}
	return doc, nil
}

// Delete removes the snapshot for id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": DocumentID(id)}); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", DocumentID(id), err)
	}
	return nil
}

// NewDocument validates raw and builds the document stored for id.
func NewDocument(id string, raw raster.Raw) (*Document, error) {
	docID := DocumentID(id)
	if err := apperr.ValidateRegionID(docID); err != nil {
		return nil, err
	}
	cfg, format, err := raw.DecodeConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperr.New(apperr.ErrCodeInvalidSource, "snapshot for %s has no pixels", docID)
	}
	return &Document{
		ID:        docID,
		MediaType: raster.MediaTypeForFormat(format),
		Data:      raw.Data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
