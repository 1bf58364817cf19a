package memory

import (
	"Minerva/internal/database/milvus"
	"Minerva/internal/models"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DocumentStore is a Persistence implementation backed by MongoDB, with
// an optional Milvus tier providing the approximate-nearest-neighbor
// primitive. When ann is nil the store advertises no ANN capability and
// search degrades to lexical-first mode.
type DocumentStore struct {
	coll *mongo.Collection
	ann  *milvus.MilvusClient // nil disables the ANN tier
}

// NewDocumentStore creates a DocumentStore over the given collection.
func NewDocumentStore(coll *mongo.Collection, ann *milvus.MilvusClient) *DocumentStore {
	return &DocumentStore{coll: coll, ann: ann}
}

// Put persists the record document and, when the record carries an
// embedding and the ANN tier is configured, mirrors the vector into it.
func (s *DocumentStore) Put(ctx context.Context, rec *models.MemoryRecord) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist memory record: %w", err)
	}

	if s.ann != nil && len(rec.Embedding) > 0 {
		if err := s.ann.Insert(ctx, rec.ID, rec.OwnerID, rec.Embedding); err != nil {
			// The document is the source of truth; a missing vector only
			// degrades retrieval quality for this record.
			return nil
		}
	}
	return nil
}

// Get fetches a record by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*models.MemoryRecord, error) {
	var rec models.MemoryRecord
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		return nil, fmt.Errorf("memory record %s not found: %w", id, err)
	}
	return &rec, nil
}

// QueryByOwner returns the owner's records, applying the filter at the
// database level so expiry never requires a write.
func (s *DocumentStore) QueryByOwner(ctx context.Context, ownerID string, filter RecordFilter) ([]*models.MemoryRecord, error) {
	query := bson.M{"owner_id": ownerID}
	if filter.ActiveOnly {
		query["active"] = true
		query["$or"] = []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": nil},
			{"expires_at": bson.M{"$gt": filter.Now}},
		}
	}

	cursor, err := s.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.MemoryRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode memory records: %w", err)
	}
	return out, nil
}

// Delete removes the record document and its mirrored vector.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete memory record: %w", err)
	}
	if s.ann != nil {
		_ = s.ann.Delete(ctx, id)
	}
	return nil
}

// NearestNeighbors queries the Milvus tier. With ann == nil the store
// reports HasANN false, the capability gate skips this method, and
// callers fall back to brute-force or lexical scoring.
func (s *DocumentStore) NearestNeighbors(ctx context.Context, ownerID string, vector []float32, k int) ([]Neighbor, error) {
	if s.ann == nil {
		return nil, fmt.Errorf("ANN tier not configured")
	}
	hits, err := s.ann.SearchByOwner(ctx, ownerID, vector, k)
	if err != nil {
		return nil, err
	}
	out := make([]Neighbor, len(hits))
	for i, h := range hits {
		out[i] = Neighbor{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// HasANN reports whether the ANN tier is configured.
func (s *DocumentStore) HasANN() bool { return s.ann != nil }

// QuerySweepable returns records eligible for physical removal.
func (s *DocumentStore) QuerySweepable(ctx context.Context, cutoff time.Time) ([]*models.MemoryRecord, error) {
	query := bson.M{"$or": []bson.M{
		{"active": false},
		{"expires_at": bson.M{"$ne": nil, "$lt": cutoff}},
	}}

	cursor, err := s.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweepable records: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.MemoryRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode sweepable records: %w", err)
	}
	return out, nil
}
