package memory

import (
	"Minerva/internal/models"
	"context"
	"time"
)

// RecordFilter narrows a QueryByOwner call.
type RecordFilter struct {
	// ActiveOnly excludes inactive records and records whose ExpiresAt
	// is earlier than Now. Expiry is evaluated lazily at query time;
	// physical deletion is the sweeper's job.
	ActiveOnly bool
	Now        time.Time
}

// Persistence is the external storage collaborator for memory records.
// The engine treats it as an opaque document store with CRUD; the
// similarity-search primitive is optional (see NearestNeighborSearcher).
type Persistence interface {
	Put(ctx context.Context, rec *models.MemoryRecord) error
	Get(ctx context.Context, id string) (*models.MemoryRecord, error)
	QueryByOwner(ctx context.Context, ownerID string, filter RecordFilter) ([]*models.MemoryRecord, error)
	Delete(ctx context.Context, id string) error
}

// Neighbor is one hit from an approximate-nearest-neighbor query.
type Neighbor struct {
	ID    string
	Score float64
}

// NearestNeighborSearcher is the optional ANN capability of a Persistence
// implementation. When the backing store does not implement it, search
// silently falls back to brute-force cosine over the owner's records,
// and to lexical-only mode when no embeddings exist at all.
type NearestNeighborSearcher interface {
	NearestNeighbors(ctx context.Context, ownerID string, vector []float32, k int) ([]Neighbor, error)
}

// ANNGated is implemented by stores whose ANN tier is wired at runtime
// rather than by type. A false HasANN disables the primitive without an
// error round trip on every search.
type ANNGated interface {
	HasANN() bool
}

// Sweepable is the optional bulk-expiry capability used by the background
// sweeper to physically remove records. Implementations return records
// that are inactive, or whose expiry predates the cutoff.
type Sweepable interface {
	QuerySweepable(ctx context.Context, cutoff time.Time) ([]*models.MemoryRecord, error)
}
