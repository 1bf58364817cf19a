package memory

import (
	"Minerva/internal/gateway"
	"Minerva/internal/models"
	"Minerva/pkg/logger"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Embedder is the slice of the provider gateway the memory store needs.
// The second return value names the provider that produced the vector;
// gateway.FallbackProviderName marks the deterministic degraded path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, string, error)
}

// Service is the memory store: record persistence plus hybrid
// vector/lexical retrieval. Records are append-only; text never mutates
// after creation.
type Service struct {
	persist  Persistence
	embedder Embedder
	log      *logger.Logger

	now func() time.Time
}

// NewService creates a memory service. embedder may be nil, in which
// case records are stored without embeddings and retrieval is
// lexical-only.
func NewService(persist Persistence, embedder Embedder, log *logger.Logger) *Service {
	return &Service{
		persist:  persist,
		embedder: embedder,
		log:      log,
		now:      time.Now,
	}
}

// Store persists a new interaction as a memory record and returns its id.
// Embedding failure is not fatal: the gateway substitutes a deterministic
// fallback vector, and even a nil embedding leaves the record retrievable
// via lexical search.
func (s *Service) Store(ctx context.Context, ownerID, text string, tags []string, importance float64) (string, error) {
	if importance < 0 {
		importance = 0
	} else if importance > 1 {
		importance = 1
	}

	var vector []float32
	if s.embedder != nil {
		vec, _, err := s.embedder.Embed(ctx, text)
		if err == nil {
			vector = vec
		}
	}

	rec := &models.MemoryRecord{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Text:       text,
		Embedding:  vector,
		Tags:       tags,
		Importance: importance,
		CreatedAt:  s.now(),
		Active:     true,
	}

	if err := s.persist.Put(ctx, rec); err != nil {
		return "", models.NewPipelineError(models.ErrKindMemoryUnavailable, "failed to store memory", err)
	}
	return rec.ID, nil
}

// Search runs retrieval in the requested mode and returns records ranked
// by similarity. Hybrid mode merges a vector pass and a lexical pass onto
// the same 0-1 scale and sorts once; ties break on higher importance,
// then more recent creation.
func (s *Service) Search(ctx context.Context, ownerID, query string, limit int, minSimilarity float64, mode models.SearchMode) ([]models.ScoredRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	now := s.now()

	records, err := s.persist.QueryByOwner(ctx, ownerID, RecordFilter{ActiveOnly: true, Now: now})
	if err != nil {
		return nil, models.NewPipelineError(models.ErrKindMemoryUnavailable, "memory lookup failed", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	merged := make(map[string]models.ScoredRecord)

	embedFailed := true
	if mode == models.SearchModeVector || mode == models.SearchModeHybrid {
		var queryVec []float32
		if s.embedder != nil {
			vec, provider, err := s.embedder.Embed(ctx, query)
			if err != nil {
				// Cancellation aborts the whole lookup.
				return nil, err
			}
			queryVec = vec
			embedFailed = provider == gateway.FallbackProviderName
		}

		if queryVec != nil {
			s.vectorPass(ctx, ownerID, queryVec, records, limit, minSimilarity, merged)
		}
	}

	needLexical := mode == models.SearchModeLexical ||
		(mode == models.SearchModeHybrid && (len(merged) < limit || embedFailed))
	if needLexical {
		// When the embedding path is unusable, every record competes
		// lexically; otherwise only records the vector pass cannot see.
		for _, rec := range records {
			if !embedFailed && mode == models.SearchModeHybrid && len(rec.Embedding) > 0 {
				if _, hit := merged[rec.ID]; hit {
					continue
				}
			}
			score := lexicalScore(query, rec.Text)
			if score < minSimilarity || score <= 0 {
				continue
			}
			if prev, ok := merged[rec.ID]; !ok || score > prev.Similarity {
				merged[rec.ID] = models.ScoredRecord{Record: rec, Similarity: score, Source: "lexical"}
			}
		}
	}

	results := make([]models.ScoredRecord, 0, len(merged))
	for _, sr := range merged {
		results = append(results, sr)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].Record.Importance != results[j].Record.Importance {
			return results[i].Record.Importance > results[j].Record.Importance
		}
		if !results[i].Record.CreatedAt.Equal(results[j].Record.CreatedAt) {
			return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// vectorPass scores records against the query vector, preferring the
// store's ANN primitive and falling back to brute-force cosine when the
// primitive is absent or fails.
func (s *Service) vectorPass(ctx context.Context, ownerID string, queryVec []float32, records []*models.MemoryRecord, limit int, minSimilarity float64, merged map[string]models.ScoredRecord) {
	byID := make(map[string]*models.MemoryRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	if nn, ok := annSearcher(s.persist); ok {
		neighbors, err := nn.NearestNeighbors(ctx, ownerID, queryVec, limit)
		if err == nil {
			for _, n := range neighbors {
				rec, ok := byID[n.ID] // expired/inactive hits drop out here
				if !ok || n.Score < minSimilarity {
					continue
				}
				merged[rec.ID] = models.ScoredRecord{Record: rec, Similarity: n.Score, Source: "vector"}
			}
			return
		}
		if s.log != nil {
			s.log.Warn(fmt.Sprintf("ANN query failed, falling back to brute-force cosine: %v", err))
		}
	}

	for _, rec := range records {
		sim := cosineSimilarity(queryVec, rec.Embedding)
		if sim < 0 || sim < minSimilarity {
			continue
		}
		merged[rec.ID] = models.ScoredRecord{Record: rec, Similarity: sim, Source: "vector"}
	}
}

// annSearcher returns the store's ANN primitive when it is both
// implemented and configured.
func annSearcher(p Persistence) (NearestNeighborSearcher, bool) {
	nn, ok := p.(NearestNeighborSearcher)
	if !ok {
		return nil, false
	}
	if gated, ok := p.(ANNGated); ok && !gated.HasANN() {
		return nil, false
	}
	return nn, true
}

// Sweep physically removes records that are inactive, or that expired
// longer than grace ago. It operates on a snapshot and never blocks
// in-flight request processing. Returns the number of records removed.
func (s *Service) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	sweepable, ok := s.persist.(Sweepable)
	if !ok {
		return 0, nil
	}

	cutoff := s.now().Add(-grace)
	victims, err := sweepable.QuerySweepable(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep query failed: %w", err)
	}

	removed := 0
	for _, rec := range victims {
		if err := s.persist.Delete(ctx, rec.ID); err != nil {
			if s.log != nil {
				s.log.Warn(fmt.Sprintf("failed to sweep record %s: %v", rec.ID, err))
			}
			continue
		}
		removed++
	}
	return removed, nil
}
