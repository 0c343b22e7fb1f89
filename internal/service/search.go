package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bekutoru/internal/apperr"
	"github.com/hyperjump/bekutoru/internal/filter"
	"github.com/hyperjump/bekutoru/internal/index"
	"github.com/hyperjump/bekutoru/internal/models"
)

// Search embeds the query and runs a filtered top-k search on the library's
// index. With filters present, k is over-fetched by a multiplier and the
// candidates are streamed through the compiled predicate in score order;
// when that comes up short of k and the index has more to give, the
// multiplier doubles for a bounded number of retries.
func (s *Service) Search(ctx context.Context, libraryID uuid.UUID, req *models.SearchRequest) (*models.SearchResponse, error) {
	if req.K < 1 {
		return nil, apperr.New(apperr.KindInvalidRequest, "k must be at least 1")
	}
	if req.Query == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "query is required")
	}
	st, err := s.state(libraryID)
	if err != nil {
		return nil, err
	}
	pred, err := filter.Compile(req.Filters)
	if err != nil {
		return nil, err
	}

	// Embed outside the read lock; only the index traversal holds it.
	vec, err := s.embedText(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	st.mu.RLock()
	accepted := s.overfetch(st.index, vec, req.K, len(req.Filters) > 0, pred)
	st.mu.RUnlock()

	results := make([]models.SearchResult, 0, len(accepted))
	for _, c := range accepted {
		chunk, err := s.store.GetChunk(ctx, c.ID)
		if err != nil {
			// The chunk vanished between the index scan and the snapshot
			// fetch; skip it.
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID: c.ID,
			Score:   c.Score,
			Chunk:   models.NewChunkResponse(chunk),
		})
	}

	s.logger.Debug("search",
		zap.String("library_id", libraryID.String()),
		zap.Int("k", req.K),
		zap.Int("results", len(results)))
	return &models.SearchResponse{
		LibraryID: libraryID,
		Query:     req.Query,
		K:         req.K,
		Filters:   req.Filters,
		Results:   results,
	}, nil
}

// overfetch queries the index with an effective k and post-filters the
// candidates, expanding the multiplier until k results are accepted, the
// index is exhausted, or the expansion budget runs out. Caller holds the
// library read lock.
func (s *Service) overfetch(ix index.Index, vec []float32, k int, filtered bool, pred filter.Predicate) []index.Candidate {
	multiplier := 1
	if filtered {
		multiplier = s.cfg.OverfetchMultiplier
	}

	var accepted []index.Candidate
	size := ix.Size()
	for expansion := 0; ; expansion++ {
		kEffective := k * multiplier
		if kEffective > size {
			kEffective = size
		}
		candidates := ix.Query(vec, kEffective)

		accepted = accepted[:0]
		for _, c := range candidates {
			if pred(ix.Meta(c.ID)) {
				accepted = append(accepted, c)
				if len(accepted) == k {
					return accepted
				}
			}
		}
		if kEffective >= size || expansion >= s.cfg.MaxExpansions {
			return accepted
		}
		multiplier *= 2
	}
}
