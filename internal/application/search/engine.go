// Package search implements hybrid recipe retrieval: a vector-similarity
// branch and a lexical branch run concurrently, then merge into one
// deduplicated, weighted ranking.
package search

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// Type selects which retrieval branches a search exercises.
type Type string

const (
	TypeSemantic Type = "semantic"
	TypeText     Type = "text"
	TypeHybrid   Type = "hybrid"
)

// ParseType validates a search type string, defaulting empty to hybrid.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeSemantic, TypeText, TypeHybrid:
		return Type(raw), nil
	case "":
		return TypeHybrid, nil
	default:
		return "", errors.New("search type must be semantic, text, or hybrid")
	}
}

// Result is one ranked recipe hit. Missing branch components are zero.
type Result struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Ingredients     []string  `json:"ingredients"`
	Instructions    []string  `json:"instructions"`
	SimilarityScore float64   `json:"similarity_score"`
	LexicalRank     float64   `json:"lexical_rank"`
	CombinedScore   float64   `json:"combined_score"`
	SearchText      string    `json:"search_text,omitempty"`
}

// Engine runs hybrid retrieval over the recipe store.
type Engine struct {
	embedder outbound.EmbeddingService
	repo     outbound.RecipeSearchRepository
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// NewEngine creates a new retrieval engine. The tuning constants come from
// configuration so they are named and centralized rather than scattered.
func NewEngine(embedder outbound.EmbeddingService, repo outbound.RecipeSearchRepository, cfg config.RetrievalConfig, logger *zap.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		repo:     repo,
		cfg:      cfg,
		logger:   logger.Named("search"),
	}
}

// Search runs the requested retrieval branches and merges their results.
// A branch whose backing store is missing or errored degrades to empty for
// that branch only; zero results from both branches is a valid empty set,
// never an error.
func (e *Engine) Search(ctx context.Context, userID uuid.UUID, query string, limit int, searchType Type) ([]Result, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	var (
		vector  []Result
		lexical []outbound.LexicalMatch
	)

	g, gctx := errgroup.WithContext(ctx)

	if searchType == TypeSemantic || searchType == TypeHybrid {
		g.Go(func() error {
			hits, err := e.vectorBranch(gctx, userID, query, limit)
			if err != nil {
				e.logBranchDegraded("vector", err)
				return nil
			}
			vector = hits
			return nil
		})
	}

	if searchType == TypeText || searchType == TypeHybrid {
		g.Go(func() error {
			hits, err := e.repo.LexicalSearch(gctx, userID, query, limit)
			if err != nil {
				e.logBranchDegraded("lexical", err)
				return nil
			}
			lexical = hits
			return nil
		})
	}

	// Branch errors are swallowed above, so Wait can only report ctx errors.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := e.merge(vector, lexical)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	e.logger.Debug("search completed",
		zap.String("query", query),
		zap.String("type", string(searchType)),
		zap.Int("vector_hits", len(vector)),
		zap.Int("lexical_hits", len(lexical)),
		zap.Int("results", len(merged)),
	)

	return merged, nil
}

// vectorBranch embeds the query and ranks stored recipes by cosine
// similarity, keeping candidates at or above the similarity threshold.
func (e *Engine) vectorBranch(ctx context.Context, userID uuid.UUID, query string, limit int) ([]Result, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.repo.VectorCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	hits := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		sim := CosineSimilarity(embedding, cand.Embedding)
		if sim < e.cfg.SimilarityThreshold {
			continue
		}
		hits = append(hits, Result{
			ID:              cand.Row.ID,
			Title:           cand.Row.Title,
			Description:     cand.Row.Description,
			Ingredients:     cand.Row.Ingredients,
			Instructions:    cand.Row.Instructions,
			SimilarityScore: sim,
			SearchText:      cand.Row.SearchText,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].SimilarityScore > hits[j].SimilarityScore
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// merge combines the two branches keyed by recipe id. Weighted scores are
// summed, not averaged, so recipes both branches agree on outrank
// single-branch hits.
func (e *Engine) merge(vector []Result, lexical []outbound.LexicalMatch) []Result {
	ordered := make([]Result, 0, len(vector)+len(lexical))
	index := make(map[uuid.UUID]int, len(vector)+len(lexical))

	for _, hit := range vector {
		hit.CombinedScore = e.cfg.VectorWeight * hit.SimilarityScore
		index[hit.ID] = len(ordered)
		ordered = append(ordered, hit)
	}

	for _, match := range lexical {
		if i, seen := index[match.Row.ID]; seen {
			ordered[i].LexicalRank = match.Rank
			ordered[i].CombinedScore += e.cfg.LexicalWeight * match.Rank
			continue
		}
		index[match.Row.ID] = len(ordered)
		ordered = append(ordered, Result{
			ID:            match.Row.ID,
			Title:         match.Row.Title,
			Description:   match.Row.Description,
			Ingredients:   match.Row.Ingredients,
			Instructions:  match.Row.Instructions,
			LexicalRank:   match.Rank,
			CombinedScore: e.cfg.LexicalWeight * match.Rank,
			SearchText:    match.Row.SearchText,
		})
	}

	// Stable: ties keep insertion order (vector hits before lexical-only).
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CombinedScore > ordered[j].CombinedScore
	})

	return ordered
}

func (e *Engine) logBranchDegraded(branch string, err error) {
	if errors.Is(err, outbound.ErrBranchUnavailable) {
		e.logger.Warn("retrieval branch backing store unavailable, degrading to empty",
			zap.String("branch", branch),
			zap.Error(err),
		)
		return
	}
	e.logger.Warn("retrieval branch failed, degrading to empty",
		zap.String("branch", branch),
		zap.Error(err),
	)
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
