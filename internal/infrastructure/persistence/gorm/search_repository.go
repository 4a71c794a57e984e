package gorm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrychat/v1/internal/ports/outbound"
)

// SearchRepository implements the recipe search repository interface using
// GORM. It reads the externally-owned recipe store; a missing recipes table
// is reported as ErrBranchUnavailable so retrieval can degrade per-branch.
type SearchRepository struct {
	db *gorm.DB
}

// NewSearchRepository creates a new recipe search repository
func NewSearchRepository(db *gorm.DB) outbound.RecipeSearchRepository {
	return &SearchRepository{db: db}
}

// VectorCandidates returns the user's recipe rows with stored embeddings.
// Similarity scoring happens in-process in the retrieval engine.
func (r *SearchRepository) VectorCandidates(ctx context.Context, userID uuid.UUID) ([]outbound.RecipeEmbedding, error) {
	var models []RecipeRowModel

	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&models)
	if result.Error != nil {
		return nil, classifyStoreError(result.Error)
	}

	candidates := make([]outbound.RecipeEmbedding, 0, len(models))
	for i := range models {
		if len(models[i].Embedding) == 0 {
			continue
		}
		candidates = append(candidates, outbound.RecipeEmbedding{
			Row:       modelToRecipeRow(&models[i]),
			Embedding: []float32(models[i].Embedding),
		})
	}

	return candidates, nil
}

// LexicalSearch ranks the user's recipes by text relevance over the
// searchable-text projection. Candidate rows are narrowed with substring
// matching in SQL; the rank itself is a normalized token-overlap score, so
// it composes with vector similarity in the hybrid merge.
func (r *SearchRepository) LexicalSearch(ctx context.Context, userID uuid.UUID, query string, limit int) ([]outbound.LexicalMatch, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var models []RecipeRowModel
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(substringClause(r.db, terms)).
		Find(&models)
	if result.Error != nil {
		return nil, classifyStoreError(result.Error)
	}

	matches := make([]outbound.LexicalMatch, 0, len(models))
	for i := range models {
		rank := lexicalRank(models[i].SearchText, terms, strings.ToLower(query))
		if rank <= 0 {
			continue
		}
		matches = append(matches, outbound.LexicalMatch{
			Row:  modelToRecipeRow(&models[i]),
			Rank: rank,
		})
	}

	// Keep the strongest matches up to the limit; final ordering happens
	// in the merge.
	if limit > 0 && len(matches) > limit {
		sortMatchesDesc(matches)
		matches = matches[:limit]
	}

	return matches, nil
}

// queryTerms splits a query into lowercase terms, dropping single-letter
// noise.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

// substringClause builds an OR of LIKE conditions, one per term.
func substringClause(db *gorm.DB, terms []string) *gorm.DB {
	clause := db.Where("search_text LIKE ?", "%"+terms[0]+"%")
	for _, term := range terms[1:] {
		clause = clause.Or("search_text LIKE ?", "%"+term+"%")
	}
	return clause
}

// lexicalRank scores a searchable-text document against query terms in
// [0,1]: the matched-term fraction, with a phrase-match bonus when the
// whole query appears verbatim, capped at 1.
func lexicalRank(searchText string, terms []string, phrase string) float64 {
	doc := strings.ToLower(searchText)

	matched := 0
	for _, term := range terms {
		if strings.Contains(doc, term) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}

	rank := float64(matched) / float64(len(terms))
	if len(terms) > 1 && strings.Contains(doc, phrase) {
		rank += 0.2
	}
	if rank > 1 {
		rank = 1
	}
	return rank
}

func sortMatchesDesc(matches []outbound.LexicalMatch) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Rank > matches[j-1].Rank; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

// classifyStoreError translates missing-table errors into the branch
// degradation sentinel. Everything else passes through untouched.
func classifyStoreError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "no such table") || // sqlite
		strings.Contains(msg, "does not exist") || // postgres
		strings.Contains(msg, "SQLSTATE 42P01") {
		return fmt.Errorf("%w: %s", outbound.ErrBranchUnavailable, msg)
	}
	return err
}
