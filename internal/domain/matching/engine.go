package matching

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/normalizer"
	"github.com/hargalist/hargalist-api/pkg/unit"
)

// Store is the catalog surface the engine needs.
type Store interface {
	ProductsInCategory(ctx context.Context, category string, limit int) ([]catalog.MasterProduct, error)
	ListProducts(ctx context.Context, offset, limit int) ([]catalog.MasterProduct, error)
	HasMatch(ctx context.Context, a, b uuid.UUID) (bool, error)
	RecordMatch(ctx context.Context, a, b uuid.UUID, score float64, matchType catalog.MatchType, details catalog.MatchDetails) (uuid.UUID, error)
	GetUnreviewedMatches(ctx context.Context, limit int) ([]catalog.ProductMatch, error)
}

// Config holds the injected thresholds.
type Config struct {
	FuzzyThreshold float64
	ExactThreshold float64
	CandidateLimit int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold: 0.80,
		ExactThreshold: 0.95,
		CandidateLimit: 100,
	}
}

// Candidate is one scored match proposal.
type Candidate struct {
	Product    catalog.MasterProduct
	Score      Score
	Type       catalog.MatchType
	Confidence string
}

// ProcessStats summarizes a catalog-wide match sweep. Partial values are
// returned when the sweep is cancelled.
type ProcessStats struct {
	Processed int
	Recorded  int
	Skipped   int
	Errors    int
}

// MergeSuggestion pairs two products the engine believes are the same SKU.
// The engine only suggests; merging stays a store operation behind review.
type MergeSuggestion struct {
	MatchID  uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	Score    float64
}

// Engine finds and records cross-supplier product matches.
type Engine struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates a matching engine.
func NewEngine(store Store, cfg Config, logger *slog.Logger) *Engine {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 100
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// FindMatches scores the product against up to CandidateLimit same-category
// products. A strict-equality candidate short-circuits as a single EXACT
// result; otherwise fuzzy candidates at or above the threshold are returned
// sorted by score, best first. Per-candidate scoring failures are logged and
// skipped, never fatal.
func (e *Engine) FindMatches(ctx context.Context, product *catalog.MasterProduct, limit int) ([]Candidate, error) {
	if product == nil {
		return nil, errors.New("find matches: nil product")
	}
	if limit <= 0 {
		limit = 10
	}

	candidates, err := e.store.ProductsInCategory(ctx, product.Category, e.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		if candidates[i].ID == product.ID {
			continue
		}
		if strictEqual(product, &candidates[i]) {
			return []Candidate{{
				Product:    candidates[i],
				Score:      Score{Name: 1, Brand: 1, Size: 1, Overall: 1},
				Type:       catalog.MatchExact,
				Confidence: ConfidenceLevel(1),
			}}, nil
		}
	}

	var out []Candidate
	for i := range candidates {
		other := &candidates[i]
		if other.ID == product.ID {
			continue
		}
		score := Compare(
			product.StandardName, product.Brand, product.Size, product.Unit,
			other.StandardName, other.Brand, other.Size, other.Unit,
		)
		if score.Overall < e.cfg.FuzzyThreshold {
			continue
		}
		matchType := catalog.MatchFuzzy
		if score.Overall >= e.cfg.ExactThreshold {
			matchType = catalog.MatchExact
		}
		out = append(out, Candidate{
			Product:    *other,
			Score:      score,
			Type:       matchType,
			Confidence: ConfidenceLevel(score.Overall),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score.Overall > out[j].Score.Overall })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// strictEqual holds when normalized names match, brands match (both-absent
// counts as equal) and sizes are equal within the same unit family.
func strictEqual(a, b *catalog.MasterProduct) bool {
	if normalizer.NormalizeName(a.StandardName) != normalizer.NormalizeName(b.StandardName) {
		return false
	}

	aBrand, bBrand := "", ""
	if a.Brand != nil {
		aBrand = normalizer.NormalizeBrand(*a.Brand)
	}
	if b.Brand != nil {
		bBrand = normalizer.NormalizeBrand(*b.Brand)
	}
	if aBrand != bBrand {
		return false
	}

	aHasSize := a.Size != nil && a.Unit != nil
	bHasSize := b.Size != nil && b.Unit != nil
	if aHasSize != bHasSize {
		return false
	}
	if !aHasSize {
		return true
	}

	baseA, famA, errA := unit.ToBase(*a.Size, *a.Unit)
	baseB, famB, errB := unit.ToBase(*b.Size, *b.Unit)
	if errA != nil || errB != nil {
		return errA != nil && errB != nil && a.Size.Equal(*b.Size) && *a.Unit == *b.Unit
	}
	return famA == famB && baseA.Equal(baseB)
}

// ConfidenceLevel maps an overall score to its review tier.
func ConfidenceLevel(score float64) string {
	switch {
	case score >= 0.95:
		return "high"
	case score >= 0.85:
		return "medium"
	case score >= 0.75:
		return "low"
	default:
		return "very_low"
	}
}

// ProcessAll sweeps the whole catalog in batches, recording a ProductMatch
// row per qualifying candidate and skipping pairs already on file. The sweep
// stops at cancellation and returns the partial stats alongside the context
// error.
func (e *Engine) ProcessAll(ctx context.Context, batchSize int) (ProcessStats, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var stats ProcessStats
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := e.store.ListProducts(ctx, offset, batchSize)
		if err != nil {
			return stats, err
		}
		if len(batch) == 0 {
			return stats, nil
		}

		for i := range batch {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Processed++

			candidates, err := e.FindMatches(ctx, &batch[i], batchSize)
			if err != nil {
				stats.Errors++
				e.logger.Warn("match sweep: scoring failed",
					slog.String("product", batch[i].ID.String()),
					slog.Any("error", err))
				continue
			}

			for _, cand := range candidates {
				exists, err := e.store.HasMatch(ctx, batch[i].ID, cand.Product.ID)
				if err != nil {
					stats.Errors++
					continue
				}
				if exists {
					stats.Skipped++
					continue
				}
				_, err = e.store.RecordMatch(ctx, batch[i].ID, cand.Product.ID,
					cand.Score.Overall, cand.Type, catalog.MatchDetails{
						Name:  cand.Score.Name,
						Brand: cand.Score.Brand,
						Size:  cand.Score.Size,
					})
				if err != nil {
					stats.Errors++
					continue
				}
				stats.Recorded++
			}
		}
	}
}

// SuggestAutoMerges returns unreviewed matches scored at or above the exact
// threshold. The lexically larger product is proposed as the merge source so
// suggestions are deterministic.
func (e *Engine) SuggestAutoMerges(ctx context.Context, limit int) ([]MergeSuggestion, error) {
	matches, err := e.store.GetUnreviewedMatches(ctx, limit)
	if err != nil {
		return nil, err
	}

	var out []MergeSuggestion
	for _, m := range matches {
		if m.SimilarityScore < e.cfg.ExactThreshold || m.MatchType == catalog.MatchRejected {
			continue
		}
		out = append(out, MergeSuggestion{
			MatchID:  m.ID,
			SourceID: m.ProductBID,
			TargetID: m.ProductAID,
			Score:    m.SimilarityScore,
		})
	}
	return out, nil
}
