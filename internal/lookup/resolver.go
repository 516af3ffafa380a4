package lookup

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
	"github.com/kimhsiao/nutrilog/backend/internal/logging"
	"github.com/kimhsiao/nutrilog/backend/internal/models"
	"github.com/kimhsiao/nutrilog/backend/internal/nutrition"
)

const (
	// DefaultAnalysisTTL bounds how long a text analysis is reused.
	DefaultAnalysisTTL = 24 * time.Hour
	// DefaultBarcodeTTL bounds how long a barcode lookup is reused.
	DefaultBarcodeTTL = 30 * 24 * time.Hour
)

// Pipeline is the external resolver that turns user input into nutrition facts.
type Pipeline interface {
	AnalyzeText(ctx context.Context, text string) (models.NutritionRecord, error)
	// LookupBarcode returns nil, nil when the product is unknown.
	LookupBarcode(ctx context.Context, code string) (*models.NutritionRecord, error)
}

// Resolver answers lookups from the cache first and the pipeline second.
type Resolver struct {
	cache       *Cache[models.NutritionRecord]
	pipeline    Pipeline
	analysisTTL time.Duration
	barcodeTTL  time.Duration
	log         *logging.Logger
}

// NewResolver wires a cache to a pipeline. Zero TTLs select the defaults.
func NewResolver(cache *Cache[models.NutritionRecord], pipeline Pipeline, analysisTTL, barcodeTTL time.Duration, opts ...Option) *Resolver {
	if analysisTTL <= 0 {
		analysisTTL = DefaultAnalysisTTL
	}
	if barcodeTTL <= 0 {
		barcodeTTL = DefaultBarcodeTTL
	}
	o := buildOptions(opts)
	return &Resolver{
		cache:       cache,
		pipeline:    pipeline,
		analysisTTL: analysisTTL,
		barcodeTTL:  barcodeTTL,
		log:         o.log,
	}
}

// AnalyzeText resolves a free-text food description.
func (r *Resolver) AnalyzeText(ctx context.Context, text string) (models.NutritionRecord, error) {
	if strings.TrimSpace(text) == "" {
		return models.NutritionRecord{}, apperrors.New(apperrors.ErrValidation, "text is empty")
	}
	key := AnalysisKey(text)
	if rec, ok := r.cache.Get(ctx, key); ok {
		return fromCache(rec), nil
	}

	rec, err := r.pipeline.AnalyzeText(ctx, text)
	if err != nil {
		return models.NutritionRecord{}, apperrors.Wrap(apperrors.ErrTransport, "analyze text", err)
	}
	return r.store(ctx, key, rec, models.SourceAIText, r.analysisTTL), nil
}

// LookupBarcode resolves a product barcode. found is false for unknown products.
func (r *Resolver) LookupBarcode(ctx context.Context, code string) (models.NutritionRecord, bool, error) {
	if strings.TrimSpace(code) == "" {
		return models.NutritionRecord{}, false, apperrors.New(apperrors.ErrValidation, "barcode is empty")
	}
	key := BarcodeKey(code)
	if rec, ok := r.cache.Get(ctx, key); ok {
		return fromCache(rec), true, nil
	}

	rec, err := r.pipeline.LookupBarcode(ctx, code)
	if err != nil {
		return models.NutritionRecord{}, false, apperrors.Wrap(apperrors.ErrTransport, "lookup barcode", err)
	}
	if rec == nil {
		return models.NutritionRecord{}, false, nil
	}
	return r.store(ctx, key, *rec, models.SourceBarcode, r.barcodeTTL), true, nil
}

// store normalizes rec and caches it. Cache write failures only cost a future hit.
func (r *Resolver) store(ctx context.Context, key string, rec models.NutritionRecord, source models.SourceTag, ttl time.Duration) models.NutritionRecord {
	out := nutrition.NormalizeRecord(rec)
	if out.ID == "" {
		out.ID = models.NewID()
	}
	if out.Source == "" {
		out.Source = source
	}
	if err := r.cache.Set(ctx, key, out, ttl); err != nil {
		r.log.Warn("failed to cache lookup", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	return out
}

func fromCache(rec models.NutritionRecord) models.NutritionRecord {
	out := rec.Clone()
	out.Source = models.SourceCache
	return out
}
