package app

import (
	"context"
	"math"
	"strconv"
	"strings"

	"fitbite/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultLookupConcurrency bounds the parallel provider calls for one meal.
const DefaultLookupConcurrency = 4

// NutritionLookup resolves parsed items to macro estimates. A failed lookup
// yields the zero estimate for that item and never aborts the meal.
type NutritionLookup struct {
	provider    domain.NutritionProvider
	concurrency int
}

// NewNutritionLookup creates a lookup backed by provider.
func NewNutritionLookup(provider domain.NutritionProvider) *NutritionLookup {
	return &NutritionLookup{provider: provider, concurrency: DefaultLookupConcurrency}
}

// WithConcurrency sets how many lookups run at once.
func (n *NutritionLookup) WithConcurrency(limit int) *NutritionLookup {
	if limit > 0 {
		n.concurrency = limit
	}
	return n
}

// Query builds the provider query "{quantity} {unit} {name}".
func Query(item domain.ParsedFoodItem) string {
	qty := strconv.FormatFloat(item.Quantity, 'f', -1, 64)
	return strings.Join(strings.Fields(qty+" "+item.Unit+" "+item.Name), " ")
}

// Estimate looks up one item.
func (n *NutritionLookup) Estimate(ctx context.Context, item domain.ParsedFoodItem) domain.NutritionEstimate {
	if n.provider == nil {
		return domain.NutritionEstimate{}
	}
	query := Query(item)
	est, err := n.provider.Nutrients(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("component", componentNutrition).Str("query", query).Msg("using zero estimate")
		return domain.NutritionEstimate{}
	}
	return domain.NutritionEstimate{
		Calories: math.Max(0, est.Calories),
		ProteinG: math.Max(0, est.ProteinG),
		CarbsG:   math.Max(0, est.CarbsG),
		FatG:     math.Max(0, est.FatG),
	}
}

// Analyze looks up every item concurrently. The result has one entry per
// input item, in input order, each carrying the item it was computed for.
func (n *NutritionLookup) Analyze(ctx context.Context, items []domain.ParsedFoodItem) []domain.AnalyzedItem {
	ctx, span := tracer.Start(ctx, "NutritionLookup.Analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	out := make([]domain.AnalyzedItem, len(items))
	var g errgroup.Group
	g.SetLimit(n.concurrency)
	for i, item := range items {
		g.Go(func() error {
			out[i] = domain.AnalyzedItem{Item: item, Nutrition: n.Estimate(ctx, item)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
