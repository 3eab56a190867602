package domain

import (
	"context"
	"time"
)

// CompletionRequest is a single-turn prompt for the language model.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// LanguageModel is the port for the language-understanding service. It
// returns the raw text of the model's reply.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NutritionProvider is the port for the nutrition lookup service. Query is a
// natural-language string such as "2 pieces boiled eggs".
type NutritionProvider interface {
	Nutrients(ctx context.Context, query string) (NutritionEstimate, error)
}

// CounterStore keeps fixed-window request counters for rate limiting.
type CounterStore interface {
	// Incr bumps the counter for key, starting a new window when none is
	// active, and returns the new count and when the window resets.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

// MealSuggestion is an ephemeral meal idea that fits the remaining budget.
type MealSuggestion struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	EstimatedCalories float64  `json:"estimatedCalories"`
	EstimatedProteinG float64  `json:"estimatedProtein"`
	EstimatedCarbsG   float64  `json:"estimatedCarbs"`
	EstimatedFatG     float64  `json:"estimatedFat"`
	Ingredients       []string `json:"ingredients"`
	DietaryCompliance bool     `json:"dietaryCompliance"`
	AllergySafe       bool     `json:"allergySafe"`
}
