package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"fitbite/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Suggestion output limits.
const (
	SuggestionCount          = 3
	maxSuggestionTitle       = 50
	maxSuggestionDescription = 150
	maxSuggestionIngredients = 8
)

const suggestionSystemPrompt = "You are a professional nutritionist providing meal suggestions. Always respond with valid JSON only, no additional text."

const suggestionPrompt = `You are a nutrition expert. Generate 3 meal suggestions for someone with %s calories remaining in their daily budget.

Current daily intake:
- Protein: %sg
- Carbs: %sg
- Fat: %sg
- Daily calorie goal: %s calories

%s

Guidelines:
- %s
- Each suggestion should be realistic and practical
- Target balanced nutrition within the calorie budget
- Include variety (breakfast/lunch/dinner/snack options appropriate for remaining calories)
- Ensure suggestions comply with dietary restrictions
- Avoid ingredients that the user is allergic to

Return a JSON array with exactly 3 suggestions. Each suggestion must have:
{
  "title": "Meal name (max 50 characters)",
  "description": "Brief description with cooking method (max 150 characters)",
  "estimated_calories": number,
  "estimated_protein": number (grams),
  "estimated_carbs": number (grams),
  "estimated_fat": number (grams),
  "ingredients": ["ingredient1", "ingredient2", "ingredient3", ...] (max 8 ingredients),
  "dietary_compliance": true/false,
  "allergy_safe": true/false
}

Make sure estimated_calories for each suggestion is less than or equal to %s. If calories_remaining is very low (under 100), suggest light snacks or drinks.`

// SuggestionRequest is the input to Suggest.
type SuggestionRequest struct {
	CaloriesRemaining float64
	CurrentMacros     domain.NutritionEstimate
	DailyGoal         float64
	Profile           domain.DietaryProfile
}

// SuggestionSet is the suggestion state for one user and day.
type SuggestionSet struct {
	Date              string                  `json:"date"`
	GoalReached       bool                    `json:"goalReached"`
	CaloriesRemaining float64                 `json:"caloriesRemaining"`
	Suggestions       []domain.MealSuggestion `json:"suggestions"`
	GeneratedAt       time.Time               `json:"generatedAt"`
}

// SuggestionService asks the model for meals that fit the remaining budget.
type SuggestionService struct {
	model domain.LanguageModel
	meals *MealService
	now   func() time.Time
}

// NewSuggestionService creates a SuggestionService. meals is used by ForDay
// to read the day's summary and the user's profile.
func NewSuggestionService(model domain.LanguageModel, meals *MealService) *SuggestionService {
	return &SuggestionService{model: model, meals: meals, now: time.Now}
}

// MacroGuidance steers the prompt toward whichever macro is under-represented
// in the energy consumed so far.
func MacroGuidance(proteinG, carbsG, fatG float64) string {
	protein, carbs, fat := domain.MacroRatios(proteinG, carbsG, fatG)
	var b strings.Builder
	if protein < 0.15 {
		b.WriteString("Focus on protein-rich foods. ")
	}
	if carbs < 0.45 {
		b.WriteString("Include healthy carbohydrates. ")
	}
	if fat < 0.2 {
		b.WriteString("Add healthy fats. ")
	}
	if b.Len() == 0 {
		return "Maintain balanced macro distribution. "
	}
	return b.String()
}

type suggestionReply struct {
	Title             flexString   `json:"title"`
	Description       flexString   `json:"description"`
	EstimatedCalories flexNumber   `json:"estimated_calories"`
	EstimatedProtein  flexNumber   `json:"estimated_protein"`
	EstimatedCarbs    flexNumber   `json:"estimated_carbs"`
	EstimatedFat      flexNumber   `json:"estimated_fat"`
	Ingredients       []flexString `json:"ingredients"`
	DietaryCompliance any          `json:"dietary_compliance"`
	AllergySafe       any          `json:"allergy_safe"`
}

// Suggest returns exactly three suggestions. It never calls the model when
// no budget is left, and fails closed on a malformed reply.
func (s *SuggestionService) Suggest(ctx context.Context, req SuggestionRequest) ([]domain.MealSuggestion, error) {
	ctx, span := tracer.Start(ctx, "SuggestionService.Suggest")
	defer span.End()

	remaining := req.CaloriesRemaining
	if math.IsNaN(remaining) || math.IsInf(remaining, 0) || remaining < 0 {
		return nil, invalid("caloriesRemaining", "must be a non-negative number")
	}
	if remaining == 0 {
		return nil, ErrGoalReached
	}
	if s.model == nil {
		return nil, ErrUpstreamUnavailable
	}

	prompt := fmt.Sprintf(suggestionPrompt,
		num(remaining),
		num(req.CurrentMacros.ProteinG), num(req.CurrentMacros.CarbsG), num(req.CurrentMacros.FatG),
		num(req.DailyGoal),
		req.Profile.Describe(),
		strings.TrimSpace(MacroGuidance(req.CurrentMacros.ProteinG, req.CurrentMacros.CarbsG, req.CurrentMacros.FatG)),
		num(remaining),
	)
	raw, err := s.model.Complete(ctx, domain.CompletionRequest{
		System:      suggestionSystemPrompt,
		User:        domain.Sanitize(prompt),
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	body, ok := extractJSON(raw, '[', ']')
	if !ok {
		return nil, s.malformed("no JSON array in reply")
	}
	var replies []suggestionReply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, s.malformed(err.Error())
	}
	if len(replies) != SuggestionCount {
		return nil, s.malformed(fmt.Sprintf("expected %d suggestions, got %d", SuggestionCount, len(replies)))
	}

	out := make([]domain.MealSuggestion, len(replies))
	for i, r := range replies {
		out[i] = domain.MealSuggestion{
			ID:                uuid.NewString(),
			Title:             domain.Truncate(domain.Sanitize(string(r.Title)), maxSuggestionTitle),
			Description:       domain.Truncate(domain.Sanitize(string(r.Description)), maxSuggestionDescription),
			EstimatedCalories: math.Max(0, math.Min(r.EstimatedCalories.Or(0), remaining)),
			EstimatedProteinG: math.Max(0, r.EstimatedProtein.Or(0)),
			EstimatedCarbsG:   math.Max(0, r.EstimatedCarbs.Or(0)),
			EstimatedFatG:     math.Max(0, r.EstimatedFat.Or(0)),
			Ingredients:       sanitizeList(r.Ingredients, maxSuggestionIngredients),
			DietaryCompliance: truthy(r.DietaryCompliance),
			AllergySafe:       truthy(r.AllergySafe),
		}
	}
	span.SetAttributes(attribute.Int("suggestions", len(out)))
	return out, nil
}

// ForDay builds a request from the day's summary and the user's profile.
// When the goal is already reached the model is not called.
func (s *SuggestionService) ForDay(ctx context.Context, userID int64, day string) (*SuggestionSet, error) {
	summary, err := s.meals.DailySummary(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	set := &SuggestionSet{
		Date:              summary.Date,
		CaloriesRemaining: summary.CaloriesRemaining,
		Suggestions:       []domain.MealSuggestion{},
		GeneratedAt:       s.now(),
	}
	if summary.CaloriesRemaining <= 0 {
		set.GoalReached = true
		return set, nil
	}
	profile, err := s.meals.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.Suggest(ctx, SuggestionRequest{
		CaloriesRemaining: summary.CaloriesRemaining,
		CurrentMacros: domain.NutritionEstimate{
			Calories: summary.TotalCalories,
			ProteinG: summary.TotalProteinG,
			CarbsG:   summary.TotalCarbsG,
			FatG:     summary.TotalFatG,
		},
		DailyGoal: summary.DailyGoal,
		Profile:   profile.Dietary(),
	})
	if err != nil {
		return nil, err
	}
	set.Suggestions = suggestions
	return set, nil
}

func (s *SuggestionService) malformed(reason string) error {
	log.Warn().Str("component", componentSuggestions).Str("reason", reason).Msg("rejecting model reply")
	return fmt.Errorf("%w: %s", ErrMalformedUpstream, reason)
}

func num(v float64) string {
	return fmt.Sprintf("%g", math.Round(v*10)/10)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case float64:
		return t != 0
	}
	return false
}
