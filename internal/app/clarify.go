package app

import (
	"context"
	"encoding/json"
	"fmt"

	"fitbite/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("fitbite/internal/app")

// MaxClarificationQuestions caps the follow-up questions asked per meal.
const MaxClarificationQuestions = 3

const clarifySystemPrompt = `You are a nutrition assistant helping users log meals accurately.
Analyze the meal description and determine if clarification questions are needed for better calorie tracking.

%s
If the meal clearly conflicts with these restrictions, set "dietary_violation" to true, list the
offending foods in "violating_foods" and explain in "reason".

Return a JSON object with:
- "dietary_violation": boolean
- "violating_foods": array of strings
- "reason": string
- "needs_clarification": boolean (true if questions are needed)
- "questions": array of specific clarification questions (max 3 questions)

Ask clarification questions only when:
1. Cooking methods are unclear (e.g., "chicken" - fried, grilled, boiled?)
2. Bread/grain types are vague (white, brown, multigrain?)
3. Missing important details about preparation (oil used, dressing, sauce?)
4. Portion sizes are very unclear

DO NOT ask clarification for:
- Already detailed descriptions
- Common foods with standard preparations
- When quantities are reasonably clear

Example output for vague input:
{"dietary_violation": false, "violating_foods": [], "reason": "", "needs_clarification": true, "questions": ["Was the chicken fried, grilled, or boiled?", "What type of bread did you have?"]}

Example output for clear input:
{"dietary_violation": false, "violating_foods": [], "reason": "", "needs_clarification": false, "questions": []}`

// Assessment is the advisor's verdict on a meal description. When Violation
// is set no questions are returned.
type Assessment struct {
	NeedsClarification bool                     `json:"needsClarification"`
	Questions          []string                 `json:"questions"`
	Violation          *domain.DietaryViolation `json:"violation,omitempty"`
}

// ClarificationAdvisor decides whether a meal description needs follow-up
// questions before it can be parsed.
type ClarificationAdvisor struct {
	model domain.LanguageModel
}

// NewClarificationAdvisor creates an advisor. A nil model behaves as an
// unavailable upstream.
func NewClarificationAdvisor(model domain.LanguageModel) *ClarificationAdvisor {
	return &ClarificationAdvisor{model: model}
}

type clarifyReply struct {
	DietaryViolation   bool         `json:"dietary_violation"`
	ViolatingFoods     []flexString `json:"violating_foods"`
	Reason             flexString   `json:"reason"`
	NeedsClarification *bool        `json:"needs_clarification"`
	Questions          []flexString `json:"questions"`
}

// Assess checks dietary compliance first and then asks the model whether the
// description is detailed enough. Upstream failures fail open.
func (a *ClarificationAdvisor) Assess(ctx context.Context, mealType, description string, profile domain.DietaryProfile) (Assessment, error) {
	ctx, span := tracer.Start(ctx, "ClarificationAdvisor.Assess")
	defer span.End()

	description = domain.Sanitize(description)
	mealType = domain.Sanitize(mealType)
	if description == "" {
		return Assessment{}, invalid("description", "meal description is required")
	}

	if c := domain.CheckCompliance(profile, description); !c.Compliant {
		span.SetAttributes(attribute.Bool("dietary_violation", true))
		return Assessment{Questions: []string{}, Violation: c.Violation}, nil
	}

	none := Assessment{Questions: []string{}}
	if a.model == nil {
		return a.fallback(none, ErrUpstreamUnavailable)
	}

	raw, err := a.model.Complete(ctx, domain.CompletionRequest{
		System:      fmt.Sprintf(clarifySystemPrompt, profile.Describe()),
		User:        fmt.Sprintf("Meal Type: %s\nDescription: %s", mealType, description),
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return a.fallback(none, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err))
	}

	body, ok := extractJSON(raw, '{', '}')
	if !ok {
		return a.fallback(none, ErrMalformedUpstream)
	}
	var reply clarifyReply
	if err := json.Unmarshal(body, &reply); err != nil || reply.NeedsClarification == nil {
		return a.fallback(none, ErrMalformedUpstream)
	}

	if reply.DietaryViolation && profile.Restricted() {
		foods := sanitizeList(reply.ViolatingFoods, 0)
		reason := domain.Sanitize(string(reply.Reason))
		if reason == "" {
			reason = "This meal conflicts with your dietary restrictions."
		}
		span.SetAttributes(attribute.Bool("dietary_violation", true))
		return Assessment{Questions: []string{}, Violation: &domain.DietaryViolation{ViolatingFoods: foods, Reason: reason}}, nil
	}

	questions := sanitizeList(reply.Questions, MaxClarificationQuestions)
	out := Assessment{
		NeedsClarification: *reply.NeedsClarification && len(questions) > 0,
		Questions:          questions,
	}
	if !out.NeedsClarification {
		out.Questions = []string{}
	}
	span.SetAttributes(attribute.Int("questions", len(out.Questions)))
	return out, nil
}

func (a *ClarificationAdvisor) fallback(none Assessment, cause error) (Assessment, error) {
	if !FailsOpen(componentClarification) {
		return Assessment{}, cause
	}
	log.Warn().Err(cause).Str("component", componentClarification).Msg("assuming no clarification needed")
	return none, nil
}

// sanitizeList sanitizes each entry, drops empties and keeps at most limit
// entries (no limit when limit <= 0).
func sanitizeList(in []flexString, limit int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		v := domain.Sanitize(string(s))
		if v == "" {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
