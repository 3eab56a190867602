package app

import (
	"context"
	"encoding/json"
	"fmt"

	"fitbite/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const parseSystemPrompt = `You are a nutrition assistant that parses meal descriptions into individual food items.
Parse the meal description and return a JSON object with an "items" array of food items with their quantities and units.
Each item should have: name (string), quantity (number), unit (string, optional).
Be precise with quantities and use standard units (pieces, cups, grams, etc.).

%s
If the meal conflicts with these restrictions, set "dietary_violation" to true, list the offending
foods in "violating_foods", explain in "reason" and leave "items" empty.

Example output:
{"dietary_violation": false, "items": [{"name": "boiled eggs", "quantity": 2, "unit": "pieces"}, {"name": "toast", "quantity": 1, "unit": "slice"}]}`

// ParseResult holds either the parsed items or a dietary violation.
type ParseResult struct {
	Items     []domain.ParsedFoodItem  `json:"items,omitempty"`
	Violation *domain.DietaryViolation `json:"violation,omitempty"`
}

// MealParser turns a free-text description into structured food items.
type MealParser struct {
	model domain.LanguageModel
}

// NewMealParser creates a parser backed by the given model.
func NewMealParser(model domain.LanguageModel) *MealParser {
	return &MealParser{model: model}
}

type parseReply struct {
	DietaryViolation bool         `json:"dietary_violation"`
	ViolatingFoods   []flexString `json:"violating_foods"`
	Reason           flexString   `json:"reason"`
	Items            *[]struct {
		Name     flexString `json:"name"`
		Quantity flexNumber `json:"quantity"`
		Unit     flexString `json:"unit"`
	} `json:"items"`
}

// Parse asks the model for the food items in description. It fails closed:
// an unreachable model or a malformed reply is an error, never a guess.
func (p *MealParser) Parse(ctx context.Context, description string, profile domain.DietaryProfile) (ParseResult, error) {
	ctx, span := tracer.Start(ctx, "MealParser.Parse")
	defer span.End()

	description = domain.Sanitize(description)
	if description == "" {
		return ParseResult{}, invalid("description", "meal description is required")
	}
	if c := domain.CheckCompliance(profile, description); !c.Compliant {
		return ParseResult{Violation: c.Violation}, nil
	}
	if p.model == nil {
		return ParseResult{}, ErrUpstreamUnavailable
	}

	raw, err := p.model.Complete(ctx, domain.CompletionRequest{
		System:      fmt.Sprintf(parseSystemPrompt, profile.Describe()),
		User:        description,
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		span.SetStatus(codes.Error, "model call failed")
		return ParseResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	body, ok := extractJSON(raw, '{', '}')
	if !ok {
		return ParseResult{}, p.malformed(raw, "no JSON object in reply")
	}
	var reply parseReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return ParseResult{}, p.malformed(raw, err.Error())
	}

	if reply.DietaryViolation && profile.Restricted() {
		reason := domain.Sanitize(string(reply.Reason))
		if reason == "" {
			reason = "This meal conflicts with your dietary restrictions."
		}
		return ParseResult{Violation: &domain.DietaryViolation{
			ViolatingFoods: sanitizeList(reply.ViolatingFoods, 0),
			Reason:         reason,
		}}, nil
	}
	if reply.Items == nil {
		return ParseResult{}, p.malformed(raw, "missing items")
	}

	items := make([]domain.ParsedFoodItem, 0, len(*reply.Items))
	names := make([]string, 0, len(*reply.Items))
	for _, it := range *reply.Items {
		name := domain.Sanitize(string(it.Name))
		if name == "" {
			continue
		}
		qty := it.Quantity.Or(1)
		if qty <= 0 {
			qty = 1
		}
		items = append(items, domain.ParsedFoodItem{
			Key:      uuid.NewString(),
			Name:     name,
			Quantity: qty,
			Unit:     domain.Sanitize(string(it.Unit)),
		})
		names = append(names, name)
	}
	if len(items) == 0 {
		return ParseResult{}, p.malformed(raw, "no usable items")
	}

	if c := domain.CheckCompliance(profile, names...); !c.Compliant {
		return ParseResult{Violation: c.Violation}, nil
	}

	span.SetAttributes(attribute.Int("items", len(items)))
	return ParseResult{Items: items}, nil
}

func (p *MealParser) malformed(raw, reason string) error {
	log.Warn().Str("component", componentParser).Str("reason", reason).Int("reply_len", len(raw)).Msg("rejecting model reply")
	return fmt.Errorf("%w: %s", ErrMalformedUpstream, reason)
}
