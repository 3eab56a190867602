package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fitbite/internal/domain"

	"github.com/rs/zerolog/log"
)

// ResetDelay is how long a completed conversation stays visible before it
// returns to meal-type selection.
const ResetDelay = 3 * time.Second

// GenericErrorMessage is shown for any external failure.
const GenericErrorMessage = "Something went wrong. Please try again."

// Step names a conversation state.
type Step string

// Conversation steps.
const (
	StepMealType      Step = "meal_type"
	StepDescription   Step = "description"
	StepClarification Step = "clarification"
	StepConfirmation  Step = "confirmation"
	StepComplete      Step = "complete"
)

// State is one step of the meal-logging conversation.
type State interface {
	Step() Step
}

// MealTypeState is the initial step.
type MealTypeState struct{}

// DescriptionState waits for the free-text description. Violation or Error
// carry the outcome of a rejected attempt.
type DescriptionState struct {
	MealType  string
	Draft     string
	Violation *domain.DietaryViolation
	Error     string
}

// ClarificationState asks Questions one at a time; the current question is
// Questions[len(Answers)].
type ClarificationState struct {
	MealType    string
	Description string
	Questions   []string
	Answers     []string
	Error       string
}

// ConfirmationState shows the analyzed meal before it is logged.
type ConfirmationState struct {
	MealType    string
	Description string
	Items       []domain.AnalyzedItem
	Total       domain.NutritionEstimate
	Error       string
}

// CompleteState is terminal; it resets after ResetDelay.
type CompleteState struct {
	Meal        *domain.Meal
	Warning     string
	CompletedAt time.Time
}

func (MealTypeState) Step() Step      { return StepMealType }
func (DescriptionState) Step() Step   { return StepDescription }
func (ClarificationState) Step() Step { return StepClarification }
func (ConfirmationState) Step() Step  { return StepConfirmation }
func (CompleteState) Step() Step      { return StepComplete }

// CurrentQuestion returns the question awaiting an answer.
func (s ClarificationState) CurrentQuestion() string {
	if len(s.Answers) >= len(s.Questions) {
		return ""
	}
	return s.Questions[len(s.Answers)]
}

// Event drives a transition.
type Event interface {
	event()
}

// Events.
type (
	SelectMealType      struct{ MealType string }
	SubmitDescription   struct{ Description string }
	AnswerClarification struct{ Answer string }
	Edit                struct{}
	Confirm             struct{ MealDate string }
	Reset               struct{}
)

func (SelectMealType) event()      {}
func (SubmitDescription) event()   {}
func (AnswerClarification) event() {}
func (Edit) event()                {}
func (Confirm) event()             {}
func (Reset) event()               {}

// ErrInvalidTransition is returned for an event the current step does not accept.
var ErrInvalidTransition = errors.New("event not valid in current step")

// FullDescription joins the original description and the clarification answers.
func FullDescription(description string, answers []string) string {
	parts := append([]string{description}, answers...)
	return strings.Join(parts, " ")
}

// Expire returns the initial state when a completed conversation is older
// than ResetDelay. The flag reports whether a reset happened.
func Expire(s State, now time.Time) (State, bool) {
	if c, ok := s.(CompleteState); ok && now.Sub(c.CompletedAt) >= ResetDelay {
		return MealTypeState{}, true
	}
	return s, false
}

// Transition applies the events that need no external call. needsEffect is
// true when Dispatch must perform a call to complete the event.
func Transition(s State, e Event) (next State, needsEffect bool, err error) {
	if _, ok := e.(Reset); ok {
		return MealTypeState{}, false, nil
	}
	switch st := s.(type) {
	case MealTypeState:
		if ev, ok := e.(SelectMealType); ok {
			mt, valid := domain.NormalizeMealType(ev.MealType)
			if !valid {
				return s, false, invalid("mealType", "choose one of %s", strings.Join(domain.MealTypes, ", "))
			}
			return DescriptionState{MealType: mt}, false, nil
		}
	case DescriptionState:
		if _, ok := e.(SubmitDescription); ok {
			return st, true, nil
		}
	case ClarificationState:
		if ev, ok := e.(AnswerClarification); ok {
			answer := domain.Sanitize(ev.Answer)
			if answer == "" {
				st.Error = "Please answer the question."
				return st, false, nil
			}
			st.Error = ""
			st.Answers = append(append([]string{}, st.Answers...), answer)
			if len(st.Answers) < len(st.Questions) {
				return st, false, nil
			}
			return st, true, nil
		}
	case ConfirmationState:
		switch e.(type) {
		case Edit:
			return DescriptionState{MealType: st.MealType, Draft: st.Description}, false, nil
		case Confirm:
			return st, true, nil
		}
	}
	return s, false, fmt.Errorf("%w: %T in %s", ErrInvalidTransition, e, s.Step())
}

// ConversationStore keeps one conversation per user.
type ConversationStore interface {
	LoadConversation(ctx context.Context, userID int64) (State, error)
	SaveConversation(ctx context.Context, userID int64, s State) error
}

// ConversationController runs the meal-logging conversation and performs the
// external calls each step needs.
type ConversationController struct {
	advisor *ClarificationAdvisor
	parser  *MealParser
	lookup  *NutritionLookup
	meals   *MealService
	store   ConversationStore
	now     func() time.Time
}

// NewConversationController wires the pipeline components together.
func NewConversationController(advisor *ClarificationAdvisor, parser *MealParser, lookup *NutritionLookup, meals *MealService, store ConversationStore) *ConversationController {
	return &ConversationController{
		advisor: advisor,
		parser:  parser,
		lookup:  lookup,
		meals:   meals,
		store:   store,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for the completion auto-reset.
func (c *ConversationController) WithClock(now func() time.Time) *ConversationController {
	c.now = now
	return c
}

// Current returns the user's conversation state.
func (c *ConversationController) Current(ctx context.Context, userID int64) (State, error) {
	s, err := c.store.LoadConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return MealTypeState{}, nil
	}
	s, reset := Expire(s, c.now())
	if reset {
		if err := c.store.SaveConversation(ctx, userID, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dispatch applies e to the user's conversation and stores the result.
func (c *ConversationController) Dispatch(ctx context.Context, userID int64, e Event) (State, error) {
	current, err := c.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, needsEffect, err := Transition(current, e)
	if err != nil {
		return current, err
	}
	if needsEffect {
		next = c.effect(ctx, userID, next, e)
	}
	if err := c.store.SaveConversation(ctx, userID, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *ConversationController) effect(ctx context.Context, userID int64, s State, e Event) State {
	switch st := s.(type) {
	case DescriptionState:
		ev := e.(SubmitDescription)
		return c.submit(ctx, userID, st, ev.Description)
	case ClarificationState:
		return c.analyze(ctx, userID, st.MealType, st.Description, FullDescription(st.Description, st.Answers))
	case ConfirmationState:
		ev := e.(Confirm)
		return c.confirm(ctx, userID, st, ev.MealDate)
	}
	return s
}

func (c *ConversationController) submit(ctx context.Context, userID int64, st DescriptionState, description string) State {
	description = domain.Sanitize(description)
	st.Draft, st.Violation, st.Error = description, nil, ""
	if description == "" {
		st.Error = "Please describe your meal."
		return st
	}
	profile, err := c.meals.Profile(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("load profile")
		st.Error = GenericErrorMessage
		return st
	}
	assessment, err := c.advisor.Assess(ctx, st.MealType, description, profile.Dietary())
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("clarification")
		st.Error = GenericErrorMessage
		return st
	}
	if assessment.Violation != nil {
		st.Violation = assessment.Violation
		return st
	}
	if assessment.NeedsClarification {
		return ClarificationState{
			MealType:    st.MealType,
			Description: description,
			Questions:   assessment.Questions,
			Answers:     []string{},
		}
	}
	return c.analyze(ctx, userID, st.MealType, description, description)
}

// analyze parses description and looks up every item. On any failure the
// conversation goes back to the description step with the original text.
func (c *ConversationController) analyze(ctx context.Context, userID int64, mealType, original, description string) State {
	back := DescriptionState{MealType: mealType, Draft: original}
	profile, err := c.meals.Profile(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("load profile")
		back.Error = GenericErrorMessage
		return back
	}
	parsed, err := c.parser.Parse(ctx, description, profile.Dietary())
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("parse meal")
		back.Error = GenericErrorMessage
		return back
	}
	if parsed.Violation != nil {
		back.Violation = parsed.Violation
		return back
	}
	items := c.lookup.Analyze(ctx, parsed.Items)
	return ConfirmationState{
		MealType:    mealType,
		Description: description,
		Items:       items,
		Total:       domain.SumNutrition(items),
	}
}

func (c *ConversationController) confirm(ctx context.Context, userID int64, st ConfirmationState, mealDate string) State {
	st.Error = ""
	res, err := c.meals.CommitMeal(ctx, userID, CommitRequest{
		Description: st.Description,
		MealType:    st.MealType,
		MealDate:    mealDate,
		Items:       st.Items,
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("commit meal")
		var ve *ValidationError
		if errors.As(err, &ve) {
			st.Error = ve.Error()
		} else {
			st.Error = GenericErrorMessage
		}
		return st
	}
	if res.Violation != nil {
		return DescriptionState{MealType: st.MealType, Draft: st.Description, Violation: res.Violation}
	}
	return CompleteState{Meal: res.Meal, Warning: res.Warning, CompletedAt: c.now()}
}
