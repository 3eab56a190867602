package adapthttp

import (
	"fmt"
	"net/http"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

// conversationView is the wire form of a conversation state.
type conversationView struct {
	Step        app.Step                  `json:"step"`
	MealTypes   []string                  `json:"mealTypes,omitempty"`
	MealType    string                    `json:"mealType,omitempty"`
	Description string                    `json:"description,omitempty"`
	Question    string                    `json:"question,omitempty"`
	Questions   []string                  `json:"questions,omitempty"`
	Answers     []string                  `json:"answers,omitempty"`
	Items       []domain.AnalyzedItem     `json:"items,omitempty"`
	Total       *domain.NutritionEstimate `json:"total,omitempty"`
	Violation   *domain.DietaryViolation  `json:"violation,omitempty"`
	Meal        *domain.Meal              `json:"meal,omitempty"`
	Warning     string                    `json:"warning,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

func viewOf(s app.State) conversationView {
	v := conversationView{Step: s.Step()}
	switch st := s.(type) {
	case app.MealTypeState:
		v.MealTypes = domain.MealTypes
	case app.DescriptionState:
		v.MealType = st.MealType
		v.Description = st.Draft
		v.Violation = st.Violation
		v.Error = st.Error
	case app.ClarificationState:
		v.MealType = st.MealType
		v.Description = st.Description
		v.Question = st.CurrentQuestion()
		v.Questions = st.Questions
		v.Answers = st.Answers
		v.Error = st.Error
	case app.ConfirmationState:
		total := st.Total
		v.MealType = st.MealType
		v.Description = st.Description
		v.Items = st.Items
		v.Total = &total
		v.Error = st.Error
	case app.CompleteState:
		v.Meal = st.Meal
		v.Warning = st.Warning
	}
	return v
}

// conversationEvent is the wire form of an event. Kind selects which of the
// other fields apply.
type conversationEvent struct {
	Kind        string `json:"event"`
	MealType    string `json:"mealType,omitempty"`
	Description string `json:"description,omitempty"`
	Answer      string `json:"answer,omitempty"`
	MealDate    string `json:"mealDate,omitempty"`
}

func (e conversationEvent) toEvent() (app.Event, error) {
	switch e.Kind {
	case "select_meal_type":
		return app.SelectMealType{MealType: e.MealType}, nil
	case "submit_description":
		return app.SubmitDescription{Description: e.Description}, nil
	case "answer":
		return app.AnswerClarification{Answer: e.Answer}, nil
	case "edit":
		return app.Edit{}, nil
	case "confirm":
		return app.Confirm{MealDate: e.MealDate}, nil
	case "reset":
		return app.Reset{}, nil
	}
	return nil, &app.ValidationError{Field: "event", Message: fmt.Sprintf("unknown event %q", e.Kind)}
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	st, err := s.conversation.Current(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (s *Server) handleConversationEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var body conversationEvent
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ev, err := body.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.dispatch(w, r, userID, ev)
}

func (s *Server) handleConversationReset(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	s.dispatch(w, r, userID, app.Reset{})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, userID int64, ev app.Event) {
	st, err := s.conversation.Dispatch(r.Context(), userID, ev)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}
