package adapthttp

import (
	"errors"
	"net/http"
	"time"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		CaloriesRemaining *float64                 `json:"caloriesRemaining"`
		CurrentMacros     domain.NutritionEstimate `json:"currentMacros"`
		DailyGoal         float64                  `json:"dailyGoal"`
		DietaryPreference *string                  `json:"dietaryPreference"`
		Allergies         []string                 `json:"allergies"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.CaloriesRemaining == nil {
		writeError(w, http.StatusBadRequest, &app.ValidationError{Field: "caloriesRemaining", Message: "is required"})
		return
	}

	profile, err := s.meals.Profile(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	dietary := profile.Dietary()
	if body.DietaryPreference != nil {
		pref, ok := domain.ParseDietaryPreference(*body.DietaryPreference)
		if !ok {
			writeError(w, http.StatusBadRequest, &app.ValidationError{Field: "dietaryPreference", Message: "must be vegetarian, vegan or non-vegetarian"})
			return
		}
		dietary.Preference = pref
	}
	if body.Allergies != nil {
		dietary.Allergies = body.Allergies
	}

	suggestions, err := s.suggestions.Suggest(r.Context(), app.SuggestionRequest{
		CaloriesRemaining: *body.CaloriesRemaining,
		CurrentMacros:     body.CurrentMacros,
		DailyGoal:         body.DailyGoal,
		Profile:           dietary,
	})
	if errors.Is(err, app.ErrGoalReached) {
		writeJSON(w, http.StatusOK, map[string]any{
			"goalReached": true,
			"message":     "You've reached your daily calorie goal!",
			"suggestions": []domain.MealSuggestion{},
		})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goalReached": false, "suggestions": suggestions})
}

// handleSuggestionsForDay serves the debounced set when it is current and
// computes one otherwise.
func (s *Server) handleSuggestionsForDay(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	day := r.URL.Query().Get("date")
	if day == "" {
		day = s.meals.Today()
	} else if _, err := time.Parse(domain.DayLayout, day); err != nil {
		writeError(w, http.StatusBadRequest, &app.ValidationError{Field: "date", Message: "must be YYYY-MM-DD"})
		return
	}

	if s.feed != nil && !s.feed.Pending(userID) {
		if set, ok := s.feed.Latest(userID, day); ok {
			writeJSON(w, http.StatusOK, set)
			return
		}
	}

	set, err := s.suggestions.ForDay(r.Context(), userID, day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.feed != nil {
		s.feed.Store(userID, set)
	}
	writeJSON(w, http.StatusOK, set)
}
