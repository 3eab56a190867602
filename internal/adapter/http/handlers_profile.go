package adapthttp

import (
	"net/http"

	"fitbite/internal/app"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	p, err := s.profiles.Get(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":           p,
		"resolvedDailyGoal": p.ResolveDailyGoal(),
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		DietaryPreference *string   `json:"dietaryPreference"`
		Allergies         *[]string `json:"allergies"`
		DailyCalorieGoal  *float64  `json:"dailyCalorieGoal"`
		Age               *int      `json:"age"`
		Weight            *float64  `json:"weight"`
		WeightUnit        string    `json:"weightUnit"`
		HeightCM          *float64  `json:"heightCm"`
		ActivityLevel     *string   `json:"activityLevel"`
		Gender            *string   `json:"gender"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.profiles.Update(r.Context(), userID, app.ProfileUpdate{
		DietaryPreference: body.DietaryPreference,
		Allergies:         body.Allergies,
		DailyCalorieGoal:  body.DailyCalorieGoal,
		Age:               body.Age,
		Weight:            body.Weight,
		WeightUnit:        body.WeightUnit,
		HeightCM:          body.HeightCM,
		ActivityLevel:     body.ActivityLevel,
		Gender:            body.Gender,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":           p,
		"resolvedDailyGoal": p.ResolveDailyGoal(),
	})
}
