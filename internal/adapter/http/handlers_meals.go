package adapthttp

import (
	"errors"
	"net/http"
	"strconv"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

const maxNutritionItems = 25

// currentUserID returns the caller's ID or writes 401.
func currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	u, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, app.ErrUnauthorized)
		return 0, false
	}
	return u.ID, true
}

func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		MealType    string `json:"mealType"`
		Description string `json:"description"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := s.meals.Profile(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	assessment, err := s.advisor.Assess(r.Context(), body.MealType, body.Description, profile.Dietary())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if assessment.Violation != nil {
		writeViolation(w, assessment.Violation)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := s.meals.Profile(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.parser.Parse(r.Context(), body.Description, profile.Dietary())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if result.Violation != nil {
		writeViolation(w, result.Violation)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result.Items})
}

func (s *Server) handleNutrition(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}
	var body struct {
		Items []domain.ParsedFoodItem `json:"items"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch {
	case len(body.Items) == 0:
		writeError(w, http.StatusBadRequest, &app.ValidationError{Field: "items", Message: "at least one food item is required"})
		return
	case len(body.Items) > maxNutritionItems:
		writeError(w, http.StatusBadRequest, &app.ValidationError{Field: "items", Message: "too many food items"})
		return
	}
	for i := range body.Items {
		body.Items[i].Name = domain.Sanitize(body.Items[i].Name)
		body.Items[i].Unit = domain.Sanitize(body.Items[i].Unit)
		if body.Items[i].Name == "" {
			writeError(w, http.StatusBadRequest, &app.ValidationError{Field: "items", Message: "food item name is required"})
			return
		}
		if body.Items[i].Quantity <= 0 {
			body.Items[i].Quantity = 1
		}
	}

	perItem := s.lookup.Analyze(r.Context(), body.Items)
	writeJSON(w, http.StatusOK, map[string]any{
		"perItem": perItem,
		"total":   domain.SumNutrition(perItem),
	})
}

func (s *Server) handleCommitMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Description      string                  `json:"description"`
		MealType         string                  `json:"mealType"`
		MealDate         string                  `json:"mealDate"`
		Items            []domain.ParsedFoodItem `json:"items"`
		PerItemNutrition []domain.AnalyzedItem   `json:"perItemNutrition"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.meals.CommitMeal(r.Context(), userID, app.CommitRequest{
		Description: body.Description,
		MealType:    body.MealType,
		MealDate:    body.MealDate,
		Items:       pairNutrition(body.Items, body.PerItemNutrition),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if result.Violation != nil {
		writeViolation(w, result.Violation)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// pairNutrition joins items with their estimates by key, falling back to
// position. Items without an estimate get the zero estimate.
func pairNutrition(items []domain.ParsedFoodItem, perItem []domain.AnalyzedItem) []domain.AnalyzedItem {
	byKey := make(map[string]domain.NutritionEstimate, len(perItem))
	for _, a := range perItem {
		if a.Item.Key != "" {
			byKey[a.Item.Key] = a.Nutrition
		}
	}
	out := make([]domain.AnalyzedItem, len(items))
	for i, it := range items {
		out[i].Item = it
		if est, ok := byKey[it.Key]; ok && it.Key != "" {
			out[i].Nutrition = est
		} else if i < len(perItem) {
			out[i].Nutrition = perItem[i].Nutrition
		}
	}
	return out
}

func (s *Server) handleMealsByDate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	summary, err := s.meals.DailySummary(r.Context(), userID, r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRecentMeals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	meals, err := s.meals.RecentMeals(r.Context(), userID, intQuery(r, "limit", 10))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meals": meals})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	history, err := s.meals.History(r.Context(), userID, app.HistoryQuery{
		Period: q.Get("period"),
		Start:  q.Get("start_date"),
		End:    q.Get("end_date"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid meal id"))
		return
	}
	if err := s.meals.DeleteMeal(r.Context(), userID, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": id})
}
