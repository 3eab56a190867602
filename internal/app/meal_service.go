package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"fitbite/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ItemsNotSavedWarning is reported when the meal row was stored but its food items were not.
const ItemsNotSavedWarning = "Meal saved, but some food item details could not be stored."

// CommitRequest carries a confirmed meal into storage.
type CommitRequest struct {
	Description string
	MealType    string
	MealDate    string
	Items       []domain.AnalyzedItem
}

// CommitResult is the outcome of CommitMeal. Exactly one of Meal or
// Violation is set; Warning is a soft failure on a stored meal.
type CommitResult struct {
	Meal      *domain.Meal             `json:"meal,omitempty"`
	Warning   string                   `json:"warning,omitempty"`
	Violation *domain.DietaryViolation `json:"violation,omitempty"`
}

// HistoryQuery selects either a named period or an inclusive custom range.
type HistoryQuery struct {
	Period string
	Start  string
	End    string
}

// History is the per-day breakdown of a period, newest day first.
type History struct {
	Statistics     domain.PeriodStatistics `json:"statistics"`
	DailySummaries []domain.DailySummary   `json:"dailySummaries"`
}

// MealService persists meals and derives daily and periodic summaries.
type MealService struct {
	meals     domain.MealRepository
	profiles  domain.ProfileRepository
	now       func() time.Time
	listeners []func(userID int64, day string)
}

// NewMealService creates a MealService backed by the given repositories.
func NewMealService(meals domain.MealRepository, profiles domain.ProfileRepository) *MealService {
	return &MealService{meals: meals, profiles: profiles, now: time.Now}
}

// WithClock replaces the clock used for "today".
func (s *MealService) WithClock(now func() time.Time) *MealService {
	s.now = now
	return s
}

// OnChange registers fn to be called after a user's meals for a day change.
func (s *MealService) OnChange(fn func(userID int64, day string)) {
	s.listeners = append(s.listeners, fn)
}

// Today returns the server-local calendar day.
func (s *MealService) Today() string {
	return s.now().Format(domain.DayLayout)
}

// Profile returns the user's profile, or nil when none exists.
func (s *MealService) Profile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	if s.profiles == nil {
		return nil, nil
	}
	return s.profiles.GetProfile(ctx, userID)
}

// CommitMeal stores a meal and its items. A failure to store the meal row is
// fatal; a failure to store the items is reported as a warning.
func (s *MealService) CommitMeal(ctx context.Context, userID int64, req CommitRequest) (*CommitResult, error) {
	ctx, span := tracer.Start(ctx, "MealService.CommitMeal")
	defer span.End()

	description := domain.Sanitize(req.Description)
	if description == "" {
		return nil, invalid("description", "meal description is required")
	}
	if len(req.Items) == 0 {
		return nil, invalid("items", "at least one food item is required")
	}
	mealDate := req.MealDate
	if mealDate == "" {
		mealDate = s.Today()
	} else if _, err := time.Parse(domain.DayLayout, mealDate); err != nil {
		return nil, invalid("mealDate", "must be YYYY-MM-DD")
	}
	mealType := ""
	if req.MealType != "" {
		t, ok := domain.NormalizeMealType(req.MealType)
		if !ok {
			return nil, invalid("mealType", "unknown meal type %q", req.MealType)
		}
		mealType = t
	}

	items := make([]domain.AnalyzedItem, 0, len(req.Items))
	names := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		name := domain.Sanitize(it.Item.Name)
		if name == "" {
			return nil, invalid("items", "food item name is required")
		}
		qty := it.Item.Quantity
		if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
			qty = 1
		}
		items = append(items, domain.AnalyzedItem{
			Item: domain.ParsedFoodItem{Key: it.Item.Key, Name: name, Quantity: qty, Unit: domain.Sanitize(it.Item.Unit)},
			Nutrition: domain.NutritionEstimate{
				Calories: math.Max(0, it.Nutrition.Calories),
				ProteinG: math.Max(0, it.Nutrition.ProteinG),
				CarbsG:   math.Max(0, it.Nutrition.CarbsG),
				FatG:     math.Max(0, it.Nutrition.FatG),
			},
		})
		names = append(names, name)
	}

	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load profile: %v", ErrPersistence, err)
	}
	if c := domain.CheckCompliance(profile.Dietary(), append(names, description)...); !c.Compliant {
		return &CommitResult{Violation: c.Violation}, nil
	}

	total := domain.SumNutrition(items)
	meal := &domain.Meal{
		UserID:        userID,
		Description:   description,
		MealType:      mealType,
		MealDate:      mealDate,
		TotalCalories: total.Calories,
		TotalProteinG: total.ProteinG,
		TotalCarbsG:   total.CarbsG,
		TotalFatG:     total.FatG,
	}
	if err := s.meals.CreateMeal(ctx, meal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	span.SetAttributes(attribute.Int64("meal_id", meal.ID))

	records := make([]domain.FoodItemRecord, len(items))
	for i, it := range items {
		records[i] = domain.FoodItemRecord{
			MealID:   meal.ID,
			Name:     it.Item.Name,
			Quantity: it.Item.Quantity,
			Unit:     it.Item.Unit,
			Calories: it.Nutrition.Calories,
			ProteinG: it.Nutrition.ProteinG,
			CarbsG:   it.Nutrition.CarbsG,
			FatG:     it.Nutrition.FatG,
		}
	}

	result := &CommitResult{Meal: meal}
	saved, err := s.meals.CreateFoodItems(ctx, meal.ID, records)
	if err != nil {
		log.Warn().Err(err).Int64("meal_id", meal.ID).Msg("food items not stored")
		meal.FoodItems = []domain.FoodItemRecord{}
		result.Warning = ItemsNotSavedWarning
	} else {
		meal.FoodItems = saved
	}

	s.notify(userID, mealDate)
	return result, nil
}

// DailyGoal resolves the user's calorie goal: manual, derived or default.
func (s *MealService) DailyGoal(ctx context.Context, userID int64) (float64, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return p.ResolveDailyGoal(), nil
}

// DailySummary derives the summary for one day. An empty day defaults to today.
func (s *MealService) DailySummary(ctx context.Context, userID int64, day string) (*domain.DailySummary, error) {
	if day == "" {
		day = s.Today()
	} else if _, err := time.Parse(domain.DayLayout, day); err != nil {
		return nil, invalid("date", "must be YYYY-MM-DD")
	}
	goal, err := s.DailyGoal(ctx, userID)
	if err != nil {
		return nil, err
	}
	meals, err := s.meals.ListMealsByDate(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	summary := domain.Summarize(day, goal, meals)
	return &summary, nil
}

// History groups the meals of a period by meal date. Only days with at least
// one meal are included.
func (s *MealService) History(ctx context.Context, userID int64, q HistoryQuery) (*History, error) {
	from, to, period, err := s.historyRange(q)
	if err != nil {
		return nil, err
	}
	goal, err := s.DailyGoal(ctx, userID)
	if err != nil {
		return nil, err
	}
	meals, err := s.meals.ListMealsInRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	byDay := map[string][]domain.Meal{}
	var days []string
	for _, m := range meals {
		if _, ok := byDay[m.MealDate]; !ok {
			days = append(days, m.MealDate)
		}
		byDay[m.MealDate] = append(byDay[m.MealDate], m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	summaries := make([]domain.DailySummary, 0, len(days))
	for _, d := range days {
		summaries = append(summaries, domain.Summarize(d, goal, byDay[d]))
	}
	return &History{
		Statistics:     domain.ComputeStatistics(period, goal, summaries),
		DailySummaries: summaries,
	}, nil
}

func (s *MealService) historyRange(q HistoryQuery) (from, to, period string, err error) {
	if q.Start != "" || q.End != "" {
		if q.Start == "" || q.End == "" {
			return "", "", "", invalid("range", "start_date and end_date must be given together")
		}
		start, err1 := time.Parse(domain.DayLayout, q.Start)
		end, err2 := time.Parse(domain.DayLayout, q.End)
		if err1 != nil || err2 != nil {
			return "", "", "", invalid("range", "dates must be YYYY-MM-DD")
		}
		if end.Before(start) {
			return "", "", "", invalid("range", "end_date is before start_date")
		}
		return q.Start, q.End, "custom", nil
	}

	today := s.now()
	period = q.Period
	if period == "" {
		period = "week"
	}
	var start time.Time
	switch period {
	case "week":
		start = today.AddDate(0, 0, -7)
	case "month":
		start = today.AddDate(0, -1, 0)
	case "year":
		start = today.AddDate(-1, 0, 0)
	default:
		return "", "", "", invalid("period", "use week, month, year, or provide start_date and end_date")
	}
	return start.Format(domain.DayLayout), today.Format(domain.DayLayout), period, nil
}

// RecentMeals returns the most recent meals up to limit.
func (s *MealService) RecentMeals(ctx context.Context, userID int64, limit int) ([]domain.Meal, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.meals.ListRecentMeals(ctx, userID, limit)
}

// DeleteMeal removes one of the user's meals together with its items.
func (s *MealService) DeleteMeal(ctx context.Context, userID, mealID int64) error {
	day, ok, err := s.meals.DeleteMeal(ctx, userID, mealID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMealNotFound
	}
	s.notify(userID, day)
	return nil
}

func (s *MealService) notify(userID int64, day string) {
	for _, fn := range s.listeners {
		fn(userID, day)
	}
}
