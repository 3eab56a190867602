package domain

import (
	"context"
	"strings"
	"time"
)

// DayLayout is the calendar-day format used for meal dates.
const DayLayout = "2006-01-02"

// MealTypes are the meal categories a user picks when logging.
var MealTypes = []string{"Breakfast", "Lunch", "Dinner", "Snack"}

// NormalizeMealType matches s case-insensitively against MealTypes and
// returns the canonical spelling.
func NormalizeMealType(s string) (string, bool) {
	for _, t := range MealTypes {
		if strings.EqualFold(strings.TrimSpace(s), t) {
			return t, true
		}
	}
	return "", false
}

// ParsedFoodItem is one food the language model extracted from a description.
// Key is a stable correlation id that follows the item through lookup and commit.
type ParsedFoodItem struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// NutritionEstimate holds the macro estimate for a single food item.
type NutritionEstimate struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein"`
	CarbsG   float64 `json:"carbs"`
	FatG     float64 `json:"fat"`
}

// Add returns the element-wise sum of two estimates.
func (n NutritionEstimate) Add(o NutritionEstimate) NutritionEstimate {
	return NutritionEstimate{
		Calories: n.Calories + o.Calories,
		ProteinG: n.ProteinG + o.ProteinG,
		CarbsG:   n.CarbsG + o.CarbsG,
		FatG:     n.FatG + o.FatG,
	}
}

// AnalyzedItem pairs a parsed item with its nutrition estimate.
type AnalyzedItem struct {
	Item      ParsedFoodItem    `json:"item"`
	Nutrition NutritionEstimate `json:"nutrition"`
}

// SumNutrition totals the estimates of the given items.
func SumNutrition(items []AnalyzedItem) NutritionEstimate {
	var total NutritionEstimate
	for _, it := range items {
		total = total.Add(it.Nutrition)
	}
	return total
}

// FoodItemRecord is the persisted form of an analyzed item, owned by one meal.
type FoodItemRecord struct {
	ID        int64     `json:"id"`
	MealID    int64     `json:"mealId"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit,omitempty"`
	Calories  float64   `json:"calories"`
	ProteinG  float64   `json:"protein"`
	CarbsG    float64   `json:"carbs"`
	FatG      float64   `json:"fat"`
	CreatedAt time.Time `json:"createdAt"`
}

// Meal is a single logged eating event. Totals are the sum of its food items
// at creation time and are never edited afterwards.
type Meal struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"userId"`
	Description   string           `json:"description"`
	MealType      string           `json:"mealType,omitempty"`
	MealDate      string           `json:"mealDate"`
	TotalCalories float64          `json:"totalCalories"`
	TotalProteinG float64          `json:"totalProtein"`
	TotalCarbsG   float64          `json:"totalCarbs"`
	TotalFatG     float64          `json:"totalFat"`
	CreatedAt     time.Time        `json:"createdAt"`
	FoodItems     []FoodItemRecord `json:"foodItems"`
}

// Totals returns the meal totals as an estimate.
func (m Meal) Totals() NutritionEstimate {
	return NutritionEstimate{
		Calories: m.TotalCalories,
		ProteinG: m.TotalProteinG,
		CarbsG:   m.TotalCarbsG,
		FatG:     m.TotalFatG,
	}
}

// MealRepository is the port for meal persistence.
type MealRepository interface {
	// CreateMeal inserts the meal row and fills in ID and CreatedAt.
	CreateMeal(ctx context.Context, meal *Meal) error
	// CreateFoodItems inserts the item rows for an existing meal.
	CreateFoodItems(ctx context.Context, mealID int64, items []FoodItemRecord) ([]FoodItemRecord, error)
	// ListMealsByDate returns a user's meals for one day, oldest first, with items.
	ListMealsByDate(ctx context.Context, userID int64, day string) ([]Meal, error)
	// ListMealsInRange returns meals with from <= meal_date <= to, newest first, with items.
	ListMealsInRange(ctx context.Context, userID int64, from, to string) ([]Meal, error)
	ListRecentMeals(ctx context.Context, userID int64, limit int) ([]Meal, error)
	// DeleteMeal removes a meal and its items. It returns the deleted meal's date
	// and reports whether a row was deleted.
	DeleteMeal(ctx context.Context, userID, mealID int64) (mealDate string, ok bool, err error)
}
