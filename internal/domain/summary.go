package domain

import "math"

// GoalMetRatio is the share of the daily goal that counts as meeting it.
const GoalMetRatio = 0.9

// DailySummary is derived on every read from a user's meals for one day.
type DailySummary struct {
	Date              string  `json:"date"`
	TotalCalories     float64 `json:"totalCalories"`
	TotalProteinG     float64 `json:"totalProtein"`
	TotalCarbsG       float64 `json:"totalCarbs"`
	TotalFatG         float64 `json:"totalFat"`
	DailyGoal         float64 `json:"dailyGoal"`
	CaloriesRemaining float64 `json:"caloriesRemaining"`
	CaloriePercentage float64 `json:"caloriePercentage"`
	GoalMet           bool    `json:"goalMet"`
	MealCount         int     `json:"mealCount"`
	Meals             []Meal  `json:"meals"`
}

// Summarize builds the summary for one day from that day's meals.
func Summarize(date string, goal float64, meals []Meal) DailySummary {
	s := DailySummary{Date: date, DailyGoal: goal, Meals: meals, MealCount: len(meals)}
	if s.Meals == nil {
		s.Meals = []Meal{}
	}
	for _, m := range meals {
		s.TotalCalories += m.TotalCalories
		s.TotalProteinG += m.TotalProteinG
		s.TotalCarbsG += m.TotalCarbsG
		s.TotalFatG += m.TotalFatG
	}
	s.CaloriesRemaining = math.Max(0, goal-s.TotalCalories)
	if goal > 0 {
		s.CaloriePercentage = s.TotalCalories / goal * 100
	}
	s.GoalMet = GoalMet(s.TotalCalories, goal)
	return s
}

// GoalMet reports whether total reaches 90% of goal.
func GoalMet(total, goal float64) bool {
	return total >= goal*GoalMetRatio
}

// PeriodStatistics aggregates a range of daily summaries.
type PeriodStatistics struct {
	Period            string  `json:"period"`
	TotalDays         int     `json:"totalDays"`
	TotalCalories     float64 `json:"totalCalories"`
	AvgCaloriesPerDay float64 `json:"avgCaloriesPerDay"`
	DailyGoal         float64 `json:"dailyGoal"`
	GoalMetDays       int     `json:"goalMetDays"`
	GoalMetPercentage float64 `json:"goalMetPercentage"`
	TotalMeals        int     `json:"totalMeals"`
}

// ComputeStatistics derives period statistics from per-day summaries.
// Averages and percentages are rounded to whole numbers.
func ComputeStatistics(period string, goal float64, days []DailySummary) PeriodStatistics {
	st := PeriodStatistics{Period: period, TotalDays: len(days), DailyGoal: goal}
	for _, d := range days {
		st.TotalCalories += d.TotalCalories
		st.TotalMeals += d.MealCount
		if d.GoalMet {
			st.GoalMetDays++
		}
	}
	if st.TotalDays > 0 {
		st.AvgCaloriesPerDay = math.Round(st.TotalCalories / float64(st.TotalDays))
		st.GoalMetPercentage = math.Round(float64(st.GoalMetDays) / float64(st.TotalDays) * 100)
	}
	return st
}

// MacroRatios returns the share of consumed energy coming from protein,
// carbs and fat, using 4/4/9 kcal per gram. All zero when nothing was eaten.
func MacroRatios(proteinG, carbsG, fatG float64) (protein, carbs, fat float64) {
	energy := proteinG*4 + carbsG*4 + fatG*9
	if energy <= 0 {
		return 0, 0, 0
	}
	return proteinG * 4 / energy, carbsG * 4 / energy, fatG * 9 / energy
}
