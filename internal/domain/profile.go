package domain

import (
	"context"
	"math"
	"strings"
)

// DefaultDailyGoal is used when a profile has neither a manual nor a derivable goal.
const DefaultDailyGoal = 2000

// DietaryPreference restricts which foods a user eats.
type DietaryPreference string

// Dietary preferences.
const (
	DietNone       DietaryPreference = "none"
	DietVegetarian DietaryPreference = "vegetarian"
	DietVegan      DietaryPreference = "vegan"
)

// ParseDietaryPreference normalises a stored or submitted preference.
// "non-vegetarian" and the empty string both mean no restriction.
func ParseDietaryPreference(s string) (DietaryPreference, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "non-vegetarian":
		return DietNone, true
	case "vegetarian":
		return DietVegetarian, true
	case "vegan":
		return DietVegan, true
	}
	return "", false
}

// ActivityLevel is one of five activity bands used for the calorie goal.
type ActivityLevel string

// Activity levels.
const (
	ActivitySedentary        ActivityLevel = "sedentary"
	ActivityLightlyActive    ActivityLevel = "lightly_active"
	ActivityModeratelyActive ActivityLevel = "moderately_active"
	ActivityVeryActive       ActivityLevel = "very_active"
	ActivityExtremelyActive  ActivityLevel = "extremely_active"
)

var activityMultipliers = map[ActivityLevel]float64{
	ActivitySedentary:        1.2,
	ActivityLightlyActive:    1.375,
	ActivityModeratelyActive: 1.55,
	ActivityVeryActive:       1.725,
	ActivityExtremelyActive:  1.9,
}

// Valid reports whether a is a known activity level.
func (a ActivityLevel) Valid() bool {
	_, ok := activityMultipliers[a]
	return ok
}

// Gender selects the BMR constant.
type Gender string

// Genders.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// UserProfile is the single source of truth for dietary constraints and goals.
type UserProfile struct {
	UserID            int64             `json:"userId"`
	DietaryPreference DietaryPreference `json:"dietaryPreference"`
	Allergies         []string          `json:"allergies"`
	DailyCalorieGoal  *float64          `json:"dailyCalorieGoal,omitempty"`
	Age               *int              `json:"age,omitempty"`
	WeightKG          *float64          `json:"weightKg,omitempty"`
	HeightCM          *float64          `json:"heightCm,omitempty"`
	ActivityLevel     ActivityLevel     `json:"activityLevel,omitempty"`
	Gender            Gender            `json:"gender,omitempty"`
}

// Dietary returns the restriction view of the profile. A nil profile has no restrictions.
func (p *UserProfile) Dietary() DietaryProfile {
	if p == nil {
		return DietaryProfile{Preference: DietNone}
	}
	return DietaryProfile{Preference: p.DietaryPreference, Allergies: p.Allergies}
}

// ResolveDailyGoal returns the manual goal, else the BMR-derived goal, else the default.
func (p *UserProfile) ResolveDailyGoal() float64 {
	if p == nil {
		return DefaultDailyGoal
	}
	if p.DailyCalorieGoal != nil && *p.DailyCalorieGoal > 0 {
		return *p.DailyCalorieGoal
	}
	if g, ok := p.DerivedGoal(); ok {
		return g
	}
	return DefaultDailyGoal
}

// DerivedGoal computes the calorie goal from physical stats. It is only
// available when age, weight, height, activity level and gender are all set.
func (p *UserProfile) DerivedGoal() (float64, bool) {
	if p == nil || p.Age == nil || p.WeightKG == nil || p.HeightCM == nil ||
		!p.ActivityLevel.Valid() || !p.Gender.Valid() {
		return 0, false
	}
	return CalorieGoal(*p.Age, *p.WeightKG, *p.HeightCM, p.ActivityLevel, p.Gender), true
}

// CalorieGoal is the Mifflin-St Jeor BMR scaled by the activity multiplier,
// rounded to whole calories.
func CalorieGoal(age int, weightKG, heightCM float64, level ActivityLevel, gender Gender) float64 {
	bmr := 10*weightKG + 6.25*heightCM - 5*float64(age)
	if gender == GenderMale {
		bmr += 5
	} else {
		bmr -= 161
	}
	return math.Round(bmr * activityMultipliers[level])
}

const kgToLb = 2.2046226218

// WeightToKG converts a weight in "kg" or "lb" to kilograms.
// Unknown units are returned unchanged.
func WeightToKG(v float64, unit string) float64 {
	if unit == "lb" {
		return v / kgToLb
	}
	return v
}

// ProfileRepository is the port for profile persistence.
type ProfileRepository interface {
	// GetProfile returns nil, nil when the user has no profile row yet.
	GetProfile(ctx context.Context, userID int64) (*UserProfile, error)
	UpsertProfile(ctx context.Context, p *UserProfile) error
}
