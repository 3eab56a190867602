package app

import (
	"context"
	"strings"

	"fitbite/internal/domain"
)

const maxAllergies = 20

// ProfileUpdate is a partial profile change; nil fields are left unchanged.
type ProfileUpdate struct {
	DietaryPreference *string
	Allergies         *[]string
	// DailyCalorieGoal set to 0 clears the manual goal.
	DailyCalorieGoal *float64
	Age              *int
	Weight           *float64
	// WeightUnit is "kg" (default) or "lb".
	WeightUnit    string
	HeightCM      *float64
	ActivityLevel *string
	Gender        *string
}

// ProfileService reads and updates user profiles.
type ProfileService struct {
	repo domain.ProfileRepository
}

// NewProfileService creates a ProfileService backed by the given repository.
func NewProfileService(repo domain.ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

// Get returns the user's profile, or an empty unrestricted profile when none exists.
func (s *ProfileService) Get(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &domain.UserProfile{UserID: userID, DietaryPreference: domain.DietNone, Allergies: []string{}}
	}
	return p, nil
}

// Update validates and applies u to the user's profile.
func (s *ProfileService) Update(ctx context.Context, userID int64, u ProfileUpdate) (*domain.UserProfile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.DietaryPreference != nil {
		pref, ok := domain.ParseDietaryPreference(*u.DietaryPreference)
		if !ok {
			return nil, invalid("dietaryPreference", "must be vegetarian, vegan or non-vegetarian")
		}
		p.DietaryPreference = pref
	}
	if u.Allergies != nil {
		p.Allergies = normalizeAllergies(*u.Allergies)
		if len(p.Allergies) > maxAllergies {
			return nil, invalid("allergies", "at most %d allergies", maxAllergies)
		}
	}
	if u.DailyCalorieGoal != nil {
		switch g := *u.DailyCalorieGoal; {
		case g == 0:
			p.DailyCalorieGoal = nil
		case g < 500 || g > 10000:
			return nil, invalid("dailyCalorieGoal", "must be between 500 and 10000")
		default:
			p.DailyCalorieGoal = &g
		}
	}
	if u.Age != nil {
		if *u.Age < 1 || *u.Age > 120 {
			return nil, invalid("age", "must be between 1 and 120")
		}
		age := *u.Age
		p.Age = &age
	}
	if u.Weight != nil {
		unit := u.WeightUnit
		if unit == "" {
			unit = "kg"
		}
		if unit != "kg" && unit != "lb" {
			return nil, invalid("weightUnit", "must be kg or lb")
		}
		kg := domain.WeightToKG(*u.Weight, unit)
		if kg <= 0 || kg > 500 {
			return nil, invalid("weight", "out of range")
		}
		p.WeightKG = &kg
	}
	if u.HeightCM != nil {
		if *u.HeightCM <= 0 || *u.HeightCM > 300 {
			return nil, invalid("heightCm", "must be between 0 and 300")
		}
		h := *u.HeightCM
		p.HeightCM = &h
	}
	if u.ActivityLevel != nil {
		level := domain.ActivityLevel(*u.ActivityLevel)
		if *u.ActivityLevel != "" && !level.Valid() {
			return nil, invalid("activityLevel", "unknown activity level %q", *u.ActivityLevel)
		}
		p.ActivityLevel = level
	}
	if u.Gender != nil {
		g := domain.Gender(*u.Gender)
		if *u.Gender != "" && !g.Valid() {
			return nil, invalid("gender", "must be male or female")
		}
		p.Gender = g
	}

	p.UserID = userID
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func normalizeAllergies(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, a := range in {
		a = domain.Sanitize(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
