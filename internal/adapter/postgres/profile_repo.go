package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fitbite/internal/domain"

	"github.com/lib/pq"
)

// GetProfile returns the user's profile, or nil when none is stored.
func (d *DB) GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	var (
		p        domain.UserProfile
		pref     string
		goal     sql.NullFloat64
		age      sql.NullInt64
		weight   sql.NullFloat64
		height   sql.NullFloat64
		activity string
		gender   string
	)
	err := d.sql.QueryRowContext(ctx,
		`SELECT user_id, dietary_preference, allergies, daily_calorie_goal, age, weight_kg, height_cm, activity_level, gender
		FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &pref, pq.Array(&p.Allergies), &goal, &age, &weight, &height, &activity, &gender)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.DietaryPreference, _ = domain.ParseDietaryPreference(pref)
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	if goal.Valid {
		p.DailyCalorieGoal = &goal.Float64
	}
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	if weight.Valid {
		p.WeightKG = &weight.Float64
	}
	if height.Valid {
		p.HeightCM = &height.Float64
	}
	p.ActivityLevel = domain.ActivityLevel(activity)
	p.Gender = domain.Gender(gender)
	return &p, nil
}

// UpsertProfile creates or replaces the user's profile.
func (d *DB) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	allergies := p.Allergies
	if allergies == nil {
		allergies = []string{}
	}
	pref := p.DietaryPreference
	if pref == "" {
		pref = domain.DietNone
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, dietary_preference, allergies, daily_calorie_goal, age, weight_kg, height_cm, activity_level, gender, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			dietary_preference = EXCLUDED.dietary_preference,
			allergies = EXCLUDED.allergies,
			daily_calorie_goal = EXCLUDED.daily_calorie_goal,
			age = EXCLUDED.age,
			weight_kg = EXCLUDED.weight_kg,
			height_cm = EXCLUDED.height_cm,
			activity_level = EXCLUDED.activity_level,
			gender = EXCLUDED.gender,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, string(pref), pq.Array(allergies), p.DailyCalorieGoal, p.Age,
		p.WeightKG, p.HeightCM, string(p.ActivityLevel), string(p.Gender), time.Now().UTC(),
	)
	return err
}
