package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"fitbite/internal/domain"
)

// GetProfile returns the user's profile, or nil when none is stored.
func (d *DB) GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	var (
		p         domain.UserProfile
		pref      string
		allergies string
		goal      sql.NullFloat64
		age       sql.NullInt64
		weight    sql.NullFloat64
		height    sql.NullFloat64
		activity  string
		gender    string
	)
	err := d.sql.QueryRowContext(ctx,
		`SELECT user_id, dietary_preference, allergies, daily_calorie_goal, age, weight_kg, height_cm, activity_level, gender
		FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &pref, &allergies, &goal, &age, &weight, &height, &activity, &gender)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.DietaryPreference, _ = domain.ParseDietaryPreference(pref)
	if err := json.Unmarshal([]byte(allergies), &p.Allergies); err != nil || p.Allergies == nil {
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
	encoded, err := json.Marshal(allergies)
	if err != nil {
		return err
	}
	pref := p.DietaryPreference
	if pref == "" {
		pref = domain.DietNone
	}
	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, dietary_preference, allergies, daily_calorie_goal, age, weight_kg, height_cm, activity_level, gender, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			dietary_preference = excluded.dietary_preference,
			allergies = excluded.allergies,
			daily_calorie_goal = excluded.daily_calorie_goal,
			age = excluded.age,
			weight_kg = excluded.weight_kg,
			height_cm = excluded.height_cm,
			activity_level = excluded.activity_level,
			gender = excluded.gender,
			updated_at = excluded.updated_at`,
		p.UserID, string(pref), string(encoded), p.DailyCalorieGoal, p.Age,
		p.WeightKG, p.HeightCM, string(p.ActivityLevel), string(p.Gender), time.Now().UTC(),
	)
	return err
}
