package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fitbite/internal/domain"

	"github.com/lib/pq"
)

const mealColumns = "id, user_id, description, meal_type, to_char(meal_date, 'YYYY-MM-DD'), total_calories, total_protein, total_carbs, total_fat, created_at"

// CreateMeal inserts a meal row and fills in its ID and CreatedAt.
func (d *DB) CreateMeal(ctx context.Context, m *domain.Meal) error {
	return d.sql.QueryRowContext(ctx,
		`INSERT INTO meals (user_id, description, meal_type, meal_date, total_calories, total_protein, total_carbs, total_fat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		m.UserID, m.Description, m.MealType, m.MealDate,
		m.TotalCalories, m.TotalProteinG, m.TotalCarbsG, m.TotalFatG, time.Now().UTC(),
	).Scan(&m.ID, &m.CreatedAt)
}

// CreateFoodItems inserts all items for a meal in one transaction.
func (d *DB) CreateFoodItems(ctx context.Context, mealID int64, items []domain.FoodItemRecord) ([]domain.FoodItemRecord, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO food_items (meal_id, name, quantity, unit, calories, protein, carbs, fat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	out := make([]domain.FoodItemRecord, 0, len(items))
	for _, it := range items {
		it.MealID = mealID
		if err := stmt.QueryRowContext(ctx, mealID, it.Name, it.Quantity, it.Unit,
			it.Calories, it.ProteinG, it.CarbsG, it.FatG, now,
		).Scan(&it.ID, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert food item %q: %w", it.Name, err)
		}
		out = append(out, it)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMealsByDate returns a user's meals for one day, oldest first.
func (d *DB) ListMealsByDate(ctx context.Context, userID int64, day string) ([]domain.Meal, error) {
	return d.queryMeals(ctx,
		"SELECT "+mealColumns+" FROM meals WHERE user_id = $1 AND meal_date = $2 ORDER BY created_at ASC",
		userID, day)
}

// ListMealsInRange returns meals with from <= meal_date <= to, newest first.
func (d *DB) ListMealsInRange(ctx context.Context, userID int64, from, to string) ([]domain.Meal, error) {
	return d.queryMeals(ctx,
		"SELECT "+mealColumns+" FROM meals WHERE user_id = $1 AND meal_date BETWEEN $2 AND $3 ORDER BY meal_date DESC, created_at DESC",
		userID, from, to)
}

// ListRecentMeals returns the most recently logged meals up to limit.
func (d *DB) ListRecentMeals(ctx context.Context, userID int64, limit int) ([]domain.Meal, error) {
	return d.queryMeals(ctx,
		"SELECT "+mealColumns+" FROM meals WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit)
}

// DeleteMeal removes a meal owned by userID; food items cascade.
func (d *DB) DeleteMeal(ctx context.Context, userID, mealID int64) (string, bool, error) {
	var day string
	err := d.sql.QueryRowContext(ctx, "DELETE FROM meals WHERE id = $1 AND user_id = $2 RETURNING to_char(meal_date, 'YYYY-MM-DD')", mealID, userID).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return day, true, nil
}

func (d *DB) queryMeals(ctx context.Context, query string, args ...any) ([]domain.Meal, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meals []domain.Meal
	index := map[int64]int{}
	for rows.Next() {
		var m domain.Meal
		if err := rows.Scan(&m.ID, &m.UserID, &m.Description, &m.MealType, &m.MealDate,
			&m.TotalCalories, &m.TotalProteinG, &m.TotalCarbsG, &m.TotalFatG, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.FoodItems = []domain.FoodItemRecord{}
		index[m.ID] = len(meals)
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return meals, nil
	}
	if err := d.attachItems(ctx, meals, index); err != nil {
		return nil, err
	}
	return meals, nil
}

func (d *DB) attachItems(ctx context.Context, meals []domain.Meal, index map[int64]int) error {
	ids := make([]int64, 0, len(meals))
	for _, m := range meals {
		ids = append(ids, m.ID)
	}
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, meal_id, name, quantity, unit, calories, protein, carbs, fat, created_at FROM food_items WHERE meal_id = ANY($1) ORDER BY id",
		pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.FoodItemRecord
		if err := rows.Scan(&it.ID, &it.MealID, &it.Name, &it.Quantity, &it.Unit,
			&it.Calories, &it.ProteinG, &it.CarbsG, &it.FatG, &it.CreatedAt); err != nil {
			return err
		}
		i, ok := index[it.MealID]
		if !ok {
			continue
		}
		meals[i].FoodItems = append(meals[i].FoodItems, it)
	}
	return rows.Err()
}
