package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fitbite/internal/domain"
)

const mealColumns = "id, user_id, description, meal_type, meal_date, total_calories, total_protein, total_carbs, total_fat, created_at"

// CreateMeal inserts a meal row and fills in its ID and CreatedAt.
func (d *DB) CreateMeal(ctx context.Context, m *domain.Meal) error {
	now := time.Now().UTC()
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO meals (user_id, description, meal_type, meal_date, total_calories, total_protein, total_carbs, total_fat, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.Description, m.MealType, m.MealDate,
		m.TotalCalories, m.TotalProteinG, m.TotalCarbsG, m.TotalFatG, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID, m.CreatedAt = id, now
	return nil
}

// CreateFoodItems inserts all items for a meal in one transaction.
func (d *DB) CreateFoodItems(ctx context.Context, mealID int64, items []domain.FoodItemRecord) ([]domain.FoodItemRecord, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := make([]domain.FoodItemRecord, 0, len(items))
	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO food_items (meal_id, name, quantity, unit, calories, protein, carbs, fat, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			mealID, it.Name, it.Quantity, it.Unit, it.Calories, it.ProteinG, it.CarbsG, it.FatG, now)
		if err != nil {
			return nil, fmt.Errorf("insert food item %q: %w", it.Name, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		it.MealID, it.CreatedAt = mealID, now
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
		"SELECT "+mealColumns+" FROM meals WHERE user_id = ? AND meal_date = ? ORDER BY created_at ASC, id ASC",
		userID, day)
}

// ListMealsInRange returns meals with from <= meal_date <= to, newest first.
func (d *DB) ListMealsInRange(ctx context.Context, userID int64, from, to string) ([]domain.Meal, error) {
	return d.queryMeals(ctx,
		"SELECT "+mealColumns+" FROM meals WHERE user_id = ? AND meal_date BETWEEN ? AND ? ORDER BY meal_date DESC, created_at DESC, id DESC",
		userID, from, to)
}

// ListRecentMeals returns the most recently logged meals up to limit.
func (d *DB) ListRecentMeals(ctx context.Context, userID int64, limit int) ([]domain.Meal, error) {
	return d.queryMeals(ctx,
		"SELECT "+mealColumns+" FROM meals WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, limit)
}

// DeleteMeal removes a meal owned by userID; food items cascade.
func (d *DB) DeleteMeal(ctx context.Context, userID, mealID int64) (string, bool, error) {
	var day string
	err := d.sql.QueryRowContext(ctx, "DELETE FROM meals WHERE id = ? AND user_id = ? RETURNING meal_date", mealID, userID).Scan(&day)
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
	var meals []domain.Meal
	for rows.Next() {
		var m domain.Meal
		if err := rows.Scan(&m.ID, &m.UserID, &m.Description, &m.MealType, &m.MealDate,
			&m.TotalCalories, &m.TotalProteinG, &m.TotalCarbsG, &m.TotalFatG, &m.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		m.FoodItems = []domain.FoodItemRecord{}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Single connection: release it before the item query.
	_ = rows.Close()
	if len(meals) == 0 {
		return meals, nil
	}
	return meals, d.attachItems(ctx, meals)
}

func (d *DB) attachItems(ctx context.Context, meals []domain.Meal) error {
	index := make(map[int64]int, len(meals))
	args := make([]any, 0, len(meals))
	for i, m := range meals {
		index[m.ID] = i
		args = append(args, m.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, meal_id, name, quantity, unit, calories, protein, carbs, fat, created_at FROM food_items WHERE meal_id IN ("+placeholders+") ORDER BY id",
		args...)
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
		if i, ok := index[it.MealID]; ok {
			meals[i].FoodItems = append(meals[i].FoodItems, it)
		}
	}
	return rows.Err()
}
