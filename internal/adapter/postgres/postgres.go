package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a *sql.DB and implements domain repository interfaces.
type DB struct {
	sql *sql.DB
}

// Open connects to PostgreSQL, pings, and runs migrations.
func Open(connStr string) (*DB, error) {
	s, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	d := &DB{sql: s}
	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS users (id BIGSERIAL PRIMARY KEY, username TEXT UNIQUE NOT NULL, password_hash TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL);",
		"CREATE TABLE IF NOT EXISTS sessions (token TEXT PRIMARY KEY, user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE, expires_at TIMESTAMPTZ NOT NULL, created_at TIMESTAMPTZ NOT NULL);",
		"CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);",
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			dietary_preference TEXT NOT NULL DEFAULT 'none' CHECK(dietary_preference IN ('none','vegetarian','vegan')),
			allergies TEXT[] NOT NULL DEFAULT '{}',
			daily_calorie_goal DOUBLE PRECISION,
			age INTEGER,
			weight_kg DOUBLE PRECISION,
			height_cm DOUBLE PRECISION,
			activity_level TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meals (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			description TEXT NOT NULL,
			meal_type TEXT NOT NULL DEFAULT '',
			meal_date DATE NOT NULL,
			total_calories DOUBLE PRECISION NOT NULL CHECK(total_calories >= 0),
			total_protein DOUBLE PRECISION NOT NULL CHECK(total_protein >= 0),
			total_carbs DOUBLE PRECISION NOT NULL CHECK(total_carbs >= 0),
			total_fat DOUBLE PRECISION NOT NULL CHECK(total_fat >= 0),
			created_at TIMESTAMPTZ NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_meals_user_date ON meals(user_id, meal_date);",
		`CREATE TABLE IF NOT EXISTS food_items (
			id BIGSERIAL PRIMARY KEY,
			meal_id BIGINT NOT NULL REFERENCES meals(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL CHECK(quantity > 0),
			unit TEXT NOT NULL DEFAULT '',
			calories DOUBLE PRECISION NOT NULL CHECK(calories >= 0),
			protein DOUBLE PRECISION NOT NULL CHECK(protein >= 0),
			carbs DOUBLE PRECISION NOT NULL CHECK(carbs >= 0),
			fat DOUBLE PRECISION NOT NULL CHECK(fat >= 0),
			created_at TIMESTAMPTZ NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_food_items_meal_id ON food_items(meal_id);",
	}

	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Sessions bind to the client that created them.
	alterStmts := []string{
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS user_agent TEXT NOT NULL DEFAULT '';",
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS ip TEXT NOT NULL DEFAULT '';",
	}
	for _, stmt := range alterStmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
