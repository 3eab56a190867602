// Package sqlite implements the domain repositories on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB and implements domain repository interfaces.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the database file at path and runs migrations.
func Open(path string) (*DB, error) {
	s, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time.
	s.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d := &DB{sql: s}
	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_agent TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);",
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			dietary_preference TEXT NOT NULL DEFAULT 'none',
			allergies TEXT NOT NULL DEFAULT '[]',
			daily_calorie_goal REAL,
			age INTEGER,
			weight_kg REAL,
			height_cm REAL,
			activity_level TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			description TEXT NOT NULL,
			meal_type TEXT NOT NULL DEFAULT '',
			meal_date TEXT NOT NULL,
			total_calories REAL NOT NULL CHECK(total_calories >= 0),
			total_protein REAL NOT NULL CHECK(total_protein >= 0),
			total_carbs REAL NOT NULL CHECK(total_carbs >= 0),
			total_fat REAL NOT NULL CHECK(total_fat >= 0),
			created_at DATETIME NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_meals_user_date ON meals(user_id, meal_date);",
		`CREATE TABLE IF NOT EXISTS food_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meal_id INTEGER NOT NULL REFERENCES meals(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			quantity REAL NOT NULL CHECK(quantity > 0),
			unit TEXT NOT NULL DEFAULT '',
			calories REAL NOT NULL CHECK(calories >= 0),
			protein REAL NOT NULL CHECK(protein >= 0),
			carbs REAL NOT NULL CHECK(carbs >= 0),
			fat REAL NOT NULL CHECK(fat >= 0),
			created_at DATETIME NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_food_items_meal_id ON food_items(meal_id);",
	}
	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
