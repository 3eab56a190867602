// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu            sync.Mutex
	meals         []domain.Meal
	profiles      map[int64]domain.UserProfile
	users         []*domain.User
	sessions      map[string]*domain.Session
	conversations map[int64]app.State
	counters      map[string]*counter

	mealIDCounter int64
	itemIDCounter int64
	userIDCounter int64

	now func() time.Time
}

type counter struct {
	count   int64
	resetAt time.Time
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		profiles:      make(map[int64]domain.UserProfile),
		sessions:      make(map[string]*domain.Session),
		conversations: make(map[int64]app.State),
		counters:      make(map[string]*counter),
		now:           time.Now,
	}
}

// Ensure interfaces are met.
var _ domain.MealRepository = (*DB)(nil)
var _ domain.ProfileRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.CounterStore = (*DB)(nil)
var _ app.ConversationStore = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- MealRepository ---

// CreateMeal stores a meal and assigns its ID.
func (db *DB) CreateMeal(ctx context.Context, meal *domain.Meal) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.mealIDCounter++
	meal.ID = db.mealIDCounter
	meal.CreatedAt = db.now().UTC()
	stored := *meal
	stored.FoodItems = nil
	db.meals = append(db.meals, stored)
	return nil
}

// CreateFoodItems attaches items to an existing meal.
func (db *DB) CreateFoodItems(ctx context.Context, mealID int64, items []domain.FoodItemRecord) ([]domain.FoodItemRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.mealIndex(mealID)
	if idx < 0 {
		return nil, errors.New("meal not found")
	}
	out := make([]domain.FoodItemRecord, 0, len(items))
	for _, it := range items {
		db.itemIDCounter++
		it.ID = db.itemIDCounter
		it.MealID = mealID
		it.CreatedAt = db.now().UTC()
		out = append(out, it)
	}
	db.meals[idx].FoodItems = append(db.meals[idx].FoodItems, out...)
	return slices.Clone(out), nil
}

// ListMealsByDate returns a user's meals for one day, oldest first.
func (db *DB) ListMealsByDate(ctx context.Context, userID int64, day string) ([]domain.Meal, error) {
	return db.filter(userID, func(m domain.Meal) bool { return m.MealDate == day }, false), nil
}

// ListMealsInRange returns meals with from <= meal_date <= to, newest first.
func (db *DB) ListMealsInRange(ctx context.Context, userID int64, from, to string) ([]domain.Meal, error) {
	out := db.filter(userID, func(m domain.Meal) bool { return m.MealDate >= from && m.MealDate <= to }, true)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MealDate > out[j].MealDate })
	return out, nil
}

// ListRecentMeals returns the most recently logged meals up to limit.
func (db *DB) ListRecentMeals(ctx context.Context, userID int64, limit int) ([]domain.Meal, error) {
	out := db.filter(userID, func(domain.Meal) bool { return true }, true)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteMeal removes a meal owned by userID together with its items.
func (db *DB) DeleteMeal(ctx context.Context, userID, mealID int64) (string, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.mealIndex(mealID)
	if idx < 0 || db.meals[idx].UserID != userID {
		return "", false, nil
	}
	day := db.meals[idx].MealDate
	db.meals = append(db.meals[:idx], db.meals[idx+1:]...)
	return day, true, nil
}

func (db *DB) mealIndex(id int64) int {
	for i := range db.meals {
		if db.meals[i].ID == id {
			return i
		}
	}
	return -1
}

// filter returns copies of the user's matching meals in insertion order, or
// reversed when newestFirst is set.
func (db *DB) filter(userID int64, keep func(domain.Meal) bool, newestFirst bool) []domain.Meal {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := []domain.Meal{}
	for _, m := range db.meals {
		if m.UserID != userID || !keep(m) {
			continue
		}
		m.FoodItems = slices.Clone(m.FoodItems)
		if m.FoodItems == nil {
			m.FoodItems = []domain.FoodItemRecord{}
		}
		out = append(out, m)
	}
	if newestFirst {
		slices.Reverse(out)
	}
	return out
}

// --- ProfileRepository ---

// GetProfile returns a copy of the user's profile, or nil when none exists.
func (db *DB) GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.profiles[userID]
	if !ok {
		return nil, nil
	}
	p.Allergies = slices.Clone(p.Allergies)
	return &p, nil
}

// UpsertProfile stores a copy of p.
func (db *DB) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *p
	stored.Allergies = slices.Clone(p.Allergies)
	db.profiles[p.UserID] = stored
	return nil
}

// --- ConversationStore ---

// LoadConversation returns the user's conversation state, or nil.
func (db *DB) LoadConversation(ctx context.Context, userID int64) (app.State, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conversations[userID], nil
}

// SaveConversation replaces the user's conversation state.
func (db *DB) SaveConversation(ctx context.Context, userID int64, s app.State) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.conversations[userID] = s
	return nil
}

// --- CounterStore ---

// Incr bumps a fixed-window counter.
func (db *DB) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	c, ok := db.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		db.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt, nil
}

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	// Return nil if not found
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, errors.New("user already exists")
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    db.now().UTC(),
	}
	db.users = append(db.users, u)
	return u, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: expiresAt,
		CreatedAt: r.db.now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		if r.db.now().After(s.ExpiresAt) {
			delete(r.db.sessions, token)
			return nil, nil
		}
		return s, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
