package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

type mockModel struct {
	completeFn func(ctx context.Context, req domain.CompletionRequest) (string, error)
	calls      atomic.Int32
}

func (m *mockModel) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	m.calls.Add(1)
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return "", nil
}

func replyWith(s string) *mockModel {
	return &mockModel{completeFn: func(context.Context, domain.CompletionRequest) (string, error) { return s, nil }}
}

type mockProvider struct {
	nutrientsFn func(ctx context.Context, query string) (domain.NutritionEstimate, error)
}

func (m *mockProvider) Nutrients(ctx context.Context, query string) (domain.NutritionEstimate, error) {
	if m.nutrientsFn != nil {
		return m.nutrientsFn(ctx, query)
	}
	return domain.NutritionEstimate{}, nil
}

type mockMealRepo struct {
	createMealFn  func(ctx context.Context, meal *domain.Meal) error
	createItemsFn func(ctx context.Context, mealID int64, items []domain.FoodItemRecord) ([]domain.FoodItemRecord, error)
	byDateFn      func(ctx context.Context, userID int64, day string) ([]domain.Meal, error)
	inRangeFn     func(ctx context.Context, userID int64, from, to string) ([]domain.Meal, error)
	recentFn      func(ctx context.Context, userID int64, limit int) ([]domain.Meal, error)
	deleteFn      func(ctx context.Context, userID, mealID int64) (string, bool, error)
}

func (m *mockMealRepo) CreateMeal(ctx context.Context, meal *domain.Meal) error {
	if m.createMealFn != nil {
		return m.createMealFn(ctx, meal)
	}
	meal.ID = 1
	return nil
}

func (m *mockMealRepo) CreateFoodItems(ctx context.Context, mealID int64, items []domain.FoodItemRecord) ([]domain.FoodItemRecord, error) {
	if m.createItemsFn != nil {
		return m.createItemsFn(ctx, mealID, items)
	}
	return items, nil
}

func (m *mockMealRepo) ListMealsByDate(ctx context.Context, userID int64, day string) ([]domain.Meal, error) {
	if m.byDateFn != nil {
		return m.byDateFn(ctx, userID, day)
	}
	return nil, nil
}

func (m *mockMealRepo) ListMealsInRange(ctx context.Context, userID int64, from, to string) ([]domain.Meal, error) {
	if m.inRangeFn != nil {
		return m.inRangeFn(ctx, userID, from, to)
	}
	return nil, nil
}

func (m *mockMealRepo) ListRecentMeals(ctx context.Context, userID int64, limit int) ([]domain.Meal, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockMealRepo) DeleteMeal(ctx context.Context, userID, mealID int64) (string, bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, mealID)
	}
	return "", false, nil
}

type mockProfileRepo struct {
	getFn    func(ctx context.Context, userID int64) (*domain.UserProfile, error)
	upsertFn func(ctx context.Context, p *domain.UserProfile) error
}

func (m *mockProfileRepo) GetProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileRepo) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, p)
	}
	return nil
}

func profileOf(p *domain.UserProfile) *mockProfileRepo {
	return &mockProfileRepo{getFn: func(context.Context, int64) (*domain.UserProfile, error) { return p, nil }}
}

type mockCounterStore struct {
	incrFn func(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

func (m *mockCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if m.incrFn != nil {
		return m.incrFn(ctx, key, window)
	}
	return 1, time.Time{}, nil
}

type mapConversationStore struct {
	mu     sync.Mutex
	states map[int64]app.State
}

func newMapConversationStore() *mapConversationStore {
	return &mapConversationStore{states: map[int64]app.State{}}
}

func (s *mapConversationStore) LoadConversation(_ context.Context, userID int64) (app.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID], nil
}

func (s *mapConversationStore) SaveConversation(_ context.Context, userID int64, st app.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
