package memory

import (
	"context"
	"testing"
	"time"

	"fitbite/internal/app"
	"fitbite/internal/domain"
)

func TestMealRepository(t *testing.T) {
	db := New()
	ctx := context.Background()
	userID := int64(1)

	meal := &domain.Meal{UserID: userID, Description: "oatmeal", MealType: "Breakfast", MealDate: "2026-02-08", TotalCalories: 300}
	if err := db.CreateMeal(ctx, meal); err != nil {
		t.Fatalf("CreateMeal: %v", err)
	}
	if meal.ID == 0 {
		t.Error("expected non-zero ID")
	}
	items, err := db.CreateFoodItems(ctx, meal.ID, []domain.FoodItemRecord{{Name: "oats", Quantity: 1, Unit: "cup", Calories: 300}})
	if err != nil {
		t.Fatalf("CreateFoodItems: %v", err)
	}
	if items[0].ID == 0 || items[0].MealID != meal.ID {
		t.Errorf("unexpected item %+v", items[0])
	}
	_ = db.CreateMeal(ctx, &domain.Meal{UserID: userID, Description: "salad", MealDate: "2026-02-05", TotalCalories: 200})
	_ = db.CreateMeal(ctx, &domain.Meal{UserID: 999, Description: "pizza", MealDate: "2026-02-08", TotalCalories: 900})

	// By date
	day, err := db.ListMealsByDate(ctx, userID, "2026-02-08")
	if err != nil {
		t.Fatalf("ListMealsByDate: %v", err)
	}
	if len(day) != 1 || len(day[0].FoodItems) != 1 {
		t.Fatalf("expected 1 meal with 1 item, got %+v", day)
	}

	// Returned copies are detached from storage
	day[0].FoodItems[0].Name = "mutated"
	again, _ := db.ListMealsByDate(ctx, userID, "2026-02-08")
	if again[0].FoodItems[0].Name != "oats" {
		t.Error("stored item was mutated through a returned copy")
	}

	// Range, newest first
	ranged, _ := db.ListMealsInRange(ctx, userID, "2026-02-01", "2026-02-08")
	if len(ranged) != 2 || ranged[0].MealDate != "2026-02-08" {
		t.Errorf("unexpected range %+v", ranged)
	}

	recent, _ := db.ListRecentMeals(ctx, userID, 1)
	if len(recent) != 1 || recent[0].Description != "salad" {
		t.Errorf("unexpected recent %+v", recent)
	}

	// Other user cannot delete
	if _, ok, _ := db.DeleteMeal(ctx, 999, meal.ID); ok {
		t.Error("expected delete by other user to fail")
	}
	if date, ok, _ := db.DeleteMeal(ctx, userID, meal.ID); !ok || date != "2026-02-08" {
		t.Errorf("delete = %q, %v; want the meal's date", date, ok)
	}
	day, _ = db.ListMealsByDate(ctx, userID, "2026-02-08")
	if len(day) != 0 {
		t.Error("expected 0 meals after delete")
	}
}

func TestProfileRepository(t *testing.T) {
	db := New()
	ctx := context.Background()

	p, err := db.GetProfile(ctx, 1)
	if err != nil || p != nil {
		t.Fatalf("expected no profile, got %+v, %v", p, err)
	}

	in := &domain.UserProfile{UserID: 1, DietaryPreference: domain.DietVegetarian, Allergies: []string{"nuts"}}
	if err := db.UpsertProfile(ctx, in); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	in.Allergies[0] = "changed"

	p, _ = db.GetProfile(ctx, 1)
	if p.DietaryPreference != domain.DietVegetarian || p.Allergies[0] != "nuts" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestConversationStore(t *testing.T) {
	db := New()
	ctx := context.Background()

	s, _ := db.LoadConversation(ctx, 1)
	if s != nil {
		t.Error("expected no conversation")
	}
	_ = db.SaveConversation(ctx, 1, app.DescriptionState{MealType: "Lunch"})
	s, _ = db.LoadConversation(ctx, 1)
	if s.Step() != app.StepDescription {
		t.Errorf("expected description step, got %s", s.Step())
	}
}

func TestCounterStore(t *testing.T) {
	db := New()
	ctx := context.Background()
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	for i := int64(1); i <= 3; i++ {
		n, reset, _ := db.Incr(ctx, "k", time.Minute)
		if n != i {
			t.Errorf("expected count %d, got %d", i, n)
		}
		if !reset.Equal(now.Add(time.Minute)) {
			t.Errorf("unexpected reset %v", reset)
		}
	}

	now = now.Add(time.Minute)
	n, _, _ := db.Incr(ctx, "k", time.Minute)
	if n != 1 {
		t.Errorf("expected new window, got count %d", n)
	}
}

func TestUserRepository(t *testing.T) {
	db := New()
	ctx := context.Background()

	u, err := db.Create(ctx, "bob", "hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Username != "bob" {
		t.Errorf("expected bob, got %s", u.Username)
	}
	if _, err := db.Create(ctx, "bob", "hash"); err == nil {
		t.Error("expected duplicate username to fail")
	}

	u2, err := db.GetByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if u2 == nil || u2.ID != u.ID {
		t.Error("failed to retrieve user")
	}

	count, _ := db.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestSessionRepository(t *testing.T) {
	db := New()
	repo := db.NewSessionRepo()
	ctx := context.Background()

	err := repo.Create(ctx, 1, "token123", "curl/8", "127.0.0.1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := repo.GetByToken(ctx, "token123")
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if sess == nil || sess.UserAgent != "curl/8" {
		t.Errorf("unexpected session %+v", sess)
	}

	_ = repo.Delete(ctx, "token123")
	sess, _ = repo.GetByToken(ctx, "token123")
	if sess != nil {
		t.Error("expected nil (deleted)")
	}
}
