package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	adapthttp "fitbite/internal/adapter/http"
	"fitbite/internal/adapter/memory"
	"fitbite/internal/app"
	"fitbite/internal/domain"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Mock upstreams (function-fields pattern)
// ---------------------------------------------------------------------------

type mockModel struct {
	completeFn func(ctx context.Context, req domain.CompletionRequest) (string, error)
	calls      atomic.Int32
}

func (m *mockModel) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	m.calls.Add(1)
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return "", errors.New("no reply scripted")
}

type mockProvider struct {
	nutrientsFn func(ctx context.Context, query string) (domain.NutritionEstimate, error)
}

func (m *mockProvider) Nutrients(ctx context.Context, query string) (domain.NutritionEstimate, error) {
	if m.nutrientsFn != nil {
		return m.nutrientsFn(ctx, query)
	}
	return domain.NutritionEstimate{Calories: 100, ProteinG: 5, CarbsG: 10, FatG: 2}, nil
}

// scripted answers the clarification prompt with clarify and every other
// prompt with parse.
func scripted(clarify, parse string) *mockModel {
	return &mockModel{completeFn: func(_ context.Context, req domain.CompletionRequest) (string, error) {
		if strings.Contains(req.System, "needs_clarification") {
			return clarify, nil
		}
		return parse, nil
	}}
}

const eggsAndToast = `{"dietary_violation": false, "items": [{"name": "boiled eggs", "quantity": 2, "unit": "pieces"}, {"name": "toast", "quantity": 1, "unit": "slice"}]}`

// ---------------------------------------------------------------------------
// Test-server helper
// ---------------------------------------------------------------------------

var feb8 = time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

// loopback is where httptest clients connect from; it plays the reverse proxy.
var loopback = []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")}

type testEnv struct {
	ts    *httptest.Server
	db    *memory.DB
	model *mockModel
	auth  *app.AuthService
}

func newTestServer(t *testing.T, model *mockModel, provider *mockProvider, requireAuth ...bool) *testEnv {
	t.Helper()

	if model == nil {
		model = &mockModel{}
	}
	if provider == nil {
		provider = &mockProvider{}
	}
	db := memory.New()
	clock := func() time.Time { return feb8 }

	meals := app.NewMealService(db, db).WithClock(clock)
	suggestions := app.NewSuggestionService(model, meals)
	feed := app.NewSuggestionFeed(suggestions, time.Hour)
	t.Cleanup(feed.Close)
	meals.OnChange(feed.Notify)

	advisor := app.NewClarificationAdvisor(model)
	parser := app.NewMealParser(model)
	lookup := app.NewNutritionLookup(provider)
	authSvc := app.NewAuthService(db, db.NewSessionRepo()).WithJWT("test-secret", time.Hour)

	webDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}

	srv := adapthttp.New(adapthttp.Services{
		Meals:        meals,
		Advisor:      advisor,
		Parser:       parser,
		Lookup:       lookup,
		Suggestions:  suggestions,
		Feed:         feed,
		Conversation: app.NewConversationController(advisor, parser, lookup, meals, db).WithClock(clock),
		Profiles:     app.NewProfileService(db),
		Auth:         authSvc,
	}, db, webDir).WithLogger(zerolog.Nop()).WithTrustedProxies(loopback)
	if len(requireAuth) == 0 || !requireAuth[0] {
		srv = srv.WithoutAuth()
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db, model: model, auth: authSvc}
}

func (e *testEnv) do(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var b bytes.Buffer
		_, _ = b.ReadFrom(resp.Body)
		t.Fatalf("expected %d, got %d; body: %s", want, resp.StatusCode, b.String())
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t, nil, nil)

	resp := env.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestServer(t, nil, nil)
	resp := env.do(t, http.MethodGet, "/api/health", nil)

	want := map[string]string{
		"Cache-Control":           "no-store",
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		if got := resp.Header.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestClarify(t *testing.T) {
	model := scripted(`{"needs_clarification": true, "questions": ["How were the eggs cooked?"]}`, "")
	env := newTestServer(t, model, nil)

	resp := env.do(t, http.MethodPost, "/api/meals/clarify", map[string]any{"mealType": "Breakfast", "description": "eggs"})
	expectStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	if body["needsClarification"] != true {
		t.Fatalf("expected clarification, got %v", body)
	}
	if qs, _ := body["questions"].([]any); len(qs) != 1 {
		t.Fatalf("questions = %v", body["questions"])
	}
}

func TestClarify_UpstreamDownFailsOpen(t *testing.T) {
	model := &mockModel{completeFn: func(context.Context, domain.CompletionRequest) (string, error) {
		return "", errors.New("connection refused")
	}}
	env := newTestServer(t, model, nil)

	resp := env.do(t, http.MethodPost, "/api/meals/clarify", map[string]any{"mealType": "Lunch", "description": "rice and beans"})
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["needsClarification"] != false {
		t.Fatalf("expected no clarification, got %v", body)
	}
}

func TestClarify_DietaryViolation(t *testing.T) {
	env := newTestServer(t, nil, nil)
	if err := env.db.UpsertProfile(context.Background(), &domain.UserProfile{UserID: 1, DietaryPreference: domain.DietVegan}); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPost, "/api/meals/clarify", map[string]any{"mealType": "Dinner", "description": "grilled chicken salad"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	body := decodeBody(t, resp)
	v, ok := body["violation"].(map[string]any)
	if !ok {
		t.Fatalf("missing violation: %v", body)
	}
	foods, _ := v["violatingFoods"].([]any)
	if len(foods) == 0 || foods[0] != "chicken" {
		t.Errorf("violatingFoods = %v", v["violatingFoods"])
	}
	if env.model.calls.Load() != 0 {
		t.Error("model must not be called for a local violation")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		err        error
		payload    map[string]any
		wantStatus int
	}{
		{name: "items", reply: eggsAndToast, payload: map[string]any{"description": "2 boiled eggs and toast"}, wantStatus: http.StatusOK},
		{name: "empty description", payload: map[string]any{"description": "   "}, wantStatus: http.StatusBadRequest},
		{name: "unknown field", payload: map[string]any{"description": "eggs", "extra": 1}, wantStatus: http.StatusBadRequest},
		{name: "malformed reply", reply: "I cannot help with that", payload: map[string]any{"description": "eggs"}, wantStatus: http.StatusBadGateway},
		{name: "upstream down", err: errors.New("timeout"), payload: map[string]any{"description": "eggs"}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := &mockModel{completeFn: func(context.Context, domain.CompletionRequest) (string, error) {
				return tc.reply, tc.err
			}}
			env := newTestServer(t, model, nil)

			resp := env.do(t, http.MethodPost, "/api/meals/parse", tc.payload)
			expectStatus(t, resp, tc.wantStatus)

			body := decodeBody(t, resp)
			if tc.wantStatus != http.StatusOK {
				msg, _ := body["error"].(string)
				if strings.Contains(msg, "timeout") || strings.Contains(msg, "cannot help") {
					t.Errorf("upstream detail leaked: %q", msg)
				}
				return
			}
			items, _ := body["items"].([]any)
			if len(items) != 2 {
				t.Fatalf("items = %v", body["items"])
			}
			first := items[0].(map[string]any)
			if first["name"] != "boiled eggs" || first["key"] == "" {
				t.Errorf("first item = %v", first)
			}
		})
	}
}

func TestNutrition(t *testing.T) {
	provider := &mockProvider{nutrientsFn: func(_ context.Context, query string) (domain.NutritionEstimate, error) {
		switch query {
		case "2 pieces boiled eggs":
			return domain.NutritionEstimate{Calories: 155, ProteinG: 13, CarbsG: 1, FatG: 11}, nil
		case "1 slice toast":
			return domain.NutritionEstimate{Calories: 80, ProteinG: 3, CarbsG: 14, FatG: 1}, nil
		}
		return domain.NutritionEstimate{}, errors.New("no match")
	}}
	env := newTestServer(t, nil, provider)

	resp := env.do(t, http.MethodPost, "/api/meals/nutrition", map[string]any{"items": []map[string]any{
		{"key": "a", "name": "boiled eggs", "quantity": 2, "unit": "pieces"},
		{"key": "b", "name": "toast", "quantity": 1, "unit": "slice"},
		{"key": "c", "name": "mystery", "quantity": 1},
	}})
	expectStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	perItem, _ := body["perItem"].([]any)
	if len(perItem) != 3 {
		t.Fatalf("perItem = %v", body["perItem"])
	}
	third := perItem[2].(map[string]any)
	if third["item"].(map[string]any)["key"] != "c" || third["nutrition"].(map[string]any)["calories"] != 0.0 {
		t.Errorf("unmatched item = %v", third)
	}
	total := body["total"].(map[string]any)
	if total["calories"] != 235.0 || total["protein"] != 16.0 {
		t.Errorf("total = %v", total)
	}
}

func TestNutrition_Validation(t *testing.T) {
	many := make([]map[string]any, 26)
	for i := range many {
		many[i] = map[string]any{"name": "rice", "quantity": 1}
	}
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"no items", map[string]any{"items": []any{}}},
		{"blank name", map[string]any{"items": []map[string]any{{"name": " ", "quantity": 1}}}},
		{"too many", map[string]any{"items": many}},
	}
	env := newTestServer(t, nil, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/meals/nutrition", tc.payload)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func commitEggs(t *testing.T, env *testEnv, mealDate string) map[string]any {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/meals", map[string]any{
		"description": "2 boiled eggs and toast",
		"mealType":    "breakfast",
		"mealDate":    mealDate,
		"items": []map[string]any{
			{"key": "a", "name": "boiled eggs", "quantity": 2, "unit": "pieces"},
			{"key": "b", "name": "toast", "quantity": 1, "unit": "slice"},
		},
		"perItemNutrition": []map[string]any{
			{"item": map[string]any{"key": "b", "name": "toast", "quantity": 1}, "nutrition": map[string]any{"calories": 80, "protein": 3, "carbs": 14, "fat": 1}},
			{"item": map[string]any{"key": "a", "name": "boiled eggs", "quantity": 2}, "nutrition": map[string]any{"calories": 155, "protein": 13, "carbs": 1, "fat": 11}},
		},
	})
	expectStatus(t, resp, http.StatusCreated)
	return decodeBody(t, resp)
}

func TestCommitMealAndDailySummary(t *testing.T) {
	env := newTestServer(t, nil, nil)

	body := commitEggs(t, env, "")
	meal := body["meal"].(map[string]any)
	if meal["mealType"] != "Breakfast" || meal["mealDate"] != "2026-02-08" || meal["totalCalories"] != 235.0 {
		t.Fatalf("meal = %v", meal)
	}
	if _, ok := body["warning"]; ok {
		t.Errorf("unexpected warning %v", body["warning"])
	}

	resp := env.do(t, http.MethodGet, "/api/meals?date=2026-02-08", nil)
	expectStatus(t, resp, http.StatusOK)
	summary := decodeBody(t, resp)
	if summary["mealCount"] != 1.0 || summary["totalCalories"] != 235.0 || summary["dailyGoal"] != 2000.0 {
		t.Fatalf("summary = %v", summary)
	}
	if summary["caloriesRemaining"] != 1765.0 || summary["goalMet"] != false {
		t.Errorf("summary = %v", summary)
	}

	resp = env.do(t, http.MethodGet, "/api/meals?date=2026-02-07", nil)
	expectStatus(t, resp, http.StatusOK)
	if empty := decodeBody(t, resp); empty["mealCount"] != 0.0 || empty["totalCalories"] != 0.0 {
		t.Errorf("empty day = %v", empty)
	}
}

func TestCommitMeal_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"no items", map[string]any{"description": "toast", "items": []any{}}},
		{"blank description", map[string]any{"description": "", "items": []map[string]any{{"name": "toast", "quantity": 1}}}},
		{"bad date", map[string]any{"description": "toast", "mealDate": "08/02/2026", "items": []map[string]any{{"name": "toast", "quantity": 1}}}},
		{"bad meal type", map[string]any{"description": "toast", "mealType": "Brunch", "items": []map[string]any{{"name": "toast", "quantity": 1}}}},
	}
	env := newTestServer(t, nil, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/meals", tc.payload)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestCommitMeal_Violation(t *testing.T) {
	for _, item := range []string{"beef burger", "cashew chicken", "coconut shrimp"} {
		t.Run(item, func(t *testing.T) {
			env := newTestServer(t, nil, nil)
			_ = env.db.UpsertProfile(context.Background(), &domain.UserProfile{UserID: 1, DietaryPreference: domain.DietVegetarian})

			resp := env.do(t, http.MethodPost, "/api/meals", map[string]any{
				"description": item,
				"items":       []map[string]any{{"name": item, "quantity": 1}},
			})
			expectStatus(t, resp, http.StatusUnprocessableEntity)

			recent, _ := env.db.ListRecentMeals(context.Background(), 1, 10)
			if len(recent) != 0 {
				t.Errorf("violating meal was stored: %+v", recent)
			}
		})
	}
}

func TestRecentAndDeleteMeal(t *testing.T) {
	env := newTestServer(t, nil, nil)
	body := commitEggs(t, env, "2026-02-07")
	id := int64(body["meal"].(map[string]any)["id"].(float64))

	resp := env.do(t, http.MethodGet, "/api/meals/recent?limit=5", nil)
	expectStatus(t, resp, http.StatusOK)
	if meals, _ := decodeBody(t, resp)["meals"].([]any); len(meals) != 1 {
		t.Fatalf("recent = %v", meals)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"bad id", "/api/meals/abc", http.StatusBadRequest},
		{"unknown", "/api/meals/999", http.StatusNotFound},
		{"own meal", "/api/meals/" + strconv.FormatInt(id, 10), http.StatusOK},
		{"already deleted", "/api/meals/" + strconv.FormatInt(id, 10), http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodDelete, tc.path, nil)
			expectStatus(t, resp, tc.wantStatus)
		})
	}
}

func TestHistory(t *testing.T) {
	env := newTestServer(t, nil, nil)
	commitEggs(t, env, "2026-02-08")
	commitEggs(t, env, "2026-02-08")
	commitEggs(t, env, "2026-02-05")

	resp := env.do(t, http.MethodGet, "/api/meals/history?period=week", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	days, _ := body["dailySummaries"].([]any)
	if len(days) != 2 {
		t.Fatalf("dailySummaries = %v", body["dailySummaries"])
	}
	first := days[0].(map[string]any)
	if first["date"] != "2026-02-08" || first["mealCount"] != 2.0 {
		t.Errorf("newest day = %v", first)
	}
	for _, m := range first["meals"].([]any) {
		meal := m.(map[string]any)
		if meal["totalCalories"] != 235.0 || meal["totalProtein"] != 16.0 {
			t.Errorf("history meal totals = %v", meal)
		}
		if items, _ := meal["foodItems"].([]any); len(items) != 2 {
			t.Errorf("history meal items = %v", meal["foodItems"])
		}
	}

	for _, q := range []string{"period=decade", "start_date=2026-02-08&end_date=2026-02-01", "start_date=2026-02-01"} {
		t.Run(q, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/meals/history?"+q, nil)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestSuggestions_GoalReached(t *testing.T) {
	env := newTestServer(t, nil, nil)

	resp := env.do(t, http.MethodPost, "/api/suggestions", map[string]any{"caloriesRemaining": 0, "dailyGoal": 2000})
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["goalReached"] != true {
		t.Fatalf("body = %v", body)
	}
	if s, _ := body["suggestions"].([]any); len(s) != 0 {
		t.Errorf("suggestions = %v", s)
	}
	if env.model.calls.Load() != 0 {
		t.Error("model must not be called when the goal is reached")
	}
}

func TestSuggestions_Validation(t *testing.T) {
	env := newTestServer(t, nil, nil)
	for name, payload := range map[string]map[string]any{
		"missing budget":  {"dailyGoal": 2000},
		"negative budget": {"caloriesRemaining": -10},
		"bad preference":  {"caloriesRemaining": 500, "dietaryPreference": "paleo"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/suggestions", payload)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

const threeSuggestions = `[
 {"title": "Lentil soup", "description": "Warm and filling", "estimated_calories": 350, "estimated_protein": 18, "estimated_carbs": 50, "estimated_fat": 6, "ingredients": ["lentils", "carrot"], "dietary_compliance": true, "allergy_safe": true},
 {"title": "Fruit bowl", "description": "Fresh", "estimated_calories": 200, "estimated_protein": 2, "estimated_carbs": 48, "estimated_fat": 1, "ingredients": ["apple", "banana"], "dietary_compliance": true, "allergy_safe": true},
 {"title": "Hummus wrap", "description": "Quick", "estimated_calories": 420, "estimated_protein": 14, "estimated_carbs": 55, "estimated_fat": 15, "ingredients": ["hummus", "tortilla"], "dietary_compliance": true, "allergy_safe": true}
]`

func TestSuggestions_ForDayIsCached(t *testing.T) {
	model := &mockModel{completeFn: func(context.Context, domain.CompletionRequest) (string, error) {
		return threeSuggestions, nil
	}}
	env := newTestServer(t, model, nil)

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, "/api/suggestions?date=2026-02-08", nil)
		expectStatus(t, resp, http.StatusOK)
		body := decodeBody(t, resp)
		if s, _ := body["suggestions"].([]any); len(s) != 3 {
			t.Fatalf("suggestions = %v", body["suggestions"])
		}
		if body["caloriesRemaining"] != 2000.0 {
			t.Errorf("caloriesRemaining = %v", body["caloriesRemaining"])
		}
	}
	if n := model.calls.Load(); n != 1 {
		t.Errorf("expected one model call, got %d", n)
	}
}

func TestConversationFlow(t *testing.T) {
	model := scripted(`{"needs_clarification": false, "questions": []}`, eggsAndToast)
	env := newTestServer(t, model, nil)

	resp := env.do(t, http.MethodGet, "/api/conversation", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["step"] != "meal_type" {
		t.Fatalf("initial = %v", body)
	}

	steps := []struct {
		event      map[string]any
		wantStatus int
		wantStep   string
	}{
		{map[string]any{"event": "confirm"}, http.StatusConflict, ""},
		{map[string]any{"event": "select_meal_type", "mealType": "Brunch"}, http.StatusBadRequest, ""},
		{map[string]any{"event": "select_meal_type", "mealType": "breakfast"}, http.StatusOK, "description"},
		{map[string]any{"event": "submit_description", "description": "2 boiled eggs and toast"}, http.StatusOK, "confirmation"},
		{map[string]any{"event": "edit"}, http.StatusOK, "description"},
		{map[string]any{"event": "submit_description", "description": "2 boiled eggs and toast"}, http.StatusOK, "confirmation"},
		{map[string]any{"event": "confirm"}, http.StatusOK, "complete"},
		{map[string]any{"event": "dance"}, http.StatusBadRequest, ""},
	}
	for i, st := range steps {
		resp := env.do(t, http.MethodPost, "/api/conversation", st.event)
		expectStatus(t, resp, st.wantStatus)
		if st.wantStep == "" {
			continue
		}
		body := decodeBody(t, resp)
		if body["step"] != st.wantStep {
			t.Fatalf("step %d: got %v", i, body)
		}
		if st.wantStep == "complete" {
			meal := body["meal"].(map[string]any)
			if meal["totalCalories"] != 200.0 || meal["mealType"] != "Breakfast" {
				t.Errorf("meal = %v", meal)
			}
		}
	}

	resp = env.do(t, http.MethodPost, "/api/conversation/reset", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["step"] != "meal_type" {
		t.Errorf("after reset = %v", body)
	}
}

func TestProfile(t *testing.T) {
	env := newTestServer(t, nil, nil)

	resp := env.do(t, http.MethodGet, "/api/profile", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["resolvedDailyGoal"] != 2000.0 {
		t.Fatalf("default profile = %v", body)
	}

	resp = env.do(t, http.MethodPut, "/api/profile", map[string]any{
		"dietaryPreference": "vegan",
		"allergies":         []string{"Peanuts", "peanuts "},
		"dailyCalorieGoal":  1800,
	})
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	profile := body["profile"].(map[string]any)
	if profile["dietaryPreference"] != "vegan" || body["resolvedDailyGoal"] != 1800.0 {
		t.Fatalf("updated = %v", body)
	}
	if a, _ := profile["allergies"].([]any); len(a) != 1 {
		t.Errorf("allergies = %v", profile["allergies"])
	}

	for name, payload := range map[string]map[string]any{
		"bad preference": {"dietaryPreference": "paleo"},
		"low goal":       {"dailyCalorieGoal": 100},
		"bad unit":       {"weight": 10, "weightUnit": "stone"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := env.do(t, http.MethodPut, "/api/profile", payload)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestServer(t, nil, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/meals"},
		{http.MethodGet, "/api/meals/parse"},
		{http.MethodPost, "/api/meals/history"},
		{http.MethodDelete, "/api/profile"},
		{http.MethodPut, "/api/conversation"},
		{http.MethodGet, "/api/login"},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := env.do(t, tc.method, tc.path, nil)
			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Fatalf("expected 405, got %d", resp.StatusCode)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestServer(t, nil, nil, true)

	resp := env.do(t, http.MethodGet, "/api/meals", nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = env.do(t, http.MethodPost, "/api/setup", map[string]any{"username": "alice", "password": "correct-horse"})
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodPost, "/api/auth/token", map[string]any{"username": "alice", "password": "wrong-password"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = env.do(t, http.MethodPost, "/api/auth/token", map[string]any{"username": "alice", "password": "correct-horse"})
	expectStatus(t, resp, http.StatusOK)
	token, _ := decodeBody(t, resp)["token"].(string)
	if token == "" {
		t.Fatal("no token issued")
	}

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/meals", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close() //nolint:errcheck
	expectStatus(t, authed, http.StatusOK)

	req, _ = http.NewRequest(http.MethodGet, env.ts.URL+"/api/meals", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rejected, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer rejected.Body.Close() //nolint:errcheck
	expectStatus(t, rejected, http.StatusUnauthorized)
}

func TestSessionLogin(t *testing.T) {
	env := newTestServer(t, nil, nil, true)
	if err := env.auth.CreateInitialUser(context.Background(), "bob", "long-enough"); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPost, "/api/login", map[string]any{"username": "bob", "password": "long-enough"})
	expectStatus(t, resp, http.StatusOK)
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("no session cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/profile", nil)
	req.AddCookie(session)
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close() //nolint:errcheck
	expectStatus(t, authed, http.StatusOK)
}

func TestRateLimit(t *testing.T) {
	env := newTestServer(t, nil, nil)

	send := func(ip string) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/conversation/reset", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	for i := 0; i < 30; i++ {
		if resp := send("203.0.113.7"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, resp.StatusCode)
		}
	}
	resp := send("203.0.113.7")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" || resp.Header.Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", resp.Header)
	}

	if resp := send("198.51.100.2"); resp.StatusCode != http.StatusOK {
		t.Errorf("other client blocked: %d", resp.StatusCode)
	}
}
