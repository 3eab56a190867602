package adapthttp

import (
	"net/http"
	"net/netip"
	"os"
	"time"

	"fitbite/internal/app"
	"fitbite/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Per-client request budgets, per minute.
const (
	aiRequestsPerMinute         = 30
	readRequestsPerMinute       = 60
	suggestionRequestsPerMinute = 20
)

// Services are the application services the server routes to.
type Services struct {
	Meals        *app.MealService
	Advisor      *app.ClarificationAdvisor
	Parser       *app.MealParser
	Lookup       *app.NutritionLookup
	Suggestions  *app.SuggestionService
	Feed         *app.SuggestionFeed
	Conversation *app.ConversationController
	Profiles     *app.ProfileService
	Auth         *app.AuthService
}

// OIDCConfig holds the single sign-on settings. Enabled is false when no
// issuer is configured.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config *oauth2.Config
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	meals        *app.MealService
	advisor      *app.ClarificationAdvisor
	parser       *app.MealParser
	lookup       *app.NutritionLookup
	suggestions  *app.SuggestionService
	feed         *app.SuggestionFeed
	conversation *app.ConversationController
	profiles     *app.ProfileService
	authSvc      *app.AuthService

	aiLimit         *app.RateLimiter
	readLimit       *app.RateLimiter
	suggestionLimit *app.RateLimiter

	oidcConfig     OIDCConfig
	trustedProxies []netip.Prefix
	logger         zerolog.Logger
	disableAuth    bool
	localUser      *domain.User
	webDir         string
}

// New creates a Server wired to the given application services. counters
// backs the per-client rate limits.
func New(svc Services, counters domain.CounterStore, webDir string) *Server {
	return &Server{
		meals:           svc.Meals,
		advisor:         svc.Advisor,
		parser:          svc.Parser,
		lookup:          svc.Lookup,
		suggestions:     svc.Suggestions,
		feed:            svc.Feed,
		conversation:    svc.Conversation,
		profiles:        svc.Profiles,
		authSvc:         svc.Auth,
		aiLimit:         app.NewRateLimiter(counters, "ai", aiRequestsPerMinute, time.Minute),
		readLimit:       app.NewRateLimiter(counters, "read", readRequestsPerMinute, time.Minute),
		suggestionLimit: app.NewRateLimiter(counters, "suggestions", suggestionRequestsPerMinute, time.Minute),
		logger:          zerolog.New(os.Stdout).With().Timestamp().Logger(),
		webDir:          webDir,
	}
}

// WithOIDC enables single sign-on.
func (s *Server) WithOIDC(cfg OIDCConfig) *Server {
	s.oidcConfig = cfg
	return s
}

// WithTrustedProxies sets the proxies whose Remote-User, X-Forwarded-For and
// X-Real-IP headers are honored. Headers from other peers are ignored.
func (s *Server) WithTrustedProxies(prefixes []netip.Prefix) *Server {
	s.trustedProxies = prefixes
	return s
}

// WithLogger replaces the request logger.
func (s *Server) WithLogger(l zerolog.Logger) *Server {
	s.logger = l
	return s
}

// WithoutAuth disables authentication; every request acts as user 1.
func (s *Server) WithoutAuth() *Server {
	return s.WithLocalUser(&domain.User{ID: 1, Username: "local"})
}

// WithLocalUser disables authentication; every request acts as u.
func (s *Server) WithLocalUser(u *domain.User) *Server {
	s.disableAuth = true
	s.localUser = u
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	api.HandleFunc("POST /login", s.handleLogin)
	api.HandleFunc("POST /logout", s.handleLogout)
	api.HandleFunc("POST /setup", s.handleSetupUser)
	api.HandleFunc("GET /config", s.handleConfig)
	api.HandleFunc("GET /auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("GET /auth/sso/callback", s.handleSSOCallback)
	api.Handle("POST /auth/token", s.rateLimit(s.aiLimit, http.HandlerFunc(s.handleIssueToken)))

	api.Handle("POST /meals/clarify", s.protect(s.aiLimit, s.handleClarify))
	api.Handle("POST /meals/parse", s.protect(s.aiLimit, s.handleParse))
	api.Handle("POST /meals/nutrition", s.protect(s.aiLimit, s.handleNutrition))
	api.Handle("POST /meals", s.protect(s.aiLimit, s.handleCommitMeal))
	api.Handle("GET /meals", s.protect(s.readLimit, s.handleMealsByDate))
	api.Handle("GET /meals/recent", s.protect(s.readLimit, s.handleRecentMeals))
	api.Handle("GET /meals/history", s.protect(s.readLimit, s.handleHistory))
	api.Handle("DELETE /meals/{id}", s.protect(s.aiLimit, s.handleDeleteMeal))

	api.Handle("POST /suggestions", s.protect(s.suggestionLimit, s.handleSuggest))
	api.Handle("GET /suggestions", s.protect(s.suggestionLimit, s.handleSuggestionsForDay))

	api.Handle("GET /conversation", s.protect(s.readLimit, s.handleConversation))
	api.Handle("POST /conversation", s.protect(s.aiLimit, s.handleConversationEvent))
	api.Handle("POST /conversation/reset", s.protect(s.aiLimit, s.handleConversationReset))

	api.Handle("GET /profile", s.protect(s.readLimit, s.handleGetProfile))
	api.Handle("PUT /profile", s.protect(s.aiLimit, s.handleUpdateProfile))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("/", spaFromDisk(s.webDir))

	return s.loggingMiddleware(withSecurityHeaders(withNoCache(root)))
}

// protect applies the client rate limit and then authentication.
func (s *Server) protect(limit *app.RateLimiter, h http.HandlerFunc) http.Handler {
	return s.rateLimit(limit, s.authMiddleware(h))
}
