package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adapthttp "fitbite/internal/adapter/http"
	"fitbite/internal/adapter/memory"
	"fitbite/internal/adapter/nutritionix"
	"fitbite/internal/adapter/openai"
	"fitbite/internal/adapter/postgres"
	"fitbite/internal/adapter/redis"
	"fitbite/internal/adapter/sqlite"
	"fitbite/internal/app"
	"fitbite/internal/config"
	"fitbite/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const sessionPurgeInterval = time.Hour

// store is the persistence a storage backend provides.
type store interface {
	domain.MealRepository
	domain.ProfileRepository
	domain.UserRepository
}

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := memory.New()
	db, sessions, closeStore, err := openStore(cfg, mem)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("db open")
	}
	defer closeStore()

	var counters domain.CounterStore = mem
	if cfg.RedisURL != "" {
		rc, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis open")
		}
		defer func() { _ = rc.Close() }()
		counters = rc
	}

	var model domain.LanguageModel
	if cfg.OpenAIKey != "" {
		model = openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set; clarification fails open, parsing and suggestions are unavailable")
	}
	var provider domain.NutritionProvider
	if cfg.NutritionixAppID != "" && cfg.NutritionixAPIKey != "" {
		provider = nutritionix.New(cfg.NutritionixAppID, cfg.NutritionixAPIKey, cfg.NutritionixBaseURL)
	} else {
		log.Warn().Msg("Nutritionix credentials not set; nutrition estimates default to zero")
	}

	meals := app.NewMealService(db, db)
	suggestions := app.NewSuggestionService(model, meals)
	feed := app.NewSuggestionFeed(suggestions, cfg.SuggestionQuietPeriod)
	defer feed.Close()
	meals.OnChange(feed.Notify)

	advisor := app.NewClarificationAdvisor(model)
	parser := app.NewMealParser(model)
	lookup := app.NewNutritionLookup(provider)
	authSvc := app.NewAuthService(db, sessions)
	if cfg.JWTSecret != "" {
		authSvc = authSvc.WithJWT(cfg.JWTSecret, cfg.JWTTTL)
	}

	srv := adapthttp.New(adapthttp.Services{
		Meals:        meals,
		Advisor:      advisor,
		Parser:       parser,
		Lookup:       lookup,
		Suggestions:  suggestions,
		Feed:         feed,
		Conversation: app.NewConversationController(advisor, parser, lookup, meals, mem),
		Profiles:     app.NewProfileService(db),
		Auth:         authSvc,
	}, counters, cfg.WebDir).WithLogger(log.Logger).WithTrustedProxies(cfg.TrustedProxies)

	if cfg.OIDCEnabled() {
		oidcCfg, err := setupOIDC(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("oidc setup")
		}
		srv = srv.WithOIDC(oidcCfg)
	}
	if cfg.DisableAuth {
		local, err := authSvc.ValidateForwardAuth(ctx, "local")
		if err != nil {
			log.Fatal().Err(err).Msg("provision local user")
		}
		log.Warn().Int64("user_id", local.ID).Msg("authentication disabled")
		srv = srv.WithLocalUser(local)
	}

	go purgeSessions(ctx, authSvc)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
}

func openStore(cfg *config.Config, mem *memory.DB) (store, domain.SessionRepository, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, postgres.NewSessionRepo(db), func() { _ = db.Close() }, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, sqlite.NewSessionRepo(db), func() { _ = db.Close() }, nil
	}
	return mem, mem.NewSessionRepo(), func() {}, nil
}

func setupOIDC(ctx context.Context, cfg *config.Config) (adapthttp.OIDCConfig, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return adapthttp.OIDCConfig{}, err
	}
	return adapthttp.OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func purgeSessions(ctx context.Context, auth *app.AuthService) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := auth.PurgeExpiredSessions(ctx); err != nil {
				log.Warn().Err(err).Msg("purge expired sessions")
			}
		}
	}
}
