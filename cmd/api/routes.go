package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/toonsmith/backend/internal/auth"
	"github.com/toonsmith/backend/internal/billing"
	"github.com/toonsmith/backend/internal/config"
	"github.com/toonsmith/backend/internal/dashboard"
	"github.com/toonsmith/backend/internal/export"
	"github.com/toonsmith/backend/internal/handlers"
	"github.com/toonsmith/backend/internal/imagegen"
	"github.com/toonsmith/backend/internal/ledger"
	"github.com/toonsmith/backend/internal/llm"
	"github.com/toonsmith/backend/internal/repository"
	"github.com/toonsmith/backend/internal/router"
	"github.com/toonsmith/backend/internal/services"
	"github.com/toonsmith/backend/internal/storage"
	"github.com/toonsmith/backend/internal/worker"
)

type apiDeps struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	redis   *redis.Client
	store   storage.Store
	static  http.Handler
	gemini  *imagegen.Gemini
	ledger  ledger.Service
	cleanup *worker.CleanupQueue
	log     *slog.Logger
}

// buildAPI wires repositories, services and handlers into the route table.
func buildAPI(_ context.Context, d apiDeps) (http.Handler, error) {
	cfg, logger := d.cfg, d.log

	projectRepo := repository.NewProjectRepo(d.pool)
	characterRepo := repository.NewCharacterRepo(d.pool)
	sceneRepo := repository.NewSceneRepo(d.pool)
	profileRepo := repository.NewProfileRepo(d.pool)
	creditRepo := repository.NewCreditRepo(d.pool)

	// Auth
	authSvc := auth.NewService(
		auth.NewHTTPProvider(httpkit.New(cfg.AuthProviderTimeout),
			cfg.AuthProviderURL, cfg.AuthProviderAPIKey, cfg.AuthProviderJWTSecret),
		auth.NewRepository(d.pool),
		auth.NewRedisSessionStore(d.redis),
		auth.Options{
			SessionSecret:   cfg.SessionSecret,
			SessionTTL:      cfg.SessionTTL,
			FreePlanCredits: cfg.FreePlanCredits,
		},
	)
	authHandler := auth.NewHandler(authSvc, strings.HasPrefix(cfg.PublicBaseURL, "https://"), logger)

	// Story (LLM)
	validator, err := services.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("schema validator: %w", err)
	}
	llmClient := llm.New(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.LLMTimeout,
	}, logger)
	board := services.NewStoryboard(llmClient, validator, logger)

	// Images
	imaging := services.NewImaging(services.ImagingDeps{
		Projects:   projectRepo,
		Scenes:     sceneRepo,
		Characters: characterRepo,
		Store:      d.store,
		References: services.NewReferencePicker(d.store, cfg.ReferenceByteBudget, cfg.ReferenceMaxCount, cfg.ReferenceJPEGQuality, logger),
		Generator:  imagegen.WithRetry(d.gemini, cfg.ImageMaxAttempts, cfg.ImageRetryBaseDelay, logger),
		Editor:     d.gemini,
		Cleanup:    d.cleanup,
		Log:        logger,
	})

	// Billing
	plans, err := cfg.Plans()
	if err != nil {
		return nil, err
	}
	billingSvc := billing.NewService(profileRepo, d.ledger, billing.Options{
		SecretKey: cfg.StripeSecretKey,
		Plans:     plans,
		ReturnURL: cfg.PublicBaseURL,
	}, logger)
	var webhook http.Handler
	if cfg.StripeWebhookSecret != "" {
		webhook = billing.NewWebhookHandler(d.ledger, cfg.StripeWebhookSecret, logger)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; webhook route disabled")
	}

	exporter := export.New(projectRepo, sceneRepo, characterRepo, d.store, logger)

	return router.New(router.Deps{
		Auth:       authHandler,
		Sessions:   authSvc,
		Credits:    d.ledger,
		CronSecret: cfg.CronSecret,
		Projects:   handlers.NewProjectHandler(projectRepo, d.cleanup, logger),
		Characters: handlers.NewCharacterHandler(projectRepo, characterRepo, d.store, d.cleanup, logger),
		Scenes:     handlers.NewSceneHandler(projectRepo, sceneRepo, d.store, d.cleanup, logger),
		Story:      handlers.NewStoryHandler(board, logger),
		Images:     handlers.NewImageHandler(imaging, logger),
		Files:      handlers.NewFileHandler(exporter, logger),
		Dashboard:  dashboard.NewHandler(authSvc, d.ledger, creditRepo, logger),
		Billing:    billing.NewHandler(billingSvc, logger),
		Webhook:    webhook,
		Static:     d.static,
		Log:        logger,
	}), nil
}
