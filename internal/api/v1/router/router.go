package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/handler"
	"github.com/EisukeHirata/profile-nanobanana/internal/config"
	"github.com/EisukeHirata/profile-nanobanana/internal/middleware"
	"github.com/EisukeHirata/profile-nanobanana/internal/pubsub"
	"github.com/EisukeHirata/profile-nanobanana/internal/repository"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"
	"github.com/EisukeHirata/profile-nanobanana/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// App is the assembled HTTP handler and the resources main must release.
type App struct {
	Handler http.Handler
	Pool    *pgxpool.Pool
	closers []func() error
}

// Close releases the database pool and optional clients.
func (a *App) Close() {
	for _, c := range a.closers {
		_ = c()
	}
	a.Pool.Close()
}

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Initializing router")

	// 1. Database pool
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("Database connection successful")
	app := &App{Pool: pool}

	// 2. Optional image storage
	var imageStore service.ImageStore
	if cfg.StorageEnabled() {
		s3Store, err := storage.NewS3ImageStore(ctx, storage.Config{
			Endpoint:      cfg.S3URL,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicURL,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init image storage: %w", err)
		}
		imageStore = s3Store
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("Generated images are offloaded to S3")
	}

	// 3. Optional Pub/Sub publisher for billing notifications
	var publisher pubsub.Publisher
	if cfg.PubSubEnabled() {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		publisher = p
		app.closers = append(app.closers, p.Close)
	}

	// 4. Validator and auth
	validate := validator.New(validator.WithRequiredStructEnabled())
	verifier, err := middleware.NewTokenVerifier(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	authMiddleware := middleware.AuthMiddleware(verifier, logger)

	// 5. Repositories, services and handlers
	profileRepo := repository.NewProfileRepo(pool)
	generationRepo := repository.NewGenerationRepo(pool)
	billingEventRepo := repository.NewBillingEventRepo(pool)

	catalog := service.NewPriceCatalogFromConfig(cfg)
	ledgerSvc := service.NewLedgerService(profileRepo, cfg.BootstrapCredits, logger)
	userSvc := service.NewUserService(ledgerSvc)
	stripeSvc := service.NewStripeService(cfg, ledgerSvc, catalog, logger)
	reconciler := service.NewReconciler(ledgerSvc, catalog, stripeSvc, billingEventRepo, publisher, cfg.PubSubBillingTopic, logger)
	generator := service.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GenerationHTTPTimeout)
	generationSvc := service.NewGenerationService(ledgerSvc, generationRepo, generator, imageStore, service.GenerationSettings{
		ModelStandard:        cfg.GeminiModelStandard,
		ModelPro:             cfg.GeminiModelPro,
		CostPerImageStandard: cfg.CostPerImageStandard,
		CostPerImagePro:      cfg.CostPerImagePro,
		MaxImagesPerRequest:  cfg.MaxImagesPerRequest,
		Timeout:              cfg.GenerationTimeout,
	}, logger)

	userHandler := handler.NewUserHandler(userSvc, ledgerSvc, logger)
	generationHandler := handler.NewGenerationHandler(generationSvc, validate, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(stripeSvc, validate, logger)
	webhookHandler := handler.NewWebhookHandler(stripeSvc, reconciler, logger)
	healthHandler := handler.NewHealthHandler(pool, logger)

	// 6. ServeMux with a /v1 sub-mux
	mux := http.NewServeMux()
	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	generationHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	webhookHandler.RegisterRoutes(apiV1Mux)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	healthHandler.RegisterRoutes(mux)

	// 7. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	app.Handler = middleware.LoggerMiddleware(logger)(c.Handler(mux))
	return app, nil
}

// NewPool opens the pgx pool, disabling SSL for local development and
// switching to the simple protocol behind transaction poolers elsewhere.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.DBConnectionString
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			separator = "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}
		}
		dsn += separator + "sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.Environment != "development" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
