package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/backend"
	"github.com/OFFIS-RIT/prospect/internal/queue"
	mid "github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/internal/server/routes"
	"github.com/OFFIS-RIT/prospect/internal/session"
	"github.com/OFFIS-RIT/prospect/internal/storage"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/query"
	"github.com/OFFIS-RIT/prospect/pkg/report"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Version is reported to MCP clients.
var Version = "dev"

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New returns an echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	if app.RPC == nil {
		app.RPC = routes.NewRPC(app, Version)
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiClient, err := backend.NewAIClient()
	if err != nil {
		logger.Fatal("Failed to create AI client", "err", err)
	}

	lk, err := backend.OpenLookup(ctx)
	if err != nil {
		logger.Fatal("Failed to open lookup backend", "err", err)
	}
	defer lk.Close()

	pipeline := query.NewPipeline(query.Config{
		Completion:    aiClient,
		Embedder:      aiClient,
		Lookup:        lk.Companies,
		Titles:        lk.Titles,
		ExtractModel:  util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		ValidateModel: util.GetEnv("AI_CHAT_VALIDATE_MODEL"),
	}, query.WithTracer(query.LogTracer{}))

	sessions, closeSessions := openSessions(ctx)
	defer closeSessions()

	app := &mid.App{
		Pipeline:     pipeline,
		Embedder:     aiClient,
		Sessions:     sessions,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
		DefaultCreds: common.Credentials{
			KeyID:     util.GetEnv("CLICKHOUSE_KEY_ID"),
			KeySecret: util.GetEnv("CLICKHOUSE_KEY_SECRET"),
		},
		SessionTTL: util.GetEnvMinutes("SESSION_TTL_MIN", 60*24),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.JWTKeyfunc = k.Keyfunc
	}

	if util.GetEnv("RABBITMQ_HOST") != "" {
		que := queue.Init()
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.ReportQueue}); err != nil {
			logger.Fatal("Failed to declare queues", "err", err)
		}
		app.Queue = ch
	} else {
		logger.Warn("RABBITMQ_HOST not set, report generation disabled")
	}

	if bucket := util.GetEnv("AWS_BUCKET"); bucket != "" {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		store, err := storage.NewStore(client, bucket, util.GetEnv("AWS_PUBLIC_ENDPOINT"))
		if err != nil {
			logger.Fatal("Failed to create report store", "err", err)
		}
		app.Reports = report.NewGenerator(lk.Reports, store)
	} else {
		logger.Warn("AWS_BUCKET not set, report status disabled")
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port, "backend", lk.Name)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func openSessions(ctx context.Context) (session.Store, func()) {
	if util.GetEnvString("SESSION_BACKEND", "memory") == "redis" {
		client := session.NewRedisClient(session.RedisOptions{
			Addr:     util.GetEnvString("REDIS_ADDR", "localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD"),
			DB:       int(util.GetEnvNumeric("REDIS_DB", 0)),
		})
		store := session.NewRedisStore(client)
		if err := util.RetryErrWithContext(ctx, 5, time.Second, store.Ping); err != nil {
			logger.Fatal("Failed to connect to redis", "err", err)
		}
		return store, func() { _ = client.Close() }
	}

	store := session.NewMemoryStore(time.Minute)
	return store, store.Close
}
