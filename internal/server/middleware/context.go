package middleware

import (
	"time"

	"github.com/OFFIS-RIT/prospect/internal/queue"
	"github.com/OFFIS-RIT/prospect/internal/server/rpc"
	"github.com/OFFIS-RIT/prospect/internal/session"
	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/query"
	"github.com/OFFIS-RIT/prospect/pkg/report"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// App holds the process wide services shared by all handlers. Queue and
// Reports are nil when RabbitMQ or S3 are not configured; JWTKeyfunc is nil
// when no JWKS endpoint is configured.
type App struct {
	Pipeline *query.Pipeline
	Embedder ai.EmbeddingProvider
	Queue    queue.Channel
	Reports  *report.Generator
	Sessions session.Store
	RPC      *rpc.Registry

	JWTKeyfunc   jwt.Keyfunc
	MasterAPIKey string
	DefaultCreds common.Credentials
	SessionTTL   time.Duration
}

type AppContext struct {
	echo.Context
	App   *App
	Creds common.Credentials
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{Context: c, App: app}
			return next(cc)
		}
	}
}
