// Package backend builds the AI client and the lookup backend selected by the
// environment. It is shared by the server and the worker.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/db"
	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/ai"
	oai "github.com/OFFIS-RIT/prospect/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/prospect/pkg/ai/openai"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
	"github.com/OFFIS-RIT/prospect/pkg/lookup/clickhouse"
	"github.com/OFFIS-RIT/prospect/pkg/lookup/elastic"
	pglookup "github.com/OFFIS-RIT/prospect/pkg/lookup/pgx"
	"github.com/OFFIS-RIT/prospect/pkg/report"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Lookup backend names accepted in LOOKUP_BACKEND.
const (
	ClickHouse    = "clickhouse"
	Postgres      = "postgres"
	Elasticsearch = "elasticsearch"
)

// NewAIClient returns the client selected by AI_ADAPTER (openai or ollama).
func NewAIClient() (ai.ProspectAIClient, error) {
	timeout := util.GetEnvMinutes("AI_TIMEOUT_MIN", 2)
	maxReq := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15))
	dim := int(util.GetEnvNumeric("AI_EMBED_DIM", 0))

	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		client, err := oai.NewProspectOllamaClient(oai.NewProspectOllamaClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingDim:   dim,

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: maxReq,
			Timeout:               timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return gai.NewProspectOpenAIClient(gai.NewProspectOpenAIClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingDim:   dim,

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: maxReq,
			Timeout:               timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}

// Lookup is the opened lookup backend. Reports is nil when no report
// endpoint is configured.
type Lookup struct {
	Name      string
	Companies lookup.EntityLookupProvider
	Titles    lookup.TitleLookupProvider
	Reports   report.Runner

	closers []func()
}

func (l *Lookup) Close() {
	for _, c := range l.closers {
		c()
	}
}

func newClickHouse() *clickhouse.Client {
	return clickhouse.NewClient(clickhouse.Endpoints{
		Lookup:        util.GetEnv("CLICKHOUSE_LOOKUP_ENDPOINT"),
		LookalikeIDs:  util.GetEnv("CLICKHOUSE_LOOKALIKE_IDS_ENDPOINT"),
		LookalikeTerm: util.GetEnv("CLICKHOUSE_LOOKALIKE_TERM_ENDPOINT"),
		Titles:        util.GetEnv("CLICKHOUSE_TITLE_ENDPOINT"),
		Report:        util.GetEnv("CLICKHOUSE_REPORT_ENDPOINT"),
	}, clickhouse.WithBaseURL(util.GetEnv("CLICKHOUSE_URL")))
}

// OpenLookup connects the backend named by LOOKUP_BACKEND. Reports always
// run against ClickHouse when CLICKHOUSE_REPORT_ENDPOINT is set.
func OpenLookup(ctx context.Context) (*Lookup, error) {
	l := &Lookup{Name: util.GetEnvString("LOOKUP_BACKEND", ClickHouse)}

	switch l.Name {
	case ClickHouse:
		client := newClickHouse()
		l.Companies, l.Titles = client, client
	case Postgres:
		pool, err := openPool(ctx, util.GetEnv("DATABASE_URL"))
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, pool.Close)
		store := pglookup.NewLookupDB(pool)
		l.Companies, l.Titles = store, store
	case Elasticsearch:
		index, err := elastic.NewIndex(elastic.Config{
			Addresses:    util.GetEnvList("ELASTICSEARCH_URLS"),
			Username:     util.GetEnv("ELASTICSEARCH_USER"),
			Password:     util.GetEnv("ELASTICSEARCH_PASSWORD"),
			CompanyIndex: util.GetEnv("ELASTICSEARCH_COMPANY_INDEX"),
			TitleIndex:   util.GetEnv("ELASTICSEARCH_TITLE_INDEX"),
		})
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := index.Ping(pingCtx); err != nil {
			logger.Warn("[Backend] Elasticsearch not reachable yet", "err", err)
		}
		l.Companies, l.Titles = index, index
	default:
		return nil, fmt.Errorf("unknown LOOKUP_BACKEND %q", l.Name)
	}

	if util.GetEnv("CLICKHOUSE_REPORT_ENDPOINT") != "" {
		l.Reports = newClickHouse()
	}

	logger.Info("[Backend] Lookup backend ready", "backend", l.Name, "order", l.Companies.Order(), "reports", l.Reports != nil)
	return l, nil
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if util.GetEnvBool("DATABASE_MIGRATE", false) {
		if err := db.Migrate(db.DefaultSource, databaseURL); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// the database may still be starting next to us
	if err := util.RetryErrWithContext(ctx, 5, 2*time.Second, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := metrics.RegisterPool(pool); err != nil {
		logger.Warn("[Backend] Failed to register pool metrics", "err", err)
	}
	return pool, nil
}
