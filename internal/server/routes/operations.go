package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/prospect/internal/queue"
	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
	"github.com/OFFIS-RIT/prospect/pkg/query"
	"github.com/OFFIS-RIT/prospect/pkg/report"
	"github.com/OFFIS-RIT/prospect/pkg/resolve"
)

// Defaults of the direct lookalike endpoints.
const (
	DefaultLookalikeLimit = 100
	DefaultLookalikeBias  = resolve.DefaultIDsSizeBias
)

var (
	errQueueUnavailable   = errors.New("report queue unavailable")
	errReportsUnavailable = errors.New("report storage unavailable")
)

// The parameter types below are shared by the REST handlers and the MCP
// tools.

type parseQueryParams struct {
	Query string `json:"query" validate:"required" jsonschema:"description=Free-text prospecting query"`
}

type lookupParams struct {
	Query      string   `json:"query" validate:"required" jsonschema:"description=Company name to look up"`
	Limit      int      `json:"limit,omitempty" validate:"min=0" jsonschema:"description=Maximum candidates (default 10)"`
	SizeWeight *float64 `json:"size_weight,omitempty" jsonschema:"description=Preference for larger companies between 0 and 0.3 (default 0.1)"`
}

type lookupManyParams struct {
	Queries    []string `json:"queries" validate:"required,min=1" jsonschema:"description=Company names to resolve"`
	Limit      int      `json:"limit,omitempty" validate:"min=0" jsonschema:"description=Maximum candidates per name (default 10)"`
	SizeWeight *float64 `json:"size_weight,omitempty" jsonschema:"description=Preference for larger companies between 0 and 0.3 (default 0.1)"`
}

type embedManyParams struct {
	Queries []string `json:"queries" validate:"required,min=1" jsonschema:"description=Texts to embed"`
}

type lookalikeFromTermParams struct {
	Query      string   `json:"query" validate:"required" jsonschema:"description=Description of the companies to find"`
	Limit      int      `json:"limit,omitempty" validate:"min=0" jsonschema:"description=Maximum results (default 100)"`
	SizeWeight *float64 `json:"size_weight,omitempty" jsonschema:"description=Preference for larger companies between 0 and 0.3 (default 0.2)"`
}

type lookalikeFromIDsParams struct {
	CompanyIDs   []int64  `json:"company_ids" validate:"required,min=1" jsonschema:"description=Seed company IDs"`
	Limit        int      `json:"limit,omitempty" validate:"min=0" jsonschema:"description=Maximum results (default 100)"`
	SizeWeight   *float64 `json:"size_weight,omitempty" jsonschema:"description=Preference for larger companies between 0 and 0.3 (default 0.2)"`
	MinHeadcount int64    `json:"filter_hc,omitempty" validate:"min=0" jsonschema:"description=Minimum headcount"`
	CountryCodes []string `json:"filter_cc2,omitempty" jsonschema:"description=ISO 3166-1 alpha-2 country codes"`
}

type titlesParams struct {
	Titles []string `json:"titles" validate:"required,min=1" jsonschema:"description=Job titles to resolve"`
	Limit  int      `json:"limit,omitempty" validate:"min=0" jsonschema:"description=Maximum candidates per title (default 10)"`
}

type generateReportParams struct {
	ReportID string         `json:"report_id,omitempty" jsonschema:"description=Report identifier; generated when empty"`
	Vars     map[string]any `json:"query_variables,omitempty" jsonschema:"description=Variables passed to the report query"`
	Format   string         `json:"file_format,omitempty" jsonschema:"enum=json,enum=csv,description=Output format (default json)"`
	Endpoint string         `json:"clickhouse_endpoint,omitempty" jsonschema:"description=Report endpoint override"`
}

type reportStatusParams struct {
	ReportID string `json:"report_id" param:"id" validate:"required" jsonschema:"description=Report identifier"`
}

type queuedReport struct {
	ReportID   string `json:"report_id"`
	Status     string `json:"status"`
	FileFormat string `json:"file_format"`
}

type embeddings struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func sizeBias(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func lookupCompany(ctx context.Context, app *middleware.App, creds common.Credentials, p lookupParams) common.BatchEntry {
	batch := app.Pipeline.ResolveCompanies(ctx, creds, []string{p.Query}, p.Limit, sizeBias(p.SizeWeight, query.DefaultNameSizeBias))
	return batch.Entries[0]
}

func lookupMany(ctx context.Context, app *middleware.App, creds common.Credentials, p lookupManyParams) *common.ResolvedBatch {
	return app.Pipeline.ResolveCompanies(ctx, creds, p.Queries, p.Limit, sizeBias(p.SizeWeight, query.DefaultNameSizeBias))
}

// blankQuery returns the index of the first empty or whitespace-only query,
// or -1 when every query has text.
func blankQuery(queries []string) int {
	for i, q := range queries {
		if strings.TrimSpace(q) == "" {
			return i
		}
	}
	return -1
}

// embedMany returns exactly one vector per query, in query order. Callers
// reject blank queries first (see blankQuery).
func embedMany(ctx context.Context, app *middleware.App, p embedManyParams) (*embeddings, *common.Error) {
	inputs := make([][]byte, len(p.Queries))
	for i, q := range p.Queries {
		inputs[i] = []byte(strings.TrimSpace(q))
	}
	if len(inputs) == 0 {
		return &embeddings{Embeddings: [][]float32{}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, lookup.DefaultEmbedTimeout)
	defer cancel()
	vecs, err := app.Embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return nil, common.AsError(err)
	}
	if len(vecs) != len(inputs) {
		return nil, common.NewUpstreamError("Embedding count mismatch",
			fmt.Errorf("got %d vectors for %d inputs", len(vecs), len(inputs)))
	}
	return &embeddings{Embeddings: vecs}, nil
}

func lookalikeFromTerm(ctx context.Context, app *middleware.App, creds common.Credentials, p lookalikeFromTermParams) *common.LookalikeResult {
	return app.Pipeline.Lookalikes().FromTerm(ctx, creds, p.Query,
		sizeBias(p.SizeWeight, DefaultLookalikeBias), orDefault(p.Limit, DefaultLookalikeLimit))
}

func lookalikeFromIDs(ctx context.Context, app *middleware.App, creds common.Credentials, p lookalikeFromIDsParams) *common.LookalikeResult {
	filters := lookup.Filters{MinHeadcount: p.MinHeadcount, CountryCodes: p.CountryCodes}
	return app.Pipeline.Lookalikes().FromIDs(ctx, creds, p.CompanyIDs, filters,
		sizeBias(p.SizeWeight, DefaultLookalikeBias), orDefault(p.Limit, DefaultLookalikeLimit))
}

func lookupTitles(ctx context.Context, app *middleware.App, creds common.Credentials, p titlesParams) *common.ResolvedBatch {
	return app.Pipeline.ResolveTitles(ctx, creds, p.Titles, p.Limit)
}

// enqueueReport queues a report job for the worker.
func enqueueReport(app *middleware.App, creds common.Credentials, p generateReportParams) (*queuedReport, error) {
	format, err := report.ParseFormat(p.Format)
	if err != nil {
		return nil, err
	}
	if app.Queue == nil {
		return nil, errQueueUnavailable
	}

	id := strings.TrimSpace(p.ReportID)
	if id == "" {
		id = util.NewID()
	}
	vars := p.Vars
	if vars == nil {
		vars = map[string]any{}
	}

	job := report.Job{
		ReportID:  id,
		Format:    format,
		Endpoint:  p.Endpoint,
		Vars:      vars,
		KeyID:     creds.KeyID,
		KeySecret: creds.KeySecret,
	}
	if err := queue.EnqueueReport(app.Queue, job); err != nil {
		return nil, err
	}
	return &queuedReport{ReportID: id, Status: report.StatusPending, FileFormat: format}, nil
}

func reportStatus(ctx context.Context, app *middleware.App, creds common.Credentials, p reportStatusParams) (*report.Status, error) {
	if app.Reports == nil {
		return nil, errReportsUnavailable
	}
	return app.Reports.Status(ctx, creds.KeyID, p.ReportID)
}

// errorStatus maps a structured error to an HTTP status.
func errorStatus(e *common.Error) int {
	switch e.Kind {
	case common.KindTimeout:
		return http.StatusGatewayTimeout
	case common.KindExtraction:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
