package routes

import (
	"context"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/internal/server/rpc"
	"github.com/OFFIS-RIT/prospect/pkg/common"
)

// ServerName is reported to MCP clients.
const ServerName = "prospect"

// NewRPC builds the MCP method table over app. The tools run the same
// operations as the REST endpoints.
func NewRPC(app *middleware.App, version string) *rpc.Registry {
	tools := rpc.NewTools()

	rpc.AddTool(tools, "parse_query",
		"Parse a free-text prospecting query into structured filters with company and title IDs.",
		func(ctx context.Context, creds common.Credentials, p parseQueryParams) (any, error) {
			res := app.Pipeline.ParseQuery(ctx, creds, p.Query)
			if res.Error != nil {
				return nil, res.Error
			}
			return res, nil
		})

	rpc.AddTool(tools, "resolve_companies",
		"Resolve several company names to ranked candidates. IDs already returned for an earlier name are skipped.",
		func(ctx context.Context, creds common.Credentials, p lookupManyParams) (any, error) {
			return lookupMany(ctx, app, creds, p), nil
		})

	rpc.AddTool(tools, "lookup_company",
		"Look up one company by name.",
		func(ctx context.Context, creds common.Credentials, p lookupParams) (any, error) {
			entry := lookupCompany(ctx, app, creds, p)
			if entry.Err != nil {
				return nil, entry.Err
			}
			return entry, nil
		})

	rpc.AddTool(tools, "lookalike_from_ids",
		"Find companies similar to the given company IDs.",
		func(ctx context.Context, creds common.Credentials, p lookalikeFromIDsParams) (any, error) {
			return lookalikeResult(lookalikeFromIDs(ctx, app, creds, p))
		})

	rpc.AddTool(tools, "lookalike_from_term",
		"Find companies matching a free-text industry description.",
		func(ctx context.Context, creds common.Credentials, p lookalikeFromTermParams) (any, error) {
			return lookalikeResult(lookalikeFromTerm(ctx, app, creds, p))
		})

	rpc.AddTool(tools, "lookup_titles",
		"Resolve job titles to title IDs.",
		func(ctx context.Context, creds common.Credentials, p titlesParams) (any, error) {
			return lookupTitles(ctx, app, creds, p), nil
		})

	rpc.AddTool(tools, "embed_many",
		"Embed texts with the configured embedding model.",
		func(ctx context.Context, _ common.Credentials, p embedManyParams) (any, error) {
			if i := blankQuery(p.Queries); i >= 0 {
				return nil, rpc.InvalidParams("Empty query at position %d", i)
			}
			res, err := embedMany(ctx, app, p)
			if err != nil {
				return nil, err
			}
			return res, nil
		})

	rpc.AddTool(tools, "generate_report",
		"Queue a report export. Poll report_status for the download link.",
		func(_ context.Context, creds common.Credentials, p generateReportParams) (any, error) {
			return enqueueReport(app, creds, p)
		})

	rpc.AddTool(tools, "report_status",
		"Return the download link of a report, or pending while it is generated.",
		func(ctx context.Context, creds common.Credentials, p reportStatusParams) (any, error) {
			return reportStatus(ctx, app, creds, p)
		})

	reg := rpc.NewRegistry()
	rpc.RegisterMCP(reg, rpc.ServerInfo{Name: ServerName, Version: version}, tools, nil)
	return reg
}

func lookalikeResult(res *common.LookalikeResult) (any, error) {
	if res.Err != nil {
		return nil, res.Err
	}
	return res, nil
}
