// Package clickhouse implements the lookup contract on top of ClickHouse
// Cloud query API endpoints. Every saved query is addressed by its endpoint
// ID and receives its parameters as queryVariables.
package clickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
)

const (
	DefaultBaseURL = "https://queries.clickhouse.cloud"

	lookupTimeout        = 60 * time.Second
	lookalikeIDsTimeout  = 120 * time.Second
	lookalikeTermTimeout = 90 * time.Second
	titleTimeout         = 60 * time.Second
	// ReportTimeout bounds report queries, which scan far more rows.
	ReportTimeout = 540 * time.Second

	maxErrorBody = 500
	backendName  = "clickhouse"
)

// Endpoints are the saved query IDs the client runs.
type Endpoints struct {
	Lookup        string
	LookalikeIDs  string
	LookalikeTerm string
	Titles        string
	Report        string
}

// Client runs saved queries. It holds no credentials; every call is
// authenticated with the credentials passed to it.
type Client struct {
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL points the client at another query API host.
func WithBaseURL(u string) ClientOption {
	return func(cl *Client) {
		if u != "" {
			cl.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func NewClient(endpoints Endpoints, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		endpoints:  endpoints,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// Order reports ServerRanked: the saved queries blend size_weight into
// their ORDER BY, while dist is the raw distance. Row order is the ranking.
func (c *Client) Order() lookup.DistanceOrder {
	return lookup.ServerRanked
}

// Lookup searches companies by name. Size weighting happens server-side.
func (c *Client) Lookup(
	ctx context.Context,
	creds common.Credentials,
	term string,
	limit int,
	sizeBias float64,
) (*lookup.Table, error) {
	if strings.TrimSpace(term) == "" {
		return lookup.EmptyTable(), nil
	}
	limit = lookup.ClampLimit(limit, lookup.MaxLexicalLimit)
	vars := map[string]any{
		"query":       term,
		"max_log_hc":  lookup.MaxLogHeadcount,
		"size_weight": lookup.ClampSizeBias(sizeBias),
		"limit":       limit,
	}
	return c.run(ctx, creds, "lookup", c.endpoints.Lookup, vars, limit, lookupTimeout)
}

// LookupByVector finds the companies closest to an embedding.
func (c *Client) LookupByVector(
	ctx context.Context,
	creds common.Credentials,
	vector []float32,
	limit int,
	sizeBias float64,
	filters lookup.Filters,
) (*lookup.Table, error) {
	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)
	f := filters.Normalized()
	vars := map[string]any{
		"query":       vector,
		"max_log_hc":  lookup.MaxLogHeadcount,
		"size_weight": lookup.ClampSizeBias(sizeBias),
		"filter_hc":   f.MinHeadcount,
		"filter_cc2":  f.CountryCodes,
		"limit":       limit,
	}
	return c.run(ctx, creds, "lookalike_term", c.endpoints.LookalikeTerm, vars, limit, lookalikeTermTimeout)
}

// LookupByIDs finds lookalikes of a set of known companies.
func (c *Client) LookupByIDs(
	ctx context.Context,
	creds common.Credentials,
	ids []int64,
	limit int,
	sizeBias float64,
	filters lookup.Filters,
) (*lookup.Table, error) {
	if len(ids) == 0 {
		return lookup.EmptyTable(), nil
	}
	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)
	f := filters.Normalized()
	vars := map[string]any{
		"company_ids": ids,
		"max_log_hc":  lookup.MaxLogHeadcount,
		"size_weight": lookup.ClampSizeBias(sizeBias),
		"filter_hc":   f.MinHeadcount,
		"filter_cc2":  f.CountryCodes,
		"limit":       limit,
	}
	return c.run(ctx, creds, "lookalike_ids", c.endpoints.LookalikeIDs, vars, limit, lookalikeIDsTimeout)
}

// LookupTitles finds job titles closest to an embedding.
func (c *Client) LookupTitles(
	ctx context.Context,
	creds common.Credentials,
	vector []float32,
	limit int,
) (*lookup.Table, error) {
	limit = lookup.ClampLimit(limit, lookup.MaxLexicalLimit)
	vars := map[string]any{
		"query": vector,
		"limit": limit,
	}
	return c.run(ctx, creds, "titles", c.endpoints.Titles, vars, limit, titleTimeout)
}

// RunReport runs the report endpoint (or endpoint when set) without a row
// limit. filter_hc defaults to 0.
func (c *Client) RunReport(
	ctx context.Context,
	creds common.Credentials,
	endpoint string,
	vars map[string]any,
) (*lookup.Table, error) {
	if endpoint == "" {
		endpoint = c.endpoints.Report
	}
	qv := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		qv[k] = v
	}
	if _, ok := qv["filter_hc"]; !ok {
		qv["filter_hc"] = 0
	}
	return c.run(ctx, creds, "report", endpoint, qv, -1, ReportTimeout)
}

type runRequest struct {
	QueryVariables map[string]any `json:"queryVariables"`
}

func (c *Client) run(
	ctx context.Context,
	creds common.Credentials,
	operation string,
	endpoint string,
	vars map[string]any,
	limit int,
	timeout time.Duration,
) (tbl *lookup.Table, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveLookup(backendName, operation, start, err)
	}()

	if endpoint == "" {
		return nil, common.NewUpstreamError("Endpoint not configured", fmt.Errorf("no %s endpoint", operation))
	}
	if creds.IsZero() {
		return nil, common.NewUpstreamError("Missing credentials", errors.New("no clickhouse key supplied"))
	}

	body, err := json.Marshal(runRequest{QueryVariables: vars})
	if err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.baseURL + "/run/" + url.PathEscape(endpoint) + "?format=JSONCompact"
	req, err := http.NewRequestWithContext(rCtx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-clickhouse-endpoint-version", "2")
	req.SetBasicAuth(creds.KeyID, creds.KeySecret)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.AsError(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, common.AsError(err)
	}
	if res.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(data))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		if detail == "" {
			detail = "No response body"
		}
		return nil, common.NewUpstreamError(fmt.Sprintf("Status %d", res.StatusCode), errors.New(detail))
	}

	tbl, err = ParseResult(data)
	if err != nil {
		return nil, common.NewUpstreamError("Unreadable response", err)
	}
	tbl.Limit(limit)
	return tbl, nil
}
