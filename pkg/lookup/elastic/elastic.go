// Package elastic implements the lookup contract on Elasticsearch: a
// multi_match query for names and approximate kNN over a dense_vector field
// for lookalikes and titles.
//
// Scores are relevance scores (higher is closer). BM25 scores are divided by
// the max score of the response so they share the [0, 1] range of kNN
// cosine scores before the size bias is blended in.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	backendName    = "elasticsearch"
	requestTimeout = 60 * time.Second
	oversample     = 3
	vectorField    = "embedding"
)

// Config selects the cluster and the indices to search.
type Config struct {
	Addresses    []string
	Username     string
	Password     string
	CompanyIndex string
	TitleIndex   string
}

// Index searches a company index and a title index.
type Index struct {
	es           *elasticsearch.Client
	companyIndex string
	titleIndex   string
}

// NewIndex creates the client. No request is made until the first search.
func NewIndex(cfg Config) (*Index, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	companyIndex := cfg.CompanyIndex
	if companyIndex == "" {
		companyIndex = "companies"
	}
	titleIndex := cfg.TitleIndex
	if titleIndex == "" {
		titleIndex = "titles"
	}

	return &Index{es: es, companyIndex: companyIndex, titleIndex: titleIndex}, nil
}

func (x *Index) Order() lookup.DistanceOrder {
	return lookup.HigherIsCloser
}

// Ping checks the cluster is reachable.
func (x *Index) Ping(ctx context.Context) error {
	res, err := x.es.Ping(x.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

var companySource = []string{"comp_id", "slug", "name", "web", "headcount", "country"}

var titleSource = []string{"title_id", "title_name", "supertitle_id", "function_id", "function_name"}

func (x *Index) Lookup(
	ctx context.Context,
	_ common.Credentials,
	term string,
	limit int,
	sizeBias float64,
) (*lookup.Table, error) {
	if term == "" {
		return lookup.EmptyTable(), nil
	}
	limit = lookup.ClampLimit(limit, lookup.MaxLexicalLimit)
	body := map[string]any{
		"size":    limit * oversample,
		"_source": companySource,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     term,
				"fields":    []string{"name^3", "slug^2", "web"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}
	hits, err := x.search(ctx, "lookup", x.companyIndex, body)
	if err != nil {
		return nil, err
	}
	return companyTable(hits, true, sizeBias, limit)
}

func (x *Index) LookupByVector(
	ctx context.Context,
	_ common.Credentials,
	vector []float32,
	limit int,
	sizeBias float64,
	filters lookup.Filters,
) (*lookup.Table, error) {
	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)
	hits, err := x.search(ctx, "lookalike_term", x.companyIndex, knnBody(vector, limit*oversample, filterClauses(filters, nil)))
	if err != nil {
		return nil, err
	}
	return companyTable(hits, false, sizeBias, limit)
}

// LookupByIDs searches around the mean embedding of the seed companies and
// leaves the seeds out of the result.
func (x *Index) LookupByIDs(
	ctx context.Context,
	_ common.Credentials,
	ids []int64,
	limit int,
	sizeBias float64,
	filters lookup.Filters,
) (*lookup.Table, error) {
	if len(ids) == 0 {
		return lookup.EmptyTable(), nil
	}
	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)

	centroid, err := x.centroid(ctx, ids)
	if err != nil {
		return nil, err
	}
	if centroid == nil {
		return lookup.EmptyTable(), nil
	}

	hits, err := x.search(ctx, "lookalike_ids", x.companyIndex, knnBody(centroid, limit*oversample, filterClauses(filters, ids)))
	if err != nil {
		return nil, err
	}
	return companyTable(hits, false, sizeBias, limit)
}

func (x *Index) LookupTitles(
	ctx context.Context,
	_ common.Credentials,
	vector []float32,
	limit int,
) (*lookup.Table, error) {
	limit = lookup.ClampLimit(limit, lookup.MaxLexicalLimit)
	body := knnBody(vector, limit, nil)
	body["_source"] = titleSource
	hits, err := x.search(ctx, "titles", x.titleIndex, body)
	if err != nil {
		return nil, err
	}

	tbl := &lookup.Table{
		Columns: append(append([]string{}, titleSource...), "dist"),
		Rows:    make([][]any, 0, len(hits.Hits)),
	}
	for _, h := range hits.Hits {
		row := make([]any, 0, len(tbl.Columns))
		for _, col := range titleSource {
			row = append(row, h.Source[col])
		}
		tbl.Rows = append(tbl.Rows, append(row, h.Score))
	}
	return tbl, nil
}

func knnBody(vector []float32, k int, filter []any) map[string]any {
	knn := map[string]any{
		"field":          vectorField,
		"query_vector":   vector,
		"k":              k,
		"num_candidates": max(100, 2*k),
	}
	if len(filter) > 0 {
		knn["filter"] = map[string]any{"bool": map[string]any{"filter": filter}}
	}
	return map[string]any{
		"size":    k,
		"_source": companySource,
		"knn":     knn,
	}
}

// filterClauses turns the filter sentinels into exact predicates. exclude
// drops the given company IDs.
func filterClauses(filters lookup.Filters, exclude []int64) []any {
	f := filters.Normalized()
	var clauses []any
	if f.MinHeadcount > 0 {
		clauses = append(clauses, map[string]any{
			"range": map[string]any{"headcount": map[string]any{"gte": f.MinHeadcount}},
		})
	}
	if len(f.CountryCodes) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"country": f.CountryCodes},
		})
	}
	if len(exclude) > 0 {
		clauses = append(clauses, map[string]any{
			"bool": map[string]any{
				"must_not": map[string]any{"terms": map[string]any{"comp_id": exclude}},
			},
		})
	}
	return clauses
}

type hit struct {
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Source map[string]any `json:"_source"`
}

type hitList struct {
	MaxScore *float64 `json:"max_score"`
	Hits     []hit    `json:"hits"`
}

type searchResponse struct {
	Hits hitList `json:"hits"`
}

func (x *Index) search(ctx context.Context, operation, index string, body map[string]any) (hits *hitList, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveLookup(backendName, operation, start, err)
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(
		x.es.Search.WithContext(rCtx),
		x.es.Search.WithIndex(index),
		x.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, common.AsError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res)
	}

	var r searchResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return nil, common.NewUpstreamError("Unreadable response", err)
	}
	return &r.Hits, nil
}

type mgetResponse struct {
	Docs []struct {
		Found  bool `json:"found"`
		Source struct {
			Embedding []float32 `json:"embedding"`
		} `json:"_source"`
	} `json:"docs"`
}

// centroid averages the embeddings of the given companies. It returns nil
// when none of them has an embedding.
func (x *Index) centroid(ctx context.Context, ids []int64) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveLookup(backendName, "mget", start, err)
	}()

	docIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		docIDs = append(docIDs, strconv.FormatInt(id, 10))
	}
	payload, err := json.Marshal(map[string]any{"ids": docIDs})
	if err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Mget(
		bytes.NewReader(payload),
		x.es.Mget.WithContext(rCtx),
		x.es.Mget.WithIndex(x.companyIndex),
		x.es.Mget.WithSourceIncludes(vectorField),
	)
	if err != nil {
		return nil, common.AsError(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(res)
	}

	var r mgetResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, common.NewUpstreamError("Unreadable response", err)
	}

	n := 0
	for _, d := range r.Docs {
		emb := d.Source.Embedding
		if !d.Found || len(emb) == 0 {
			continue
		}
		if vec == nil {
			vec = make([]float32, len(emb))
		}
		if len(emb) != len(vec) {
			return nil, common.NewUpstreamError("Inconsistent embeddings", errors.New("seed embeddings differ in length"))
		}
		for i, v := range emb {
			vec[i] += v
		}
		n++
	}
	for i := range vec {
		vec[i] /= float32(n)
	}
	return vec, nil
}

func responseError(res *esapi.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(res.Body, 500))
	msg := fmt.Sprintf("Status %d", res.StatusCode)
	if len(detail) == 0 {
		return common.NewUpstreamError(msg, nil)
	}
	return common.NewUpstreamError(msg, errors.New(string(detail)))
}

// companyTable converts hits to candidates, applies the size bias and keeps
// the best limit rows.
func companyTable(hits *hitList, normalize bool, sizeBias float64, limit int) (*lookup.Table, error) {
	maxScore := 0.0
	if normalize {
		for _, h := range hits.Hits {
			maxScore = max(maxScore, h.Score)
		}
	}

	tbl := &lookup.Table{
		Columns: []string{"comp_id", "comp_slug", "comp_name", "comp_web", "dist", "comp_hc", "comp_cc2"},
		Rows:    make([][]any, 0, len(hits.Hits)),
	}
	for _, h := range hits.Hits {
		id := h.Source["comp_id"]
		if id == nil {
			id = h.ID
		}
		score := h.Score
		if normalize && maxScore > 0 {
			score /= maxScore
		}
		tbl.Rows = append(tbl.Rows, []any{
			id, h.Source["slug"], h.Source["name"], h.Source["web"], score, h.Source["headcount"], h.Source["country"],
		})
	}

	cands, err := tbl.Candidates()
	if err != nil {
		return nil, common.NewUpstreamError("Unreadable response", err)
	}
	lookup.RankBySize(cands, lookup.HigherIsCloser, sizeBias)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return lookup.CandidateTable(cands), nil
}
