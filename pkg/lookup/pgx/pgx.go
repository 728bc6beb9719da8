// Package pgx implements the lookup contract on PostgreSQL with pg_trgm for
// name lookups and pgvector for lookalike and title search.
//
// Distances are cosine distances (lower is closer). Size bias is applied in
// Go over an oversampled candidate pool since the blend needs headcounts.
package pgx

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const (
	backendName = "postgres"
	// oversample widens the pool re-ranked by size.
	oversample = 3
)

type pgxIConn interface {
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
}

// LookupDB serves company and title lookups from the companies and titles
// tables created by the migrations.
type LookupDB struct {
	conn pgxIConn
}

// NewLookupDB wraps a pool or connection. pgvector types must be registered
// on the connection (pgvector-go/pgx RegisterTypes).
func NewLookupDB(conn pgxIConn) *LookupDB {
	return &LookupDB{conn: conn}
}

func (s *LookupDB) Order() lookup.DistanceOrder {
	return lookup.LowerIsCloser
}

const lookupSQL = `
SELECT id AS comp_id, coalesce(slug, '') AS comp_slug, name AS comp_name,
	coalesce(web, '') AS comp_web, 1 - similarity(name, $1) AS dist,
	coalesce(headcount, 0) AS comp_hc, coalesce(country, '') AS comp_cc2
FROM companies
WHERE name % $1 OR name ILIKE $1 || '%'
ORDER BY dist, id
LIMIT $2`

const byVectorSQL = `
SELECT id AS comp_id, coalesce(slug, '') AS comp_slug, name AS comp_name,
	coalesce(web, '') AS comp_web, embedding <=> $1 AS dist,
	coalesce(headcount, 0) AS comp_hc, coalesce(country, '') AS comp_cc2
FROM companies
WHERE embedding IS NOT NULL
	AND coalesce(headcount, 0) >= $2
	AND (cardinality($3::text[]) = 0 OR country = ANY($3::text[]))
ORDER BY embedding <=> $1, id
LIMIT $4`

const byIDsSQL = `
WITH seed AS (
	SELECT avg(embedding) AS v FROM companies WHERE id = ANY($1::bigint[]) AND embedding IS NOT NULL
)
SELECT c.id AS comp_id, coalesce(c.slug, '') AS comp_slug, c.name AS comp_name,
	coalesce(c.web, '') AS comp_web, c.embedding <=> seed.v AS dist,
	coalesce(c.headcount, 0) AS comp_hc, coalesce(c.country, '') AS comp_cc2
FROM companies c, seed
WHERE seed.v IS NOT NULL
	AND c.embedding IS NOT NULL
	AND c.id <> ALL($1::bigint[])
	AND coalesce(c.headcount, 0) >= $2
	AND (cardinality($3::text[]) = 0 OR c.country = ANY($3::text[]))
ORDER BY c.embedding <=> seed.v, c.id
LIMIT $4`

const titlesSQL = `
SELECT id AS title_id, name AS title_name, supertitle_id, function_id,
	coalesce(function_name, '') AS function_name, embedding <=> $1 AS dist
FROM titles
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1, id
LIMIT $2`

// Lookup finds companies whose name is similar to term.
func (s *LookupDB) Lookup(
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
	tbl, err := s.query(ctx, "lookup", lookupSQL, term, limit*oversample)
	if err != nil {
		return nil, err
	}
	return rerank(tbl, sizeBias, limit)
}

// LookupByVector finds companies closest to vector.
func (s *LookupDB) LookupByVector(
	ctx context.Context,
	_ common.Credentials,
	vector []float32,
	limit int,
	sizeBias float64,
	filters lookup.Filters,
) (*lookup.Table, error) {
	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)
	f := filters.Normalized()
	tbl, err := s.query(ctx, "lookalike_term", byVectorSQL,
		pgvector.NewVector(vector), f.MinHeadcount, f.CountryCodes, limit*oversample)
	if err != nil {
		return nil, err
	}
	return rerank(tbl, sizeBias, limit)
}

// LookupByIDs finds companies closest to the mean embedding of ids,
// excluding the seeds themselves.
func (s *LookupDB) LookupByIDs(
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
	f := filters.Normalized()
	tbl, err := s.query(ctx, "lookalike_ids", byIDsSQL, ids, f.MinHeadcount, f.CountryCodes, limit*oversample)
	if err != nil {
		return nil, err
	}
	return rerank(tbl, sizeBias, limit)
}

// LookupTitles finds job titles closest to vector.
func (s *LookupDB) LookupTitles(
	ctx context.Context,
	_ common.Credentials,
	vector []float32,
	limit int,
) (*lookup.Table, error) {
	limit = lookup.ClampLimit(limit, lookup.MaxLexicalLimit)
	return s.query(ctx, "titles", titlesSQL, pgvector.NewVector(vector), limit)
}

func (s *LookupDB) query(ctx context.Context, operation, sql string, args ...any) (tbl *lookup.Table, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveLookup(backendName, operation, start, err)
	}()

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, common.AsError(err)
	}
	defer rows.Close()

	tbl = lookup.EmptyTable()
	for _, fd := range rows.FieldDescriptions() {
		tbl.Columns = append(tbl.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, common.AsError(err)
		}
		tbl.Rows = append(tbl.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, common.AsError(err)
	}
	return tbl, nil
}

// rerank applies the size bias to a company table and rewrites its dist
// column, returning at most limit rows.
func rerank(tbl *lookup.Table, sizeBias float64, limit int) (*lookup.Table, error) {
	cands, err := tbl.Candidates()
	if err != nil {
		return nil, common.NewUpstreamError("Unreadable response", err)
	}
	lookup.RankBySize(cands, lookup.LowerIsCloser, sizeBias)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return lookup.CandidateTable(cands), nil
}
