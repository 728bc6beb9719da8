// Package resolve grounds entity names to IDs: concurrent batch lookups with
// ordered deduplication, LLM-assisted disambiguation and lookalike search.
package resolve

import (
	"context"

	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"

	"golang.org/x/sync/errgroup"
)

// BatchResolver fans out one search per term and merges the results in term
// order.
type BatchResolver struct {
	searcher lookup.Searcher
	dedupe   bool
}

type BatchOption func(*BatchResolver)

// WithoutDedupe keeps every term's candidates even when an earlier term
// already produced the same ID.
func WithoutDedupe() BatchOption {
	return func(r *BatchResolver) {
		r.dedupe = false
	}
}

func NewBatchResolver(searcher lookup.Searcher, opts ...BatchOption) *BatchResolver {
	r := &BatchResolver{searcher: searcher, dedupe: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type termResult struct {
	tbl *lookup.Table
	err error
}

// ResolveMany looks up all terms concurrently and returns one entry per term
// in input order. Per-term failures become error entries; the batch itself
// never fails.
//
// After all lookups have returned, a single pass walks the terms in order
// and keeps a candidate only if its ID has not been emitted before, so the
// first occurrence wins.
func (r *BatchResolver) ResolveMany(
	ctx context.Context,
	creds common.Credentials,
	terms []string,
	limit int,
	sizeBias float64,
) *common.ResolvedBatch {
	batch := &common.ResolvedBatch{Entries: make([]common.BatchEntry, 0, len(terms))}
	if len(terms) == 0 {
		return batch
	}

	limit = lookup.ClampLimit(limit, r.searcher.MaxLimit())
	sizeBias = lookup.ClampSizeBias(sizeBias)

	// each goroutine owns exactly one slot
	results := make([]termResult, len(terms))
	var g errgroup.Group
	for i, term := range terms {
		g.Go(func() error {
			tbl, err := r.searcher.Search(ctx, creds, term, limit, sizeBias)
			results[i] = termResult{tbl: tbl, err: err}
			return nil
		})
	}
	_ = g.Wait()

	order := r.searcher.Order()
	seen := make(map[int64]struct{})
	for i, term := range terms {
		entry := common.BatchEntry{Term: term, Candidates: []common.LookupCandidate{}}

		res := results[i]
		if res.err != nil {
			entry.Err = common.AsError(res.err)
			logger.Warn("[Resolver] Lookup failed", "term", term, "err", res.err)
			batch.Entries = append(batch.Entries, entry)
			continue
		}

		cands, err := res.tbl.Candidates()
		if err != nil {
			entry.Err = common.NewUpstreamError("Unreadable lookup result", err)
			logger.Warn("[Resolver] Unreadable lookup result", "term", term, "err", err)
			batch.Entries = append(batch.Entries, entry)
			continue
		}
		lookup.SortByDistance(cands, order)
		if len(cands) > limit {
			cands = cands[:limit]
		}

		for _, c := range cands {
			if r.dedupe {
				if _, ok := seen[c.ID]; ok {
					continue
				}
				seen[c.ID] = struct{}{}
			}
			entry.Candidates = append(entry.Candidates, c)
		}
		batch.Entries = append(batch.Entries, entry)
	}

	return batch
}
