package resolve

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
)

// Default size biases of the lookalike entry points.
const (
	DefaultIDsSizeBias      = 0.20
	DefaultIndustrySizeBias = 0.15
	DefaultIndustryLimit    = 20
)

// LookalikeResolver finds nearest neighbours of known companies or of a free
// text description.
type LookalikeResolver struct {
	provider     lookup.EntityLookupProvider
	embedder     ai.EmbeddingProvider
	embedTimeout time.Duration
}

type LookalikeOption func(*LookalikeResolver)

// WithEmbedTimeout overrides lookup.DefaultEmbedTimeout.
func WithEmbedTimeout(d time.Duration) LookalikeOption {
	return func(r *LookalikeResolver) {
		r.embedTimeout = d
	}
}

func NewLookalikeResolver(
	provider lookup.EntityLookupProvider,
	embedder ai.EmbeddingProvider,
	opts ...LookalikeOption,
) *LookalikeResolver {
	r := &LookalikeResolver{
		provider:     provider,
		embedder:     embedder,
		embedTimeout: lookup.DefaultEmbedTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromIDs returns companies similar to ids. An empty id list returns an
// empty result without a backend call.
func (r *LookalikeResolver) FromIDs(
	ctx context.Context,
	creds common.Credentials,
	ids []int64,
	filters lookup.Filters,
	sizeBias float64,
	limit int,
) *common.LookalikeResult {
	res := &common.LookalikeResult{Candidates: []common.LookupCandidate{}}
	if len(ids) == 0 {
		return res
	}

	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)
	tbl, err := r.provider.LookupByIDs(ctx, creds, ids, limit, lookup.ClampSizeBias(sizeBias), filters.Normalized())
	if err != nil {
		logger.Warn("[Lookalike] Lookup from ids failed", "ids", len(ids), "err", err)
		res.Err = common.AsError(err)
		return res
	}
	return r.finish(res, tbl, limit)
}

// FromTerm embeds text and returns the companies closest to it. Embedding
// failures and timeouts are reported on the result.
func (r *LookalikeResolver) FromTerm(
	ctx context.Context,
	creds common.Credentials,
	text string,
	sizeBias float64,
	limit int,
) *common.LookalikeResult {
	res := &common.LookalikeResult{Query: text, Candidates: []common.LookupCandidate{}}
	if strings.TrimSpace(text) == "" {
		return res
	}

	vec, err := lookup.EmbedTerm(ctx, r.embedder, text, r.embedTimeout)
	if err != nil {
		if errors.Is(err, common.ErrTimeout) {
			metrics.Default.EmbeddingTimeouts.Inc()
		}
		logger.Warn("[Lookalike] Embedding failed", "query", text, "err", err)
		res.Err = common.AsError(err)
		return res
	}

	limit = lookup.ClampLimit(limit, lookup.MaxLookalikeLimit)
	tbl, err := r.provider.LookupByVector(ctx, creds, vec, limit, lookup.ClampSizeBias(sizeBias), lookup.Filters{}.Normalized())
	if err != nil {
		logger.Warn("[Lookalike] Lookup from term failed", "query", text, "err", err)
		res.Err = common.AsError(err)
		return res
	}
	return r.finish(res, tbl, limit)
}

func (r *LookalikeResolver) finish(res *common.LookalikeResult, tbl *lookup.Table, limit int) *common.LookalikeResult {
	cands, err := tbl.Candidates()
	if err != nil {
		res.Err = common.NewUpstreamError("Unreadable lookup result", err)
		return res
	}
	lookup.SortByDistance(cands, r.provider.Order())

	seen := make(map[int64]struct{}, len(cands))
	for _, c := range cands {
		if len(res.Candidates) == limit {
			break
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		res.Candidates = append(res.Candidates, c)
	}
	return res
}
