// Package lookup defines the search backend contract used by the resolvers:
// lexical lookup, vector (lookalike) search and title search. Backends
// return raw tables; this package turns them into ranked candidates.
package lookup

import (
	"context"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/prospect/pkg/common"
)

const (
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 10
	// MaxLexicalLimit caps name lookups and title searches.
	MaxLexicalLimit = 100
	// MaxLookalikeLimit caps vector searches.
	MaxLookalikeLimit = 1000

	// MaxSizeBias is the strongest preference for large companies.
	MaxSizeBias = 0.3
	// MaxLogHeadcount is the log10 headcount at which the size signal saturates.
	MaxLogHeadcount = 6.0
)

// DistanceOrder declares how a backend's distance column ranks candidates.
type DistanceOrder int

const (
	// LowerIsCloser is used by distance metrics such as cosine distance.
	LowerIsCloser DistanceOrder = iota
	// HigherIsCloser is used by relevance scores.
	HigherIsCloser
	// ServerRanked means rows already arrive in final rank order, for
	// example after a server-side size blend. The distance column is
	// informational and must not be used to reorder rows.
	ServerRanked
)

func (o DistanceOrder) String() string {
	switch o {
	case HigherIsCloser:
		return "higher_is_closer"
	case ServerRanked:
		return "server_ranked"
	}
	return "lower_is_closer"
}

// Closer reports whether distance a ranks before distance b. It is always
// false for ServerRanked.
func (o DistanceOrder) Closer(a, b float64) bool {
	switch o {
	case HigherIsCloser:
		return a > b
	case ServerRanked:
		return false
	}
	return a < b
}

// Filters are exact server-side predicates for lookalike searches. The zero
// value means no filtering and is sent explicitly as 0 and [].
type Filters struct {
	MinHeadcount int64    `json:"filter_hc"`
	CountryCodes []string `json:"filter_cc2"`
}

// Normalized returns a copy with lower-cased, deduplicated country codes, a
// non-nil country list and a non-negative headcount.
func (f Filters) Normalized() Filters {
	out := Filters{MinHeadcount: max(f.MinHeadcount, 0), CountryCodes: []string{}}
	for _, cc := range f.CountryCodes {
		cc = strings.ToLower(strings.TrimSpace(cc))
		if cc == "" || slices.Contains(out.CountryCodes, cc) {
			continue
		}
		out.CountryCodes = append(out.CountryCodes, cc)
	}
	return out
}

// EntityLookupProvider is a company search backend. Every call receives the
// caller's credentials; implementations must not keep them.
//
// sizeBias is already clamped to [0, MaxSizeBias] and limit to the relevant
// maximum when a resolver calls these methods.
type EntityLookupProvider interface {
	Lookup(ctx context.Context, creds common.Credentials, term string, limit int, sizeBias float64) (*Table, error)
	LookupByVector(ctx context.Context, creds common.Credentials, vector []float32, limit int, sizeBias float64, filters Filters) (*Table, error)
	LookupByIDs(ctx context.Context, creds common.Credentials, ids []int64, limit int, sizeBias float64, filters Filters) (*Table, error)
	Order() DistanceOrder
}

// TitleLookupProvider is a job title search backend queried by embedding.
type TitleLookupProvider interface {
	LookupTitles(ctx context.Context, creds common.Credentials, vector []float32, limit int) (*Table, error)
	Order() DistanceOrder
}

// ClampLimit maps limit into [1, maxLimit], replacing non-positive values
// with DefaultLimit.
func ClampLimit(limit, maxLimit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return min(limit, maxLimit)
}

// ClampSizeBias maps bias into [0, MaxSizeBias].
func ClampSizeBias(bias float64) float64 {
	if bias != bias || bias < 0 {
		return 0
	}
	return min(bias, MaxSizeBias)
}

// SortByDistance orders candidates closest first. The sort is stable so that
// ties keep the backend's order. ServerRanked candidates are left as they are.
func SortByDistance(cands []common.LookupCandidate, order DistanceOrder) {
	if order == ServerRanked {
		return
	}
	slices.SortStableFunc(cands, func(a, b common.LookupCandidate) int {
		switch {
		case order.Closer(a.Distance, b.Distance):
			return -1
		case order.Closer(b.Distance, a.Distance):
			return 1
		}
		return 0
	})
}
