package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"

	"github.com/stretchr/testify/mock"
)

type fakeResponse struct {
	tbl   *lookup.Table
	err   error
	delay time.Duration
}

// fakeSearcher answers from a fixed table per term.
type fakeSearcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	order     lookup.DistanceOrder
	maxLimit  int
	calls     []string
	limits    []int
}

func (s *fakeSearcher) Search(ctx context.Context, _ common.Credentials, term string, limit int, _ float64) (*lookup.Table, error) {
	s.mu.Lock()
	s.calls = append(s.calls, term)
	s.limits = append(s.limits, limit)
	res, ok := s.responses[term]
	s.mu.Unlock()

	if res.delay > 0 {
		select {
		case <-time.After(res.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return lookup.EmptyTable(), nil
	}
	return res.tbl, res.err
}

func (s *fakeSearcher) Order() lookup.DistanceOrder { return s.order }

func (s *fakeSearcher) MaxLimit() int {
	if s.maxLimit == 0 {
		return lookup.MaxLexicalLimit
	}
	return s.maxLimit
}

func (s *fakeSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// companies builds a company table; each entry is {id, dist}.
func companies(rows ...[2]float64) *lookup.Table {
	tbl := &lookup.Table{Columns: []string{"comp_id", "comp_name", "dist"}}
	for _, r := range rows {
		tbl.Rows = append(tbl.Rows, []any{r[0], "company", r[1]})
	}
	return tbl
}

type mockCompletion struct {
	mock.Mock
}

func (m *mockCompletion) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type fakeEmbedder struct {
	delay time.Duration
	err   error
}

func (e *fakeEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// fakeProvider is an in-memory company index. Vector searches return pool
// re-ranked by size the way local backends do.
type fakeProvider struct {
	mu      sync.Mutex
	pool    []common.LookupCandidate
	order   lookup.DistanceOrder
	err     error
	calls   int
	limit   int
	bias    float64
	filters lookup.Filters
	ids     []int64
}

func (p *fakeProvider) ranked(limit int, bias float64) *lookup.Table {
	cands := append([]common.LookupCandidate(nil), p.pool...)
	lookup.RankBySize(cands, p.order, bias)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return lookup.CandidateTable(cands)
}

func (p *fakeProvider) record(limit int, bias float64, filters lookup.Filters) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.limit = limit
	p.bias = bias
	p.filters = filters
	return p.err
}

func (p *fakeProvider) Lookup(_ context.Context, _ common.Credentials, _ string, limit int, bias float64) (*lookup.Table, error) {
	if err := p.record(limit, bias, lookup.Filters{}); err != nil {
		return nil, err
	}
	return p.ranked(limit, bias), nil
}

func (p *fakeProvider) LookupByVector(_ context.Context, _ common.Credentials, _ []float32, limit int, bias float64, f lookup.Filters) (*lookup.Table, error) {
	if err := p.record(limit, bias, f); err != nil {
		return nil, err
	}
	return p.ranked(limit, bias), nil
}

func (p *fakeProvider) LookupByIDs(_ context.Context, _ common.Credentials, ids []int64, limit int, bias float64, f lookup.Filters) (*lookup.Table, error) {
	p.ids = ids
	if err := p.record(limit, bias, f); err != nil {
		return nil, err
	}
	return p.ranked(limit, bias), nil
}

func (p *fakeProvider) Order() lookup.DistanceOrder { return p.order }
