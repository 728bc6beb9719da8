package query

import (
	"context"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"

	"github.com/stretchr/testify/mock"
)

var creds = common.Credentials{KeyID: "key", KeySecret: "secret"}

// mockCompletion records the resolved generate options with every call.
type mockCompletion struct {
	mock.Mock
}

func (m *mockCompletion) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	args := m.Called(ctx, prompt, ai.NewGenerateOptions(ai.GenerateOptions{}, opts...))
	return args.String(0), args.Error(1)
}

func isExtraction(prompt string) bool {
	return strings.HasPrefix(prompt, "Parse this query:")
}

func isValidation(term string) func(string) bool {
	return func(prompt string) bool {
		return strings.Contains(prompt, `Search term: "`+term+`"`)
	}
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbeddings(_ context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 1}
	}
	return out, nil
}

// fakeLookup serves lexical lookups from byName and vector lookups from
// lookalikes.
type fakeLookup struct {
	mu         sync.Mutex
	byName     map[string][]common.LookupCandidate
	failing    map[string]error
	lookalikes []common.LookupCandidate
	terms      []string
}

func (f *fakeLookup) Lookup(_ context.Context, c common.Credentials, term string, limit int, _ float64) (*lookup.Table, error) {
	f.mu.Lock()
	f.terms = append(f.terms, term)
	f.mu.Unlock()
	if c != creds {
		return nil, common.NewUpstreamError("Status 401", nil)
	}
	if err, ok := f.failing[term]; ok {
		return nil, err
	}
	tbl := lookup.CandidateTable(f.byName[term])
	tbl.Limit(limit)
	return tbl, nil
}

func (f *fakeLookup) LookupByVector(_ context.Context, _ common.Credentials, _ []float32, limit int, _ float64, _ lookup.Filters) (*lookup.Table, error) {
	tbl := lookup.CandidateTable(f.lookalikes)
	tbl.Limit(limit)
	return tbl, nil
}

func (f *fakeLookup) LookupByIDs(_ context.Context, _ common.Credentials, _ []int64, limit int, _ float64, _ lookup.Filters) (*lookup.Table, error) {
	tbl := lookup.CandidateTable(f.lookalikes)
	tbl.Limit(limit)
	return tbl, nil
}

func (f *fakeLookup) Order() lookup.DistanceOrder { return lookup.LowerIsCloser }

// fakeTitles matches on the first vector component, which fakeEmbedder sets
// to the term length.
type fakeTitles struct {
	byLength map[int]int64
}

func (f *fakeTitles) LookupTitles(_ context.Context, _ common.Credentials, vec []float32, _ int) (*lookup.Table, error) {
	tbl := &lookup.Table{Columns: []string{"title_id", "title_name", "dist"}}
	if id, ok := f.byLength[int(vec[0])]; ok {
		tbl.Rows = append(tbl.Rows, []any{id, "title", 0.1})
	}
	return tbl, nil
}

func (f *fakeTitles) Order() lookup.DistanceOrder { return lookup.LowerIsCloser }

func cand(id int64, name string, dist float64) common.LookupCandidate {
	return common.LookupCandidate{ID: id, Name: name, Distance: dist, Headcount: 100, Country: "us"}
}
