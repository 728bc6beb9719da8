package query

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/prospect/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const intentReply = `{
	"industry_summary": "Online payment processing for merchants.",
	"competitor_names": ["Apple Pay", "Stripe"],
	"suggested_companies": ["Adyen"],
	"explicit_employer_names_past": ["Google"],
	"lead_type": ["company", "employee"],
	"headcount_range": [50, -1],
	"employee_title_terms": ["Chief Technology Officer", "VP Engineering", "Head of Engineering"]
}`

type recordingTracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *recordingTracer) Record(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newTestPipeline(m *mockCompletion, opts ...Option) (*Pipeline, *fakeLookup) {
	lk := &fakeLookup{
		byName: map[string][]common.LookupCandidate{
			"Apple Pay": {cand(10, "Apple", 0.1), cand(11, "Apple Pay", 0.2)},
			"Stripe":    {cand(20, "Stripe", 0.05)},
			"Google":    {cand(30, "Google", 0.1), cand(31, "Google Cloud", 0.3)},
		},
		failing: map[string]error{
			"Adyen": common.NewUpstreamError("Status 500", nil),
		},
		lookalikes: []common.LookupCandidate{cand(90, "PayCo", 0.1), cand(91, "CardCo", 0.2)},
	}
	titles := &fakeTitles{byLength: map[int]int64{
		len("Chief Technology Officer"): 501,
		len("VP Engineering"):           502,
		len("Head of Engineering"):      501,
	}}
	p := NewPipeline(Config{
		Completion: m,
		Embedder:   fakeEmbedder{},
		Lookup:     lk,
		Titles:     titles,
	}, opts...)
	return p, lk
}

func TestParseQueryResolvesAllGroups(t *testing.T) {
	m := &mockCompletion{}
	m.On("GenerateCompletion", mock.Anything, mock.MatchedBy(isExtraction), mock.Anything).Return(intentReply, nil).Once()
	m.On("GenerateCompletion", mock.Anything, mock.MatchedBy(isValidation("Apple Pay")), mock.Anything).
		Return(`{"comp_id": "11", "confidence": "high"}`, nil).Once()
	m.On("GenerateCompletion", mock.Anything, mock.MatchedBy(isValidation("Google")), mock.Anything).
		Return("", errors.New("connection reset")).Once()

	tracer := &recordingTracer{}
	p, _ := newTestPipeline(m, WithTracer(tracer))

	res := p.ParseQuery(context.Background(), creds, "payment companies like Apple Pay and Stripe, ex-Google CTOs")
	require.Nil(t, res.Error)
	require.NotNil(t, res.ParsedIntent)

	assert.Equal(t, []int64{11, 20}, res.CompetitorParsedIDs)
	assert.Equal(t, []int64{}, res.CompetitorSuggestedIDs)
	assert.Equal(t, []int64{}, res.EmployerIDsCurrent)
	assert.Equal(t, []int64{30}, res.EmployerIDsPast)
	assert.Equal(t, []int64{}, res.EmployerIDsAny)
	assert.Equal(t, []int64{90, 91}, res.IndustryLookalikeIDs)
	assert.Equal(t, []int64{501, 502}, res.EmployeeTitleIDs)

	require.Len(t, res.Resolutions, 3)
	assert.Equal(t, GroupCompetitors, res.Resolutions[0].Group)
	assert.Equal(t, "Apple Pay", res.Resolutions[0].Term)
	assert.Equal(t, common.ConfidenceHigh, res.Resolutions[0].Confidence)
	assert.Equal(t, common.ConfidenceSingle, res.Resolutions[1].Confidence)
	assert.Equal(t, GroupEmployerPast, res.Resolutions[2].Group)
	assert.True(t, res.Resolutions[2].Fallback)

	require.Len(t, res.Issues, 2)
	assert.Equal(t, common.Issue{Group: GroupSuggested, Term: "Adyen", Kind: common.KindUpstream, Message: "Status 500"}, res.Issues[0])
	assert.Equal(t, GroupEmployerPast, res.Issues[1].Group)
	assert.Equal(t, common.KindValidationFallback, res.Issues[1].Kind)

	assert.Len(t, tracer.events, 5)
	m.AssertExpectations(t)
}

func TestParseQueryExtractionFailure(t *testing.T) {
	m := &mockCompletion{}
	m.On("GenerateCompletion", mock.Anything, mock.MatchedBy(isExtraction), mock.Anything).Return("not json at all", nil)
	p, lk := newTestPipeline(m)

	res := p.ParseQuery(context.Background(), creds, "anything")
	require.NotNil(t, res.Error)
	assert.Equal(t, common.KindExtraction, res.Error.Kind)
	assert.Nil(t, res.ParsedIntent)
	assert.Empty(t, lk.terms)
	m.AssertNumberOfCalls(t, "GenerateCompletion", 1)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Len(t, body, 1)
	assert.Contains(t, body, "error")
}

func TestParseQuerySkipsTitlesForCompanyLeads(t *testing.T) {
	m := &mockCompletion{}
	m.On("GenerateCompletion", mock.Anything, mock.MatchedBy(isExtraction), mock.Anything).
		Return(`{"industry_summary": "Payments.", "employee_title_terms": ["VP Engineering"]}`, nil)
	p, _ := newTestPipeline(m)

	res := p.ParseQuery(context.Background(), creds, "payment companies")
	require.Nil(t, res.Error)
	assert.Equal(t, []string{common.LeadTypeCompany}, res.LeadType)
	assert.Equal(t, []int64{}, res.EmployeeTitleIDs)
	assert.Equal(t, []int64{90, 91}, res.IndustryLookalikeIDs)
	assert.Empty(t, res.Issues)
}

func TestResolveCompanies(t *testing.T) {
	p, _ := newTestPipeline(&mockCompletion{})

	batch := p.ResolveCompanies(context.Background(), creds, []string{"Stripe", "Adyen", "Unknown"}, 5, 0.1)
	require.Len(t, batch.Entries, 3)
	assert.Equal(t, "Stripe", batch.Entries[0].Term)
	assert.Equal(t, int64(20), batch.Entries[0].Candidates[0].ID)
	require.NotNil(t, batch.Entries[1].Err)
	assert.Equal(t, common.KindUpstream, batch.Entries[1].Err.Kind)
	assert.Nil(t, batch.Entries[2].Err)
	assert.Empty(t, batch.Entries[2].Candidates)
}

func TestResolveCompaniesPassesCredentials(t *testing.T) {
	p, _ := newTestPipeline(&mockCompletion{})

	batch := p.ResolveCompanies(context.Background(), common.Credentials{KeyID: "other"}, []string{"Stripe"}, 5, 0.1)
	require.NotNil(t, batch.Entries[0].Err)
	assert.Equal(t, "Status 401", batch.Entries[0].Err.Message)
}

func TestResolveTitles(t *testing.T) {
	p, _ := newTestPipeline(&mockCompletion{})

	batch := p.ResolveTitles(context.Background(), creds, []string{"Chief Technology Officer", "Head of Engineering"}, 5)
	require.Len(t, batch.Entries, 2)
	assert.Equal(t, int64(501), batch.Entries[0].Candidates[0].ID)
	assert.Equal(t, int64(501), batch.Entries[1].Candidates[0].ID)

	bare := NewPipeline(Config{Lookup: &fakeLookup{}})
	batch = bare.ResolveTitles(context.Background(), creds, []string{"CTO"}, 5)
	require.Len(t, batch.Entries, 1)
	assert.NotNil(t, batch.Entries[0].Err)
}
