package clickhouse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
	"github.com/OFFIS-RIT/prospect/pkg/resolve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = common.Credentials{KeyID: "key", KeySecret: "secret"}

type captured struct {
	path    string
	format  string
	version string
	user    string
	pass    string
	vars    map[string]any
}

func newServer(t *testing.T, status int, body string) (*Client, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.format = r.URL.Query().Get("format")
		c.version = r.Header.Get("x-clickhouse-endpoint-version")
		c.user, c.pass, _ = r.BasicAuth()
		var req struct {
			QueryVariables map[string]any `json:"queryVariables"`
		}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &req))
		c.vars = req.QueryVariables
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Endpoints{
		Lookup:        "lookup-ep",
		LookalikeIDs:  "ids-ep",
		LookalikeTerm: "term-ep",
		Titles:        "titles-ep",
		Report:        "report-ep",
	}, WithBaseURL(srv.URL))
	return client, c
}

const lookupBody = `{
	"meta": [{"name": "comp_id", "type": "UInt64"}, {"name": "comp_slug", "type": "String"}, {"name": "comp_name", "type": "String"}, {"name": "comp_web", "type": "String"}, {"name": "dist", "type": "Float64"}],
	"data": [["42", "apple", "Apple", "apple.com", 0.1], ["43", "apple-bank", "Apple Bank", "applebank.com", 0.3]],
	"rows": 2
}`

func TestLookup(t *testing.T) {
	client, c := newServer(t, http.StatusOK, lookupBody)

	tbl, err := client.Lookup(context.Background(), testCreds, "apple", 5000, 0.1)
	require.NoError(t, err)

	assert.Equal(t, "/run/lookup-ep", c.path)
	assert.Equal(t, "JSONCompact", c.format)
	assert.Equal(t, "2", c.version)
	assert.Equal(t, "key", c.user)
	assert.Equal(t, "secret", c.pass)
	assert.Equal(t, "apple", c.vars["query"])
	assert.Equal(t, 6.0, c.vars["max_log_hc"])
	assert.Equal(t, 0.1, c.vars["size_weight"])
	assert.Equal(t, float64(100), c.vars["limit"])

	assert.Equal(t, []string{"comp_id", "comp_slug", "comp_name", "comp_web", "dist"}, tbl.Columns)
	cands, err := tbl.Candidates()
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, int64(42), cands[0].ID)
	assert.Equal(t, "Apple", cands[0].Name)
}

// sizeRankedBody is ordered by the size-weighted score; dist is the raw
// distance, so it is not monotonic.
const sizeRankedBody = `{
	"meta": [{"name": "comp_id"}, {"name": "comp_name"}, {"name": "dist"}],
	"data": [[1, "Big Corp", 0.30], [2, "Tiny Shop", 0.10], [3, "Mid GmbH", 0.20]],
	"rows": 3
}`

func TestServerRankingSurvivesResolvers(t *testing.T) {
	client, _ := newServer(t, http.StatusOK, sizeRankedBody)
	assert.Equal(t, lookup.ServerRanked, client.Order())

	batch := resolve.NewBatchResolver(lookup.LexicalSearcher{Provider: client}).
		ResolveMany(context.Background(), testCreds, []string{"corp"}, 10, 0.2)
	require.Len(t, batch.Entries, 1)
	require.Nil(t, batch.Entries[0].Err)
	assert.Equal(t, []int64{1, 2, 3}, batch.IDs())

	res := resolve.NewLookalikeResolver(client, nil).
		FromIDs(context.Background(), testCreds, []int64{99}, lookup.Filters{}, 0.2, 10)
	require.Nil(t, res.Err)
	assert.Equal(t, []int64{1, 2, 3}, res.IDs())
}

func TestLookupEmptyTermSkipsRequest(t *testing.T) {
	client, c := newServer(t, http.StatusOK, lookupBody)
	tbl, err := client.Lookup(context.Background(), testCreds, "  ", 10, 0.1)
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.Empty(t, c.path)
}

func TestLookupNon200(t *testing.T) {
	client, _ := newServer(t, http.StatusUnauthorized, "bad key")
	_, err := client.Lookup(context.Background(), testCreds, "apple", 10, 0.1)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)

	e := common.AsError(err)
	assert.Equal(t, "Status 401", e.Message)
	assert.Equal(t, "bad key", e.Detail)
}

func TestLookupMissingCredentials(t *testing.T) {
	client, c := newServer(t, http.StatusOK, lookupBody)
	_, err := client.Lookup(context.Background(), common.Credentials{}, "apple", 10, 0.1)
	assert.ErrorIs(t, err, common.ErrUpstream)
	assert.Empty(t, c.path)
}

func TestLookupByIDsSendsFilterDefaults(t *testing.T) {
	client, c := newServer(t, http.StatusOK, lookupBody)

	_, err := client.LookupByIDs(context.Background(), testCreds, []int64{1, 2}, 5000, 0.2, lookup.Filters{})
	require.NoError(t, err)

	assert.Equal(t, "/run/ids-ep", c.path)
	assert.Equal(t, []any{float64(1), float64(2)}, c.vars["company_ids"])
	assert.Equal(t, float64(0), c.vars["filter_hc"])
	assert.Equal(t, []any{}, c.vars["filter_cc2"])
	assert.Equal(t, float64(1000), c.vars["limit"])
	assert.Equal(t, 0.2, c.vars["size_weight"])
}

func TestLookupByIDsEmpty(t *testing.T) {
	client, c := newServer(t, http.StatusOK, lookupBody)
	tbl, err := client.LookupByIDs(context.Background(), testCreds, nil, 10, 0.2, lookup.Filters{})
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.Empty(t, c.path)
}

func TestLookupByVector(t *testing.T) {
	client, c := newServer(t, http.StatusOK, lookupBody)
	_, err := client.LookupByVector(context.Background(), testCreds, []float32{0.5, 0.25}, 20, 0.9,
		lookup.Filters{MinHeadcount: 50, CountryCodes: []string{"ES"}})
	require.NoError(t, err)

	assert.Equal(t, "/run/term-ep", c.path)
	assert.Equal(t, []any{0.5, 0.25}, c.vars["query"])
	assert.Equal(t, 0.3, c.vars["size_weight"])
	assert.Equal(t, float64(50), c.vars["filter_hc"])
	assert.Equal(t, []any{"es"}, c.vars["filter_cc2"])
}

func TestLookupTitles(t *testing.T) {
	client, c := newServer(t, http.StatusOK, `{"meta":[{"name":"title_id"},{"name":"title_name"},{"name":"dist"}],"data":[[7,"Founder",0.02]]}`)
	tbl, err := client.LookupTitles(context.Background(), testCreds, []float32{1}, 500)
	require.NoError(t, err)
	assert.Equal(t, "/run/titles-ep", c.path)
	assert.Equal(t, float64(100), c.vars["limit"])
	require.Len(t, tbl.Rows, 1)
}

func TestRunReportDefaultsFilter(t *testing.T) {
	client, c := newServer(t, http.StatusOK, "{\"comp_id\":1,\"comp_name\":\"A\"}\n{\"comp_id\":2,\"comp_name\":\"B\"}\n")
	tbl, err := client.RunReport(context.Background(), testCreds, "", map[string]any{"filter_cc2": []string{"de"}})
	require.NoError(t, err)
	assert.Equal(t, "/run/report-ep", c.path)
	assert.Equal(t, float64(0), c.vars["filter_hc"])
	assert.Equal(t, []string{"comp_id", "comp_name"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 2)
}

func TestTimeoutIsStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(Endpoints{Lookup: "x"}, WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Lookup(ctx, testCreds, "apple", 10, 0.1)
	assert.ErrorIs(t, err, common.ErrTimeout)
}

func TestParseResultEachRowKeepsKeyOrder(t *testing.T) {
	tbl, err := ParseResult([]byte("{\"z\":1,\"a\":\"x\"}\n\n{\"z\":2,\"a\":\"y\"}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, tbl.Columns)
	assert.Equal(t, []any{json.Number("2"), "y"}, tbl.Rows[1])
}

func TestParseResultEmpty(t *testing.T) {
	tbl, err := ParseResult(nil)
	require.NoError(t, err)
	assert.Empty(t, tbl.Columns)
	assert.Empty(t, tbl.Rows)
}
