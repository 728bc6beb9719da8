package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	tbl   *lookup.Table
	err   error
	creds common.Credentials
	vars  map[string]any
}

func (r *fakeRunner) RunReport(_ context.Context, creds common.Credentials, _ string, vars map[string]any) (*lookup.Table, error) {
	r.creds = creds
	r.vars = vars
	return r.tbl, r.err
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, key string, body io.ReadSeeker) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) DownloadLink(_ context.Context, key string, expires time.Duration) (string, error) {
	return "https://files.example.com/" + key + "?expires=" + expires.String(), nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func sampleTable() *lookup.Table {
	return &lookup.Table{
		Columns: []string{"comp_id", "comp_name", "dist"},
		Rows: [][]any{
			{json.Number("42"), "Acme, Inc.", json.Number("0.125")},
			{json.Number("43"), "Globex", nil},
		},
	}
}

func TestEncodeCSV(t *testing.T) {
	data, err := Encode(sampleTable(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "comp_id,comp_name,dist\n42,\"Acme, Inc.\",0.125\n43,Globex,\n", string(data))
}

func TestEncodeJSON(t *testing.T) {
	data, err := Encode(sampleTable(), FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["comp_id","comp_name","dist"],"rows":[[42,"Acme, Inc.",0.125],[43,"Globex",null]]}`, string(data))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	ts := time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "reports/key/abc/20260309_140507.csv", Key("key", "abc", ts, FormatCSV))
	assert.Equal(t, "reports/_/abc/20260309_140507.json", Key("", "abc", ts, FormatJSON))
	assert.Equal(t, "reports/a%2Fb/x%2F..%2Fy/20260309_140507.csv", Key("a/b", "x/../y", ts, FormatCSV))
}

func TestGenerate(t *testing.T) {
	runner := &fakeRunner{tbl: sampleTable()}
	store := newMemStore()
	g := NewGenerator(runner, store)
	g.now = func() time.Time { return time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC) }

	res, err := g.Generate(context.Background(), Job{
		ReportID:  "abc",
		Format:    "csv",
		Vars:      map[string]any{"company_ids": []int64{1, 2}},
		KeyID:     "key",
		KeySecret: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", res.ReportID)
	assert.Equal(t, 2, res.RowsCount)
	assert.Equal(t, FormatCSV, res.FileFormat)
	assert.Equal(t, 7, res.ExpiresInDays)
	assert.Contains(t, res.URL, "reports/key/abc/20260309_140507.csv")
	assert.Contains(t, res.URL, "168h0m0s")
	assert.Equal(t, common.Credentials{KeyID: "key", KeySecret: "secret"}, runner.creds)

	stored, ok := store.objects["reports/key/abc/20260309_140507.csv"]
	require.True(t, ok)
	assert.True(t, bytes.HasPrefix(stored, []byte("comp_id,comp_name,dist\n")))
}

func TestGenerateQueryFailure(t *testing.T) {
	store := newMemStore()
	g := NewGenerator(&fakeRunner{err: common.NewUpstreamError("Status 500", nil)}, store)

	_, err := g.Generate(context.Background(), Job{ReportID: "abc", Format: "json"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUpstream))
	assert.Empty(t, store.objects)
}

func TestStatus(t *testing.T) {
	store := newMemStore()
	g := NewGenerator(&fakeRunner{tbl: sampleTable()}, store)

	st, err := g.Status(context.Background(), "key", "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)
	assert.Empty(t, st.URL)

	store.objects["reports/key/abc/20260101_000000.json"] = []byte("{}")
	store.objects["reports/key/abc/20260309_140507.csv"] = []byte("")
	store.objects["reports/key/abcd/20270101_000000.json"] = []byte("{}")

	st, err = g.Status(context.Background(), "key", "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, FormatCSV, st.FileFormat)
	assert.Contains(t, st.URL, "reports/key/abc/20260309_140507.csv")
}

func TestStatusIsScopedToOwner(t *testing.T) {
	store := newMemStore()
	g := NewGenerator(&fakeRunner{tbl: sampleTable()}, store)
	g.now = func() time.Time { return time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC) }

	_, err := g.Generate(context.Background(), Job{ReportID: "abc", Format: "csv", KeyID: "alice", KeySecret: "s"})
	require.NoError(t, err)

	st, err := g.Status(context.Background(), "alice", "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st.Status)

	st, err = g.Status(context.Background(), "mallory", "abc")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)
	assert.Empty(t, st.URL)
}
