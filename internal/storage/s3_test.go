package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

func fakeS3(t *testing.T, listing string) (*s3.Client, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()

		if r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(listing))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("access", "secret", ""),
	})
	return client, &reqs
}

const listing = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>exports</Name>
  <Prefix>reports/abc/</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>reports/abc/20260102_101500.csv</Key></Contents>
  <Contents><Key>reports/abc/20260101_090000.csv</Key></Contents>
</ListBucketResult>`

func TestStorePut(t *testing.T) {
	client, reqs := fakeS3(t, listing)
	store, err := NewStore(client, "exports", "")
	require.NoError(t, err)

	err = store.Put(context.Background(), "reports/abc/20260101_090000.json", bytes.NewReader([]byte(`{"rows":[]}`)))
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/exports/reports/abc/20260101_090000.json", got.path)
	assert.Equal(t, "application/json", got.contentType)
	assert.Contains(t, got.body, `{"rows":[]}`)
}

func TestStoreListSorted(t *testing.T) {
	client, _ := fakeS3(t, listing)
	store, err := NewStore(client, "exports", "")
	require.NoError(t, err)

	keys, err := store.List(context.Background(), "reports/abc/")
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/abc/20260101_090000.csv", "reports/abc/20260102_101500.csv"}, keys)
}

func TestStoreDownloadLink(t *testing.T) {
	client, reqs := fakeS3(t, listing)

	store, err := NewStore(client, "exports", "https://files.example.com/s3/")
	require.NoError(t, err)

	link, err := store.DownloadLink(context.Background(), "reports/abc/x.csv", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, *reqs)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "files.example.com", u.Host)
	assert.Equal(t, "/s3/exports/reports/abc/x.csv", u.Path)
	assert.Equal(t, "604800", u.Query().Get("X-Amz-Expires"))
	assert.True(t, strings.HasPrefix(u.Query().Get("X-Amz-Credential"), "access/"))
}

func TestNewStoreRejectsBadPublicEndpoint(t *testing.T) {
	client, _ := fakeS3(t, listing)
	_, err := NewStore(client, "exports", "files.example.com")
	assert.Error(t, err)
}
