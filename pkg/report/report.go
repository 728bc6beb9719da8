// Package report runs report queries, stores the rendered file and hands out
// time limited download links.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
)

// LinkExpiry is how long a download link stays valid.
const LinkExpiry = 7 * 24 * time.Hour

const (
	StatusReady   = "ready"
	StatusPending = "pending"

	keyPrefix  = "reports"
	timeLayout = "20060102_150405"
	noOwner    = "_"
)

// Runner executes a report query. An empty endpoint selects the default
// report endpoint.
type Runner interface {
	RunReport(ctx context.Context, creds common.Credentials, endpoint string, vars map[string]any) (*lookup.Table, error)
}

// ObjectStore keeps rendered report files.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.ReadSeeker) error
	DownloadLink(ctx context.Context, key string, expires time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Job is a queued report request. It travels through the message broker, so
// the backend secret is carried explicitly.
type Job struct {
	ReportID  string         `json:"report_id"`
	Format    string         `json:"file_format"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Vars      map[string]any `json:"query_variables"`
	KeyID     string         `json:"key_id"`
	KeySecret string         `json:"key_secret"`
}

func (j Job) Credentials() common.Credentials {
	return common.Credentials{KeyID: j.KeyID, KeySecret: j.KeySecret}
}

// Result describes a generated report.
type Result struct {
	ReportID      string `json:"report_id"`
	URL           string `json:"url"`
	RowsCount     int    `json:"rows_count"`
	FileFormat    string `json:"file_format"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// Status is the state of a report as seen from its stored files.
type Status struct {
	ReportID      string `json:"report_id"`
	Status        string `json:"status"`
	URL           string `json:"url,omitempty"`
	FileFormat    string `json:"file_format,omitempty"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
}

type Generator struct {
	runner Runner
	store  ObjectStore
	now    func() time.Time
}

func NewGenerator(runner Runner, store ObjectStore) *Generator {
	return &Generator{runner: runner, store: store, now: time.Now}
}

// Owner returns the key segment of the backend key that requested a report.
// Reports are stored and looked up under their owner, so one key never sees
// another key's reports.
func Owner(keyID string) string {
	if keyID == "" {
		return noOwner
	}
	return url.PathEscape(keyID)
}

func reportPrefix(keyID, reportID string) string {
	return fmt.Sprintf("%s/%s/%s/", keyPrefix, Owner(keyID), url.PathEscape(reportID))
}

// Key returns the object key of a report owned by keyID rendered at t.
func Key(keyID, reportID string, t time.Time, format string) string {
	return reportPrefix(keyID, reportID) + t.UTC().Format(timeLayout) + "." + format
}

// Generate runs the job's query, uploads the rendered file and returns a
// link to it.
func (g *Generator) Generate(ctx context.Context, job Job) (res *Result, err error) {
	format, err := ParseFormat(job.Format)
	if err != nil {
		return nil, err
	}
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.Default.ReportJobsTotal.WithLabelValues(format, status).Inc()
	}()

	tbl, err := g.runner.RunReport(ctx, job.Credentials(), job.Endpoint, job.Vars)
	if err != nil {
		return nil, fmt.Errorf("failed to run report query: %w", err)
	}

	data, err := Encode(tbl, format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	key := Key(job.KeyID, job.ReportID, g.now(), format)
	if err := g.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	link, err := g.store.DownloadLink(ctx, key, LinkExpiry)
	if err != nil {
		return nil, err
	}

	logger.Info("[Report] Report generated", "report_id", job.ReportID, "rows", len(tbl.Rows), "key", key)
	return &Result{
		ReportID:      job.ReportID,
		URL:           link,
		RowsCount:     len(tbl.Rows),
		FileFormat:    format,
		ExpiresInDays: int(LinkExpiry / (24 * time.Hour)),
	}, nil
}

// Status returns a fresh link to the latest file of a report owned by
// keyID, or StatusPending while none has been written. Reports of other keys
// are indistinguishable from pending ones.
func (g *Generator) Status(ctx context.Context, keyID, reportID string) (*Status, error) {
	keys, err := g.store.List(ctx, reportPrefix(keyID, reportID))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return &Status{ReportID: reportID, Status: StatusPending}, nil
	}

	// keys end in a sortable timestamp
	latest := slices.Max(keys)
	link, err := g.store.DownloadLink(ctx, latest, LinkExpiry)
	if err != nil {
		return nil, err
	}
	return &Status{
		ReportID:      reportID,
		Status:        StatusReady,
		URL:           link,
		FileFormat:    strings.TrimPrefix(path.Ext(latest), "."),
		ExpiresInDays: int(LinkExpiry / (24 * time.Hour)),
	}, nil
}
