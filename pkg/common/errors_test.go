package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAsError(t *testing.T) {
	refused := errors.New("connection refused")

	tests := []struct {
		name       string
		input      error
		wantKind   ErrorKind
		wantIs     []error
		wantDetail string
	}{
		{
			name:     "wrapped deadline",
			input:    fmt.Errorf("lookup: %w", context.DeadlineExceeded),
			wantKind: KindTimeout,
			wantIs:   []error{ErrTimeout, context.DeadlineExceeded},
		},
		{
			name:       "plain error",
			input:      refused,
			wantKind:   KindUpstream,
			wantIs:     []error{ErrUpstream, refused},
			wantDetail: "connection refused",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AsError(tc.input)
			if got.Kind != tc.wantKind {
				t.Fatalf("AsError() kind = %q, want %q", got.Kind, tc.wantKind)
			}
			for _, target := range tc.wantIs {
				if !errors.Is(got, target) {
					t.Fatalf("errors.Is(AsError(), %v) = false", target)
				}
			}
			if tc.wantDetail != "" && got.Detail != tc.wantDetail {
				t.Fatalf("AsError() detail = %q, want %q", got.Detail, tc.wantDetail)
			}
		})
	}
}

func TestAsError_KeepsStructuredError(t *testing.T) {
	orig := NewUpstreamError("Status 503", nil)
	if got := AsError(fmt.Errorf("term apple: %w", orig)); got != orig {
		t.Fatalf("AsError() = %p, want the wrapped error %p", got, orig)
	}
	if got := AsError(nil); got != nil {
		t.Fatalf("AsError(nil) = %v, want nil", got)
	}
}

func TestNewExtractionError_CarriesRawOutput(t *testing.T) {
	err := NewExtractionError("not json", errors.New("invalid character"))
	if err.Kind != KindExtraction {
		t.Fatalf("kind = %q, want %q", err.Kind, KindExtraction)
	}
	if err.RawOutput != "not json" {
		t.Fatalf("raw output = %q", err.RawOutput)
	}
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("errors.Is(err, ErrExtraction) = false")
	}
	if !strings.Contains(err.Error(), "invalid character") {
		t.Fatalf("Error() = %q, want the cause in it", err.Error())
	}
}
