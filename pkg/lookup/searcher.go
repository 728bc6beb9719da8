package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
)

// DefaultEmbedTimeout bounds a single embedding call. Cold starts of the
// embedding service can take well over a minute.
const DefaultEmbedTimeout = 120 * time.Second

// Searcher runs one search per term. BatchResolver fans out over a Searcher
// so the same merge logic serves companies and titles.
type Searcher interface {
	Search(ctx context.Context, creds common.Credentials, term string, limit int, sizeBias float64) (*Table, error)
	Order() DistanceOrder
	MaxLimit() int
}

// LexicalSearcher searches companies by name.
type LexicalSearcher struct {
	Provider EntityLookupProvider
}

func (s LexicalSearcher) Search(ctx context.Context, creds common.Credentials, term string, limit int, sizeBias float64) (*Table, error) {
	return s.Provider.Lookup(ctx, creds, term, limit, sizeBias)
}

func (s LexicalSearcher) Order() DistanceOrder { return s.Provider.Order() }

func (s LexicalSearcher) MaxLimit() int { return MaxLexicalLimit }

// TitleSearcher embeds each term and searches the title index. sizeBias is
// ignored.
type TitleSearcher struct {
	Provider     TitleLookupProvider
	Embedder     ai.EmbeddingProvider
	EmbedTimeout time.Duration
}

func (s TitleSearcher) Search(ctx context.Context, creds common.Credentials, term string, limit int, _ float64) (*Table, error) {
	vec, err := EmbedTerm(ctx, s.Embedder, term, s.EmbedTimeout)
	if err != nil {
		return nil, err
	}
	return s.Provider.LookupTitles(ctx, creds, vec, limit)
}

func (s TitleSearcher) Order() DistanceOrder { return s.Provider.Order() }

func (s TitleSearcher) MaxLimit() int { return MaxLexicalLimit }

type embedResult struct {
	vec []float32
	err error
}

// EmbedTerm embeds a single term within timeout (DefaultEmbedTimeout when
// zero). The wait is bounded even if the provider ignores its context.
// Failures are returned as *common.Error of kind timeout or upstream.
func EmbedTerm(ctx context.Context, embedder ai.EmbeddingProvider, term string, timeout time.Duration) ([]float32, error) {
	if embedder == nil {
		return nil, common.NewUpstreamError("Embedding failed", errors.New("no embedding provider configured"))
	}
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}
	eCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan embedResult, 1)
	go func() {
		vecs, err := embedder.GenerateEmbeddings(eCtx, [][]byte{[]byte(term)})
		if err == nil && len(vecs) != 1 {
			err = fmt.Errorf("expected 1 embedding, got %d", len(vecs))
		}
		if err != nil {
			done <- embedResult{err: err}
			return
		}
		done <- embedResult{vec: vecs[0]}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, common.NewTimeoutError("Embedding timeout", res.err)
			}
			return nil, common.NewUpstreamError("Embedding failed", res.err)
		}
		return res.vec, nil
	case <-eCtx.Done():
		if errors.Is(eCtx.Err(), context.DeadlineExceeded) {
			return nil, common.NewTimeoutError("Embedding timeout",
				fmt.Errorf("embedding generation timed out after %s: %w", timeout, eCtx.Err()))
		}
		return nil, common.NewUpstreamError("Embedding failed", eCtx.Err())
	}
}
