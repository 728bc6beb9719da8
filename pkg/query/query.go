// Package query resolves a free-text prospecting query into a structured
// filter object whose company and title references are grounded to IDs.
package query

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/lookup"
	"github.com/OFFIS-RIT/prospect/pkg/resolve"

	"golang.org/x/sync/errgroup"
)

// Lexical lookup defaults used for every name group.
const (
	DefaultCandidateLimit = lookup.DefaultLimit
	DefaultNameSizeBias   = 0.1
	titleCandidateLimit   = 1
)

// Config wires the capabilities a Pipeline depends on. Titles may be nil, in
// which case title terms are left unresolved.
type Config struct {
	Completion ai.CompletionProvider
	Embedder   ai.EmbeddingProvider
	Lookup     lookup.EntityLookupProvider
	Titles     lookup.TitleLookupProvider

	ExtractModel  string
	ValidateModel string
	EmbedTimeout  time.Duration
}

// Pipeline is the caller-facing query resolution service. It holds no
// request state and is safe for concurrent use.
type Pipeline struct {
	extractor     *Extractor
	companies     *resolve.BatchResolver
	titles        *resolve.BatchResolver
	disambiguator *resolve.Disambiguator
	lookalikes    *resolve.LookalikeResolver
	tracer        Tracer
}

type Option func(*Pipeline)

// WithTracer adds a tracer that receives the events of every request.
func WithTracer(t Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:     NewExtractor(cfg.Completion, cfg.ExtractModel),
		companies:     resolve.NewBatchResolver(lookup.LexicalSearcher{Provider: cfg.Lookup}),
		disambiguator: resolve.NewDisambiguator(cfg.Completion, cfg.ValidateModel),
		lookalikes:    resolve.NewLookalikeResolver(cfg.Lookup, cfg.Embedder, resolve.WithEmbedTimeout(cfg.EmbedTimeout)),
	}
	if cfg.Titles != nil {
		p.titles = resolve.NewBatchResolver(lookup.TitleSearcher{
			Provider:     cfg.Titles,
			Embedder:     cfg.Embedder,
			EmbedTimeout: cfg.EmbedTimeout,
		}, resolve.WithoutDedupe())
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lookalikes exposes the lookalike resolver for direct lookalike requests.
func (p *Pipeline) Lookalikes() *resolve.LookalikeResolver {
	return p.lookalikes
}

// ResolveCompanies resolves company names lexically. See
// resolve.BatchResolver.ResolveMany.
func (p *Pipeline) ResolveCompanies(
	ctx context.Context,
	creds common.Credentials,
	terms []string,
	limit int,
	sizeBias float64,
) *common.ResolvedBatch {
	return p.companies.ResolveMany(ctx, creds, terms, limit, sizeBias)
}

// ResolveTitles resolves job titles semantically. Entries are not deduplicated
// across terms. Without a title backend every entry carries an error.
func (p *Pipeline) ResolveTitles(
	ctx context.Context,
	creds common.Credentials,
	terms []string,
	limit int,
) *common.ResolvedBatch {
	if p.titles == nil {
		batch := &common.ResolvedBatch{Entries: make([]common.BatchEntry, 0, len(terms))}
		for _, t := range terms {
			batch.Entries = append(batch.Entries, common.BatchEntry{
				Term:       t,
				Candidates: []common.LookupCandidate{},
				Err:        common.NewUpstreamError("No title backend configured", nil),
			})
		}
		return batch
	}
	return p.titles.ResolveMany(ctx, creds, terms, limit, 0)
}

// ParseQuery extracts the intent of text and grounds every name group to
// IDs. Only an extraction failure fails the request; per-term problems are
// listed in Issues.
func (p *Pipeline) ParseQuery(ctx context.Context, creds common.Credentials, text string) *common.FinalResult {
	intent, err := p.extractor.Extract(ctx, text)
	if err != nil {
		return &common.FinalResult{Error: common.AsError(err)}
	}

	trace := NewQueryTrace()
	var tracer Tracer = trace
	if p.tracer != nil {
		tracer = MultiTracer{trace, p.tracer}
	}

	res := &common.FinalResult{ParsedIntent: intent}
	qc := resolve.QueryContext{Query: text, Industry: intent.IndustrySummary}

	groups := []struct {
		name  string
		terms []string
		out   *[]int64
	}{
		{GroupCompetitors, intent.CompetitorNames, &res.CompetitorParsedIDs},
		{GroupSuggested, intent.Suggested, &res.CompetitorSuggestedIDs},
		{GroupEmployerCurrent, intent.EmployerNamesCurrent, &res.EmployerIDsCurrent},
		{GroupEmployerPast, intent.EmployerNamesPast, &res.EmployerIDsPast},
		{GroupEmployerAny, intent.EmployerNamesAny, &res.EmployerIDsAny},
	}

	var g errgroup.Group
	for _, grp := range groups {
		g.Go(func() error {
			*grp.out = p.resolveGroup(ctx, creds, tracer, grp.name, grp.terms, qc)
			return nil
		})
	}
	g.Go(func() error {
		res.IndustryLookalikeIDs = p.industryLookalikes(ctx, creds, tracer, intent.IndustrySummary)
		return nil
	})
	g.Go(func() error {
		res.EmployeeTitleIDs = p.titleIDs(ctx, creds, tracer, intent)
		return nil
	})
	_ = g.Wait()

	snap := trace.Snapshot()
	res.Resolutions = snap.Resolutions
	res.Issues = snap.Issues
	return res
}

// resolveGroup runs one lexical fan-out and disambiguates every entry. The
// chosen IDs are returned in term order.
func (p *Pipeline) resolveGroup(
	ctx context.Context,
	creds common.Credentials,
	tracer Tracer,
	group string,
	terms []string,
	qc resolve.QueryContext,
) []int64 {
	ids := []int64{}
	if len(terms) == 0 {
		return ids
	}

	batch := p.companies.ResolveMany(ctx, creds, terms, DefaultCandidateLimit, DefaultNameSizeBias)

	chosen := make([]common.ResolvedEntity, len(batch.Entries))
	var g errgroup.Group
	for i, entry := range batch.Entries {
		if entry.Err != nil {
			continue
		}
		g.Go(func() error {
			chosen[i] = p.disambiguator.ChooseBest(ctx, entry.Term, entry.Candidates, qc)
			return nil
		})
	}
	_ = g.Wait()

	for i, entry := range batch.Entries {
		if entry.Err != nil {
			recordIssue(tracer, group, i, entry.Term, entry.Err)
			continue
		}
		r := chosen[i]
		recordResolution(tracer, group, i, r)
		if r.Fallback {
			recordIssue(tracer, group, i, entry.Term, &common.Error{
				Kind:    common.KindValidationFallback,
				Message: r.Reason,
			})
		}
		if r.ChosenID != nil {
			ids = append(ids, *r.ChosenID)
		}
	}
	return ids
}

func (p *Pipeline) industryLookalikes(
	ctx context.Context,
	creds common.Credentials,
	tracer Tracer,
	summary string,
) []int64 {
	res := p.lookalikes.FromTerm(ctx, creds, summary, resolve.DefaultIndustrySizeBias, resolve.DefaultIndustryLimit)
	if res.Err != nil {
		recordIssue(tracer, GroupIndustry, 0, summary, res.Err)
	}
	return res.IDs()
}

// titleIDs takes the top candidate of every title term, keeping the first
// occurrence of each title ID.
func (p *Pipeline) titleIDs(
	ctx context.Context,
	creds common.Credentials,
	tracer Tracer,
	intent *common.ParsedIntent,
) []int64 {
	ids := []int64{}
	if !intent.WantsEmployees() || len(intent.EmployeeTitleTerms) == 0 || p.titles == nil {
		return ids
	}

	batch := p.titles.ResolveMany(ctx, creds, intent.EmployeeTitleTerms, titleCandidateLimit, 0)
	seen := make(map[int64]struct{})
	for i, entry := range batch.Entries {
		if entry.Err != nil {
			recordIssue(tracer, GroupTitles, i, entry.Term, entry.Err)
			continue
		}
		if len(entry.Candidates) == 0 {
			continue
		}
		id := entry.Candidates[0].ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
