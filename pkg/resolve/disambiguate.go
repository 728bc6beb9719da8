package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
)

// MaxPromptCandidates is how many top candidates are shown to the model.
const MaxPromptCandidates = 10

// QueryContext is what the model sees besides the candidates.
type QueryContext struct {
	Query    string
	Industry string
}

// Disambiguator picks one candidate per term. It keeps no state between
// calls.
type Disambiguator struct {
	completion ai.CompletionProvider
	model      string
}

// NewDisambiguator creates a Disambiguator. model overrides the provider's
// default completion model when set.
func NewDisambiguator(completion ai.CompletionProvider, model string) *Disambiguator {
	return &Disambiguator{completion: completion, model: model}
}

type validationReply struct {
	CompID     ai.FlexInt64 `json:"comp_id"`
	Confidence string       `json:"confidence"`
}

// ChooseBest resolves term to one of cands.
//
// No candidates yields a nil ID and one candidate is taken as is; neither
// calls the model. With several candidates the model chooses among the top
// MaxPromptCandidates. It may reject all of them (nil ID). Any failure of
// that call, including an ID that was not offered, falls back to the first
// candidate.
func (d *Disambiguator) ChooseBest(
	ctx context.Context,
	term string,
	cands []common.LookupCandidate,
	qc QueryContext,
) common.ResolvedEntity {
	res := d.choose(ctx, term, cands, qc)
	metrics.Default.Disambiguations.WithLabelValues(res.Confidence).Inc()
	return res
}

func (d *Disambiguator) choose(
	ctx context.Context,
	term string,
	cands []common.LookupCandidate,
	qc QueryContext,
) common.ResolvedEntity {
	switch len(cands) {
	case 0:
		return common.ResolvedEntity{Term: term, Confidence: common.ConfidenceNone}
	case 1:
		id := cands[0].ID
		return common.ResolvedEntity{Term: term, ChosenID: &id, Confidence: common.ConfidenceSingle}
	}

	shown := cands[:min(len(cands), MaxPromptCandidates)]
	reply, err := d.ask(ctx, term, shown, qc)
	if err != nil {
		logger.Warn("[Disambiguator] Falling back to top candidate", "term", term, "err", err)
		id := cands[0].ID
		return common.ResolvedEntity{
			Term:       term,
			ChosenID:   &id,
			Confidence: common.ConfidenceFallback,
			Fallback:   true,
			Reason:     err.Error(),
		}
	}

	confidence := normalizeConfidence(reply.Confidence)
	if !reply.CompID.Valid {
		return common.ResolvedEntity{Term: term, Confidence: common.ConfidenceNone, Reason: "no candidate matched"}
	}
	id := reply.CompID.Value
	return common.ResolvedEntity{Term: term, ChosenID: &id, Confidence: confidence}
}

func (d *Disambiguator) ask(
	ctx context.Context,
	term string,
	cands []common.LookupCandidate,
	qc QueryContext,
) (*validationReply, error) {
	if d.completion == nil {
		return nil, errors.New("no completion provider configured")
	}

	prompt := fmt.Sprintf(ai.ValidationPrompt, qc.Query, qc.Industry, term, candidateLines(cands))
	opts := []ai.GenerateOption{ai.WithTemperature(0), ai.WithJSONMode()}
	if d.model != "" {
		opts = append(opts, ai.WithModel(d.model))
	}

	raw, err := d.completion.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		return nil, common.AsError(err)
	}

	var reply validationReply
	if err := ai.UnmarshalFlexible(raw, &reply); err != nil {
		return nil, fmt.Errorf("malformed validation reply: %w", err)
	}
	if reply.CompID.Valid && !offered(cands, reply.CompID.Value) {
		return nil, fmt.Errorf("model chose id %d which was not offered", reply.CompID.Value)
	}
	return &reply, nil
}

func offered(cands []common.LookupCandidate, id int64) bool {
	for _, c := range cands {
		if c.ID == id {
			return true
		}
	}
	return false
}

func candidateLines(cands []common.LookupCandidate) string {
	var b strings.Builder
	for i, c := range cands {
		if i > 0 {
			b.WriteByte('\n')
		}
		hc := "N/A"
		if c.Headcount > 0 {
			hc = strconv.FormatInt(c.Headcount, 10)
		}
		country := c.Country
		if country == "" {
			country = "N/A"
		}
		name := c.Name
		if name == "" {
			name = "N/A"
		}
		fmt.Fprintf(&b, "- %d: %s | %s | %s", c.ID, name, hc, country)
	}
	return b.String()
}

func normalizeConfidence(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case common.ConfidenceHigh:
		return common.ConfidenceHigh
	case common.ConfidenceLow:
		return common.ConfidenceLow
	default:
		return common.ConfidenceMedium
	}
}
