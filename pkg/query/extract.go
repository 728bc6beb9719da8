package query

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/pkg/ai"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
)

// ExtractionTemperature keeps extraction close to deterministic.
const ExtractionTemperature = 0.1

// Extractor turns a free-text query into a ParsedIntent with a single
// completion call.
type Extractor struct {
	completion ai.CompletionProvider
	model      string
}

// NewExtractor creates an Extractor. model overrides the provider's default
// completion model when set.
func NewExtractor(completion ai.CompletionProvider, model string) *Extractor {
	return &Extractor{completion: completion, model: model}
}

// Extract parses text. Any failure is terminal: there is no retry and no
// partial intent. Unusable model output is returned as an extraction error
// carrying the raw output; a failed call keeps its upstream or timeout kind.
func (e *Extractor) Extract(ctx context.Context, text string) (*common.ParsedIntent, error) {
	intent, err := e.extract(ctx, text)
	if err != nil {
		metrics.Default.ExtractionFailures.Inc()
		logger.Warn("[Extractor] Failed to extract intent", "err", err)
		return nil, err
	}
	return intent, nil
}

func (e *Extractor) extract(ctx context.Context, text string) (*common.ParsedIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &common.Error{Kind: common.KindExtraction, Message: "Empty query"}
	}
	if e.completion == nil {
		return nil, common.NewUpstreamError("Extraction failed", errors.New("no completion provider configured"))
	}

	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.ExtractionPrompt),
		ai.WithTemperature(ExtractionTemperature),
		ai.WithSchema("parsed_intent", "Structured prospecting intent", common.ParsedIntent{}),
	}
	if e.model != "" {
		opts = append(opts, ai.WithModel(e.model))
	}

	raw, err := e.completion.GenerateCompletion(ctx, "Parse this query:\n\n"+text, opts...)
	if err != nil {
		return nil, common.AsError(err)
	}

	var intent common.ParsedIntent
	if err := ai.UnmarshalFlexible(raw, &intent); err != nil {
		return nil, common.NewExtractionError(raw, err)
	}
	if strings.TrimSpace(intent.IndustrySummary) == "" {
		return nil, common.NewExtractionError(raw, errors.New("missing industry_summary"))
	}

	normalize(&intent)
	return &intent, nil
}

func normalize(p *common.ParsedIntent) {
	p.IndustrySummary = strings.TrimSpace(p.IndustrySummary)
	p.IndustryExperience = strings.TrimSpace(p.IndustryExperience)

	p.CompetitorNames = cleanList(p.CompetitorNames, false)
	p.Suggested = cleanList(p.Suggested, false)
	p.EmployerNamesCurrent = cleanList(p.EmployerNamesCurrent, false)
	p.EmployerNamesPast = cleanList(p.EmployerNamesPast, false)
	p.EmployerNamesAny = cleanList(p.EmployerNamesAny, false)
	p.SkillTerms = cleanList(p.SkillTerms, false)
	p.SkillTermsExpanded = cleanList(p.SkillTermsExpanded, false)
	p.CityVariants = cleanList(p.CityVariants, false)
	p.RegionVariants = cleanList(p.RegionVariants, false)
	p.EmployeeTitleTerms = cleanList(p.EmployeeTitleTerms, false)

	p.CountryCodes = cleanList(p.CountryCodes, true)
	p.EmployeeCountryCodes = cleanList(p.EmployeeCountryCodes, true)

	leadTypes := make([]string, 0, 2)
	for _, t := range cleanList(p.LeadType, true) {
		if t == common.LeadTypeCompany || t == common.LeadTypeEmployee {
			leadTypes = append(leadTypes, t)
		}
	}
	if len(leadTypes) == 0 {
		leadTypes = []string{common.LeadTypeCompany}
	}
	p.LeadType = leadTypes

	p.HeadcountRange = normalizeHeadcount(p.HeadcountRange)
}

// cleanList trims entries, drops blanks and duplicates and never returns nil.
// lower also folds case, which is what codes and enums need.
func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func normalizeHeadcount(r []int) []int {
	if len(r) != 2 {
		return []int{-1, -1}
	}
	lo, hi := max(r[0], -1), max(r[1], -1)
	if lo >= 0 && hi >= 0 && lo > hi {
		lo, hi = hi, lo
	}
	return []int{lo, hi}
}
