package common

import "encoding/json"

// Credentials are the backend keys a caller resolved with. They travel with
// every lookup call and are never read from process state.
type Credentials struct {
	KeyID     string `json:"key_id"`
	KeySecret string `json:"-"`
}

// IsZero reports whether no credentials were supplied.
func (c Credentials) IsZero() bool {
	return c.KeyID == "" && c.KeySecret == ""
}

// Lead types accepted in ParsedIntent.LeadType.
const (
	LeadTypeCompany  = "company"
	LeadTypeEmployee = "employee"
)

// ParsedIntent is the structured form of a free-text prospecting query as
// produced by the query extractor.
//
// HeadcountRange is always a two element [min, max] pair where -1 means
// unbounded. IndustrySummary is English and never empty for a successful
// extraction.
type ParsedIntent struct {
	IndustrySummary string   `json:"industry_summary"`
	CompetitorNames []string `json:"competitor_names"`
	Suggested       []string `json:"suggested_companies"`

	EmployerNamesCurrent []string `json:"explicit_employer_names_current"`
	EmployerNamesPast    []string `json:"explicit_employer_names_past"`
	EmployerNamesAny     []string `json:"explicit_employer_names_any"`

	IndustryExperience string   `json:"profile_industry_experience"`
	SkillTerms         []string `json:"skill_terms"`
	SkillTermsExpanded []string `json:"skill_terms_expanded"`

	LeadType             []string `json:"lead_type"`
	CountryCodes         []string `json:"location_country_codes"`
	CityVariants         []string `json:"location_city_variants"`
	RegionVariants       []string `json:"location_region_variants"`
	HeadcountRange       []int    `json:"headcount_range"`
	EmployeeTitleTerms   []string `json:"employee_title_terms"`
	EmployeeCountryCodes []string `json:"employee_location_country_codes"`
}

// WantsEmployees reports whether employee leads were requested.
func (p *ParsedIntent) WantsEmployees() bool {
	for _, t := range p.LeadType {
		if t == LeadTypeEmployee {
			return true
		}
	}
	return false
}

// LookupCandidate is one ranked row returned by a lookup backend.
//
// Distance is the backend's final ranking key. Whether lower or higher means
// closer is declared by the backend (see lookup.DistanceOrder) and never
// mixed within one backend.
type LookupCandidate struct {
	ID        int64   `json:"id"`
	Slug      string  `json:"slug,omitempty"`
	Name      string  `json:"name"`
	Web       string  `json:"web,omitempty"`
	Distance  float64 `json:"distance"`
	Headcount int64   `json:"headcount,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// BatchEntry holds the candidates of one input term. Err is set when the
// lookup for this term failed; an entry with no candidates and no error is a
// plain "no match".
type BatchEntry struct {
	Term       string            `json:"term"`
	Candidates []LookupCandidate `json:"candidates"`
	Err        *Error            `json:"error,omitempty"`
}

// ResolvedBatch is the merged output of a fan-out lookup, one entry per
// input term in input order.
type ResolvedBatch struct {
	Entries []BatchEntry `json:"entries"`
}

// IDs returns the primary IDs of all candidates in merge order.
func (b *ResolvedBatch) IDs() []int64 {
	if b == nil {
		return []int64{}
	}
	ids := make([]int64, 0, len(b.Entries))
	for _, e := range b.Entries {
		for _, c := range e.Candidates {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Confidence levels of a ResolvedEntity.
const (
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
	ConfidenceLow      = "low"
	ConfidenceSingle   = "single"
	ConfidenceNone     = "none"
	ConfidenceFallback = "fallback"
)

// ResolvedEntity is the disambiguated choice for one search term. ChosenID
// is nil only when there were no candidates or every candidate was rejected.
type ResolvedEntity struct {
	Term       string `json:"term"`
	ChosenID   *int64 `json:"chosen_id"`
	Confidence string `json:"confidence"`
	Fallback   bool   `json:"fallback,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// LookalikeResult is the outcome of a lookalike search. On failure Err is
// set and Candidates is empty.
type LookalikeResult struct {
	Query      string            `json:"query,omitempty"`
	Candidates []LookupCandidate `json:"candidates"`
	Err        *Error            `json:"error,omitempty"`
}

// IDs returns the candidate IDs in rank order.
func (r *LookalikeResult) IDs() []int64 {
	ids := make([]int64, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

// Resolution is a ResolvedEntity tagged with the name group it came from.
type Resolution struct {
	Group string `json:"group"`
	ResolvedEntity
}

// Issue is a non-fatal problem met while resolving one term.
type Issue struct {
	Group   string    `json:"group"`
	Term    string    `json:"term"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// FinalResult is the terminal response of a query parse. When Error is set
// the intent and all ID lists are absent.
type FinalResult struct {
	*ParsedIntent

	CompetitorParsedIDs    []int64 `json:"competitor_parsed_ids"`
	CompetitorSuggestedIDs []int64 `json:"competitor_suggested_ids"`
	EmployerIDsCurrent     []int64 `json:"explicit_employer_ids_current"`
	EmployerIDsPast        []int64 `json:"explicit_employer_ids_past"`
	EmployerIDsAny         []int64 `json:"explicit_employer_ids_any"`
	IndustryLookalikeIDs   []int64 `json:"industry_lookalike_ids"`
	EmployeeTitleIDs       []int64 `json:"employee_title_ids"`

	Resolutions []Resolution `json:"resolutions,omitempty"`
	Issues      []Issue      `json:"issues,omitempty"`

	Error *Error `json:"error,omitempty"`
}

// MarshalJSON renders only the error when the parse failed.
func (r FinalResult) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			Error *Error `json:"error"`
		}{r.Error})
	}
	type plain FinalResult
	return json.Marshal(plain(r))
}
