package query

import (
	"slices"
	"sync"

	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
)

// Name groups of a parsed intent, in the order they are reported.
const (
	GroupCompetitors     = "competitors"
	GroupSuggested       = "suggested"
	GroupEmployerCurrent = "employer_current"
	GroupEmployerPast    = "employer_past"
	GroupEmployerAny     = "employer_any"
	GroupIndustry        = "industry"
	GroupTitles          = "titles"
)

var groupOrder = []string{
	GroupCompetitors,
	GroupSuggested,
	GroupEmployerCurrent,
	GroupEmployerPast,
	GroupEmployerAny,
	GroupIndustry,
	GroupTitles,
}

type TraceEventKind string

const (
	TraceEventResolution TraceEventKind = "resolution"
	TraceEventIssue      TraceEventKind = "issue"
)

// TraceEvent describes the outcome for one term of one group. Index is the
// term's position inside its group.
type TraceEvent struct {
	Kind  TraceEventKind
	Group string
	Index int

	Resolution common.ResolvedEntity
	Issue      common.Issue
}

// Tracer is a sink for pipeline events. Record may be called from several
// goroutines at once.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

// LogTracer writes every event to the debug log.
type LogTracer struct{}

func (LogTracer) Record(event TraceEvent) {
	switch event.Kind {
	case TraceEventResolution:
		r := event.Resolution
		logger.Debug("[Pipeline] Resolved term", "group", event.Group, "term", r.Term,
			"id", r.ChosenID, "confidence", r.Confidence)
	case TraceEventIssue:
		logger.Debug("[Pipeline] Term issue", "group", event.Group, "term", event.Issue.Term,
			"kind", event.Issue.Kind, "message", event.Issue.Message)
	}
}

func recordResolution(t Tracer, group string, index int, res common.ResolvedEntity) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventResolution, Group: group, Index: index, Resolution: res})
}

func recordIssue(t Tracer, group string, index int, term string, err *common.Error) {
	if t == nil || err == nil {
		return
	}
	t.Record(TraceEvent{
		Kind:  TraceEventIssue,
		Group: group,
		Index: index,
		Issue: common.Issue{Group: group, Term: term, Kind: err.Kind, Message: err.Message},
	})
}

// QueryTrace collects the resolutions and issues of one ParseQuery run.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu     sync.Mutex
	events []TraceEvent
}

type QueryTraceSnapshot struct {
	Resolutions []common.Resolution
	Issues      []common.Issue
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

// Snapshot returns the recorded events ordered by group, then by term
// position, independent of the order the groups finished in.
func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	s := QueryTraceSnapshot{
		Resolutions: []common.Resolution{},
		Issues:      []common.Issue{},
	}
	if t == nil {
		return s
	}

	t.mu.Lock()
	events := slices.Clone(t.events)
	t.mu.Unlock()

	slices.SortStableFunc(events, func(a, b TraceEvent) int {
		if ga, gb := groupRank(a.Group), groupRank(b.Group); ga != gb {
			return ga - gb
		}
		return a.Index - b.Index
	})

	for _, e := range events {
		switch e.Kind {
		case TraceEventResolution:
			s.Resolutions = append(s.Resolutions, common.Resolution{Group: e.Group, ResolvedEntity: e.Resolution})
		case TraceEventIssue:
			s.Issues = append(s.Issues, e.Issue)
		}
	}
	return s
}

func groupRank(group string) int {
	if i := slices.Index(groupOrder, group); i >= 0 {
		return i
	}
	return len(groupOrder)
}
