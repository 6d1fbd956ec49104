package syncer

import (
	"maps"
	"slices"
	"strings"

	"github.com/jakopako/leadsync/internal/types"
)

// Step is one search of a keyword on a platform.
type Step struct {
	KeywordIndex int
	Keyword      string
	Platform     types.Platform
}

// Plan returns the steps of a sync of c. Keywords form the outer loop and
// platforms the inner one, so progress reads as keyword n of total no
// matter how many platforms are targeted.
func Plan(c types.Campaign) []Step {
	steps := []Step{}
	for i, kw := range c.Keywords {
		for _, p := range c.Platforms {
			steps = append(steps, Step{KeywordIndex: i, Keyword: kw, Platform: p})
		}
	}
	return steps
}

// State is everything a run carries from one step to the next.
type State struct {
	RunID    string
	Campaign types.Campaign
	Steps    []Step
	// Next is the index of the next step to run.
	Next     int
	Progress types.SyncProgress
	// Seen holds the platform ids of all leads attempted in this run.
	Seen        map[string]bool
	FailedSteps int
	Rejected    int
	Duplicates  int
	// Notes are short descriptions of the per-step failures.
	Notes []string
	// Interrupted is set if the run was cancelled while a step was in
	// flight. The step was not applied.
	Interrupted bool

	cancel <-chan struct{}
}

// NewState returns the initial state of a run of campaign c.
func NewState(runID string, c types.Campaign) State {
	return State{
		RunID:    runID,
		Campaign: c,
		Steps:    Plan(c),
		Seen:     map[string]bool{},
		Progress: types.SyncProgress{
			RunID:               runID,
			CampaignID:          c.ID,
			Status:              types.SyncRunning,
			CurrentKeywordIndex: -1,
			TotalKeywords:       len(c.Keywords),
		},
	}
}

// Done reports whether all steps have run.
func (s State) Done() bool {
	return s.Next >= len(s.Steps)
}

func (s State) cancelled() bool {
	if s.cancel == nil {
		return false
	}
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// clone returns a copy that shares nothing mutable with s.
func (s State) clone() State {
	s.Seen = maps.Clone(s.Seen)
	s.Notes = slices.Clone(s.Notes)
	return s
}

func seenKey(l types.CandidateLead) string {
	return string(l.Platform) + ":" + l.PlatformID
}

func (s State) failureSummary() string {
	if len(s.Notes) == 0 {
		return ""
	}
	return "failures: " + strings.Join(s.Notes, "; ")
}
