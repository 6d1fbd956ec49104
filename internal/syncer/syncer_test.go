package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/leadsync/internal/api"
	"github.com/jakopako/leadsync/internal/extract"
	"github.com/jakopako/leadsync/internal/fetch"
	"github.com/jakopako/leadsync/internal/types"
)

type fakeBackend struct {
	mu           sync.Mutex
	campaigns    []types.Campaign
	campaignsErr error
	submitErrs   map[string]error
	recordErr    error
	submitted    []types.CandidateLead
	recorded     int
	// if gate is set GetCampaigns announces itself on started and waits
	gate    chan struct{}
	started chan struct{}
}

func (b *fakeBackend) GetCampaigns(ctx context.Context, forceRefresh bool) ([]types.Campaign, error) {
	if b.gate != nil {
		b.started <- struct{}{}
		<-b.gate
	}
	return b.campaigns, b.campaignsErr
}

func (b *fakeBackend) SubmitLead(ctx context.Context, campaignID int64, lead types.CandidateLead) (api.LeadID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.submitErrs[lead.PlatformID]; err != nil {
		return "", err
	}
	b.submitted = append(b.submitted, lead)
	return api.LeadID(fmt.Sprint(len(b.submitted))), nil
}

func (b *fakeBackend) RecordSyncStart(ctx context.Context, campaignID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded++
	return b.recordErr
}

func (b *fakeBackend) submittedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := []string{}
	for _, l := range b.submitted {
		ids = append(ids, l.PlatformID)
	}
	return ids
}

// fakePages serves the page key "platform/keyword". Platforms in down are
// unreachable. If gate is set every fetch announces itself on started and
// waits for gate.
type fakePages struct {
	mu      sync.Mutex
	down    map[types.Platform]bool
	gate    chan struct{}
	started chan Step
	calls   int
}

func (p *fakePages) FetchPlatformSearchResults(ctx context.Context, platform types.Platform, keyword string) (*goquery.Document, string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.gate != nil {
		p.started <- Step{Keyword: keyword, Platform: platform}
		<-p.gate
	}
	if p.down[platform] {
		return nil, "", &fetch.Error{URL: string(platform), Message: "connection refused"}
	}
	return nil, string(platform) + "/" + keyword, nil
}

func (p *fakePages) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeExtractor returns the leads listed for a page key.
type fakeExtractor map[string][]types.CandidateLead

func (e fakeExtractor) ExtractItems(platform types.Platform, doc *goquery.Document, pageURL string, keywords []string) ([]types.CandidateLead, int) {
	return e[pageURL], 0
}

func lead(p types.Platform, id string) types.CandidateLead {
	return types.CandidateLead{Platform: p, PlatformID: id, Title: "lead " + id, Author: "Unknown"}
}

func testCampaign() types.Campaign {
	return types.Campaign{
		ID:        1,
		Name:      "SEO",
		Keywords:  []string{"seo", "marketing"},
		Platforms: []types.Platform{types.PlatformReddit, types.PlatformLinkedIn},
		Status:    types.CampaignActive,
	}
}

func testConfig() Config {
	return Config{MaxLeadsPerKeyword: 10, RecordSyncStart: true}
}

func runToEnd(t *testing.T, o *Orchestrator, campaignID int64) types.SyncProgress {
	t.Helper()
	if _, err := o.Start(context.Background(), campaignID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("sync did not finish: %v", err)
	}
	return p
}

func TestPlanOrder(t *testing.T) {
	steps := Plan(testCampaign())
	want := []string{"seo/reddit", "seo/linkedin", "marketing/reddit", "marketing/linkedin"}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps but got %d", len(want), len(steps))
	}
	for i, s := range steps {
		if got := s.Keyword + "/" + string(s.Platform); got != want[i] {
			t.Errorf("step %d = %q; want %q", i, got, want[i])
		}
	}
}

func TestDedupWithinRun(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}}
	extractor := fakeExtractor{
		"reddit/seo":         {lead(types.PlatformReddit, "a"), lead(types.PlatformReddit, "a"), lead(types.PlatformReddit, "b")},
		"reddit/marketing":   {lead(types.PlatformReddit, "a"), lead(types.PlatformReddit, "c")},
		"linkedin/marketing": {lead(types.PlatformLinkedIn, "a")},
	}
	o := New(backend, &fakePages{}, extractor, testConfig())
	p := runToEnd(t, o, 1)

	if p.Status != types.SyncComplete {
		t.Fatalf("expected complete but got %+v", p)
	}
	ids := backend.submittedIDs()
	if strings.Join(ids, ",") != "a,b,c,a" {
		t.Errorf("expected submissions a,b,c,a (reddit a,b,c and linkedin a) but got %v", ids)
	}
	if p.LeadsFound != 4 || p.LeadsSubmitted != 4 {
		t.Errorf("expected 4 found and submitted but got %d/%d", p.LeadsFound, p.LeadsSubmitted)
	}
	if backend.recorded != 1 {
		t.Errorf("expected the sync start to be recorded once but got %d", backend.recorded)
	}
}

func TestMonotonicProgress(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}}
	extractor := fakeExtractor{
		"reddit/seo":         {lead(types.PlatformReddit, "1"), lead(types.PlatformReddit, "2")},
		"linkedin/seo":       {lead(types.PlatformLinkedIn, "3")},
		"linkedin/marketing": {lead(types.PlatformLinkedIn, "4")},
	}
	o := New(backend, &fakePages{}, extractor, testConfig())
	ch, cancel := o.Subscribe()
	defer cancel()

	collected := make(chan []types.SyncProgress)
	go func() {
		var got []types.SyncProgress
		timeout := time.After(5 * time.Second)
		for {
			select {
			case p := <-ch:
				if p.Status == types.SyncIdle {
					continue
				}
				got = append(got, p)
				if p.Status.Terminal() {
					collected <- got
					return
				}
			case <-timeout:
				collected <- got
				return
			}
		}
	}()

	runToEnd(t, o, 1)
	got := <-collected
	if len(got) == 0 || !got[len(got)-1].Status.Terminal() {
		t.Fatalf("terminal snapshot not received, got %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CurrentKeywordIndex < got[i-1].CurrentKeywordIndex {
			t.Errorf("keyword index decreased: %d after %d", got[i].CurrentKeywordIndex, got[i-1].CurrentKeywordIndex)
		}
		if got[i].LeadsSubmitted < got[i-1].LeadsSubmitted {
			t.Errorf("leads submitted decreased: %d after %d", got[i].LeadsSubmitted, got[i-1].LeadsSubmitted)
		}
	}
	last := got[len(got)-1]
	if last.Status != types.SyncComplete || last.LeadsSubmitted != 4 || last.CurrentKeywordIndex != 1 {
		t.Errorf("unexpected terminal snapshot %+v", last)
	}
}

func TestPlatformUnreachable(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}}
	pages := &fakePages{down: map[types.Platform]bool{types.PlatformReddit: true}}
	extractor := fakeExtractor{
		"linkedin/seo":       {lead(types.PlatformLinkedIn, "1")},
		"linkedin/marketing": {lead(types.PlatformLinkedIn, "2")},
	}
	p := runToEnd(t, New(backend, pages, extractor, testConfig()), 1)

	if p.Status != types.SyncComplete {
		t.Fatalf("expected complete but got %+v", p)
	}
	if p.Error != "" {
		t.Errorf("expected no error code on a complete run but got %q", p.Error)
	}
	if p.LeadsFound != 2 || p.LeadsSubmitted != 2 {
		t.Errorf("expected the 2 linkedin leads but got %d/%d", p.LeadsFound, p.LeadsSubmitted)
	}
	if strings.Count(p.Message, "reddit unreachable") != 2 {
		t.Errorf("expected the message to note both reddit failures but got %q", p.Message)
	}
	if pages.callCount() != 4 {
		t.Errorf("expected every step to be attempted but got %d fetches", pages.callCount())
	}
}

func TestAllStepsFailed(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}}
	pages := &fakePages{down: map[types.Platform]bool{types.PlatformReddit: true, types.PlatformLinkedIn: true}}
	p := runToEnd(t, New(backend, pages, fakeExtractor{}, testConfig()), 1)

	if p.Status != types.SyncError || p.Error != string(CodeAllStepsFailed) {
		t.Errorf("expected all-steps-failed but got %+v", p)
	}
	if pages.callCount() != 4 {
		t.Errorf("expected all 4 steps to be attempted but got %d", pages.callCount())
	}
}

func TestSubmissionErrors(t *testing.T) {
	c := testCampaign()
	c.Platforms = []types.Platform{types.PlatformReddit}
	c.Keywords = []string{"seo"}
	backend := &fakeBackend{
		campaigns: []types.Campaign{c},
		submitErrs: map[string]error{
			"dup": &api.DuplicateError{PlatformID: "dup", Message: "exists"},
			"bad": &api.ValidationError{Message: "title too long"},
		},
	}
	extractor := fakeExtractor{"reddit/seo": {lead(types.PlatformReddit, "dup"), lead(types.PlatformReddit, "ok"), lead(types.PlatformReddit, "bad")}}
	p := runToEnd(t, New(backend, &fakePages{}, extractor, testConfig()), 1)

	if p.Status != types.SyncComplete {
		t.Fatalf("expected complete but got %+v", p)
	}
	if p.LeadsFound != 3 || p.LeadsSubmitted != 1 {
		t.Errorf("expected 3 found and 1 submitted but got %d/%d", p.LeadsFound, p.LeadsSubmitted)
	}
	if !strings.Contains(p.Message, "submission-rejected: 1 leads") {
		t.Errorf("expected one rejection in the message but got %q", p.Message)
	}
}

func TestMaxLeadsPerKeyword(t *testing.T) {
	c := testCampaign()
	c.Platforms = []types.Platform{types.PlatformReddit}
	c.Keywords = []string{"seo"}
	backend := &fakeBackend{campaigns: []types.Campaign{c}}
	var leads []types.CandidateLead
	for i := range 5 {
		leads = append(leads, lead(types.PlatformReddit, fmt.Sprint(i)))
	}
	cfg := testConfig()
	cfg.MaxLeadsPerKeyword = 2
	p := runToEnd(t, New(backend, &fakePages{}, fakeExtractor{"reddit/seo": leads}, cfg), 1)
	if p.LeadsSubmitted != 2 || len(backend.submittedIDs()) != 2 {
		t.Errorf("expected 2 submissions but got %d", p.LeadsSubmitted)
	}
}

func TestStartConfigErrors(t *testing.T) {
	noKeywords := testCampaign()
	noKeywords.Keywords = []string{"  ", ""}
	noPlatforms := testCampaign()
	noPlatforms.Platforms = []types.Platform{"myspace"}

	tests := []struct {
		name    string
		backend *fakeBackend
		id      int64
		code    ErrorCode
	}{
		{"not found", &fakeBackend{campaigns: []types.Campaign{testCampaign()}}, 7, CodeCampaignNotFound},
		{"campaigns unavailable", &fakeBackend{campaignsErr: errors.New("offline")}, 1, CodeCampaignNotFound},
		{"no keywords", &fakeBackend{campaigns: []types.Campaign{noKeywords}}, 1, CodeNoKeywords},
		{"no platforms", &fakeBackend{campaigns: []types.Campaign{noPlatforms}}, 1, CodeNoPlatforms},
	}
	for _, tt := range tests {
		pages := &fakePages{}
		o := New(tt.backend, pages, fakeExtractor{}, testConfig())
		_, err := o.Start(context.Background(), tt.id)
		if !errors.Is(err, &Error{Code: tt.code}) {
			t.Errorf("%s: expected %s but got %v", tt.name, tt.code, err)
		}
		p := o.Progress()
		if p.Status != types.SyncError || p.Error != string(tt.code) {
			t.Errorf("%s: expected terminal error %s but got %+v", tt.name, tt.code, p)
		}
		if pages.callCount() != 0 || tt.backend.recorded != 0 {
			t.Errorf("%s: expected no network activity", tt.name)
		}
		// the orchestrator is free again
		tt.backend.campaigns = []types.Campaign{testCampaign()}
		tt.backend.campaignsErr = nil
		if _, err := o.Start(context.Background(), 1); err != nil {
			t.Errorf("%s: expected a new sync to start but got %v", tt.name, err)
		}
		o.Wait(context.Background())
	}
}

func TestSyncStartRejected(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}, recordErr: api.ErrSyncStartRejected}
	pages := &fakePages{}
	p := runToEnd(t, New(backend, pages, fakeExtractor{}, testConfig()), 1)
	if p.Status != types.SyncError || p.Error != string(CodeSyncStartRejected) {
		t.Errorf("expected sync-start-rejected but got %+v", p)
	}
	if pages.callCount() != 0 {
		t.Errorf("expected no page to be fetched but got %d", pages.callCount())
	}
}

func TestCancelBeforeSyncStartRecorded(t *testing.T) {
	backend := &fakeBackend{
		campaigns: []types.Campaign{testCampaign()},
		gate:      make(chan struct{}),
		started:   make(chan struct{}),
	}
	pages := &fakePages{}
	o := New(backend, pages, fakeExtractor{}, testConfig())

	errc := make(chan error)
	go func() {
		_, err := o.Start(context.Background(), 1)
		errc <- err
	}()
	<-backend.started
	o.Cancel()
	close(backend.gate)
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("sync did not finish: %v", err)
	}
	if p.Status != types.SyncCancelled {
		t.Errorf("expected cancelled but got %+v", p)
	}
	if backend.recorded != 0 {
		t.Errorf("expected no recorded sync start but got %d", backend.recorded)
	}
	if pages.callCount() != 0 {
		t.Errorf("expected no page fetches but got %d", pages.callCount())
	}
}

// contextBackend generates search terms for campaigns.
type contextBackend struct {
	*fakeBackend
	terms []string
	err   error
}

func (b *contextBackend) GetCampaignContext(ctx context.Context, campaignID int64) (*api.CampaignContext, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &api.CampaignContext{SearchTerms: b.terms}, nil
}

func TestCampaignContextSearchTerms(t *testing.T) {
	tests := []struct {
		name     string
		terms    []string
		err      error
		keywords []string
	}{
		{"search terms replace keywords", []string{"seo agency", " ", "seo agency", "local seo"}, nil, []string{"seo agency", "local seo"}},
		{"no search terms", nil, nil, []string{"seo", "marketing"}},
		{"context unavailable", []string{"seo agency"}, errors.New("not found"), []string{"seo", "marketing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &contextBackend{fakeBackend: &fakeBackend{campaigns: []types.Campaign{testCampaign()}}, terms: tt.terms, err: tt.err}
			o := New(backend, &fakePages{}, fakeExtractor{}, testConfig())
			if _, err := o.Start(context.Background(), 1); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p, err := o.Wait(ctx)
			if err != nil {
				t.Fatalf("sync did not finish: %v", err)
			}
			if p.Status != types.SyncComplete {
				t.Fatalf("expected complete but got %+v", p)
			}
			if p.TotalKeywords != len(tt.keywords) {
				t.Errorf("expected %d keywords but got %d", len(tt.keywords), p.TotalKeywords)
			}
			if p.CurrentKeyword != tt.keywords[len(tt.keywords)-1] {
				t.Errorf("expected last keyword %q but got %q", tt.keywords[len(tt.keywords)-1], p.CurrentKeyword)
			}
		})
	}
}

func TestStartWhileRunning(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}}
	pages := &fakePages{gate: make(chan struct{}), started: make(chan Step, 4)}
	o := New(backend, pages, fakeExtractor{}, testConfig())

	runID, err := o.Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-pages.started
	before := o.Progress()
	if before.Status != types.SyncRunning || before.CurrentKeywordIndex != -1 || before.TotalKeywords != 2 {
		t.Errorf("unexpected initial snapshot %+v", before)
	}

	if _, err := o.Start(context.Background(), 1); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected %v but got %v", ErrAlreadyRunning, err)
	}
	if after := o.Progress(); after != before || after.RunID != runID {
		t.Errorf("expected the running sync to be unaffected, got %+v after %+v", after, before)
	}

	close(pages.gate)
	p, _ := o.Wait(context.Background())
	if p.Status != types.SyncComplete || p.RunID != runID {
		t.Errorf("expected run %s to complete but got %+v", runID, p)
	}
}

func TestCancelDuringFetch(t *testing.T) {
	backend := &fakeBackend{campaigns: []types.Campaign{testCampaign()}}
	pages := &fakePages{gate: make(chan struct{}), started: make(chan Step, 4)}
	extractor := fakeExtractor{
		"reddit/seo":   {lead(types.PlatformReddit, "1"), lead(types.PlatformReddit, "2")},
		"linkedin/seo": {lead(types.PlatformLinkedIn, "3")},
	}
	o := New(backend, pages, extractor, testConfig())
	if _, err := o.Start(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-pages.started
	o.Cancel()
	close(pages.gate)

	p, _ := o.Wait(context.Background())
	if p.Status != types.SyncCancelled {
		t.Fatalf("expected cancelled but got %+v", p)
	}
	ids := backend.submittedIDs()
	if len(ids) != 0 && strings.Join(ids, ",") != "1,2" {
		t.Errorf("expected step 0 to be applied entirely or not at all but got %v", ids)
	}
	if pages.callCount() != 1 {
		t.Errorf("expected no step after the cancelled one but got %d fetches", pages.callCount())
	}
	if p.LeadsSubmitted != len(ids) {
		t.Errorf("progress reports %d submissions, backend got %d", p.LeadsSubmitted, len(ids))
	}
}

func TestRunStep(t *testing.T) {
	backend := &fakeBackend{}
	extractor := fakeExtractor{"reddit/seo": {lead(types.PlatformReddit, "1")}}
	o := New(backend, &fakePages{}, extractor, testConfig())

	st := NewState("run", testCampaign())
	next := o.RunStep(context.Background(), st)

	if st.Next != 0 || len(st.Seen) != 0 || st.Progress.LeadsFound != 0 {
		t.Errorf("expected the input state to be untouched but got %+v", st)
	}
	if next.Next != 1 || !next.Seen["reddit:1"] || next.Progress.LeadsSubmitted != 1 || next.Progress.CurrentKeywordIndex != 0 {
		t.Errorf("unexpected state after one step %+v", next)
	}
	if next.Interrupted {
		t.Error("expected a state without cancellation to never be interrupted")
	}

	// rerunning the same step finds nothing new
	again := next
	again.Next = 0
	again = o.RunStep(context.Background(), again)
	if again.Progress.LeadsFound != 1 || len(backend.submittedIDs()) != 1 {
		t.Errorf("expected the lead to be deduplicated but got %+v", again.Progress)
	}
}

func TestSyncWithProvider(t *testing.T) {
	c := types.Campaign{ID: 3, Name: "Content", Keywords: []string{"seo"}, Platforms: []types.Platform{types.PlatformLinkedIn}}
	backend := &fakeBackend{campaigns: []types.Campaign{c}}

	searchURL, err := fetch.SearchURL(types.PlatformLinkedIn, "seo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mf := fetch.NewMockFetcher(&fetch.FetcherConfig{})
	mf.SetPage(searchURL, `<html><body>
	<div class="feed-shared-update-v2" data-urn="urn:li:activity:111">
	<span class="update-components-actor__name">Jane Doe</span>
	<div class="update-components-text">Looking for an SEO freelancer</div></div>
	<div class="feed-shared-update-v2" data-urn="urn:li:activity:222">
	<span class="update-components-actor__name">John Roe</span>
	<div class="update-components-text">Selling my bike</div></div>
	</body></html>`)
	ext, err := extract.NewDefault()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := runToEnd(t, New(backend, fetch.NewProvider(mf, ext, time.Second), ext, testConfig()), 3)
	if p.Status != types.SyncComplete || p.LeadsSubmitted != 1 {
		t.Fatalf("expected one submitted lead but got %+v", p)
	}
	got := backend.submitted[0]
	if got.PlatformID != "111" || got.Author != "Jane Doe" || got.MatchedKeywords[0] != "seo" {
		t.Errorf("unexpected lead %+v", got)
	}
}
