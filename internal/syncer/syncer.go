// Package syncer runs campaign syncs: it searches every keyword of a
// campaign on every targeted platform, extracts leads from the results and
// submits the new ones to the backend while reporting progress.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/jakopako/leadsync/internal/api"
	"github.com/jakopako/leadsync/internal/campaign"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/progress"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/jakopako/leadsync/internal/utils"
	"golang.org/x/time/rate"
)

// maxLoggedErrorLength caps error strings in log records. Backend errors
// may carry whole response bodies.
const maxLoggedErrorLength = 300

type Config struct {
	// MaxLeadsPerKeyword caps the leads submitted per keyword and platform.
	MaxLeadsPerKeyword   int           `yaml:"max_leads_per_keyword" env-default:"10"`
	StepPause            time.Duration `yaml:"step_pause" env-default:"2s"`
	SubmissionsPerMinute int           `yaml:"submissions_per_minute" env-default:"30"`
	RecordSyncStart      bool          `yaml:"record_sync_start" env-default:"true"`
}

// Backend is the part of the backend a sync needs. SubmitLead must
// invalidate cached leads and stats before it returns.
type Backend interface {
	GetCampaigns(ctx context.Context, forceRefresh bool) ([]types.Campaign, error)
	SubmitLead(ctx context.Context, campaignID int64, lead types.CandidateLead) (api.LeadID, error)
}

// SyncRecorder is implemented by backends that track sync quotas.
type SyncRecorder interface {
	RecordSyncStart(ctx context.Context, campaignID int64) error
}

// ContextLoader is implemented by backends that generate search terms for
// a campaign. Non-empty search terms are searched instead of the campaign's
// keywords.
type ContextLoader interface {
	GetCampaignContext(ctx context.Context, campaignID int64) (*api.CampaignContext, error)
}

type PageProvider interface {
	FetchPlatformSearchResults(ctx context.Context, platform types.Platform, keyword string) (*goquery.Document, string, error)
}

type ItemExtractor interface {
	ExtractItems(platform types.Platform, doc *goquery.Document, pageURL string, keywords []string) ([]types.CandidateLead, int)
}

// Orchestrator runs at most one sync at a time.
type Orchestrator struct {
	backend     Backend
	pages       PageProvider
	extractor   ItemExtractor
	broadcaster *progress.Broadcaster
	limiter     *rate.Limiter
	cfg         Config

	mu       sync.Mutex
	busy     bool
	progress types.SyncProgress
	run      *run
}

type run struct {
	id         string
	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

func (r *run) stop() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

type Option func(*Orchestrator)

// WithBroadcaster publishes snapshots to b instead of a private broadcaster.
func WithBroadcaster(b *progress.Broadcaster) Option {
	return func(o *Orchestrator) {
		o.broadcaster = b
	}
}

func New(backend Backend, pages PageProvider, extractor ItemExtractor, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		pages:     pages,
		extractor: extractor,
		cfg:       cfg,
		progress:  types.IdleProgress(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.broadcaster == nil {
		o.broadcaster = progress.NewBroadcaster()
	}
	limit := rate.Inf
	if cfg.SubmissionsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.SubmissionsPerMinute))
	}
	o.limiter = rate.NewLimiter(limit, 1)
	return o
}

// Progress returns the latest snapshot.
func (o *Orchestrator) Progress() types.SyncProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Subscribe returns a channel receiving the latest snapshot and all later
// ones until cancel is called.
func (o *Orchestrator) Subscribe() (<-chan types.SyncProgress, func()) {
	return o.broadcaster.Subscribe()
}

// Start starts a sync of the campaign with the given id and returns the id
// of the run. It is rejected with ErrAlreadyRunning while another sync
// runs. Configuration errors end the run right away, before any page is
// fetched, and are returned as *Error. The run itself outlives ctx but
// keeps its values, e.g. the logger.
func (o *Orchestrator) Start(ctx context.Context, campaignID int64) (string, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	o.busy = true
	r := &run{id: uuid.NewString(), cancel: make(chan struct{}), done: make(chan struct{})}
	o.run = r
	o.mu.Unlock()

	logger := log.LoggerFromContext(ctx).With(slog.String("run", r.id), slog.Int64("campaign", campaignID))
	ctx = log.ContextWithLogger(context.WithoutCancel(ctx), logger)

	c, err := o.resolveCampaign(ctx, campaignID)
	if err != nil {
		var se *Error
		errors.As(err, &se)
		p := types.SyncProgress{
			RunID:               r.id,
			CampaignID:          campaignID,
			Status:              types.SyncError,
			CurrentKeywordIndex: -1,
			Message:             se.Message,
			Error:               string(se.Code),
			StartedAt:           time.Now(),
			FinishedAt:          time.Now(),
		}
		logger.Error("sync not started", slog.String("err", err.Error()))
		o.finish(r, p)
		return r.id, err
	}

	st := NewState(r.id, *c)
	st.cancel = r.cancel
	st.Progress.StartedAt = time.Now()
	st.Progress.Message = fmt.Sprintf("Starting sync of %q with %d keywords on %d platforms", c.Name, len(c.Keywords), len(c.Platforms))
	o.emit(st.Progress)
	logger.Info("sync started", slog.Int("steps", len(st.Steps)))

	go o.loop(ctx, r, st)
	return r.id, nil
}

// Cancel asks the running sync to stop. It is observed between steps, an
// in-flight step either completes or is discarded before it submits
// anything.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy && o.run != nil {
		o.run.stop()
	}
}

// Wait blocks until the current run has ended and returns its terminal
// snapshot. Without a run the latest snapshot is returned right away.
func (o *Orchestrator) Wait(ctx context.Context) (types.SyncProgress, error) {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	if r == nil {
		return o.Progress(), nil
	}
	select {
	case <-r.done:
		return o.Progress(), nil
	case <-ctx.Done():
		return o.Progress(), ctx.Err()
	}
}

// resolveCampaign looks the campaign up and drops unusable keywords and
// platforms.
func (o *Orchestrator) resolveCampaign(ctx context.Context, id int64) (*types.Campaign, error) {
	campaigns, err := o.backend.GetCampaigns(ctx, false)
	if err != nil {
		return nil, &Error{Code: CodeCampaignNotFound, Message: fmt.Sprintf("failed to load campaigns: %v", err)}
	}
	c := campaign.ResolveSelected(campaigns, id)
	if c == nil {
		return nil, &Error{Code: CodeCampaignNotFound, Message: fmt.Sprintf("campaign %d not found", id)}
	}
	if cl, ok := o.backend.(ContextLoader); ok {
		cc, err := cl.GetCampaignContext(ctx, c.ID)
		switch {
		case err != nil:
			log.LoggerFromContext(ctx).Warn("no campaign context, searching the campaign keywords",
				slog.String("err", utils.ShortenString(err.Error(), maxLoggedErrorLength)))
		case len(cc.SearchTerms) > 0:
			c.Keywords = cc.SearchTerms
		}
	}
	var keywords []string
	for _, kw := range c.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && !slices.Contains(keywords, kw) {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil, &Error{Code: CodeNoKeywords, Message: fmt.Sprintf("campaign %q has no keywords", c.Name)}
	}
	var platforms []types.Platform
	for _, p := range c.Platforms {
		if p = types.ParsePlatform(string(p)); p != types.PlatformUnknown && !slices.Contains(platforms, p) {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil, &Error{Code: CodeNoPlatforms, Message: fmt.Sprintf("campaign %q targets no platforms", c.Name)}
	}
	c.Keywords = keywords
	c.Platforms = platforms
	return c, nil
}

func (o *Orchestrator) loop(ctx context.Context, r *run, st State) {
	logger := log.LoggerFromContext(ctx)

	// a cancel during campaign resolution must not count against the quota
	if st.cancelled() {
		o.finish(r, terminal(st))
		return
	}
	if rec, ok := o.backend.(SyncRecorder); ok && o.cfg.RecordSyncStart {
		if err := rec.RecordSyncStart(ctx, st.Campaign.ID); err != nil {
			logger.Error("sync start rejected", slog.String("err", utils.ShortenString(err.Error(), maxLoggedErrorLength)))
			p := st.Progress
			p.Status = types.SyncError
			p.Error = string(CodeSyncStartRejected)
			p.Message = err.Error()
			o.finish(r, p)
			return
		}
	}

	for !st.Done() {
		if st.cancelled() {
			break
		}
		st = o.RunStep(ctx, st)
		if st.Interrupted {
			break
		}
		o.emit(st.Progress)
		if !st.Done() && o.cfg.StepPause > 0 {
			select {
			case <-time.After(o.cfg.StepPause):
			case <-r.cancel:
			}
		}
	}
	o.finish(r, terminal(st))
}

// terminal returns the final snapshot of a run ending in state st.
func terminal(st State) types.SyncProgress {
	p := st.Progress
	p.FinishedAt = time.Now()
	summary := fmt.Sprintf("Found %d leads, submitted %d", p.LeadsFound, p.LeadsSubmitted)
	if f := st.failureSummary(); f != "" {
		summary += ". " + f
	}
	switch {
	case !st.Done() || st.Interrupted:
		p.Status = types.SyncCancelled
		p.Message = "Sync cancelled. " + summary
	case len(st.Steps) > 0 && st.FailedSteps == len(st.Steps):
		p.Status = types.SyncError
		p.Error = string(CodeAllStepsFailed)
		p.Message = "Every step failed. " + summary
	default:
		p.Status = types.SyncComplete
		p.Message = "Sync complete! " + summary
	}
	return p
}

// RunStep runs the next step of st and returns the resulting state. st is
// left untouched. If the run is cancelled while the results page is being
// fetched, the step is discarded and the returned state is marked
// Interrupted.
func (o *Orchestrator) RunStep(ctx context.Context, st State) State {
	if st.Done() {
		return st
	}
	step := st.Steps[st.Next]
	logger := log.LoggerFromContext(ctx).With(slog.String("platform", string(step.Platform)), slog.String("keyword", step.Keyword))

	doc, pageURL, err := o.pages.FetchPlatformSearchResults(ctx, step.Platform, step.Keyword)
	if st.cancelled() {
		next := st.clone()
		next.Interrupted = true
		return next
	}

	next := st.clone()
	next.Next++
	next.Progress.CurrentKeywordIndex = step.KeywordIndex
	next.Progress.CurrentKeyword = step.Keyword
	stepMsg := fmt.Sprintf("Keyword %d of %d (%s) on %s", step.KeywordIndex+1, next.Progress.TotalKeywords, step.Keyword, step.Platform)

	if err != nil {
		logger.Warn("platform unreachable", slog.String("err", utils.ShortenString(err.Error(), maxLoggedErrorLength)))
		next.FailedSteps++
		next.Notes = append(next.Notes, fmt.Sprintf("%s: %s unreachable for %q", CodePlatformUnreachable, step.Platform, step.Keyword))
		next.Progress.Message = joinMessage(stepMsg+": platform unreachable", next.failureSummary())
		return next
	}

	leads, skipped := o.extractor.ExtractItems(step.Platform, doc, pageURL, st.Campaign.Keywords)
	logger.Debug("extracted leads", slog.Int("leads", len(leads)), slog.Int("skipped", skipped))

	attempted, submitted, rejected := 0, 0, 0
	for _, lead := range leads {
		if o.cfg.MaxLeadsPerKeyword > 0 && attempted >= o.cfg.MaxLeadsPerKeyword {
			break
		}
		key := seenKey(lead)
		if next.Seen[key] {
			continue
		}
		next.Seen[key] = true
		attempted++
		next.Progress.LeadsFound++

		if err := o.limiter.Wait(ctx); err != nil {
			rejected++
			continue
		}
		_, err := o.backend.SubmitLead(ctx, st.Campaign.ID, lead)
		var de *api.DuplicateError
		switch {
		case err == nil:
			submitted++
			next.Progress.LeadsSubmitted++
		case errors.As(err, &de):
			next.Duplicates++
			logger.Debug("lead already known", slog.String("platform_id", lead.PlatformID))
		default:
			rejected++
			logger.Warn("lead rejected", slog.String("platform_id", lead.PlatformID), slog.String("err", utils.ShortenString(err.Error(), maxLoggedErrorLength)))
		}
	}

	next.Rejected += rejected
	if rejected > 0 {
		next.Notes = append(next.Notes, fmt.Sprintf("%s: %d leads from %s for %q", CodeSubmissionRejected, rejected, step.Platform, step.Keyword))
		if rejected == attempted {
			next.FailedSteps++
		}
	}
	next.Progress.Message = joinMessage(fmt.Sprintf("%s: %d new leads, %d submitted", stepMsg, attempted, submitted), next.failureSummary())
	return next
}

func joinMessage(msg, extra string) string {
	if extra == "" {
		return msg
	}
	return msg + ". " + extra
}

// emit records and publishes p. Publishing under the lock keeps the
// snapshots of consecutive runs in order.
func (o *Orchestrator) emit(p types.SyncProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = p
	o.broadcaster.Publish(p)
}

// finish publishes the terminal snapshot and frees the orchestrator for
// the next run.
func (o *Orchestrator) finish(r *run, p types.SyncProgress) {
	o.mu.Lock()
	o.progress = p
	o.broadcaster.Publish(p)
	o.busy = false
	o.mu.Unlock()
	close(r.done)
}
