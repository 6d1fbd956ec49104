package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/leadsync/internal/classify"
	"github.com/jakopako/leadsync/internal/extract"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
)

const DefaultTimeout = 30 * time.Second

var (
	// ErrNotActionable is returned for captures of pages that no
	// classification rule matches.
	ErrNotActionable = errors.New("page is not actionable")
	// ErrNoLead is returned if a classified page has no title.
	ErrNoLead = errors.New("no lead found on page")
)

// Provider supplies page content to the sync orchestrator and to manual
// captures. Every request is bounded by a timeout, even if the underlying
// fetcher does not honor its context.
type Provider struct {
	fetcher   Fetcher
	extractor *extract.Extractor
	timeout   time.Duration
}

func NewProvider(f Fetcher, e *extract.Extractor, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Provider{fetcher: f, extractor: e, timeout: timeout}
}

// FetchPlatformSearchResults loads the search results for keyword on
// platform and returns them together with the url they were loaded from.
func (p *Provider) FetchPlatformSearchResults(ctx context.Context, platform types.Platform, keyword string) (*goquery.Document, string, error) {
	u, err := SearchURL(platform, keyword)
	if err != nil {
		return nil, "", err
	}
	doc, err := p.fetchDocument(ctx, u, FetchOpts{Interaction: searchInteractions(platform)})
	return doc, u, err
}

// ExtractCurrentPageData fetches a single page, classifies it and extracts
// the lead it describes.
func (p *Provider) ExtractCurrentPageData(ctx context.Context, pageURL string) (*types.CandidateLead, types.PageClassification, error) {
	doc, err := p.fetchDocument(ctx, pageURL, FetchOpts{})
	if err != nil {
		return nil, types.Unknown, err
	}
	c := classify.Classify(pageURL, doc)
	if !c.Actionable() {
		return nil, c, ErrNotActionable
	}
	lead := p.extractor.Extract(c, doc, pageURL)
	if lead == nil {
		return nil, c, ErrNoLead
	}
	return lead, c, nil
}

type fetchResult struct {
	content string
	err     error
}

func (p *Provider) fetchDocument(ctx context.Context, u string, opts FetchOpts) (*goquery.Document, error) {
	logger := log.LoggerFromContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		content, err := p.fetcher.Fetch(ctx, u, opts)
		ch <- fetchResult{content, err}
	}()
	var res fetchResult
	select {
	case <-ctx.Done():
		logger.Debug("giving up on page", slog.String("url", u))
		return nil, &Error{URL: u, Message: fmt.Sprintf("no response within %v", p.timeout), Cause: ctx.Err()}
	case res = <-ch:
	}
	if res.err != nil {
		return nil, res.err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.content))
	if err != nil {
		return nil, &Error{URL: u, Message: "failed to parse page", Cause: err}
	}
	return doc, nil
}
