package extract

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/leadsync/internal/classify"
	"github.com/jakopako/leadsync/internal/types"
)

func docFromString(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatalf("unexpected error while reading html string: %v", err)
	}
	return doc
}

func defaultExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewDefault()
	if err != nil {
		t.Fatalf("unexpected error while loading the default schema: %v", err)
	}
	return e
}

func TestExtractRedditPostWithoutTitle(t *testing.T) {
	u := "https://reddit.com/r/startups/comments/xyz"
	html := `<html><body><div data-test-id="post-content">Looking for a cofounder</div></body></html>`
	doc := docFromString(t, html)
	c := classify.Classify(u, doc)
	lead := defaultExtractor(t).Extract(c, doc, u)
	if lead == nil {
		t.Fatal("expected a lead but got nil")
	}
	if !strings.Contains(lead.Description, "Looking for a cofounder") {
		t.Errorf("expected description to contain 'Looking for a cofounder' but got %q", lead.Description)
	}
	if lead.Title != "Looking for a cofounder" {
		t.Errorf("expected title derived from description but got %q", lead.Title)
	}
	if lead.PlatformID != "xyz" {
		t.Errorf("expected platform id 'xyz' but got %q", lead.PlatformID)
	}
	if lead.Subreddit != "startups" {
		t.Errorf("expected subreddit 'startups' but got %q", lead.Subreddit)
	}
	if lead.Author != "Unknown" {
		t.Errorf("expected author 'Unknown' but got %q", lead.Author)
	}
	if err := lead.Validate(); err != nil {
		t.Errorf("expected a valid lead but got: %v", err)
	}
}

func TestExtractTitleCapped(t *testing.T) {
	title := strings.Repeat("a", 300)
	desc := strings.Repeat("é", 1500)
	html := `<div class="gig-page"><h1 class="text-display-5">` + title + `</h1><div class="description-content">` + desc + `</div></div>`
	u := "https://www.fiverr.com/gigs/seo-audit"
	doc := docFromString(t, html)
	lead := defaultExtractor(t).Extract(classify.Classify(u, doc), doc, u)
	if lead == nil {
		t.Fatal("expected a lead but got nil")
	}
	if lead.Title != title[:255] {
		t.Errorf("expected the first 255 characters of the title but got %d characters", len(lead.Title))
	}
	if n := len([]rune(lead.Description)); n != 1000 {
		t.Errorf("expected description of 1000 characters but got %d", n)
	}
	if lead.FiverrGigID != "seo-audit" {
		t.Errorf("expected gig id 'seo-audit' but got %q", lead.FiverrGigID)
	}
}

func TestExtractSelectorOrder(t *testing.T) {
	// the first locator yielding text wins even if a later one comes first
	// in the document
	html := `<h4 class="m-0">Second choice</h4><h2 itemprop="title">  First
	choice </h2><div itemprop="description">Need an SEO expert</div>`
	u := "https://www.upwork.com/jobs/~01abcdef"
	doc := docFromString(t, html)
	lead := defaultExtractor(t).Extract(types.PageClassification{Platform: types.PlatformUpwork, PageType: types.PageTypeJob}, doc, u)
	if lead == nil {
		t.Fatal("expected a lead but got nil")
	}
	if lead.Title != "First choice" {
		t.Errorf("expected title 'First choice' but got %q", lead.Title)
	}
	if lead.UpworkJobID != "01abcdef" {
		t.Errorf("expected job id '01abcdef' but got %q", lead.UpworkJobID)
	}
}

func TestExtractXPathFallback(t *testing.T) {
	html := `<html><head><meta property="og:title" content="Hiring a growth marketer"></head><body><div class="md">We are hiring</div></body></html>`
	u := "https://www.reddit.com/r/startups/comments/abc123/hiring/"
	doc := docFromString(t, html)
	lead := defaultExtractor(t).Extract(types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypePost}, doc, u)
	if lead == nil {
		t.Fatal("expected a lead but got nil")
	}
	if lead.Title != "Hiring a growth marketer" {
		t.Errorf("expected title from og:title but got %q", lead.Title)
	}
	if lead.PlatformID != "abc123" {
		t.Errorf("expected platform id 'abc123' but got %q", lead.PlatformID)
	}
}

func TestExtractReturnsNil(t *testing.T) {
	e := defaultExtractor(t)
	doc := docFromString(t, `<div><p>no title here</p></div>`)
	tests := []struct {
		name string
		c    types.PageClassification
	}{
		{"unknown", types.Unknown},
		{"unknown page type", types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypeUnknown}},
		{"listing page", types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypeSearch}},
		{"missing title", types.PageClassification{Platform: types.PlatformUpwork, PageType: types.PageTypeJob}},
		{"no schema", types.PageClassification{Platform: types.PlatformX, PageType: types.PageTypeGig}},
	}
	for _, tt := range tests {
		if lead := e.Extract(tt.c, doc, "https://www.upwork.com/jobs/~01"); lead != nil {
			t.Errorf("%s: expected nil but got %+v", tt.name, lead)
		}
	}
	if lead := e.Extract(types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypePost}, nil, ""); lead != nil {
		t.Errorf("expected nil for nil document but got %+v", lead)
	}
}

const redditSearchHTML = `<html><body>
<shreddit-post permalink="/r/startups/comments/aaa111/need_seo_help/" post-title="Need SEO help for my startup" author="alice">
  <div slot="text-body">Our marketing is going nowhere.</div>
</shreddit-post>
<shreddit-post permalink="/r/cooking/comments/bbb222/pasta/" post-title="Best pasta recipe" author="bob">
  <div slot="text-body">Any ideas?</div>
</shreddit-post>
<shreddit-post post-title="No link at all" author="carol"></shreddit-post>
<div data-testid="post-container">
  <h3>Looking for a marketng agency</h3>
  <a data-testid="post_author_link" href="/user/dave">u/dave</a>
  <a data-click-id="body" href="/r/smallbusiness/comments/ccc333/agency/">open</a>
</div>
</body></html>`

func TestExtractItems(t *testing.T) {
	doc := docFromString(t, redditSearchHTML)
	leads, skipped := defaultExtractor(t).ExtractItems(types.PlatformReddit, doc, "https://www.reddit.com/search/?q=seo", []string{"seo", "marketing"})
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads but got %d: %+v", len(leads), leads)
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped items but got %d", skipped)
	}
	first := leads[0]
	if first.URL != "https://www.reddit.com/r/startups/comments/aaa111/need_seo_help/" {
		t.Errorf("unexpected url %q", first.URL)
	}
	if first.PlatformID != "aaa111" || first.Author != "alice" || first.Subreddit != "startups" {
		t.Errorf("unexpected lead %+v", first)
	}
	if !slices.Equal(first.MatchedKeywords, []string{"seo", "marketing"}) {
		t.Errorf("expected matched keywords [seo marketing] but got %v", first.MatchedKeywords)
	}
	if first.ConfidenceScore != 10 {
		t.Errorf("expected confidence 10 but got %d", first.ConfidenceScore)
	}
	second := leads[1]
	if second.Title != "Looking for a marketng agency" || second.Author != "dave" {
		t.Errorf("unexpected lead %+v", second)
	}
	if !slices.Equal(second.MatchedKeywords, []string{"marketing"}) {
		t.Errorf("expected fuzzy match on 'marketing' but got %v", second.MatchedKeywords)
	}
}

func TestExtractItemsWithoutKeywords(t *testing.T) {
	doc := docFromString(t, redditSearchHTML)
	leads, _ := defaultExtractor(t).ExtractItems(types.PlatformReddit, doc, "https://www.reddit.com/search/?q=seo", nil)
	if len(leads) != 3 {
		t.Fatalf("expected 3 leads but got %d", len(leads))
	}
	for _, l := range leads {
		if l.ConfidenceScore != 5 {
			t.Errorf("expected neutral confidence for %q but got %d", l.Title, l.ConfidenceScore)
		}
	}
}

func TestExtractItemsLinkedInURN(t *testing.T) {
	html := `<div class="feed-shared-update-v2" data-urn="urn:li:activity:7123456789">
	<span class="update-components-actor__name">Jane Doe</span>
	<div class="update-components-text">We need help with SEO
	and content.</div></div>`
	doc := docFromString(t, html)
	leads, _ := defaultExtractor(t).ExtractItems(types.PlatformLinkedIn, doc, "https://www.linkedin.com/search/results/content/?keywords=seo", []string{"seo"})
	if len(leads) != 1 {
		t.Fatalf("expected 1 lead but got %d", len(leads))
	}
	l := leads[0]
	if l.URL != "https://www.linkedin.com/feed/update/urn:li:activity:7123456789/" {
		t.Errorf("unexpected url %q", l.URL)
	}
	if l.PlatformID != "7123456789" {
		t.Errorf("expected platform id '7123456789' but got %q", l.PlatformID)
	}
	if l.Title != "We need help with SEO" {
		t.Errorf("expected title from the first description line but got %q", l.Title)
	}
}

func TestExtractItemsStableIDs(t *testing.T) {
	e := defaultExtractor(t)
	doc := docFromString(t, redditSearchHTML)
	a, _ := e.ExtractItems(types.PlatformReddit, doc, "https://www.reddit.com/search/?q=seo", nil)
	b, _ := e.ExtractItems(types.PlatformReddit, doc, "https://www.reddit.com/search/?q=seo", nil)
	for i := range a {
		if a[i].PlatformID != b[i].PlatformID {
			t.Errorf("platform id not stable: %q != %q", a[i].PlatformID, b[i].PlatformID)
		}
	}
}

func TestPlatformID(t *testing.T) {
	tests := []struct {
		url      string
		c        types.PageClassification
		expected string
	}{
		{"https://www.reddit.com/r/startups/comments/xyz/title/", types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypePost}, "xyz"},
		{"https://www.reddit.com/user/spez", types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypeProfile}, "spez"},
		{"https://www.linkedin.com/posts/jane-doe_seo-activity-7123456789-abcd", types.PageClassification{Platform: types.PlatformLinkedIn, PageType: types.PageTypePost}, "7123456789"},
		{"https://www.linkedin.com/feed/update/urn:li:activity:7123456789/", types.PageClassification{Platform: types.PlatformLinkedIn, PageType: types.PageTypePost}, "7123456789"},
		{"https://www.linkedin.com/in/jane-doe/", types.PageClassification{Platform: types.PlatformLinkedIn, PageType: types.PageTypeProfile}, "jane-doe"},
		{"https://www.facebook.com/profile.php?id=100000", types.PageClassification{Platform: types.PlatformFacebook, PageType: types.PageTypeProfile}, "100000"},
		{"https://www.facebook.com/jane.doe", types.PageClassification{Platform: types.PlatformFacebook, PageType: types.PageTypeProfile}, "jane.doe"},
		{"https://www.facebook.com/permalink.php?story_fbid=42&id=1", types.PageClassification{Platform: types.PlatformFacebook, PageType: types.PageTypePost}, "42"},
		{"https://x.com/jack/status/20", types.PageClassification{Platform: types.PlatformX, PageType: types.PageTypePost}, "20"},
		{"https://x.com/jack", types.PageClassification{Platform: types.PlatformX, PageType: types.PageTypeProfile}, "jack"},
		{"https://www.fiverr.com/janedoe/do-an-seo-audit?context_referrer=search", types.PageClassification{Platform: types.PlatformFiverr, PageType: types.PageTypeGig}, "janedoe/do-an-seo-audit"},
		{"https://www.upwork.com/jobs/Senior-SEO_~01abc123/", types.PageClassification{Platform: types.PlatformUpwork, PageType: types.PageTypeJob}, "01abc123"},
	}
	for _, tt := range tests {
		if got := PlatformID(tt.url, tt.c); got != tt.expected {
			t.Errorf("PlatformID(%q) = %q; want %q", tt.url, got, tt.expected)
		}
	}
}

func TestPlatformIDHashFallback(t *testing.T) {
	c := types.PageClassification{Platform: types.PlatformFacebook, PageType: types.PageTypeSearch}
	a := PlatformID("https://www.facebook.com/search/posts/?q=seo&utm_source=x", c)
	b := PlatformID("https://facebook.com/search/posts?q=seo", c)
	if a != b {
		t.Errorf("expected equal ids for equivalent urls but got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "url_") {
		t.Errorf("expected hashed id but got %q", a)
	}
	d := PlatformID("https://facebook.com/search/posts?q=marketing", c)
	if a == d {
		t.Errorf("expected different ids for different urls but got %q twice", a)
	}
}

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		text     string
		keywords []string
		expected []string
	}{
		{"Need SEO help", []string{"seo"}, []string{"seo"}},
		{"need marketing and seo", []string{"seo", "marketing"}, []string{"seo", "marketing"}},
		{"looking for a marketng agency", []string{"marketing"}, []string{"marketing"}},
		{"looking for a seq wizard", []string{"seo"}, []string{}},
		{"content  strategy needed", []string{"Content Strategy"}, []string{"Content Strategy"}},
		{"seo seo", []string{"seo", "SEO"}, []string{"seo"}},
		{"anything", []string{""}, []string{}},
	}
	for _, tt := range tests {
		if got := MatchKeywords(tt.text, tt.keywords); !slices.Equal(got, tt.expected) {
			t.Errorf("MatchKeywords(%q, %v) = %v; want %v", tt.text, tt.keywords, got, tt.expected)
		}
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		title    string
		matched  []string
		total    int
		expected int
	}{
		{"anything", nil, 0, 5},
		{"anything", nil, 2, 0},
		{"seo", []string{"seo"}, 2, 8},
		{"other", []string{"seo"}, 2, 7},
		{"seo and marketing", []string{"seo", "marketing", "ads"}, 3, 10},
	}
	for _, tt := range tests {
		if got := ConfidenceScore(tt.title, tt.matched, tt.total); got != tt.expected {
			t.Errorf("ConfidenceScore(%q, %v, %d) = %d; want %d", tt.title, tt.matched, tt.total, got, tt.expected)
		}
	}
}

func TestDefaultSchemaCoversAllPlatforms(t *testing.T) {
	s, err := DefaultSchema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range types.Platforms {
		ps := s.platform(p)
		if ps == nil {
			t.Errorf("no schema for platform %s", p)
			continue
		}
		if page, ok := ps.Pages[types.PageTypeSearch]; !ok || page.Item == "" {
			t.Errorf("no search page item selector for platform %s", p)
		}
	}
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown platform", "platforms:\n  - platform: myspace\n    pages: {}\n"},
		{"duplicate platform", "platforms:\n  - platform: reddit\n  - platform: reddit\n"},
		{"missing title", "platforms:\n  - platform: reddit\n    pages:\n      post:\n        fields:\n          description: {}\n"},
		{"bad derive", "platforms:\n  - platform: reddit\n    pages:\n      post:\n        fields:\n          title:\n            derive_from: body\n"},
		{"invalid yaml", "platforms: [\n"},
	}
	for _, tt := range tests {
		if _, err := ParseSchema([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected an error but got nil", tt.name)
		}
	}
}

func TestLoadAndExportSchema(t *testing.T) {
	custom := `platforms:
  - platform: reddit
    version: "2"
    pages:
      post:
        fields:
          title:
            locators:
              - selector: .custom-title
`
	path := filepath.Join(t.TempDir(), "schema.yml")
	if err := os.WriteFile(path, []byte(custom), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := LoadSchema(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := s.platform(types.PlatformReddit).Version; v != "2" {
		t.Errorf("expected reddit schema version 2 but got %q", v)
	}
	if s.platform(types.PlatformUpwork) == nil {
		t.Error("expected missing platforms to be taken from the default schema")
	}

	doc := docFromString(t, `<p class="custom-title">Custom</p>`)
	lead := New(s).Extract(types.PageClassification{Platform: types.PlatformReddit, PageType: types.PageTypePost}, doc, "https://www.reddit.com/r/a/comments/b/")
	if lead == nil || lead.Title != "Custom" {
		t.Errorf("expected the custom schema to be used but got %+v", lead)
	}

	out, err := s.ExportSchema(types.PlatformReddit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), ".custom-title") || strings.Contains(string(out), "upwork") {
		t.Errorf("unexpected export:\n%s", out)
	}
	if _, err := s.ExportSchema(types.PlatformUnknown); err == nil {
		t.Error("expected an error when exporting an unknown platform")
	}
}
