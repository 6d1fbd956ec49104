// Package extract pulls candidate leads out of classified pages using a
// declarative per platform schema of ordered selector candidates.
package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/jakopako/leadsync/internal/classify"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/jakopako/leadsync/internal/utils"
)

const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
	MaxAuthorLength      = 255
	// maxDerivedTitleLength applies to titles taken from the first line of
	// the description.
	maxDerivedTitleLength = 200
	unknownAuthor         = "Unknown"
)

var (
	subredditExp   = regexp.MustCompile(`/r/([\w-]+)`)
	groupExp       = regexp.MustCompile(`/groups/([\w.-]+)`)
	communityExp   = regexp.MustCompile(`/i/communities/(\d+)`)
	authorPrefixes = []string{"u/", "@"}
)

// Extractor is safe for concurrent use as long as its schema is not modified.
type Extractor struct {
	schema     *Schema
	classifier *classify.Classifier
}

// New returns an extractor for schema. Result items are classified with
// the default classification rules.
func New(schema *Schema) *Extractor {
	return &Extractor{
		schema:     schema,
		classifier: classify.New(classify.DefaultHostRules),
	}
}

// NewDefault returns an extractor using the embedded schema.
func NewDefault() (*Extractor, error) {
	s, err := DefaultSchema()
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

// Schema returns the schema the extractor was created with.
func (e *Extractor) Schema() *Schema {
	return e.schema
}

// Extract returns the lead described by a single page, or nil if the page
// is not actionable, is a listing page, or has no title.
func (e *Extractor) Extract(c types.PageClassification, doc *goquery.Document, pageURL string) *types.CandidateLead {
	if !c.Actionable() || doc == nil {
		return nil
	}
	page := e.schema.page(c)
	if page == nil || page.Item != "" {
		return nil
	}
	values := locateFields(page, doc.Selection)
	return buildLead(c, values, pageURL)
}

// ExtractItems extracts one lead per result item of a platform's search
// page. Items without a link or a title are skipped. If keywords is not
// empty, items matching none of them are skipped as well. The number of
// skipped items is returned alongside the leads.
func (e *Extractor) ExtractItems(platform types.Platform, doc *goquery.Document, pageURL string, keywords []string) ([]types.CandidateLead, int) {
	if doc == nil {
		return nil, 0
	}
	page := e.schema.page(types.PageClassification{Platform: platform, PageType: types.PageTypeSearch})
	if page == nil || page.Item == "" {
		return nil, 0
	}
	logger := slog.With(slog.String("platform", string(platform)))
	var leads []types.CandidateLead
	skipped := 0
	doc.Find(page.Item).Each(func(i int, s *goquery.Selection) {
		values := locateFields(page, s)
		itemURL := resolveURL(values["url"], pageURL)
		if itemURL == "" {
			logger.Debug("skipping item without link", slog.Int("item", i))
			skipped++
			return
		}
		c := e.classifier.Classify(itemURL, nil)
		if !c.Actionable() || c.Platform != platform {
			c = types.PageClassification{Platform: platform, PageType: page.ItemType}
		}
		lead := buildLead(c, values, itemURL)
		if lead == nil {
			logger.Debug("skipping item without title", slog.String("url", itemURL))
			skipped++
			return
		}
		if len(keywords) > 0 {
			lead.MatchedKeywords = MatchKeywords(lead.Title+" "+lead.Description, keywords)
			if len(lead.MatchedKeywords) == 0 {
				skipped++
				return
			}
		}
		lead.ConfidenceScore = ConfidenceScore(lead.Title, lead.MatchedKeywords, len(keywords))
		leads = append(leads, *lead)
	})
	return leads, skipped
}

func buildLead(c types.PageClassification, values map[string]string, leadURL string) *types.CandidateLead {
	title := utils.TruncateRunes(utils.NormalizeSpace(values["title"]), MaxTitleLength)
	if title == "" {
		return nil
	}
	author := utils.NormalizeSpace(values["author"])
	for _, p := range authorPrefixes {
		author = strings.TrimPrefix(author, p)
	}
	if author == "" {
		author = unknownAuthor
	}
	lead := &types.CandidateLead{
		Platform:        c.Platform,
		PlatformID:      utils.TruncateRunes(PlatformID(leadURL, c), 255),
		Title:           title,
		Description:     utils.TruncateRunes(utils.NormalizeSpace(values["description"]), MaxDescriptionLength),
		Author:          utils.TruncateRunes(author, MaxAuthorLength),
		URL:             leadURL,
		MatchedKeywords: []string{},
		ConfidenceScore: ConfidenceScore(title, nil, 0),
	}
	enrich(lead, c)
	return lead
}

// enrich fills the platform specific context fields.
func enrich(lead *types.CandidateLead, c types.PageClassification) {
	switch c.Platform {
	case types.PlatformReddit:
		lead.Subreddit = firstGroup(subredditExp, lead.URL)
	case types.PlatformFacebook:
		lead.FacebookGroup = firstGroup(groupExp, lead.URL)
	case types.PlatformLinkedIn:
		lead.LinkedInGroup = firstGroup(groupExp, lead.URL)
	case types.PlatformX:
		lead.TwitterCommunity = firstGroup(communityExp, lead.URL)
	case types.PlatformFiverr:
		if c.PageType == types.PageTypeGig {
			lead.FiverrGigID = lead.PlatformID
		}
	case types.PlatformUpwork:
		if c.PageType == types.PageTypeJob {
			lead.UpworkJobID = lead.PlatformID
		}
	}
}

// locateFields returns the raw value of every field of page below root.
func locateFields(page *PageSchema, root *goquery.Selection) map[string]string {
	values := make(map[string]string, len(page.Fields))
	for name, f := range page.Fields {
		for _, l := range f.Locators {
			v, err := l.locate(root)
			if err != nil {
				slog.Debug("locator failed", slog.String("field", name), slog.Any("error", err))
				continue
			}
			if strings.TrimSpace(v) != "" {
				values[name] = v
				break
			}
		}
	}
	for name, f := range page.Fields {
		if strings.TrimSpace(values[name]) != "" {
			continue
		}
		if f.DeriveFrom != "" {
			values[name] = firstLine(values[f.DeriveFrom], maxDerivedTitleLength)
		}
		if strings.TrimSpace(values[name]) == "" {
			values[name] = f.Fallback
		}
	}
	return values
}

func (l Locator) locate(root *goquery.Selection) (string, error) {
	var v string
	switch {
	case l.Selector != "":
		sel := root.Find(l.Selector).First()
		if sel.Length() > 0 {
			if l.Attr != "" {
				v = sel.AttrOr(l.Attr, "")
			} else {
				v = sel.Text()
			}
		}
		if strings.TrimSpace(v) == "" && l.XPath != "" {
			var err error
			if v, err = l.locateXPath(root); err != nil {
				return "", err
			}
		}
	case l.XPath != "":
		var err error
		if v, err = l.locateXPath(root); err != nil {
			return "", err
		}
	default:
		if l.Attr != "" {
			v = root.AttrOr(l.Attr, "")
		} else {
			v = root.Text()
		}
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	if l.RegexExtract.Exp != "" {
		var err error
		if v, err = extractStringRegex(&l.RegexExtract, v); err != nil {
			return "", err
		}
	}
	if l.Format != "" {
		v = strings.ReplaceAll(l.Format, "{}", v)
	}
	return v, nil
}

func (l Locator) locateXPath(root *goquery.Selection) (string, error) {
	for _, top := range root.Nodes {
		n, err := htmlquery.Query(top, l.XPath)
		if err != nil {
			return "", fmt.Errorf("invalid xpath %q: %w", l.XPath, err)
		}
		if n == nil {
			continue
		}
		if l.Attr != "" {
			return htmlquery.SelectAttr(n, l.Attr), nil
		}
		return htmlquery.InnerText(n), nil
	}
	return "", nil
}

func extractStringRegex(rc *RegexConfig, s string) (string, error) {
	regex, err := regexp.Compile(rc.Exp)
	if err != nil {
		return "", err
	}
	matches := regex.FindAllString(s, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("no matching strings found for regex: %s", rc.Exp)
	}
	if rc.Index == -1 {
		return matches[len(matches)-1], nil
	}
	if rc.Index >= len(matches) {
		return "", fmt.Errorf("regex index out of bounds. regex '%s' gave only %d matches", rc.Exp, len(matches))
	}
	return matches[rc.Index], nil
}

// firstLine returns the first non-empty line of s cut to n runes.
func firstLine(s string, n int) string {
	for line := range strings.Lines(s) {
		if t := strings.TrimSpace(line); t != "" {
			return utils.TruncateRunes(utils.NormalizeSpace(t), n)
		}
	}
	return ""
}

// resolveURL makes href absolute with respect to base. Anything that is not
// an http(s) URL afterwards is dropped.
func resolveURL(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if b, err := url.Parse(base); err == nil {
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
