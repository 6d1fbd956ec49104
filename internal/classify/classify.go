// Package classify assigns a (platform, page type) pair to a page based on
// its URL and, where the URL is ambiguous, landmarks in its DOM.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/leadsync/internal/types"
)

// Rule assigns PageType to a page if all of its conditions hold. Empty
// conditions are ignored but a rule needs at least one of Path and Landmark.
type Rule struct {
	PageType types.PageType
	// Path is matched against the URL path, followed by "?" and the raw
	// query if there is one.
	Path *regexp.Regexp
	// Exclude rejects the page if it matches the same string as Path.
	Exclude *regexp.Regexp
	// Landmark is a CSS selector that has to be present in the DOM.
	Landmark string
}

// HostRule maps a set of domains to a platform and lists that platform's
// page type rules in the order they are evaluated.
type HostRule struct {
	Domains  []string
	Platform types.Platform
	Rules    []Rule
}

// Classifier is a pure function of its rule table. It holds no state
// besides the rules and is safe for concurrent use.
type Classifier struct {
	hosts []HostRule
}

// New returns a classifier for the given host table. The first host rule
// matching a URL decides the platform.
func New(hosts []HostRule) *Classifier {
	return &Classifier{hosts: hosts}
}

var defaultClassifier = New(DefaultHostRules)

// Classify classifies a page using the default rule table.
func Classify(rawURL string, doc *goquery.Document) types.PageClassification {
	return defaultClassifier.Classify(rawURL, doc)
}

// ClassifyHTML parses htmlStr and classifies the page using the default rule table.
// Unparsable html is treated as an empty DOM.
func ClassifyHTML(rawURL, htmlStr string) types.PageClassification {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		doc = nil
	}
	return defaultClassifier.Classify(rawURL, doc)
}

// Classify returns the classification of the page at rawURL. doc may be nil
// in which case rules depending on DOM landmarks never match. If the host is
// not known, or no page type rule matches, types.Unknown is returned.
func (c *Classifier) Classify(rawURL string, doc *goquery.Document) types.PageClassification {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return types.Unknown
	}
	hr, ok := c.hostRule(u.Hostname())
	if !ok {
		return types.Unknown
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	for _, r := range hr.Rules {
		if r.matches(target, doc) {
			return types.PageClassification{Platform: hr.Platform, PageType: r.PageType}
		}
	}
	return types.Unknown
}

func (c *Classifier) hostRule(host string) (HostRule, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, hr := range c.hosts {
		for _, d := range hr.Domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return hr, true
			}
		}
	}
	return HostRule{}, false
}

func (r Rule) matches(target string, doc *goquery.Document) bool {
	if r.Path == nil && r.Landmark == "" {
		return false
	}
	if r.Path != nil && !r.Path.MatchString(target) {
		return false
	}
	if r.Exclude != nil && r.Exclude.MatchString(target) {
		return false
	}
	if r.Landmark != "" {
		if doc == nil || doc.Find(r.Landmark).Length() == 0 {
			return false
		}
	}
	return true
}
