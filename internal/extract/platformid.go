package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"github.com/jakopako/leadsync/internal/types"
)

type idPattern struct {
	platform types.Platform
	pageType types.PageType
	exp      *regexp.Regexp
}

// The first non-empty capture group of the first matching pattern is the id.
// Patterns starting with ^ are matched against the path only, all others
// against host, path and query.
var idPatterns = []idPattern{
	{types.PlatformReddit, types.PageTypePost, regexp.MustCompile(`/comments/([\w-]+)`)},
	{types.PlatformReddit, types.PageTypeProfile, regexp.MustCompile(`/u(?:ser)?/([\w-]+)`)},
	{types.PlatformReddit, types.PageTypeCommunity, regexp.MustCompile(`/r/([\w-]+)`)},
	{types.PlatformLinkedIn, types.PageTypePost, regexp.MustCompile(`activity[:-](\d+)`)},
	{types.PlatformLinkedIn, types.PageTypePost, regexp.MustCompile(`urn(?::|%3A)li(?::|%3A)(?:share|ugcPost)(?::|%3A)(\d+)`)},
	{types.PlatformLinkedIn, types.PageTypePost, regexp.MustCompile(`/posts/([^/?#]+)`)},
	{types.PlatformLinkedIn, types.PageTypeProfile, regexp.MustCompile(`/in/([\w-]+)`)},
	{types.PlatformLinkedIn, types.PageTypeGroup, regexp.MustCompile(`/groups/([\w-]+)`)},
	{types.PlatformLinkedIn, types.PageTypeJob, regexp.MustCompile(`/jobs/view/(\d+)`)},
	{types.PlatformLinkedIn, types.PageTypeCommunity, regexp.MustCompile(`/company/([\w-]+)`)},
	{types.PlatformFacebook, types.PageTypePost, regexp.MustCompile(`/posts/([\w]+)|story_fbid=(\d+)|fbid=(\d+)|/permalink/(\d+)`)},
	{types.PlatformFacebook, types.PageTypeProfile, regexp.MustCompile(`[?&]id=(\d+)`)},
	{types.PlatformFacebook, types.PageTypeProfile, regexp.MustCompile(`facebook\.com/([\w.]+)`)},
	{types.PlatformFacebook, types.PageTypeGroup, regexp.MustCompile(`/groups/([\w.-]+)`)},
	{types.PlatformX, types.PageTypePost, regexp.MustCompile(`/status/(\d+)`)},
	{types.PlatformX, types.PageTypeCommunity, regexp.MustCompile(`/i/communities/(\d+)`)},
	{types.PlatformX, types.PageTypeProfile, regexp.MustCompile(`^/(\w+)/?$`)},
	{types.PlatformFiverr, types.PageTypeGig, regexp.MustCompile(`/gigs?/([\w-]+)`)},
	{types.PlatformFiverr, types.PageTypeGig, regexp.MustCompile(`^/([\w.-]+/[\w-]+)`)},
	{types.PlatformFiverr, types.PageTypeProfile, regexp.MustCompile(`^/([\w.-]+)/?$`)},
	{types.PlatformUpwork, types.PageTypeJob, regexp.MustCompile(`/jobs/(?:[\w-]*_)?~([0-9a-f]+)|/jobs?/([\w-]+)`)},
	{types.PlatformUpwork, types.PageTypeProfile, regexp.MustCompile(`/freelancers/~?([\w-]+)`)},
}

// PlatformID returns the canonical id of the object at rawURL. The same
// object always yields the same id. If no pattern applies the id is derived
// from a hash of the normalized URL.
func PlatformID(rawURL string, c types.PageClassification) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return hashID(rawURL)
	}
	for _, p := range idPatterns {
		if p.platform != c.Platform || p.pageType != c.PageType {
			continue
		}
		target := u.EscapedPath()
		if !strings.HasPrefix(p.exp.String(), "^") {
			target = u.Host + target
			if u.RawQuery != "" {
				target += "?" + u.RawQuery
			}
		}
		if id := firstGroup(p.exp, target); id != "" {
			return id
		}
	}
	return hashID(normalizeURL(u))
}

func firstGroup(exp *regexp.Regexp, s string) string {
	m := exp.FindStringSubmatch(s)
	for _, g := range m[min(1, len(m)):] {
		if g != "" {
			return g
		}
	}
	return ""
}

// normalizeURL drops the scheme, the fragment, tracking parameters and
// trailing slashes so that trivially different links to the same page
// compare equal.
func normalizeURL(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") || k == "ref" || k == "refId" || k == "trackingId" {
			q.Del(k)
		}
	}
	s := host + path
	if enc := q.Encode(); enc != "" {
		s += "?" + enc
	}
	return s
}

func hashID(s string) string {
	sum := sha1.Sum([]byte(s))
	return "url_" + hex.EncodeToString(sum[:])[:16]
}
