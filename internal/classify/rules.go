package classify

import (
	"regexp"

	"github.com/jakopako/leadsync/internal/types"
)

// DefaultHostRules is the fixed host-to-platform table. Within a platform
// the more specific rules come first.
var DefaultHostRules = []HostRule{
	{
		Domains:  []string{"reddit.com"},
		Platform: types.PlatformReddit,
		Rules: []Rule{
			{PageType: types.PageTypePost, Path: regexp.MustCompile(`^/r/[\w-]+/comments/[\w-]+`)},
			{PageType: types.PageTypeProfile, Path: regexp.MustCompile(`^/(user|u)/[\w-]+/?(\?|$)`)},
			{PageType: types.PageTypeSearch, Path: regexp.MustCompile(`^(/r/[\w-]+)?/search/?(\?|$)`)},
			{PageType: types.PageTypeCommunity, Path: regexp.MustCompile(`^/r/[\w-]+/?((hot|new|top|rising)/?)?(\?|$)`)},
			{PageType: types.PageTypePost, Landmark: `[data-test-id="post-content"]`},
		},
	},
	{
		Domains:  []string{"linkedin.com"},
		Platform: types.PlatformLinkedIn,
		Rules: []Rule{
			{PageType: types.PageTypeGroup, Path: regexp.MustCompile(`^/groups/[\w-]+`)},
			{PageType: types.PageTypeProfile, Path: regexp.MustCompile(`^/in/[\w%-]+/?(\?|$)`)},
			{PageType: types.PageTypePost, Path: regexp.MustCompile(`^/posts/|^/feed/update/`)},
			{PageType: types.PageTypeJob, Path: regexp.MustCompile(`^/jobs/view/\d+`)},
			{PageType: types.PageTypeSearch, Path: regexp.MustCompile(`^/search/results/|^/feed/?(\?|$)`)},
			{PageType: types.PageTypeCommunity, Path: regexp.MustCompile(`^/company/[\w-]+`)},
		},
	},
	{
		Domains:  []string{"facebook.com", "fb.com"},
		Platform: types.PlatformFacebook,
		Rules: []Rule{
			{PageType: types.PageTypeGroup, Path: regexp.MustCompile(`^/groups/[\w.-]+`)},
			{PageType: types.PageTypeSearch, Path: regexp.MustCompile(`^/search/|sk=h_chr`)},
			{PageType: types.PageTypePost, Path: regexp.MustCompile(`/posts/|/permalink/|^/photo\.php|^/story\.php|fbid=\d+`)},
			{PageType: types.PageTypeProfile, Path: regexp.MustCompile(`^/profile\.php\?id=\d+|^/people/[\w-]+|^/[\w.]+/?(\?|$)`)},
		},
	},
	{
		Domains:  []string{"x.com", "twitter.com"},
		Platform: types.PlatformX,
		Rules: []Rule{
			{PageType: types.PageTypePost, Path: regexp.MustCompile(`^/\w+/status/\d+`)},
			{PageType: types.PageTypeSearch, Path: regexp.MustCompile(`^/search(/|\?|$)|^/home/?(\?|$)`)},
			{PageType: types.PageTypeCommunity, Path: regexp.MustCompile(`^/i/communities/\d+`)},
			{
				PageType: types.PageTypeProfile,
				Path:     regexp.MustCompile(`^/\w{1,15}/?(\?|$)`),
				Exclude:  regexp.MustCompile(`^/(explore|notifications|messages|settings|i|login|signup|tos|privacy)/?(\?|$)`),
			},
		},
	},
	{
		Domains:  []string{"fiverr.com"},
		Platform: types.PlatformFiverr,
		Rules: []Rule{
			{PageType: types.PageTypeSearch, Path: regexp.MustCompile(`^/search/gigs|^/categories/`)},
			{PageType: types.PageTypeGig, Path: regexp.MustCompile(`^/gigs?/[\w-]+`)},
			{PageType: types.PageTypeGig, Path: regexp.MustCompile(`^/[\w-]+/[\w-]+/?(\?|$)`), Landmark: `.gig-page, [data-testid="gig-page"], .gig-overview`},
			{PageType: types.PageTypeProfile, Path: regexp.MustCompile(`^/[\w-]+/?(\?|$)`)},
		},
	},
	{
		Domains:  []string{"upwork.com"},
		Platform: types.PlatformUpwork,
		Rules: []Rule{
			{PageType: types.PageTypeSearch, Path: regexp.MustCompile(`^/nx/search/jobs|^/jobs/search/|^/nx/find-work`)},
			{PageType: types.PageTypeJob, Path: regexp.MustCompile(`^/jobs/[\w~-]+|^/freelance-jobs/apply/`)},
			{PageType: types.PageTypeProfile, Path: regexp.MustCompile(`^/freelancers/|/~\w+`)},
		},
	},
}
