package fetch

import (
	"fmt"
	"net/url"

	"github.com/jakopako/leadsync/internal/types"
)

var searchURLs = map[types.Platform]string{
	types.PlatformReddit:   "https://www.reddit.com/search/?q=%s&type=link&sort=relevance&t=week",
	types.PlatformLinkedIn: "https://www.linkedin.com/search/results/content/?keywords=%s",
	types.PlatformX:        "https://x.com/search?q=%s&src=typed_query&f=live",
	types.PlatformFacebook: "https://www.facebook.com/search/posts/?q=%s",
	types.PlatformFiverr:   "https://www.fiverr.com/search/gigs?query=%s",
	types.PlatformUpwork:   "https://www.upwork.com/nx/search/jobs/?q=%s&sort=recency",
}

// SearchURL returns the url of the search results for keyword on p.
func SearchURL(p types.Platform, keyword string) (string, error) {
	tmpl, ok := searchURLs[p]
	if !ok {
		return "", fmt.Errorf("no search url for platform %q", p)
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(keyword)), nil
}

// searchInteractions returns the interactions needed to load a useful
// number of results. Feeds with infinite scrolling get scrolled a few times.
func searchInteractions(p types.Platform) []*types.Interaction {
	switch p {
	case types.PlatformLinkedIn, types.PlatformX, types.PlatformFacebook, types.PlatformReddit:
		return []*types.Interaction{{Type: types.InteractionTypeScroll, Count: 3, Delay: 1500}}
	default:
		return nil
	}
}
