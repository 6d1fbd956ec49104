package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jakopako/leadsync/internal/cache"
	"github.com/jakopako/leadsync/internal/types"
)

// ErrSyncStartRejected is returned if the backend refuses to record a sync
// start, e.g. because the plan's quota is used up.
var ErrSyncStartRejected = errors.New("sync start rejected")

// GetCampaigns returns the user's campaigns. Unless forceRefresh is set a
// cached copy younger than the campaigns ttl is returned.
func (c *Client) GetCampaigns(ctx context.Context, forceRefresh bool) ([]types.Campaign, error) {
	return cache.Get(ctx, c.cache, cache.CampaignsKey, c.ttls.Campaigns, func(ctx context.Context) ([]types.Campaign, error) {
		b, err := c.request(ctx, http.MethodGet, "/api/campaigns", nil, true)
		if err != nil {
			return nil, err
		}
		e, err := parseEnvelope(b)
		if err != nil {
			return nil, err
		}
		campaigns := []types.Campaign{}
		if err := e.decodeList(&campaigns, "data/campaigns", "campaigns", "data"); err != nil {
			return nil, err
		}
		for i := range campaigns {
			normalizeCampaign(&campaigns[i])
		}
		return campaigns, nil
	}, !forceRefresh)
}

// CampaignContext is everything needed to sync a campaign in one response.
// The selector schemas the backend sends along are in its own format and
// are not decoded.
type CampaignContext struct {
	Campaign    types.Campaign `json:"campaign"`
	SearchTerms []string       `json:"search_terms"`
}

// GetCampaignContext returns the campaign together with the search terms
// generated for it. It bypasses the cache.
func (c *Client) GetCampaignContext(ctx context.Context, id int64) (*CampaignContext, error) {
	b, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/api/extension/campaigns/%d/context", id), nil, true)
	if err != nil {
		return nil, err
	}
	e, err := parseEnvelope(b)
	if err != nil {
		return nil, err
	}
	cc := &CampaignContext{}
	if err := e.decode(cc, "data"); err != nil {
		return nil, err
	}
	normalizeCampaign(&cc.Campaign)
	return cc, nil
}

// RecordSyncStart records the start of a sync for quota tracking. It is
// never retried, a failure has to stop the sync right away.
func (c *Client) RecordSyncStart(ctx context.Context, campaignID int64) error {
	body := map[string]int64{"campaign_id": campaignID}
	b, err := c.request(ctx, http.MethodPost, "/api/extension/record-sync-start", body, false)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSyncStartRejected, err)
	}
	e, err := parseEnvelope(b)
	if err != nil {
		return nil
	}
	if e.text("success") == "false" {
		msg := e.text("message")
		if msg == "" {
			msg = "no reason given"
		}
		return fmt.Errorf("%w: %s", ErrSyncStartRejected, msg)
	}
	return nil
}

// normalizeCampaign maps legacy platform names and drops unknown ones.
func normalizeCampaign(c *types.Campaign) {
	platforms := c.Platforms[:0]
	for _, p := range c.Platforms {
		if np := types.ParsePlatform(string(p)); np != types.PlatformUnknown {
			platforms = append(platforms, np)
		}
	}
	c.Platforms = platforms
	if c.Status == "" {
		c.Status = types.CampaignActive
	}
}
