package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jakopako/leadsync/internal/cache"
)

type Activity struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ActivityPage struct {
	Data        []Activity `json:"data"`
	CurrentPage int        `json:"current_page"`
	PerPage     int        `json:"per_page"`
	Total       int        `json:"total"`
	LastPage    int        `json:"last_page"`
}

type Stats struct {
	TotalLeads      int            `json:"totalLeads"`
	LeadsByPlatform map[string]int `json:"leadsByPlatform"`
	ActiveCampaigns int            `json:"activeCampaigns"`
	RecentActivity  ActivityPage   `json:"recentActivity"`
}

// GetStats returns the dashboard stats with the given page of recent
// activity. Only the first page is cached.
func (c *Client) GetStats(ctx context.Context, page, perPage int, useCache bool) (*Stats, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 5
	}
	fetch := func(ctx context.Context) (*Stats, error) {
		v := url.Values{}
		v.Set("activity_page", strconv.Itoa(page))
		v.Set("activity_per_page", strconv.Itoa(perPage))
		b, err := c.request(ctx, http.MethodGet, "/api/stats?"+v.Encode(), nil, true)
		if err != nil {
			return nil, err
		}
		e, err := parseEnvelope(b)
		if err != nil {
			return nil, err
		}
		s := &Stats{}
		if err := e.decode(s, "data/stats", "stats", "data"); err != nil {
			return nil, err
		}
		return s, nil
	}
	if page != 1 {
		return fetch(ctx)
	}
	return cache.Get(ctx, c.cache, cache.StatsKey(page, perPage), c.ttls.Stats, fetch, useCache)
}
