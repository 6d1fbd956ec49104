package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jakopako/leadsync/internal/cache"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
)

// LeadID is the backend's id of a submitted lead.
type LeadID string

// Lead is a lead as stored by the backend.
type Lead struct {
	ID          int64          `json:"id"`
	CampaignID  int64          `json:"campaign_id"`
	Platform    types.Platform `json:"platform"`
	PlatformID  string         `json:"platform_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Author      string         `json:"author"`
	URL         string         `json:"url"`
	Status      string         `json:"status"`
	CreatedAt   string         `json:"created_at"`
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	From        int `json:"from"`
	To          int `json:"to"`
}

type LeadsPage struct {
	Leads      []Lead     `json:"leads"`
	Pagination Pagination `json:"pagination"`
}

// LeadsQuery selects a page of leads. Empty filters and "all" match everything.
type LeadsQuery struct {
	Page     int
	PerPage  int
	Search   string
	Platform string
	Status   string
}

func (q LeadsQuery) normalized() LeadsQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 20
	}
	if q.Platform == "all" {
		q.Platform = ""
	}
	if q.Status == "all" {
		q.Status = ""
	}
	return q
}

func (q LeadsQuery) filtered() bool {
	return q.Search != "" || q.Platform != "" || q.Status != ""
}

func (q LeadsQuery) values() url.Values {
	v := url.Values{}
	v.Set("per_page", strconv.Itoa(q.PerPage))
	v.Set("page", strconv.Itoa(q.Page))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Platform != "" {
		v.Set("platform", q.Platform)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

// SubmitLead validates lead and submits it to campaign campaignID. On
// success the cached leads and stats are invalidated before returning.
func (c *Client) SubmitLead(ctx context.Context, campaignID int64, lead types.CandidateLead) (LeadID, error) {
	if err := lead.Validate(); err != nil {
		return "", &ValidationError{Message: err.Error()}
	}
	path := fmt.Sprintf("/api/campaigns/%d/leads", campaignID)
	b, err := c.request(ctx, http.MethodPost, path, lead, true)
	if err != nil {
		var de *DuplicateError
		if errors.As(err, &de) {
			de.PlatformID = lead.PlatformID
		}
		return "", err
	}
	c.InvalidateLeads()
	c.InvalidateStats()

	e, err := parseEnvelope(b)
	if err != nil {
		// the lead was stored, an unreadable confirmation is not an error
		log.LoggerFromContext(ctx).Warn("unexpected response to lead submission", slog.String("err", err.Error()))
		return "", nil
	}
	return LeadID(e.text("data/id", "data/lead/id", "lead/id", "id")), nil
}

// GetLeads returns a page of leads. Only the unfiltered first page is cached.
func (c *Client) GetLeads(ctx context.Context, q LeadsQuery, useCache bool) (*LeadsPage, error) {
	q = q.normalized()
	v := q.values()
	fetch := func(ctx context.Context) (*LeadsPage, error) {
		b, err := c.request(ctx, http.MethodGet, "/api/leads?"+v.Encode(), nil, true)
		if err != nil {
			return nil, err
		}
		e, err := parseEnvelope(b)
		if err != nil {
			return nil, err
		}
		page := &LeadsPage{}
		if err := e.decodeList(&page.Leads, "data/leads", "leads", "data"); err != nil {
			return nil, err
		}
		if e.find("data/pagination", "pagination") != nil {
			if err := e.decode(&page.Pagination, "data/pagination", "pagination"); err != nil {
				return nil, err
			}
		} else {
			page.Pagination = Pagination{CurrentPage: q.Page, LastPage: 1, PerPage: q.PerPage, Total: len(page.Leads), From: 1, To: len(page.Leads)}
		}
		if page.Leads == nil {
			page.Leads = []Lead{}
		}
		return page, nil
	}
	if q.Page != 1 || q.filtered() {
		return fetch(ctx)
	}
	return cache.Get(ctx, c.cache, cache.LeadsKey(v.Encode()), c.ttls.Leads, fetch, useCache)
}
