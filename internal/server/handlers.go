package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jakopako/leadsync/internal/api"
	"github.com/jakopako/leadsync/internal/campaign"
	"github.com/jakopako/leadsync/internal/fetch"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/syncer"
	"github.com/jakopako/leadsync/internal/types"
)

type startRequest struct {
	CampaignID int64 `json:"campaign_id"`
}

type startResponse struct {
	RunID    string             `json:"runId"`
	Progress types.SyncProgress `json:"progress"`
}

type campaignsResponse struct {
	Campaigns          []types.Campaign `json:"campaigns"`
	SelectedCampaignID int64            `json:"selectedCampaignId"`
	// AutoSelectedCampaignID is the campaign captures on the requested
	// platform go to without asking, 0 if the user has to choose.
	AutoSelectedCampaignID int64 `json:"autoSelectedCampaignId"`
}

type captureRequest struct {
	URL        string `json:"url"`
	CampaignID int64  `json:"campaign_id"`
}

type captureResponse struct {
	LeadID         api.LeadID               `json:"leadId"`
	CampaignID     int64                    `json:"campaignId"`
	Classification types.PageClassification `json:"classification"`
	Lead           types.CandidateLead      `json:"lead"`
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.syncer.Progress())
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid-request", err.Error())
			return
		}
	}
	if req.CampaignID == 0 {
		session, err := s.sessions.Session(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage", err.Error())
			return
		}
		req.CampaignID = session.SelectedCampaignID
	}
	if req.CampaignID == 0 {
		writeError(w, http.StatusUnprocessableEntity, string(syncer.CodeCampaignNotFound), "no campaign selected")
		return
	}

	runID, err := s.syncer.Start(r.Context(), req.CampaignID)
	if err != nil {
		var se *syncer.Error
		switch {
		case errors.Is(err, syncer.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, string(syncer.CodeAlreadyRunning), err.Error())
		case errors.As(err, &se):
			writeError(w, http.StatusUnprocessableEntity, string(se.Code), se.Message)
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID, Progress: s.syncer.Progress()})
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	s.syncer.Cancel()
	writeJSON(w, http.StatusAccepted, s.syncer.Progress())
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	snapshots, unsubscribe := s.syncer.Subscribe()
	defer unsubscribe()

	sse := newSSEWriter(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-snapshots:
			if !ok {
				return
			}
			if err := sse.writeEvent("progress", p); err != nil {
				log.LoggerFromContext(r.Context()).Debug("event stream closed", slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (s *Server) campaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, err := s.backend.GetCampaigns(r.Context(), boolParam(q.Get("refresh")))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	session, err := s.sessions.Session(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", err.Error())
		return
	}
	res := campaignsResponse{Campaigns: all}
	if sel := session.Selected(all); sel != nil {
		res.SelectedCampaignID = sel.ID
	}
	if p := q.Get("platform"); p != "" {
		platform := types.ParsePlatform(p)
		if platform == types.PlatformUnknown {
			writeError(w, http.StatusBadRequest, "invalid-request", fmt.Sprintf("unknown platform %q", p))
			return
		}
		res.Campaigns = campaign.ForPlatform(all, platform)
		if c := session.CampaignFor(all, platform); c != nil {
			res.AutoSelectedCampaignID = c.ID
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := s.backend.GetStats(r.Context(), intParam(q.Get("page")), intParam(q.Get("per_page")), !boolParam(q.Get("refresh")))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) leads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lq := api.LeadsQuery{
		Page:     intParam(q.Get("page")),
		PerPage:  intParam(q.Get("per_page")),
		Search:   strings.TrimSpace(q.Get("search")),
		Platform: q.Get("platform"),
		Status:   q.Get("status"),
	}
	page, err := s.backend.GetLeads(r.Context(), lq, !boolParam(q.Get("refresh")))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid-request", "url is required")
		return
	}
	logger := log.LoggerFromContext(r.Context()).With(slog.String("url", req.URL))

	lead, c, err := s.capturer.ExtractCurrentPageData(r.Context(), req.URL)
	switch {
	case errors.Is(err, fetch.ErrNotActionable):
		writeError(w, http.StatusUnprocessableEntity, "not-actionable", err.Error())
		return
	case errors.Is(err, fetch.ErrNoLead):
		writeError(w, http.StatusUnprocessableEntity, "no-lead", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, string(syncer.CodePlatformUnreachable), err.Error())
		return
	}

	all, err := s.backend.GetCampaigns(r.Context(), false)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	var target *types.Campaign
	if req.CampaignID != 0 {
		target = campaign.ResolveSelected(all, req.CampaignID)
	} else {
		session, err := s.sessions.Session(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage", err.Error())
			return
		}
		target = session.CampaignFor(all, c.Platform)
	}
	if target == nil {
		writeError(w, http.StatusUnprocessableEntity, string(syncer.CodeCampaignNotFound), fmt.Sprintf("no campaign selected for %s", c.Platform))
		return
	}

	id, err := s.backend.SubmitLead(r.Context(), target.ID, *lead)
	if err != nil {
		logger.Info("capture rejected", slog.String("err", err.Error()))
		writeBackendError(w, err)
		return
	}
	logger.Info("lead captured", slog.Int64("campaign", target.ID), slog.String("platform_id", lead.PlatformID))
	writeJSON(w, http.StatusCreated, captureResponse{LeadID: id, CampaignID: target.ID, Classification: c, Lead: *lead})
}

func boolParam(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// intParam returns 0 for missing or malformed values, which the backend
// client replaces by its defaults.
func intParam(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}
