// Package types defines shared types used across the application.
package types

import (
	"slices"
	"time"
)

// Platform is one of the supported external sites leads are collected from.
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformLinkedIn Platform = "linkedin"
	PlatformReddit   Platform = "reddit"
	PlatformFiverr   Platform = "fiverr"
	PlatformUpwork   Platform = "upwork"
	PlatformX        Platform = "x"
	PlatformUnknown  Platform = "unknown"
)

// Platforms lists all known platforms in a stable order.
var Platforms = []Platform{
	PlatformFacebook,
	PlatformLinkedIn,
	PlatformReddit,
	PlatformFiverr,
	PlatformUpwork,
	PlatformX,
}

// ParsePlatform maps a string to a Platform. The legacy name "twitter"
// is accepted for x. Anything else yields PlatformUnknown.
func ParsePlatform(s string) Platform {
	if s == "twitter" {
		return PlatformX
	}
	p := Platform(s)
	if slices.Contains(Platforms, p) {
		return p
	}
	return PlatformUnknown
}

// PageType is the semantic category of a page on a platform.
type PageType string

const (
	PageTypeProfile   PageType = "profile"
	PageTypePost      PageType = "post"
	PageTypeGroup     PageType = "group"
	PageTypeCommunity PageType = "community"
	PageTypeGig       PageType = "gig"
	PageTypeJob       PageType = "job"
	// PageTypeSearch is a listing of results, e.g. a keyword search or a feed.
	// Its items are classified one by one.
	PageTypeSearch  PageType = "search"
	PageTypeUnknown PageType = "unknown"
)

// PageClassification is the (platform, page type) pair a page is assigned to.
type PageClassification struct {
	Platform Platform `json:"platform" yaml:"platform"`
	PageType PageType `json:"pageType" yaml:"page_type"`
}

// Unknown is the classification of a page that no rule matched.
var Unknown = PageClassification{Platform: PlatformUnknown, PageType: PageTypeUnknown}

// Actionable reports whether the classification can be acted on. Unknown
// classifications are never errors, just not actionable.
func (pc PageClassification) Actionable() bool {
	return pc.Platform != PlatformUnknown && pc.PageType != PageTypeUnknown && pc.Platform != "" && pc.PageType != ""
}

// CandidateLead is a lead extracted from a page, not yet submitted to the backend.
type CandidateLead struct {
	Platform         Platform `json:"platform" validate:"required,ne=unknown"`
	PlatformID       string   `json:"platform_id" validate:"required,max=255"`
	Title            string   `json:"title" validate:"required,max=255"`
	Description      string   `json:"description" validate:"max=1000"`
	Author           string   `json:"author" validate:"max=255"`
	URL              string   `json:"url" validate:"omitempty,url"`
	MatchedKeywords  []string `json:"matched_keywords"`
	ConfidenceScore  int      `json:"confidence_score" validate:"min=0,max=10"`
	Subreddit        string   `json:"subreddit,omitempty"`
	FacebookGroup    string   `json:"facebook_group,omitempty"`
	LinkedInGroup    string   `json:"linkedin_group,omitempty"`
	TwitterCommunity string   `json:"twitter_community,omitempty"`
	FiverrGigID      string   `json:"fiverr_gig_id,omitempty"`
	UpworkJobID      string   `json:"upwork_job_id,omitempty"`
}

// CampaignStatus is the backend owned state of a campaign.
type CampaignStatus string

const (
	CampaignActive  CampaignStatus = "active"
	CampaignPaused  CampaignStatus = "paused"
	CampaignSyncing CampaignStatus = "syncing"
)

// Campaign is a user defined target configuration leads are matched against.
type Campaign struct {
	ID        int64          `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Platforms []Platform     `json:"platforms" yaml:"platforms"`
	Keywords  []string       `json:"keywords" yaml:"keywords"`
	Status    CampaignStatus `json:"status" yaml:"status"`
}

// Targets reports whether the campaign collects leads on platform p.
func (c Campaign) Targets(p Platform) bool {
	return slices.Contains(c.Platforms, p)
}

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncRunning   SyncStatus = "running"
	SyncComplete  SyncStatus = "complete"
	SyncError     SyncStatus = "error"
	SyncCancelled SyncStatus = "cancelled"
)

// Terminal reports whether no further updates follow a snapshot with this status.
func (s SyncStatus) Terminal() bool {
	return s == SyncComplete || s == SyncError || s == SyncCancelled
}

// SyncProgress is the snapshot of a sync run rendered by the UI. The UI
// must render based on Status alone.
type SyncProgress struct {
	RunID               string     `json:"runId,omitempty"`
	CampaignID          int64      `json:"campaignId,omitempty"`
	Status              SyncStatus `json:"status"`
	CurrentKeywordIndex int        `json:"currentKeywordIndex"`
	TotalKeywords       int        `json:"totalKeywords"`
	CurrentKeyword      string     `json:"currentKeyword"`
	LeadsFound          int        `json:"leadsFound"`
	LeadsSubmitted      int        `json:"leadsSubmitted"`
	Message             string     `json:"message"`
	Error               string     `json:"error,omitempty"`
	StartedAt           time.Time  `json:"startedAt,omitzero"`
	FinishedAt          time.Time  `json:"finishedAt,omitzero"`
}

// IdleProgress is the snapshot reported before any sync has run.
func IdleProgress() SyncProgress {
	return SyncProgress{Status: SyncIdle, CurrentKeywordIndex: -1}
}
