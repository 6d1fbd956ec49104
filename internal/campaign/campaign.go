// Package campaign selects the campaigns that apply to a platform.
package campaign

import (
	"github.com/jakopako/leadsync/internal/types"
)

// ForPlatform returns the campaigns targeting p in their original order.
func ForPlatform(campaigns []types.Campaign, p types.Platform) []types.Campaign {
	res := []types.Campaign{}
	for _, c := range campaigns {
		if c.Targets(p) {
			res = append(res, c)
		}
	}
	return res
}

// ResolveSelected returns the campaign with the given id or nil if there is none.
func ResolveSelected(campaigns []types.Campaign, id int64) *types.Campaign {
	for i := range campaigns {
		if campaigns[i].ID == id {
			c := campaigns[i]
			return &c
		}
	}
	return nil
}

// AutoSelect returns the campaign to use on platform p without asking the
// user. That is the selected campaign if it is still present and targets p,
// otherwise the only campaign targeting p. If neither exists nil is
// returned and the user has to choose.
func AutoSelect(campaigns []types.Campaign, p types.Platform, selectedID int64) *types.Campaign {
	if selectedID != 0 {
		if c := ResolveSelected(campaigns, selectedID); c != nil && c.Targets(p) {
			return c
		}
	}
	matching := ForPlatform(campaigns, p)
	if len(matching) == 1 {
		return &matching[0]
	}
	return nil
}

// Session holds the user's campaign selection. It is passed around
// explicitly rather than kept in a global.
type Session struct {
	SelectedCampaignID int64 `json:"selectedCampaignId"`
}

// Selected returns the selected campaign. A stale id referring to a
// campaign that no longer exists counts as no selection.
func (s Session) Selected(campaigns []types.Campaign) *types.Campaign {
	if s.SelectedCampaignID == 0 {
		return nil
	}
	return ResolveSelected(campaigns, s.SelectedCampaignID)
}

// CampaignFor returns the campaign captures on platform p are assigned to.
func (s Session) CampaignFor(campaigns []types.Campaign, p types.Platform) *types.Campaign {
	return AutoSelect(campaigns, p, s.SelectedCampaignID)
}
