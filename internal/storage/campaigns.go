package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jakopako/leadsync/internal/campaign"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/jmoiron/sqlx"
)

const selectedCampaignKey = "selected_campaign"

// CampaignStore keeps a copy of the campaigns last fetched from the backend
// and the id of the selected campaign.
type CampaignStore struct {
	dbConn *sqlx.DB
}

type campaignRow struct {
	ID        int64  `db:"id"`
	Position  int    `db:"position"`
	Name      string `db:"name"`
	Platforms string `db:"platforms"`
	Keywords  string `db:"keywords"`
	Status    string `db:"status"`
}

// Get returns the stored campaigns in the order they were set.
func (cs *CampaignStore) Get(ctx context.Context) ([]types.Campaign, error) {
	var rows []campaignRow
	if err := cs.dbConn.SelectContext(ctx, &rows, `SELECT * FROM campaign ORDER BY position`); err != nil {
		return nil, fmt.Errorf("getting campaigns: %w", err)
	}
	campaigns := make([]types.Campaign, 0, len(rows))
	for _, r := range rows {
		c := types.Campaign{ID: r.ID, Name: r.Name, Status: types.CampaignStatus(r.Status)}
		if err := json.Unmarshal([]byte(r.Platforms), &c.Platforms); err != nil {
			return nil, fmt.Errorf("decoding platforms of campaign %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Keywords), &c.Keywords); err != nil {
			return nil, fmt.Errorf("decoding keywords of campaign %d: %w", r.ID, err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// Set replaces the stored campaigns.
func (cs *CampaignStore) Set(ctx context.Context, campaigns []types.Campaign) error {
	tx, err := cs.dbConn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign`); err != nil {
		return fmt.Errorf("clearing campaigns: %w", err)
	}
	query := `INSERT OR REPLACE INTO campaign (id, position, name, platforms, keywords, status)
		VALUES (:id, :position, :name, :platforms, :keywords, :status)`
	for i, c := range campaigns {
		platforms, err := json.Marshal(nonNil(c.Platforms))
		if err != nil {
			return fmt.Errorf("encoding platforms of campaign %d: %w", c.ID, err)
		}
		keywords, err := json.Marshal(nonNil(c.Keywords))
		if err != nil {
			return fmt.Errorf("encoding keywords of campaign %d: %w", c.ID, err)
		}
		row := campaignRow{
			ID:        c.ID,
			Position:  i,
			Name:      c.Name,
			Platforms: string(platforms),
			Keywords:  string(keywords),
			Status:    string(c.Status),
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("storing campaign %d: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing campaigns: %w", err)
	}
	return nil
}

// GetSelected returns the id of the selected campaign or 0 if none is selected.
func (cs *CampaignStore) GetSelected(ctx context.Context) (int64, error) {
	v, ok, err := getSetting(ctx, cs.dbConn, selectedCampaignKey)
	if err != nil || !ok {
		return 0, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid selected campaign %q: %w", v, err)
	}
	return id, nil
}

func (cs *CampaignStore) SetSelected(ctx context.Context, id int64) error {
	return putSetting(ctx, cs.dbConn, selectedCampaignKey, strconv.FormatInt(id, 10))
}

func (cs *CampaignStore) ClearSelected(ctx context.Context) error {
	return deleteSetting(ctx, cs.dbConn, selectedCampaignKey)
}

// Session returns the stored selection as a session.
func (cs *CampaignStore) Session(ctx context.Context) (campaign.Session, error) {
	id, err := cs.GetSelected(ctx)
	if err != nil {
		return campaign.Session{}, err
	}
	return campaign.Session{SelectedCampaignID: id}, nil
}

// SelectedCampaign returns the selected campaign among the stored ones. A
// selection referring to a campaign that is no longer stored yields nil.
func (cs *CampaignStore) SelectedCampaign(ctx context.Context) (*types.Campaign, error) {
	session, err := cs.Session(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := cs.Get(ctx)
	if err != nil {
		return nil, err
	}
	return session.Selected(campaigns), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
