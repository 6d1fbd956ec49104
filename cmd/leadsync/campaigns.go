package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/jakopako/leadsync/internal/campaign"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/olekukonko/tablewriter"
	"github.com/rivo/tview"
)

type CampaignsCmd struct {
	ConfigFlag `embed:""`
	Platform   string `short:"p" help:"Only list campaigns targeting this platform."`
	Refresh    bool   `short:"r" help:"Bypass the cached campaigns."`
	Offline    bool   `help:"List the campaigns stored by the last successful listing without asking the backend."`
}

func (cc *CampaignsCmd) Run() error {
	cfg, err := cc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default())
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	campaigns, err := a.campaigns(ctx, cc.Refresh, cc.Offline)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	session, err := a.store.Campaigns.Session(ctx)
	if err != nil {
		return err
	}
	if cc.Platform != "" {
		p := types.ParsePlatform(cc.Platform)
		if p == types.PlatformUnknown {
			return fmt.Errorf("unknown platform %q", cc.Platform)
		}
		campaigns = campaign.ForPlatform(campaigns, p)
	}
	printCampaigns(campaigns, session.SelectedCampaignID)
	return nil
}

// campaigns returns the campaigns from the backend and stores them for
// offline use. If offline is set the stored campaigns are returned.
func (a *app) campaigns(ctx context.Context, refresh, offline bool) ([]types.Campaign, error) {
	if offline {
		return a.store.Campaigns.Get(ctx)
	}
	campaigns, err := a.client.GetCampaigns(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if err := a.store.Campaigns.Set(ctx, campaigns); err != nil {
		log.LoggerFromContext(ctx).Warn("failed to store campaigns", slog.String("err", err.Error()))
	}
	return campaigns, nil
}

func printCampaigns(campaigns []types.Campaign, selectedID int64) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("", "ID", "Name", "Platforms", "Keywords", "Status")
	for _, c := range campaigns {
		marker := ""
		if c.ID == selectedID {
			marker = "*"
		}
		table.Append([]string{
			marker,
			strconv.FormatInt(c.ID, 10),
			c.Name,
			joinPlatforms(c.Platforms),
			strings.Join(c.Keywords, ", "),
			string(c.Status),
		})
	}
	if err := table.Render(); err != nil {
		slog.Error(fmt.Sprintf("error rendering campaigns: %v", err))
	}
}

func joinPlatforms(platforms []types.Platform) string {
	s := make([]string, len(platforms))
	for i, p := range platforms {
		s[i] = string(p)
	}
	return strings.Join(s, ", ")
}

type SelectCmd struct {
	ConfigFlag  `embed:""`
	ID          int64 `arg:"" optional:"" help:"The id of the campaign to select."`
	Interactive bool  `short:"i" help:"Pick the campaign from a list."`
	Clear       bool  `help:"Clear the selection."`
	Offline     bool  `help:"Choose from the stored campaigns without asking the backend."`
}

func (sc *SelectCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default())
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	if sc.Clear {
		return a.store.Campaigns.ClearSelected(ctx)
	}

	campaigns, err := a.campaigns(ctx, false, sc.Offline)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	var selected *types.Campaign
	switch {
	case sc.Interactive:
		current, err := a.store.Campaigns.GetSelected(ctx)
		if err != nil {
			return err
		}
		if selected, err = pickCampaign(campaigns, current); err != nil {
			return err
		}
		if selected == nil {
			slog.Info("no campaign picked, keeping the selection")
			return nil
		}
	case sc.ID != 0:
		if selected = campaign.ResolveSelected(campaigns, sc.ID); selected == nil {
			return fmt.Errorf("campaign %d not found", sc.ID)
		}
	default:
		current, err := a.store.Campaigns.SelectedCampaign(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			fmt.Println("no campaign selected")
			return nil
		}
		printCampaigns([]types.Campaign{*current}, current.ID)
		return nil
	}

	if err := a.store.Campaigns.SetSelected(ctx, selected.ID); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("selected campaign %d (%s)", selected.ID, selected.Name))
	return nil
}

// pickCampaign shows an interactive list of campaigns. It returns nil if
// the user leaves without picking one.
func pickCampaign(campaigns []types.Campaign, selectedID int64) (*types.Campaign, error) {
	if len(campaigns) == 0 {
		return nil, fmt.Errorf("there are no campaigns to pick from")
	}
	app := tview.NewApplication()
	table := tview.NewTable().SetBorders(true)
	for c, h := range []string{"ID", "Name", "Platforms", "Keywords"} {
		table.SetCell(0, c, tview.NewTableCell(h).
			SetTextColor(tcell.ColorBlue).
			SetAlign(tview.AlignCenter).
			SetSelectable(false))
	}
	initial := 1
	for i, camp := range campaigns {
		r := i + 1
		color := tcell.ColorWhite
		if camp.ID == selectedID {
			color = tcell.ColorGreen
			initial = r
		}
		for c, v := range []string{strconv.FormatInt(camp.ID, 10), camp.Name, joinPlatforms(camp.Platforms), strings.Join(camp.Keywords, ", ")} {
			table.SetCell(r, c, tview.NewTableCell(v).SetTextColor(color))
		}
	}

	var picked *types.Campaign
	table.SetSelectable(true, false)
	table.Select(initial, 0).SetFixed(1, 0).SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			app.Stop()
		}
	}).SetSelectedFunc(func(row int, column int) {
		c := campaigns[row-1]
		picked = &c
		app.Stop()
	})
	table.SetTitle(" Enter to select, Esc to cancel ").SetBorder(true)

	if err := app.SetRoot(table, true).SetFocus(table).Run(); err != nil {
		return nil, err
	}
	return picked, nil
}
