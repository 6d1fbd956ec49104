package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jakopako/leadsync/internal/classify"
	"github.com/jakopako/leadsync/internal/fetch"
	"github.com/jakopako/leadsync/internal/log"
)

type ClassifyCmd struct {
	ConfigFlag `embed:""`
	URL        string `short:"u" long:"url" help:"The URL of the page." required:""`
	File       string `short:"f" help:"Classify the html in this file instead of fetching the URL." completion:"<file>"`
}

func (cc *ClassifyCmd) Run() error {
	if cc.File != "" {
		b, err := os.ReadFile(cc.File)
		if err != nil {
			slog.Error(fmt.Sprintf("error reading file: %v", err))
			return err
		}
		return printJSON(classify.ClassifyHTML(cc.URL, string(b)))
	}

	cfg, err := cc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default().With(slog.String("url", cc.URL)))
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	_, c, err := a.provider.ExtractCurrentPageData(ctx, cc.URL)
	if err != nil && !errors.Is(err, fetch.ErrNotActionable) && !errors.Is(err, fetch.ErrNoLead) {
		slog.Error(err.Error())
		return err
	}
	return printJSON(c)
}

type ExtractCmd struct {
	ConfigFlag `embed:""`
	URL        string `short:"u" long:"url" help:"The URL of the page." required:""`
	Submit     bool   `short:"S" help:"Submit the lead to the campaign selected for the page's platform."`
}

func (ec *ExtractCmd) Run() error {
	cfg, err := ec.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default().With(slog.String("url", ec.URL)))
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	lead, c, err := a.provider.ExtractCurrentPageData(ctx, ec.URL)
	if err != nil {
		slog.Error(err.Error(), slog.String("platform", string(c.Platform)), slog.String("page_type", string(c.PageType)))
		return err
	}
	if err := printJSON(lead); err != nil {
		return err
	}
	if !ec.Submit {
		return nil
	}

	campaigns, err := a.client.GetCampaigns(ctx, false)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	session, err := a.store.Campaigns.Session(ctx)
	if err != nil {
		return err
	}
	target := session.CampaignFor(campaigns, c.Platform)
	if target == nil {
		return fmt.Errorf("no campaign selected for %s, run 'leadsync select'", c.Platform)
	}
	id, err := a.client.SubmitLead(ctx, target.ID, *lead)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	slog.Info("submitted lead", slog.Int64("campaign", target.ID), slog.String("lead", string(id)))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
