package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/server"
	"github.com/jakopako/leadsync/internal/types"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

type SyncCmd struct {
	ConfigFlag `embed:""`
	Campaign   int64 `short:"C" help:"The id of the campaign to sync. Defaults to the selected campaign."`
	Summary    bool  `short:"s" default:"true" negatable:"" help:"Print a summary table at the end."`
}

func (sc *SyncCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextWithLogger(ctx, slog.Default())

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	id := sc.Campaign
	if id == 0 {
		if id, err = a.store.Campaigns.GetSelected(ctx); err != nil {
			return err
		}
		if id == 0 {
			return errors.New("no campaign selected, pass --campaign or run 'leadsync select'")
		}
	}

	orchestrator, broadcaster, err := a.newOrchestrator()
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer broadcaster.Close()

	snapshots, unsubscribe := orchestrator.Subscribe()
	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		for p := range snapshots {
			if p.Status == types.SyncIdle {
				continue
			}
			slog.Info(p.Message,
				slog.String("status", string(p.Status)),
				slog.Int("keyword", p.CurrentKeywordIndex+1),
				slog.Int("keywords", p.TotalKeywords),
				slog.Int("found", p.LeadsFound),
				slog.Int("submitted", p.LeadsSubmitted),
			)
		}
	}()

	if _, err := orchestrator.Start(ctx, id); err != nil {
		unsubscribe()
		<-logDone
		slog.Error(err.Error())
		return err
	}

	// an interrupt cancels the run, which still reports its terminal snapshot
	go func() {
		<-ctx.Done()
		orchestrator.Cancel()
	}()
	final, err := orchestrator.Wait(context.WithoutCancel(ctx))
	unsubscribe()
	<-logDone
	if err != nil {
		return err
	}

	if sc.Summary {
		printSummary(final)
	}
	if final.Status == types.SyncError {
		return fmt.Errorf("sync failed: %s", final.Error)
	}
	return nil
}

func printSummary(p types.SyncProgress) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Campaign", "Status", "Keywords", "Found", "Submitted", "Took")
	took := "-"
	if !p.StartedAt.IsZero() && !p.FinishedAt.IsZero() {
		took = p.FinishedAt.Sub(p.StartedAt).Round(time.Second).String()
	}
	table.Append([]string{
		strconv.FormatInt(p.CampaignID, 10),
		string(p.Status),
		strconv.Itoa(p.TotalKeywords),
		strconv.Itoa(p.LeadsFound),
		strconv.Itoa(p.LeadsSubmitted),
		took,
	})
	if err := table.Render(); err != nil {
		slog.Error(fmt.Sprintf("error rendering summary: %v", err))
	}
	if p.Message != "" {
		fmt.Println(p.Message)
	}
}

type ServeCmd struct {
	ConfigFlag `embed:""`
	Addr       string `short:"a" help:"The address to listen on. Overrides the configured address."`
}

func (sc *ServeCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if sc.Addr != "" {
		cfg.Server.Addr = sc.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextWithLogger(ctx, slog.Default())

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	orchestrator, broadcaster, err := a.newOrchestrator()
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer broadcaster.Close()

	srv := server.New(orchestrator, a.client, a.provider, a.store.Campaigns)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		orchestrator.Cancel()
		p, err := orchestrator.Wait(context.Background())
		if err == nil && p.Status.Terminal() {
			slog.Info("last sync ended", slog.String("status", string(p.Status)))
		}
		return err
	})
	return g.Wait()
}
