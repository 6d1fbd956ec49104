package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jakopako/leadsync/internal/api"
	"github.com/jakopako/leadsync/internal/cache"
	"github.com/jakopako/leadsync/internal/config"
	"github.com/jakopako/leadsync/internal/extract"
	"github.com/jakopako/leadsync/internal/fetch"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/progress"
	"github.com/jakopako/leadsync/internal/storage"
	"github.com/jakopako/leadsync/internal/syncer"
)

const defaultConfigPath = "./config.yaml"

type ConfigFlag struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file. Without the default file only the environment is read."`
}

func (cf ConfigFlag) load() (*config.Config, error) {
	path := cf.Config
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no config file found, reading the environment only")
			path = ""
		}
	}
	return config.NewConfigFromFile(path)
}

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	store     *storage.Store
	client    *api.Client
	extractor *extract.Extractor
	fetcher   fetch.Fetcher
	provider  *fetch.Provider
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store}

	// a token in the config takes precedence over the stored session
	var tokens api.TokenSource
	if cfg.Backend.Token == "" {
		tokens = store.Auth
	}
	a.client = api.NewClient(cfg.Backend, tokens, cache.New(),
		api.WithTTLs(cfg.Cache),
		api.WithUnauthorizedHandler(func(ctx context.Context) {
			if err := store.Auth.Clear(ctx); err != nil {
				log.LoggerFromContext(ctx).Error("failed to clear session", slog.String("err", err.Error()))
			}
		}),
	)

	schema, err := a.loadSchema(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.extractor = extract.New(schema)

	a.fetcher, err = fetch.NewFetcher(&cfg.Fetcher)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.provider = fetch.NewProvider(a.fetcher, a.extractor, time.Duration(cfg.Fetcher.TimeoutMS)*time.Millisecond)
	return a, nil
}

// loadSchema layers the embedded schema, the schema file and the schemas
// imported into the store, in that order.
func (a *app) loadSchema(ctx context.Context) (*extract.Schema, error) {
	var (
		schema *extract.Schema
		err    error
	)
	if a.cfg.Schemas.Path != "" {
		schema, err = extract.LoadSchema(a.cfg.Schemas.Path)
	} else {
		schema, err = extract.DefaultSchema()
	}
	if err != nil {
		return nil, err
	}
	stored, err := a.store.Schemas.All(ctx)
	if err != nil {
		return nil, err
	}
	for p, doc := range stored {
		override, err := extract.ParseSchema(doc)
		if err != nil {
			return nil, fmt.Errorf("stored schema of %s: %w", p, err)
		}
		schema = extract.MergeSchema(schema, override)
	}
	return schema, nil
}

// newOrchestrator returns an orchestrator reporting to the configured
// progress writer, if any. The returned broadcaster has to be closed once
// all runs are done to flush the writer.
func (a *app) newOrchestrator() (*syncer.Orchestrator, *progress.Broadcaster, error) {
	b := progress.NewBroadcaster()
	if a.cfg.Progress.Type != "" {
		w, err := progress.NewWriter(&a.cfg.Progress)
		if err != nil {
			return nil, nil, err
		}
		b.Attach(w)
	}
	return syncer.New(a.client, a.provider, a.extractor, a.cfg.Sync, syncer.WithBroadcaster(b)), b, nil
}

func (a *app) Close() {
	a.fetcher.Cancel()
	if err := a.store.Close(); err != nil {
		slog.Error(fmt.Sprintf("error closing storage: %v", err))
	}
}
