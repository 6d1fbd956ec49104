package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jakopako/leadsync/internal/extract"
	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/types"
)

type SchemaCmd struct {
	Export SchemaExportCmd `cmd:"" help:"Print the schema of a platform as yaml."`
	Import SchemaImportCmd `cmd:"" help:"Store the platforms of a schema file, replacing the ones in use."`
	Reset  SchemaResetCmd  `cmd:"" help:"Remove the stored schema of a platform."`
}

type SchemaExportCmd struct {
	ConfigFlag `embed:""`
	Platform   string `short:"p" help:"The platform to export." required:""`
	Out        string `short:"o" help:"Write the schema to this file instead of stdout." completion:"<file>"`
}

func (sc *SchemaExportCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	p := types.ParsePlatform(sc.Platform)
	if p == types.PlatformUnknown {
		return fmt.Errorf("unknown platform %q", sc.Platform)
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default())
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	out, err := a.extractor.Schema().ExportSchema(p)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	if sc.Out == "" {
		fmt.Print(string(out))
		return nil
	}
	if err := os.WriteFile(sc.Out, out, 0644); err != nil {
		slog.Error(fmt.Sprintf("error writing to file: %v", err))
		return err
	}
	slog.Info(fmt.Sprintf("successfully wrote schema to file %s", sc.Out))
	return nil
}

type SchemaImportCmd struct {
	ConfigFlag `embed:""`
	File       string `short:"f" help:"The schema file to import." required:"" completion:"<file>"`
}

func (sc *SchemaImportCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	b, err := os.ReadFile(sc.File)
	if err != nil {
		slog.Error(fmt.Sprintf("error reading file: %v", err))
		return err
	}
	schema, err := extract.ParseSchema(b)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	ctx := log.ContextWithLogger(context.Background(), slog.Default())
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	// every platform is stored on its own so it can be reset on its own
	for _, ps := range schema.Platforms {
		doc, err := schema.ExportSchema(ps.Platform)
		if err != nil {
			return err
		}
		if err := a.store.Schemas.Put(ctx, ps.Platform, doc); err != nil {
			return err
		}
		slog.Info(fmt.Sprintf("stored schema of %s (version %s)", ps.Platform, ps.Version))
	}
	return nil
}

type SchemaResetCmd struct {
	ConfigFlag `embed:""`
	Platform   string `short:"p" help:"The platform whose stored schema is removed." required:""`
}

func (sc *SchemaResetCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	p := types.ParsePlatform(sc.Platform)
	if p == types.PlatformUnknown {
		return fmt.Errorf("unknown platform %q", sc.Platform)
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default())
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()
	return a.store.Schemas.Delete(ctx, p)
}
