/*
leadsync collects leads from social and freelance platforms and submits
them to the leads backend.
*/
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/jakopako/leadsync/internal/log"
)

var version = "dev"

const name = "leadsync"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug' and store fetched pages for debugging."`

	Sync      SyncCmd      `cmd:"" help:"Sync a campaign: search every keyword on every platform and submit the leads found."`
	Serve     ServeCmd     `cmd:"" help:"Serve sync control, progress and manual captures over HTTP."`
	Classify  ClassifyCmd  `cmd:"" help:"Classify a page by platform and page type."`
	Extract   ExtractCmd   `cmd:"" help:"Extract the lead shown on a page."`
	Campaigns CampaignsCmd `cmd:"" help:"List campaigns."`
	Select    SelectCmd    `cmd:"" help:"Select the campaign captures and syncs use by default."`
	Schema    SchemaCmd    `cmd:"" help:"Manage the platform extraction schemas."`
	Auth      AuthCmd      `cmd:"" help:"Manage the backend session."`
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Name(name),
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
