// Command codescout is the CLI for the conversational code-search agent.
//
// Usage:
//
//	codescout serve --config config.yaml
//	codescout version
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface, grounded on the teacher's
// cmd/hector/main.go CLI-struct pattern, reduced to the two subcommands
// this server needs.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("codescout version %s\n", version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Name("codescout"), kong.Description("Conversational code-search agent."))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
