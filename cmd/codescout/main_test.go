package main

import (
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestVersionCmdRunSucceeds(t *testing.T) {
	var cmd VersionCmd
	require.NoError(t, cmd.Run())
}

func TestCLIParsesServeSubcommand(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("codescout"))
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"serve", "--config", "testdata/config.yaml", "--port", "9090"})
	require.NoError(t, err)
	require.Equal(t, "serve", ctx.Command())
	// Config is a kong "path" flag, so the relative value is expanded to an
	// absolute path.
	wantConfig, err := filepath.Abs("testdata/config.yaml")
	require.NoError(t, err)
	require.Equal(t, wantConfig, cli.Serve.Config)
	require.Equal(t, 9090, cli.Serve.Port)
}

func TestCLIParsesVersionSubcommand(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("codescout"))
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"version"})
	require.NoError(t, err)
	require.Equal(t, "version", ctx.Command())
}

func TestCLIDefaultsLogLevelToInfo(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("codescout"))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"version"})
	require.NoError(t, err)
	require.Equal(t, "info", cli.LogLevel)
}
