package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsZeroValues(t *testing.T) {
	var c Config
	c.SetDefaults()

	require.Equal(t, DefaultListenAddr, c.Server.ListenAddr)
	require.Equal(t, DefaultPlannerModel, c.Models.PlannerModel)
	require.Equal(t, DefaultProcModel, c.Models.ProcModel)
	require.Equal(t, DefaultAnswerModel, c.Models.AnswerModel)
	require.Equal(t, DefaultPlannerContextLim, c.Models.PlannerContextLim)
	require.Equal(t, DefaultProcContextLim, c.Models.ProcContextLim)
	require.Equal(t, DefaultAnswerContextLim, c.Models.AnswerContextLim)
	require.Equal(t, DefaultIndexBackend, c.Index.Backend)
	require.Equal(t, "info", c.LogLevel)
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{Models: ModelsConfig{PlannerModel: "gpt-4o-mini"}}
	c.SetDefaults()
	require.Equal(t, "gpt-4o-mini", c.Models.PlannerModel)
}

func TestValidateRequiresGatewayBaseURL(t *testing.T) {
	c := Config{Postgres: PostgresConfig{DSN: "postgres://x"}}
	c.SetDefaults()
	err := c.Validate()
	require.ErrorContains(t, err, "gateway.base_url")
}

func TestValidateRequiresPostgresDSN(t *testing.T) {
	c := Config{Gateway: GatewayConfig{BaseURL: "http://gateway"}}
	c.SetDefaults()
	err := c.Validate()
	require.ErrorContains(t, err, "postgres.dsn")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	c := Config{
		Gateway:  GatewayConfig{BaseURL: "http://gateway"},
		Postgres: PostgresConfig{DSN: "postgres://x"},
		Index:    IndexConfig{Backend: "pinecone"},
	}
	c.SetDefaults()
	// SetDefaults only fills an empty backend, so the explicit bad value survives.
	c.Index.Backend = "pinecone"
	err := c.Validate()
	require.ErrorContains(t, err, "chromem")
}

func TestValidateRequiresQdrantAddrWhenSelected(t *testing.T) {
	c := Config{
		Gateway:  GatewayConfig{BaseURL: "http://gateway"},
		Postgres: PostgresConfig{DSN: "postgres://x"},
		Index:    IndexConfig{Backend: "qdrant"},
	}
	c.SetDefaults()
	err := c.Validate()
	require.ErrorContains(t, err, "qdrant_addr")
}

func TestApplyEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("CODESCOUT_GATEWAY_URL", "http://from-env")
	t.Setenv("CODESCOUT_LOG_LEVEL", "debug")

	var c Config
	c.SetDefaults()

	require.Equal(t, "http://from-env", c.Gateway.BaseURL)
	require.Equal(t, "debug", c.LogLevel)
}

func TestLoadReadsFileAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  base_url: http://gateway.internal
postgres:
  dsn: postgres://user@host/db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://gateway.internal", cfg.Gateway.BaseURL)
	require.Equal(t, DefaultPlannerModel, cfg.Models.PlannerModel)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}
