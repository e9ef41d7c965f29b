// Package config loads the server's configuration from a YAML file plus
// environment-variable overrides. Adapted, much reduced, from the
// teacher's pkg/config layering (struct-with-yaml-tags, SetDefaults,
// Validate methods applied after load).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration surface this spec needs: HTTP
// listen address, model selection, context-window sizes, the LLM gateway
// endpoint, index backend choice, and the Postgres DSN backing
// conversation persistence.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Models   ModelsConfig   `yaml:"models"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Index    IndexConfig    `yaml:"index"`
	Postgres PostgresConfig `yaml:"postgres"`
	LogLevel string         `yaml:"log_level,omitempty"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// ModelsConfig names the models used by each LLM call site, per spec.md
// §4.5/§4.9: the planner's function-calling model, the lower-cost 16k
// proc model, and the high-capability answer-synthesis model.
type ModelsConfig struct {
	PlannerModel      string `yaml:"planner_model,omitempty"`
	ProcModel         string `yaml:"proc_model,omitempty"`
	AnswerModel       string `yaml:"answer_model,omitempty"`
	PlannerContextLim int    `yaml:"planner_context_limit,omitempty"`
	ProcContextLim    int    `yaml:"proc_context_limit,omitempty"`
	AnswerContextLim  int    `yaml:"answer_context_limit,omitempty"`
}

// GatewayConfig points at the remote LLM gateway.
type GatewayConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token,omitempty"`
}

// IndexConfig selects and configures the semantic-search backend.
type IndexConfig struct {
	Backend      string `yaml:"backend,omitempty"` // "chromem" | "qdrant"
	ChromemPath  string `yaml:"chromem_path,omitempty"`
	QdrantAddr   string `yaml:"qdrant_addr,omitempty"`
	QdrantAPIKey string `yaml:"qdrant_api_key,omitempty"`
	Collection   string `yaml:"collection,omitempty"`
}

// PostgresConfig holds the conversation store's connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// Default models and limits, grounded on spec.md §4.5/§4.9's named model
// roles (16k proc model with a 15,400-token line budget, high-capability
// answer model).
const (
	DefaultListenAddr        = ":8080"
	DefaultPlannerModel      = "gpt-4o"
	DefaultProcModel         = "gpt-3.5-turbo-16k"
	DefaultAnswerModel       = "gpt-4o"
	DefaultPlannerContextLim = 128000
	DefaultProcContextLim    = 16384
	DefaultAnswerContextLim  = 128000
	DefaultIndexBackend      = "chromem"
	DefaultChromemPath       = "./data/chromem"
	DefaultCollection        = "codescout"
)

// SetDefaults fills in zero-valued fields with the package defaults.
func (c *Config) SetDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Models.PlannerModel == "" {
		c.Models.PlannerModel = DefaultPlannerModel
	}
	if c.Models.ProcModel == "" {
		c.Models.ProcModel = DefaultProcModel
	}
	if c.Models.AnswerModel == "" {
		c.Models.AnswerModel = DefaultAnswerModel
	}
	if c.Models.PlannerContextLim == 0 {
		c.Models.PlannerContextLim = DefaultPlannerContextLim
	}
	if c.Models.ProcContextLim == 0 {
		c.Models.ProcContextLim = DefaultProcContextLim
	}
	if c.Models.AnswerContextLim == 0 {
		c.Models.AnswerContextLim = DefaultAnswerContextLim
	}
	if c.Index.Backend == "" {
		c.Index.Backend = DefaultIndexBackend
	}
	if c.Index.ChromemPath == "" {
		c.Index.ChromemPath = DefaultChromemPath
	}
	if c.Index.Collection == "" {
		c.Index.Collection = DefaultCollection
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	applyEnvOverrides(c)
}

// Validate checks the fields that have no sane zero-value default.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("config: gateway.base_url is required")
	}
	if c.Index.Backend != "chromem" && c.Index.Backend != "qdrant" {
		return fmt.Errorf("config: index.backend must be \"chromem\" or \"qdrant\", got %q", c.Index.Backend)
	}
	if c.Index.Backend == "qdrant" && c.Index.QdrantAddr == "" {
		return fmt.Errorf("config: index.qdrant_addr is required when backend is \"qdrant\"")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	return nil
}

// Load reads and parses a YAML config file at path, then applies defaults
// and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// envOverride copies a non-empty environment variable into dst.
func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides layers environment variables over file-loaded values,
// mirroring the teacher's file-then-env config layering.
func applyEnvOverrides(c *Config) {
	envOverride(&c.Server.ListenAddr, "CODESCOUT_LISTEN_ADDR")
	envOverride(&c.Gateway.BaseURL, "CODESCOUT_GATEWAY_URL")
	envOverride(&c.Gateway.BearerToken, "CODESCOUT_GATEWAY_TOKEN")
	envOverride(&c.Postgres.DSN, "CODESCOUT_POSTGRES_DSN")
	envOverride(&c.Index.QdrantAPIKey, "CODESCOUT_QDRANT_API_KEY")
	envOverride(&c.LogLevel, "CODESCOUT_LOG_LEVEL")
}
