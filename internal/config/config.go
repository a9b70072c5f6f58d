package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the application's top-level configuration, loaded from a YAML
// file with ${ENV_VAR} substitution applied before parsing.
type Config struct {
	Server       *ServerConfig       `yaml:"server" json:"server"`
	Database     *DatabaseConfig     `yaml:"database" json:"database"`
	Search       *SearchConfig       `yaml:"search" json:"search"`
	Fetch        *FetchConfig        `yaml:"fetch" json:"fetch"`
	LLM          *LLMConfig          `yaml:"llm" json:"llm"`
	RAG          *RAGConfig          `yaml:"rag" json:"rag"`
	Graph        *GraphConfig        `yaml:"graph" json:"graph"`
	Tenant       *TenantConfig       `yaml:"tenant" json:"tenant"`
	Asynq        *AsynqConfig        `yaml:"asynq" json:"asynq"`
	Redis        *RedisConfig        `yaml:"redis" json:"redis"`
	Storage      *StorageConfig      `yaml:"storage" json:"storage"`
	Elasticsearch *ElasticsearchConfig `yaml:"elasticsearch" json:"elasticsearch"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	Host            string        `yaml:"host" json:"host"`
	LogPath         string        `yaml:"log_path" json:"log_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig configures the Postgres connection backing every
// repository in §6's persistence layout.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	Host     string `yaml:"host" json:"host"`
	Port     string `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Name     string `yaml:"name" json:"name"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// SearchConfig configures C1: the MCP-first, direct-HTTP-fallback search
// client.
type SearchConfig struct {
	// MCPCommand is the stdio MCP search server's argv; empty disables it.
	MCPCommand []string      `yaml:"mcp_command" json:"mcp_command"`
	DirectURL  string        `yaml:"direct_url" json:"direct_url"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// FetchConfig configures C2's fetcher.
type FetchConfig struct {
	MaxContentSize int64         `yaml:"max_content_size" json:"max_content_size"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	// ConcurrencyPoolSize bounds the ants.Pool backing BatchFetch.
	ConcurrencyPoolSize int `yaml:"concurrency_pool_size" json:"concurrency_pool_size"`
	// JSRenderThreshold is decoded from the config file but nothing reads
	// it: the chromedp re-fetch uses fetch's fixed jsRenderMinBodyLen.
	JSRenderThreshold int `yaml:"js_render_threshold" json:"js_render_threshold"`
}

// LLMConfig configures C4's chat and embedding models for the research
// pipeline (distinct from C9's per-session ModelService lookup, which
// resolves a model by id out of the `models` table instead).
type LLMConfig struct {
	Chat      ModelEndpoint `yaml:"chat" json:"chat"`
	Embedding ModelEndpoint `yaml:"embedding" json:"embedding"`
}

// ModelEndpoint is a single provider-backed model reference.
type ModelEndpoint struct {
	Source    string `yaml:"source" json:"source"` // "local" (ollama) or "remote" (openai-compatible)
	BaseURL   string `yaml:"base_url" json:"base_url"`
	ModelName string `yaml:"model_name" json:"model_name"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	ModelID   string `yaml:"model_id" json:"model_id"`
}

// RAGConfig configures C8's composite retriever defaults.
type RAGConfig struct {
	TopK      int     `yaml:"top_k" json:"top_k"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// GraphConfig configures C7's graph builder.
type GraphConfig struct {
	// Enabled toggles whether a completed ResearchResult triggers a graph
	// build; disabling it skips C7 entirely without affecting C5/C6.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// TenantConfig holds chat-session defaults. Nothing reads them: a new chat
// session takes its title from the create request only.
type TenantConfig struct {
	DefaultSessionName        string `yaml:"default_session_name" json:"default_session_name"`
	DefaultSessionTitle       string `yaml:"default_session_title" json:"default_session_title"`
	DefaultSessionDescription string `yaml:"default_session_description" json:"default_session_description"`
}

// AsynqConfig configures the durable job queue dispatching research tasks
// off the HTTP path.
type AsynqConfig struct {
	Queues map[string]int `yaml:"queues" json:"queues"`
}

// RedisConfig is shared by Asynq and the cross-replica chat stream
// manager.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// StorageConfig configures the research-artifact object store.
type StorageConfig struct {
	Type            string `yaml:"type" json:"type"` // "minio", "local", or "dummy"
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	BucketName      string `yaml:"bucket_name" json:"bucket_name"`
	LocalBaseDir    string `yaml:"local_base_dir" json:"local_base_dir"`
}

// ElasticsearchConfig configures the optional keyword-retrieval engine.
type ElasticsearchConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Address  string `yaml:"address" json:"address"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LoadConfig reads config.yaml (searched in ".", "./config", "$HOME/.deep-research-pipeline",
// "/etc/deep-research-pipeline/"), expands ${ENV_VAR} references in its raw
// text, then decodes it into Config.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.deep-research-pipeline")
	viper.AddConfigPath("/etc/deep-research-pipeline/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	configFileContent, err := os.ReadFile(viper.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("error reading config file content: %w", err)
	}

	re := regexp.MustCompile(`\${([^}]+)}`)
	result := re.ReplaceAllStringFunc(string(configFileContent), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	if err := viper.ReadConfig(strings.NewReader(result)); err != nil {
		return nil, fmt.Errorf("error re-reading expanded config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
