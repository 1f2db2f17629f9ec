// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SITEBOT_GRAPH_URI.
const EnvPrefix = "SITEBOT"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Index     IndexConfig     `mapstructure:"index"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Environment string `mapstructure:"environment" validate:"required"`
}

// IsProduction reports whether internal error detail must be hidden.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	IngestTimeout  time.Duration `mapstructure:"ingest_timeout" validate:"gt=0"`
	// RateLimitRPS caps /v1/ask per client. Zero disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" validate:"gte=0"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the crawl and the renderer.
type CrawlerConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	MaxPages          int           `mapstructure:"max_pages" validate:"gt=0"`
	Delay             time.Duration `mapstructure:"delay"`
	UserAgent         string        `mapstructure:"user_agent"`
	Headless          bool          `mapstructure:"headless"`
	ChromePath        string        `mapstructure:"chrome_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
	SelectorTimeout   time.Duration `mapstructure:"selector_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	DetailPattern     string        `mapstructure:"detail_pattern"`
	DetailSelector    string        `mapstructure:"detail_selector"`
	PriorityPattern   string        `mapstructure:"priority_pattern"`
	ExcludePatterns   []string      `mapstructure:"exclude_patterns"`
	SocialDomains     []string      `mapstructure:"social_domains"`
}

// GraphConfig selects and tunes the knowledge graph store.
type GraphConfig struct {
	Driver              string  `mapstructure:"driver" validate:"oneof=neo4j memory"`
	URI                 string  `mapstructure:"uri"`
	Username            string  `mapstructure:"username"`
	Password            string  `mapstructure:"password"`
	Database            string  `mapstructure:"database"`
	NodeBatchSize       int     `mapstructure:"node_batch_size" validate:"gt=0"`
	EdgeBatchSize       int     `mapstructure:"edge_batch_size" validate:"gt=0"`
	MinHeadingLength    int     `mapstructure:"min_heading_length" validate:"gte=0"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gt=0,lt=1"`
	MaxRelations        int     `mapstructure:"max_relations" validate:"gt=0"`
}

// IndexConfig selects and tunes the full-text index.
type IndexConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN           string        `mapstructure:"dsn"`
	Table         string        `mapstructure:"table"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxBatch      int           `mapstructure:"max_batch" validate:"gte=0"`
	BatchPause    time.Duration `mapstructure:"batch_pause"`
	MaxTextLength int           `mapstructure:"max_text_length" validate:"gt=0"`
	TopK          int           `mapstructure:"top_k" validate:"gt=0"`
}

// RetrievalConfig bounds each query-time source.
type RetrievalConfig struct {
	LexicalTimeout time.Duration `mapstructure:"lexical_timeout" validate:"gt=0"`
	GraphTimeout   time.Duration `mapstructure:"graph_timeout" validate:"gt=0"`
}

// PipelineConfig controls start-up retries of an acquisition run.
type PipelineConfig struct {
	InitAttempts int           `mapstructure:"init_attempts" validate:"gt=0"`
	InitBackoff  time.Duration `mapstructure:"init_backoff" validate:"gte=0"`
}

// ArchiveConfig selects where finished snapshots are kept.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver" validate:"oneof=none local gcs"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig selects where finished runs are announced.
type NotifyConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=none memory pubsub"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from defaults, an optional file and SITEBOT_*
// environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key, including empty ones, so AutomaticEnv
// can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("logging.development", true)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.ingest_timeout", "30m")
	v.SetDefault("server.rate_limit_rps", 2.0)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("crawler.base_url", "https://www.madewithnestle.ca/")
	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("crawler.delay", "2s")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.chrome_path", "")
	v.SetDefault("crawler.navigation_timeout", "30s")
	v.SetDefault("crawler.selector_timeout", "10s")
	v.SetDefault("crawler.idle_timeout", "10s")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.detail_pattern", "/recipe/")
	v.SetDefault("crawler.detail_selector", "h1")
	v.SetDefault("crawler.priority_pattern", "/recipe/")

	v.SetDefault("graph.driver", "neo4j")
	v.SetDefault("graph.uri", "neo4j://localhost:7687")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("graph.node_batch_size", 100)
	v.SetDefault("graph.edge_batch_size", 50)
	v.SetDefault("graph.min_heading_length", 3)
	v.SetDefault("graph.similarity_threshold", 0.6)
	v.SetDefault("graph.max_relations", 10)

	v.SetDefault("index.driver", "sqlite")
	v.SetDefault("index.dsn", "file:sitebot-index.db")
	v.SetDefault("index.table", "site_content")
	v.SetDefault("index.batch_size", 1000)
	v.SetDefault("index.batch_pause", "500ms")
	v.SetDefault("index.max_text_length", 1000)
	v.SetDefault("index.top_k", 3)

	v.SetDefault("retrieval.lexical_timeout", "5s")
	v.SetDefault("retrieval.graph_timeout", "5s")

	v.SetDefault("pipeline.init_attempts", 3)
	v.SetDefault("pipeline.init_backoff", "5s")

	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("notify.driver", "none")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "ingest-completed")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Graph.Driver == "neo4j" && c.Graph.URI == "" {
		return fmt.Errorf("graph.uri is required for the neo4j driver")
	}
	if c.Index.Driver == "postgres" && c.Index.DSN == "" {
		return fmt.Errorf("index.dsn is required for the postgres driver")
	}
	if c.Archive.Driver == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir is required for the local driver")
	}
	if c.Archive.Driver == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required for the gcs driver")
	}
	if c.Notify.Driver == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub driver")
	}
	return nil
}
