package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL         = "https://tululu.org/"
	DefaultCategory        = 55 // Science fiction
	DefaultCatalogFilename = "books_info.json"

	FlushPerPage = "page" // Rewrite the catalog file after every listing page
	FlushAtEnd   = "end"  // Write the catalog file once, when the run finishes
)

// AppConfig holds the global application configuration
type AppConfig struct {
	BaseURL             string           `yaml:"base_url"`
	Category            int              `yaml:"category"`
	StartPage           int              `yaml:"start_page"`
	EndPage             int              `yaml:"end_page"` // Inclusive
	StartID             int              `yaml:"start_id"`
	EndID               int              `yaml:"end_id"` // Inclusive
	DestFolder          string           `yaml:"dest_folder"`
	JSONPath            string           `yaml:"json_path"` // File path, or a directory that gets books_info.json
	SkipImages          bool             `yaml:"skip_images,omitempty"`
	SkipText            bool             `yaml:"skip_text,omitempty"`
	UserAgent           string           `yaml:"user_agent,omitempty"`
	DelayPerHost        time.Duration    `yaml:"delay_per_host,omitempty"`
	RespectRobots       bool             `yaml:"respect_robots,omitempty"`
	MaxRetries          int              `yaml:"max_retries,omitempty"` // In-request retries for 5xx/429
	InitialRetryDelay   time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay       time.Duration    `yaml:"max_retry_delay,omitempty"`
	ConnectionRetry     RetryConfig      `yaml:"connection_retry,omitempty"`
	CatalogFlush        string           `yaml:"catalog_flush,omitempty"`
	GlobalTimeout       time.Duration    `yaml:"global_timeout,omitempty"`
	StateDir            string           `yaml:"state_dir"`
	DisableStateDB      bool             `yaml:"disable_state_db,omitempty"`
	EnableRunMetadata   bool             `yaml:"enable_run_metadata,omitempty"`
	RunMetadataFilename string           `yaml:"run_metadata_filename,omitempty"`
	MetricsTextfile     string           `yaml:"metrics_textfile,omitempty"`
	WriteTree           bool             `yaml:"write_tree,omitempty"`
	TreeFileLimit       int              `yaml:"tree_file_limit,omitempty"`
	HTTPClientSettings  HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Render              RenderConfig     `yaml:"render,omitempty"`
}

// RetryConfig bounds the pause-and-resume loop that runs after a connection failure
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts,omitempty"` // Total attempts per unit, including the first
	Backoff     time.Duration `yaml:"backoff,omitempty"`      // Pause after the first failure
	MaxBackoff  time.Duration `yaml:"max_backoff,omitempty"`  // Cap for growing pauses
	Multiplier  float64       `yaml:"multiplier,omitempty"`   // 1 keeps the pause fixed
}

// RenderConfig holds settings for the static catalog renderer
type RenderConfig struct {
	TemplatePath string `yaml:"template_path,omitempty"` // Empty uses the embedded template
	OutputDir    string `yaml:"output_dir,omitempty"`
	Rows         int    `yaml:"rows,omitempty"`
	Columns      int    `yaml:"columns,omitempty"`
	Workers      int    `yaml:"workers,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// Load reads a YAML config file. A missing file at an optional path yields an empty config.
func Load(path string, optional bool) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// CatalogFilePath returns the metadata file location derived from JSONPath
// A value ending in .json is used as-is; anything else is treated as a directory
func (c *AppConfig) CatalogFilePath() string {
	if strings.HasSuffix(strings.ToLower(c.JSONPath), ".json") {
		return c.JSONPath
	}
	return filepath.Join(c.JSONPath, DefaultCatalogFilename)
}

// RunMetadataFilePath returns where the YAML run summary is written, or "" when disabled
func (c *AppConfig) RunMetadataFilePath() string {
	if !c.EnableRunMetadata {
		return ""
	}
	name := c.RunMetadataFilename
	if name == "" {
		name = "run_metadata.yaml"
	}
	return filepath.Join(c.DestFolder, name)
}

// EffectiveUserAgent returns the configured User-Agent or the default one
func (c *AppConfig) EffectiveUserAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return "tululu-scraper/1.0 (+https://tululu.org)"
}
