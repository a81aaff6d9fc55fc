package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"tululu-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// BaseURL
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	base, parseErr := url.Parse(c.BaseURL)
	if parseErr != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: base_url '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, c.BaseURL)
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}

	// Category
	if c.Category <= 0 {
		if c.Category < 0 {
			warnings = append(warnings, fmt.Sprintf("category cannot be negative, defaulting to %d", DefaultCategory))
		}
		c.Category = DefaultCategory
	}

	// Page range
	if c.StartPage < 0 {
		warnings = append(warnings, "start_page cannot be negative, defaulting to 1")
	}
	if c.StartPage <= 0 {
		c.StartPage = 1
	}
	if c.EndPage <= 0 {
		c.EndPage = 700
	}

	// ID range
	if c.StartID < 0 {
		warnings = append(warnings, "start_id cannot be negative, defaulting to 1")
	}
	if c.StartID <= 0 {
		c.StartID = 1
	}
	if c.EndID <= 0 {
		c.EndID = 10
	}

	// DestFolder
	if c.DestFolder == "" {
		c.DestFolder = "."
	}

	// JSONPath
	if c.JSONPath == "" {
		c.JSONPath = "."
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './tululu_state'")
		c.StateDir = "./tululu_state"
	}

	// DelayPerHost
	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, disabling delay")
		c.DelayPerHost = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	warnings = append(warnings, c.validateConnectionRetry()...)

	// CatalogFlush
	switch c.CatalogFlush {
	case "":
		c.CatalogFlush = FlushPerPage
	case FlushPerPage, FlushAtEnd:
	default:
		warnings = append(warnings, fmt.Sprintf("catalog_flush '%s' is unknown, defaulting to '%s'", c.CatalogFlush, FlushPerPage))
		c.CatalogFlush = FlushPerPage
	}

	// GlobalTimeout
	if c.GlobalTimeout < 0 {
		warnings = append(warnings, "global_timeout cannot be negative, disabling timeout")
		c.GlobalTimeout = 0
	}

	// Run metadata filename
	if c.EnableRunMetadata && c.RunMetadataFilename == "" {
		warnings = append(warnings,
			"'enable_run_metadata' is true but 'run_metadata_filename' is empty. Defaulting to 'run_metadata.yaml'")
		c.RunMetadataFilename = "run_metadata.yaml"
	}

	// TreeFileLimit
	if c.TreeFileLimit <= 0 {
		c.TreeFileLimit = utils.DefaultTreeFileLimit
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	warnings = append(warnings, c.validateRender()...)

	return warnings, nil
}

// ValidatePageRange reports an error when the listing-page range is empty
func (c *AppConfig) ValidatePageRange() error {
	if c.EndPage < c.StartPage {
		return fmt.Errorf("%w: end_page (%d) is before start_page (%d)", utils.ErrConfigValidation, c.EndPage, c.StartPage)
	}
	return nil
}

// ValidateIDRange reports an error when the book-id range is empty
func (c *AppConfig) ValidateIDRange() error {
	if c.EndID < c.StartID {
		return fmt.Errorf("%w: end_id (%d) is before start_id (%d)", utils.ErrConfigValidation, c.EndID, c.StartID)
	}
	return nil
}

// validateConnectionRetry applies defaults to the connection retry budget.
func (c *AppConfig) validateConnectionRetry() (warnings []string) {
	r := &c.ConnectionRetry
	if r.MaxAttempts < 0 {
		warnings = append(warnings, "connection_retry.max_attempts cannot be negative, defaulting to 10")
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 10
	}
	if r.Backoff < 0 {
		warnings = append(warnings, "connection_retry.backoff cannot be negative, defaulting to 45s")
	}
	if r.Backoff <= 0 {
		r.Backoff = 45 * time.Second
	}
	if r.Multiplier < 1 {
		if r.Multiplier != 0 {
			warnings = append(warnings, "connection_retry.multiplier below 1, using a fixed backoff")
		}
		r.Multiplier = 1
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 10 * time.Minute
	}
	if r.MaxBackoff < r.Backoff {
		warnings = append(warnings, fmt.Sprintf(
			"connection_retry.max_backoff (%v) < backoff (%v), raising max_backoff", r.MaxBackoff, r.Backoff))
		r.MaxBackoff = r.Backoff
	}
	return warnings
}

// validateRender applies defaults to renderer settings.
func (c *AppConfig) validateRender() (warnings []string) {
	r := &c.Render
	if r.OutputDir == "" {
		r.OutputDir = "pages"
	}
	if r.Rows < 0 || r.Columns < 0 {
		warnings = append(warnings, "render rows and columns cannot be negative, using 10x2")
	}
	if r.Rows <= 0 {
		r.Rows = 10
	}
	if r.Columns <= 0 {
		r.Columns = 2
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}
	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}
