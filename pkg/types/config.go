package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "scholar-query-splitter/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// OracleConfig holds settings for the hit-count oracle client.
type OracleConfig struct {
	HTTPConfig `yaml:",inline"`

	// MinDelay and MaxDelay bound the uniform politeness delay drawn before
	// every uncached oracle call (defaults 5s and 15s). This latency floor is
	// the primary defense against abuse detection.
	MinDelay time.Duration `json:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// ErrorDelay is the first backoff after a block signal (default 60s).
	// Consecutive blocks escalate by BackoffFactor up to MaxErrorDelay.
	ErrorDelay    time.Duration `json:"error_delay" yaml:"error_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
	MaxErrorDelay time.Duration `json:"max_error_delay" yaml:"max_error_delay"`

	// MaxRetries is the block retry budget per query (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// NetworkRetries and NetworkRetryDelay form the short, non-escalating
	// budget for transient connectivity failures.
	NetworkRetries    int           `json:"network_retries" yaml:"network_retries"`
	NetworkRetryDelay time.Duration `json:"network_retry_delay" yaml:"network_retry_delay"`

	// RequestsPerMinute caps the sustained oracle call rate across all
	// callers sharing one pacer. Zero disables the token bucket, leaving
	// only the politeness delay.
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute"`

	// ProxyURL routes oracle requests through a proxy when set. Proxy
	// failures are classified exactly like direct failures.
	ProxyURL string `json:"proxy_url,omitempty" yaml:"proxy_url,omitempty"`
}

// WithOracleDefaults fills unset oracle fields with the standard values.
func (c OracleConfig) WithOracleDefaults() OracleConfig {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "scholar-query-splitter/0.1"
	}
	if c.MinDelay == 0 {
		c.MinDelay = 5 * time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 15 * time.Second
	}
	if c.ErrorDelay == 0 {
		c.ErrorDelay = 60 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2.0
	}
	if c.MaxErrorDelay == 0 {
		c.MaxErrorDelay = 10 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.NetworkRetries == 0 {
		c.NetworkRetries = 2
	}
	if c.NetworkRetryDelay == 0 {
		c.NetworkRetryDelay = 5 * time.Second
	}
	return c
}

// SplitConfig holds settings for the exhaustive splitting engine.
type SplitConfig struct {
	// BaseQuery is the boolean expression to decompose.
	BaseQuery string `json:"base_query" yaml:"base_query"`

	// StartYear and EndYear bound the per-year partition loop, inclusive.
	StartYear int `json:"start_year" yaml:"start_year"`
	EndYear   int `json:"end_year" yaml:"end_year"`

	// TargetSize is the maximum hit count a committed sub-query may have
	// (default 900, staying under the external endpoint's 1000 cap).
	TargetSize int `json:"target_size" yaml:"target_size"`

	// SampleSize bounds how many top-ranked candidates of each kind the
	// effectiveness tester probes (default 30).
	SampleSize int `json:"sample_size" yaml:"sample_size"`

	// MaxQueries caps committed entries per year (default 50).
	MaxQueries int `json:"max_queries" yaml:"max_queries"`

	// MaxDepth caps modifiers combined into a single query (default 3).
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// CoverageThreshold flags a year incomplete below this fraction (default 0.95).
	CoverageThreshold float64 `json:"coverage_threshold" yaml:"coverage_threshold"`

	// OutputDir receives the query list CSV and the final report.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// WithSplitDefaults fills unset split fields with the standard values.
func (c SplitConfig) WithSplitDefaults() SplitConfig {
	if c.TargetSize == 0 {
		c.TargetSize = 900
	}
	if c.SampleSize == 0 {
		c.SampleSize = 30
	}
	if c.MaxQueries == 0 {
		c.MaxQueries = 50
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 3
	}
	if c.CoverageThreshold == 0 {
		c.CoverageThreshold = 0.95
	}
	if c.OutputDir == "" {
		c.OutputDir = "outputs/exhaustive"
	}
	return c
}

// Validate rejects malformed configuration before any oracle call is issued.
// These are the only fatal conditions in the engine.
func (c SplitConfig) Validate() error {
	if c.BaseQuery == "" {
		return fmt.Errorf("base query must not be empty")
	}
	if c.StartYear <= 0 || c.EndYear <= 0 {
		return fmt.Errorf("start and end year are required")
	}
	if c.StartYear > c.EndYear {
		return fmt.Errorf("start year %d is after end year %d", c.StartYear, c.EndYear)
	}
	if c.TargetSize <= 0 {
		return fmt.Errorf("target size must be positive, got %d", c.TargetSize)
	}
	if c.MaxQueries <= 0 {
		return fmt.Errorf("max queries must be positive, got %d", c.MaxQueries)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// FetchConfig holds settings for the OpenAlex metadata download stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Email is sent as mailto parameter for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// MaxResults caps the number of works fetched (default 5000).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// PerPage is the page size for cursor pagination (max 200).
	PerPage int `json:"per_page" yaml:"per_page"`

	// JSONDir is the directory for downloaded metadata files.
	JSONDir string `json:"json_dir" yaml:"json_dir"`
}

// WithFetchDefaults fills unset fetch fields with the standard values.
func (c FetchConfig) WithFetchDefaults() FetchConfig {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "scholar-query-splitter/0.1"
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5000
	}
	if c.PerPage <= 0 || c.PerPage > 200 {
		c.PerPage = 200
	}
	if c.JSONDir == "" {
		c.JSONDir = "json"
	}
	return c
}

// SplitterConfig groups all stage configurations for the pipeline.
type SplitterConfig struct {
	Oracle OracleConfig `json:"oracle" yaml:"oracle"`
	Split  SplitConfig  `json:"split" yaml:"split"`
	Fetch  FetchConfig  `json:"fetch" yaml:"fetch"`
}
