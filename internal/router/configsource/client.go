// Package configsource fetches router configuration from the control plane
package configsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// QueueRef identifies a broker queue the router should consume
type QueueRef struct {
	QueueName string `json:"queueName"`
	QueueURI  string `json:"queueUri"`
}

// Key returns the identity used for consumer reconciliation: the URI when
// present (it overrides the broker endpoint per queue), otherwise the name.
func (q QueueRef) Key() string {
	if q.QueueURI != "" {
		return q.QueueURI
	}
	return q.QueueName
}

// PoolDefinition describes one processing pool
type PoolDefinition struct {
	Code               string `json:"code"`
	Concurrency        int    `json:"concurrency"`
	RateLimitPerMinute *int   `json:"rateLimitPerMinute,omitempty"`
}

// Equal reports whether two definitions would produce the same pool
func (p PoolDefinition) Equal(other PoolDefinition) bool {
	if p.Code != other.Code || p.Concurrency != other.Concurrency {
		return false
	}
	if (p.RateLimitPerMinute == nil) != (other.RateLimitPerMinute == nil) {
		return false
	}
	if p.RateLimitPerMinute != nil && *p.RateLimitPerMinute != *other.RateLimitPerMinute {
		return false
	}
	return true
}

// RouterConfig is the control-plane document driving pools and consumers.
// Unknown fields are ignored so the control plane can evolve independently.
type RouterConfig struct {
	Queues          []QueueRef       `json:"queues"`
	Connections     int              `json:"connections"`
	ProcessingPools []PoolDefinition `json:"processingPools"`
}

// PoolsByCode indexes the pool definitions
func (c *RouterConfig) PoolsByCode() map[string]PoolDefinition {
	pools := make(map[string]PoolDefinition, len(c.ProcessingPools))
	for _, p := range c.ProcessingPools {
		pools[p.Code] = p
	}
	return pools
}

// Client fetches router configuration over HTTP
type Client struct {
	baseURL    string
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// ClientConfig holds configuration for the config client
type ClientConfig struct {
	// BaseURL is the control plane base URL (required)
	BaseURL string

	// Endpoint is the config document path
	Endpoint string

	// AuthToken is the optional Bearer token for authentication
	AuthToken string

	// RequestTimeout is the request timeout
	RequestTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Endpoint:       "/api/router/config",
		RequestTimeout: 30 * time.Second,
	}
}

// NewClient creates a new config client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Endpoint == "" {
		config.Endpoint = "/api/router/config"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &Client{
		baseURL:   config.BaseURL,
		endpoint:  config.Endpoint,
		authToken: config.AuthToken,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// Fetch retrieves and decodes the current router configuration
// GET {baseURL}{endpoint}
func (c *Client) Fetch(ctx context.Context) (*RouterConfig, error) {
	url := c.baseURL + c.endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read config response: %w", err)
	}

	if resp.StatusCode >= 400 {
		slog.Error("Config fetch returned error status",
			"statusCode", resp.StatusCode,
			"url", url)
		return nil, fmt.Errorf("config source returned status %d: %s",
			resp.StatusCode, truncate(string(body), 256))
	}

	var cfg RouterConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Connections <= 0 {
		cfg.Connections = 1
	}

	slog.Debug("Fetched router configuration",
		"queues", len(cfg.Queues),
		"pools", len(cfg.ProcessingPools),
		"connections", cfg.Connections)

	return &cfg, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Static always returns the same configuration document. Used for
// development setups that run without a control plane.
type Static struct {
	Config RouterConfig
}

// Fetch returns a copy of the static configuration
func (s *Static) Fetch(ctx context.Context) (*RouterConfig, error) {
	cfg := s.Config
	if cfg.Connections <= 0 {
		cfg.Connections = 1
	}
	return &cfg, nil
}

// PoolDiff partitions a new pool list against the running set
type PoolDiff struct {
	Added     []PoolDefinition
	Changed   []PoolDefinition
	Removed   []string
	Unchanged []string
}

// DiffPools compares the running pools against the fetched definitions.
// Pools with matching definitions land in Unchanged and must not be touched.
func DiffPools(current map[string]PoolDefinition, next []PoolDefinition) PoolDiff {
	var diff PoolDiff
	seen := make(map[string]struct{}, len(next))

	for _, def := range next {
		seen[def.Code] = struct{}{}
		existing, ok := current[def.Code]
		switch {
		case !ok:
			diff.Added = append(diff.Added, def)
		case existing.Equal(def):
			diff.Unchanged = append(diff.Unchanged, def.Code)
		default:
			diff.Changed = append(diff.Changed, def)
		}
	}

	for code := range current {
		if _, ok := seen[code]; !ok {
			diff.Removed = append(diff.Removed, code)
		}
	}

	return diff
}

// QueueDiff partitions a new queue list against the running consumers
type QueueDiff struct {
	Added     []QueueRef
	Removed   []QueueRef
	Unchanged []QueueRef
}

// DiffQueues compares running queues against the fetched references,
// keyed by QueueRef.Key
func DiffQueues(current, next []QueueRef) QueueDiff {
	var diff QueueDiff
	running := make(map[string]QueueRef, len(current))
	for _, q := range current {
		running[q.Key()] = q
	}

	seen := make(map[string]struct{}, len(next))
	for _, q := range next {
		seen[q.Key()] = struct{}{}
		if _, ok := running[q.Key()]; ok {
			diff.Unchanged = append(diff.Unchanged, q)
		} else {
			diff.Added = append(diff.Added, q)
		}
	}

	for key, q := range running {
		if _, ok := seen[key]; !ok {
			diff.Removed = append(diff.Removed, q)
		}
	}

	return diff
}
