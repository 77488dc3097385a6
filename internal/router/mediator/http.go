// Package mediator provides HTTP webhook mediation
package mediator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"go.relaypoint.io/internal/common/metrics"
	"go.relaypoint.io/internal/router/model"
	"go.relaypoint.io/internal/router/pool"
)

// HTTPMediator mediates messages via HTTP webhooks. Failures are tracked
// per target origin (scheme://host) so one unhealthy endpoint cannot trip
// the breaker for every other endpoint.
type HTTPMediator struct {
	client         *http.Client
	breakers       sync.Map // origin -> *gobreaker.CircuitBreaker
	breakerCfg     breakerSettings
	maxRetries     int
	baseBackoff    time.Duration
	maxJitter      time.Duration
	defaultTimeout time.Duration

	// When true, 422 responses are treated as configuration errors
	// (acked, not retried) instead of retryable processing errors.
	unprocessableIsConfig bool
}

type breakerSettings struct {
	enabled     bool
	maxRequests uint32
	minRequests uint32
	interval    time.Duration
	timeout     time.Duration
	ratio       float64
}

// HTTPVersion represents the HTTP protocol version to use
type HTTPVersion string

const (
	// HTTPVersion1 forces HTTP/1.1
	HTTPVersion1 HTTPVersion = "HTTP_1_1"
	// HTTPVersion2 enables HTTP/2 (default for production)
	HTTPVersion2 HTTPVersion = "HTTP_2"
)

// HTTPMediatorConfig configures the HTTP mediator
type HTTPMediatorConfig struct {
	// Timeout for a single HTTP attempt
	Timeout time.Duration

	// HTTPVersion controls which HTTP version to use
	// HTTP_2 (default for production) or HTTP_1_1 (recommended for dev)
	HTTPVersion HTTPVersion

	// MaxRetries is the total number of attempts for transient errors
	MaxRetries int

	// BaseBackoff between retry attempts
	BaseBackoff time.Duration

	// MaxJitter is the upper bound of random jitter added to each backoff
	MaxJitter time.Duration

	// TreatUnprocessableAsConfig controls whether a 422 response is
	// classified as a configuration error rather than a retryable one
	TreatUnprocessableAsConfig bool

	// CircuitBreaker settings (per target origin)
	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32        // Probes allowed while half-open
	CircuitBreakerInterval    time.Duration // Stats window
	CircuitBreakerRatio       float64       // Failure ratio to trip
	CircuitBreakerTimeout     time.Duration // Time in open state before half-open
	CircuitBreakerMinRequests uint32        // Min requests before evaluating ratio
}

// DefaultHTTPMediatorConfig returns sensible defaults for production.
// Note: Timeout is 900s (15 minutes) to support long-running webhooks.
func DefaultHTTPMediatorConfig() *HTTPMediatorConfig {
	return &HTTPMediatorConfig{
		Timeout:                   900 * time.Second,
		HTTPVersion:               HTTPVersion2,
		MaxRetries:                3,
		BaseBackoff:               time.Second,
		MaxJitter:                 500 * time.Millisecond,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    3,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     5 * time.Second,
		CircuitBreakerMinRequests: 10,
	}
}

// DevHTTPMediatorConfig returns config suitable for development
func DevHTTPMediatorConfig() *HTTPMediatorConfig {
	cfg := DefaultHTTPMediatorConfig()
	cfg.HTTPVersion = HTTPVersion1
	return cfg
}

// NewHTTPMediator creates a new HTTP mediator
func NewHTTPMediator(cfg *HTTPMediatorConfig) *HTTPMediator {
	if cfg == nil {
		cfg = DefaultHTTPMediatorConfig()
	}

	// Create transport with base settings
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if cfg.HTTPVersion == HTTPVersion1 {
		// Force HTTP/1.1 by disabling HTTP/2
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(authority string, c *tls.Conn) http.RoundTripper)
		slog.Info("HTTP mediator configured", "version", "HTTP/1.1")
	} else {
		transport.ForceAttemptHTTP2 = true
		slog.Info("HTTP mediator configured", "version", "HTTP/2")
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	return &HTTPMediator{
		client:         client,
		maxRetries:     cfg.MaxRetries,
		baseBackoff:    cfg.BaseBackoff,
		maxJitter:      cfg.MaxJitter,
		defaultTimeout: cfg.Timeout,

		unprocessableIsConfig: cfg.TreatUnprocessableAsConfig,

		breakerCfg: breakerSettings{
			enabled:     cfg.CircuitBreakerEnabled,
			maxRequests: cfg.CircuitBreakerRequests,
			minRequests: cfg.CircuitBreakerMinRequests,
			interval:    cfg.CircuitBreakerInterval,
			timeout:     cfg.CircuitBreakerTimeout,
			ratio:       cfg.CircuitBreakerRatio,
		},
	}
}

// Process processes a message through HTTP mediation
func (m *HTTPMediator) Process(msg *pool.MessagePointer) *pool.MediationOutcome {
	if msg == nil {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  errors.New("nil message"),
		}
	}

	targetURL := msg.MediationTarget
	if targetURL == "" {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  errors.New("no target URL"),
		}
	}

	if m.breakerCfg.enabled {
		origin, err := originOf(targetURL)
		if err != nil {
			return &pool.MediationOutcome{
				Result: pool.MediationResultErrorConfig,
				Error:  fmt.Errorf("invalid target URL: %w", err),
			}
		}

		cb := m.breakerFor(origin)
		result, err := cb.Execute(func() (interface{}, error) {
			return m.executeWithRetry(msg)
		})

		if err != nil {
			// Circuit breaker rejected the call without executing
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				slog.Warn("Circuit breaker open",
					"messageId", msg.ID,
					"origin", origin)
				return &pool.MediationOutcome{
					Result: pool.MediationResultErrorConnection,
					Error:  err,
				}
			}
		}

		if outcome, ok := result.(*pool.MediationOutcome); ok {
			return outcome
		}

		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorServer,
			Error:  err,
		}
	}

	// No circuit breaker, execute directly
	outcome, _ := m.executeWithRetry(msg)
	return outcome
}

// breakerFor returns the circuit breaker for a target origin, creating
// it on first use
func (m *HTTPMediator) breakerFor(origin string) *gobreaker.CircuitBreaker {
	if cb, ok := m.breakers.Load(origin); ok {
		return cb.(*gobreaker.CircuitBreaker)
	}
	cb, _ := m.breakers.LoadOrStore(origin, m.newBreaker(origin))
	return cb.(*gobreaker.CircuitBreaker)
}

func (m *HTTPMediator) newBreaker(origin string) *gobreaker.CircuitBreaker {
	cfg := m.breakerCfg
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        origin,
		MaxRequests: cfg.maxRequests,
		Interval:    cfg.interval,
		Timeout:     cfg.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Info("Circuit breaker state changed",
				"origin", name,
				"from", from.String(),
				"to", to.String())

			var stateValue float64
			switch to {
			case gobreaker.StateClosed:
				stateValue = float64(metrics.CircuitBreakerClosed)
			case gobreaker.StateOpen:
				stateValue = float64(metrics.CircuitBreakerOpen)
				metrics.MediatorCircuitBreakerTrips.WithLabelValues(name).Inc()
			case gobreaker.StateHalfOpen:
				stateValue = float64(metrics.CircuitBreakerHalfOpen)
			}
			metrics.MediatorCircuitBreakerState.WithLabelValues(name).Set(stateValue)
		},
	})
}

// originOf extracts the scheme://host origin from a target URL
func originOf(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("target %q missing scheme or host", target)
	}
	return u.Scheme + "://" + u.Host, nil
}

// originLabel returns the origin for metric labels, falling back to the
// raw target when it does not parse
func originLabel(target string) string {
	origin, err := originOf(target)
	if err != nil {
		return target
	}
	return origin
}

// executeWithRetry executes the HTTP request with retry logic. The
// returned error reflects whether the final outcome counts as a failure
// for the circuit breaker: retryable failures always produce a non-nil
// error, even when the transport succeeded and only the status was bad.
func (m *HTTPMediator) executeWithRetry(msg *pool.MessagePointer) (*pool.MediationOutcome, error) {
	var outcome *pool.MediationOutcome

	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		outcome = m.executeOnce(msg, attempt)

		if !m.isRetryable(outcome) {
			break
		}

		if attempt < m.maxRetries {
			backoff := m.baseBackoff
			if m.maxJitter > 0 {
				backoff += time.Duration(rand.Int63n(int64(m.maxJitter)))
			}
			slog.Info("Retrying after backoff",
				"messageId", msg.ID,
				"attempt", attempt,
				"backoff", backoff)
			time.Sleep(backoff)
		}
	}

	return outcome, m.breakerError(outcome)
}

// breakerError maps an outcome to the error reported to the circuit
// breaker. Config errors return nil: the endpoint answered decisively,
// so it should not count against its health.
func (m *HTTPMediator) breakerError(outcome *pool.MediationOutcome) error {
	switch outcome.Result {
	case pool.MediationResultSuccess, pool.MediationResultErrorConfig:
		return nil
	}
	if outcome.Error != nil {
		return outcome.Error
	}
	return fmt.Errorf("mediation failed with status %d", outcome.StatusCode)
}

// executeOnce executes a single HTTP request:
// POST to the mediation target with {"messageId": "<id>"} and
// Authorization: Bearer <authToken>
func (m *HTTPMediator) executeOnce(msg *pool.MessagePointer, attempt int) *pool.MediationOutcome {
	targetURL := msg.MediationTarget

	timeout := m.defaultTimeout
	if msg.TimeoutSeconds > 0 {
		timeout = time.Duration(msg.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	payload, err := json.Marshal(model.ProcessRequest{MessageID: msg.ID})
	if err != nil {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  fmt.Errorf("failed to encode payload: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(string(payload)))
	if err != nil {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if msg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+msg.AuthToken)
	}

	// Add any additional custom headers
	for k, v := range msg.Headers {
		req.Header.Set(k, v)
	}

	slog.Debug("Executing HTTP request",
		"messageId", msg.ID,
		"target", targetURL,
		"attempt", attempt)

	startTime := time.Now()
	resp, err := m.client.Do(req)
	duration := time.Since(startTime)

	metrics.MediatorHTTPDuration.WithLabelValues(originLabel(targetURL)).Observe(duration.Seconds())

	if err != nil {
		metrics.MediatorHTTPRequests.WithLabelValues("error", "POST").Inc()
		return m.handleError(msg, err)
	}
	defer resp.Body.Close()

	metrics.MediatorHTTPRequests.WithLabelValues(strconv.Itoa(resp.StatusCode), "POST").Inc()

	// Read response body
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024)) // Limit to 64KB

	slog.Debug("HTTP response received",
		"messageId", msg.ID,
		"statusCode", resp.StatusCode,
		"bodyLen", len(body),
		"duration", duration)

	return m.handleResponse(msg, resp.StatusCode, resp.Header, body)
}

// handleError classifies transport-level errors
func (m *HTTPMediator) handleError(msg *pool.MessagePointer, err error) *pool.MediationOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("Request timeout",
			"messageId", msg.ID,
			"error", err)
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConnection,
			Error:  err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorProcess,
			Error:  err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		slog.Warn("Network error",
			"messageId", msg.ID,
			"error", err,
			"timeout", netErr.Timeout())
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConnection,
			Error:  err,
		}
	}

	// Anything else from the transport (DNS, dial, TLS failures) means
	// the endpoint was unreachable
	slog.Warn("Connection error",
		"messageId", msg.ID,
		"error", err)
	return &pool.MediationOutcome{
		Result: pool.MediationResultErrorConnection,
		Error:  err,
	}
}

// handleResponse classifies the HTTP response status:
//   - 200, 201: success (unless the body carries ack=false)
//   - 400, 404, 409: configuration error, acked without retry
//   - 422: processing error by default, configurable
//   - 429, 502, 503: server error, retried
//   - other 5xx: processing error, retried
//   - anything else: server error
func (m *HTTPMediator) handleResponse(msg *pool.MessagePointer, statusCode int, header http.Header, body []byte) *pool.MediationOutcome {
	switch {
	case statusCode == http.StatusOK || statusCode == http.StatusCreated:
		// Check for ack field in response
		ack := m.parseAckFromResponse(body)

		if ack != nil && !*ack {
			// ack=false means "not ready, try again later"
			delay := m.parseDelayFromResponse(body)
			slog.Info("Response ack=false, will retry",
				"messageId", msg.ID,
				"statusCode", statusCode)
			return &pool.MediationOutcome{
				Result:      pool.MediationResultErrorProcess,
				StatusCode:  statusCode,
				ResponseAck: ack,
				Delay:       delay,
			}
		}

		return &pool.MediationOutcome{
			Result:     pool.MediationResultSuccess,
			StatusCode: statusCode,
		}

	case statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusConflict:
		slog.Warn("Client error - will not retry",
			"messageId", msg.ID,
			"statusCode", statusCode)
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorConfig,
			StatusCode: statusCode,
		}

	case statusCode == http.StatusUnprocessableEntity:
		if m.unprocessableIsConfig {
			slog.Warn("Unprocessable entity - will not retry",
				"messageId", msg.ID,
				"statusCode", statusCode)
			return &pool.MediationOutcome{
				Result:     pool.MediationResultErrorConfig,
				StatusCode: statusCode,
			}
		}
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorProcess,
			StatusCode: statusCode,
		}

	case statusCode == http.StatusTooManyRequests:
		// Honor the server's requested pacing
		delay := m.parseRetryAfter(header, body)
		slog.Warn("Rate limited by endpoint",
			"messageId", msg.ID,
			"statusCode", statusCode)
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorServer,
			StatusCode: statusCode,
			Delay:      delay,
		}

	case statusCode == http.StatusBadGateway || statusCode == http.StatusServiceUnavailable:
		slog.Warn("Endpoint unavailable - will retry",
			"messageId", msg.ID,
			"statusCode", statusCode)
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorServer,
			StatusCode: statusCode,
		}

	case statusCode >= 500 && statusCode < 600:
		slog.Warn("Server error - will retry",
			"messageId", msg.ID,
			"statusCode", statusCode)
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorProcess,
			StatusCode: statusCode,
		}

	default:
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorServer,
			StatusCode: statusCode,
		}
	}
}

// parseAckFromResponse parses the ack field from a JSON response
func (m *HTTPMediator) parseAckFromResponse(body []byte) *bool {
	if len(body) == 0 {
		return nil
	}

	var response struct {
		Ack *bool `json:"ack"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil
	}

	return response.Ack
}

// parseDelayFromResponse parses the delaySeconds field from a JSON response
func (m *HTTPMediator) parseDelayFromResponse(body []byte) *time.Duration {
	if len(body) == 0 {
		return nil
	}

	var response struct {
		DelaySeconds *int `json:"delaySeconds"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil
	}

	if response.DelaySeconds != nil && *response.DelaySeconds > 0 {
		d := time.Duration(*response.DelaySeconds) * time.Second
		return &d
	}

	return nil
}

// parseRetryAfter resolves the retry delay for a 429: the Retry-After
// header wins, then a delaySeconds body field, then a 5 second default
func (m *HTTPMediator) parseRetryAfter(header http.Header, body []byte) *time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			return &d
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return &d
			}
		}
	}

	if delay := m.parseDelayFromResponse(body); delay != nil {
		return delay
	}

	d := 5 * time.Second
	return &d
}

// isRetryable determines if an outcome should be retried in place
func (m *HTTPMediator) isRetryable(outcome *pool.MediationOutcome) bool {
	// The endpoint asked for a specific delay or declined the message;
	// hand it back to the broker instead of retrying in place
	if outcome.HasCustomDelay() {
		return false
	}
	if outcome.ResponseAck != nil && !*outcome.ResponseAck {
		return false
	}

	switch outcome.Result {
	case pool.MediationResultErrorConnection,
		pool.MediationResultErrorServer,
		pool.MediationResultErrorProcess:
		return true
	default:
		return false
	}
}
