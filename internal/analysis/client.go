// Package analysis turns food descriptions and photos into nutrition estimates
// through a multimodal chat-completion API.
//
// A Client throttles its own dispatches, shrinks photos to fit the upstream
// payload budget, retries rate-limited and failed requests a bounded number of
// times, and classifies every failure as an *Error.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/franckalain/macrotrack/internal/metrics"
	"github.com/franckalain/macrotrack/internal/models"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-4o"

	// MaxAttempts bounds dispatches per Analyze call.
	MaxAttempts = 3
	// RequestTimeout bounds a single dispatch.
	RequestTimeout = 30 * time.Second

	rateLimitBackoffBase = 5 * time.Second
	transportBackoffStep = 2 * time.Second

	maxResponseBytes = 4 << 20
)

// ConnectivityProbe reports whether the network is reachable.
type ConnectivityProbe interface {
	IsConnected() bool
}

// ContextProbe is a ConnectivityProbe whose check can be canceled.
type ContextProbe interface {
	ConnectivityProbe
	IsConnectedContext(ctx context.Context) bool
}

// IsReachable runs the probe, honoring ctx when the probe supports it.
func IsReachable(ctx context.Context, p ConnectivityProbe) bool {
	if cp, ok := p.(ContextProbe); ok {
		return cp.IsConnectedContext(ctx)
	}
	return p.IsConnected()
}

// ProbeFunc adapts a function to ConnectivityProbe.
type ProbeFunc func() bool

func (f ProbeFunc) IsConnected() bool { return f() }

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the upstream endpoint settings.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Client is safe for concurrent use. All Analyze calls on one Client share
// its throttle.
type Client struct {
	cfg      Config
	probe    ConnectivityProbe
	http     Doer
	clock    Clock
	throttle *Throttler
	logger   *zap.Logger
}

// New creates a client. A nil doer uses an *http.Client; a nil logger discards logs.
func New(cfg Config, probe ConnectivityProbe, doer Doer, logger *zap.Logger) *Client {
	return newClient(cfg, probe, doer, logger, SystemClock{})
}

func newClient(cfg Config, probe ConnectivityProbe, doer Doer, logger *zap.Logger, clock Clock) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if probe == nil {
		probe = ProbeFunc(func() bool { return true })
	}
	if doer == nil {
		doer = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		probe:    probe,
		http:     doer,
		clock:    clock,
		throttle: NewThrottler(MinRequestInterval, clock),
		logger:   logger,
	}
}

// Model returns the upstream model name.
func (c *Client) Model() string { return c.cfg.Model }

// Analyze estimates the nutrition of req.
//
// Failures are *Error values, except caller cancellation, which returns the
// context's error.
func (c *Client) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	start := c.clock.Now()
	result, err := c.analyze(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		if ctx.Err() != nil {
			outcome = "canceled"
		}
	}
	metrics.AnalysesTotal.WithLabelValues(c.cfg.Model, outcome).Inc()
	metrics.RequestDurationSeconds.WithLabelValues(c.cfg.Model).Observe(c.clock.Now().Sub(start).Seconds())
	return result, err
}

func (c *Client) analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if !IsReachable(ctx, c.probe) {
		return nil, NewError(KindNoConnection, "network unreachable", nil)
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	var img *OptimizedImage
	if req.HasImage() {
		var err error
		img, err = OptimizeImage(req.Image, MaxImageBytes)
		if err != nil {
			return nil, NewError(KindInvalidInput, "unreadable image", err)
		}
		metrics.ImageBytes.Observe(float64(len(img.Data)))
		c.logger.Debug("image optimized",
			zap.Int("original_bytes", len(req.Image)),
			zap.Int("optimized_bytes", len(img.Data)),
			zap.Int("quality", img.Quality))
	}

	body, err := json.Marshal(buildChatRequest(c.cfg.Model, req, img))
	if err != nil {
		return nil, NewError(KindUnknown, "failed to marshal request", err)
	}

	attempt := 0
	for {
		result, err := c.dispatch(ctx, body)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var delay time.Duration
		var domain *Error
		switch {
		case errors.As(err, &domain) && domain.Kind == KindRateLimitExceeded:
			attempt++
			if attempt >= MaxAttempts {
				c.logger.Warn("rate limit retries exhausted", zap.Int("attempts", attempt))
				return nil, err
			}
			delay = rateLimitBackoff(attempt)
		case errors.As(err, &domain):
			return nil, err
		default:
			attempt++
			if attempt >= MaxAttempts {
				c.logger.Warn("transport retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
				return nil, NewError(KindMaxRetriesExceeded,
					fmt.Sprintf("failed after %d attempts", attempt), err)
			}
			delay = transportBackoff(attempt)
		}

		c.logger.Info("retrying analysis request",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// rateLimitBackoff is the wait after the n-th rate-limited attempt: 5s * 2^n.
func rateLimitBackoff(n int) time.Duration {
	return time.Duration(float64(rateLimitBackoffBase) * math.Pow(2, float64(n)))
}

// transportBackoff is the wait after the n-th failed dispatch: n * 2s.
func transportBackoff(n int) time.Duration {
	return time.Duration(n) * transportBackoffStep
}

// dispatch performs one HTTP attempt. Classified failures are *Error;
// anything else is a transport error eligible for retry.
func (c *Client) dispatch(ctx context.Context, body []byte) (*models.AnalysisResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindUnknown, "failed to create request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	// The throttle slot is taken last so the gap is measured at Do.
	waited, err := c.throttle.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if waited > 0 {
		metrics.ThrottleWaitSeconds.Observe(waited.Seconds())
		c.logger.Debug("throttled", zap.Duration("wait", waited))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	resp, err := c.http.Do(httpReq.WithContext(attemptCtx))
	if err != nil {
		metrics.AttemptsTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.AttemptsTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.AttemptsTotal.WithLabelValues("rate_limited").Inc()
		return nil, NewError(KindRateLimitExceeded, apiErrorMessage(respBody), nil)
	case resp.StatusCode != http.StatusOK:
		metrics.AttemptsTotal.WithLabelValues("api_error").Inc()
		msg := apiErrorMessage(respBody)
		if msg == "" {
			msg = strings.ToLower(http.StatusText(resp.StatusCode))
		}
		return nil, NewError(KindAPIError, fmt.Sprintf("status %d: %s", resp.StatusCode, msg), nil)
	}

	metrics.AttemptsTotal.WithLabelValues("ok").Inc()
	return parseCompletion(respBody)
}
