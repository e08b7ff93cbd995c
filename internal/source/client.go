package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"permission-gate/internal/apperror"
	"permission-gate/internal/config"
	"permission-gate/internal/instrument"
	"permission-gate/internal/logging"
)

const (
	permissionsPath = "/liana/v3/permissions"
	secretHeader    = "forest-secret-key"
	maxBodyBytes    = 8 << 20
)

// Client fetches rendering permission documents from the permission source.
// Transport errors and 5xx answers are retried with exponential backoff;
// repeated failures open a circuit breaker that fails fast.
type Client struct {
	baseURL       string
	secretKey     string
	http          *http.Client
	maxRetries    int
	retryInterval time.Duration
	breaker       *gobreaker.CircuitBreaker
	logger        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryInterval sets the first backoff delay.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

func NewClient(cfg config.SourceConfig, opts ...Option) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		secretKey:     cfg.SecretKey,
		http:          &http.Client{Timeout: timeout},
		maxRetries:    cfg.MaxRetries,
		retryInterval: 100 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := uint32(5)
	if cfg.BreakerFailures > 0 {
		failures = uint32(cfg.BreakerFailures)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "permission-source",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// FetchRendering returns the raw JSON permission document of a rendering.
// Every failure is an UPSTREAM_FETCH_FAILED error.
func (c *Client) FetchRendering(ctx context.Context, renderingID int64) ([]byte, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "permission", "source", "fetch_rendering")
	defer span.End()
	span.SetMetadata("rendering_id", renderingID)

	body, err := c.breaker.Execute(func() (any, error) {
		return c.fetchWithRetry(ctx, renderingID)
	})
	if err != nil {
		span.SetStatus("error")
		span.SetMetadata("error", err.Error())
		return nil, apperror.UpstreamFetchError(err)
	}
	return body.([]byte), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, renderingID int64) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0

	maxRetries := c.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempt := 0
	var body []byte
	operation := func() error {
		attempt++
		data, err := c.get(ctx, renderingID)
		if err != nil {
			var perm *backoff.PermanentError
			if !errors.As(err, &perm) {
				c.logger.Warn("permission fetch failed, retrying",
					zap.Int64("rendering_id", renderingID),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
			return err
		}
		body = data
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, renderingID int64) ([]byte, error) {
	u := c.baseURL + permissionsPath + "?" + url.Values{"renderingId": {strconv.FormatInt(renderingID, 10)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(secretHeader, c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("permission source answered HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("permission source answered HTTP %d", resp.StatusCode))
	}
	if !json.Valid(body) {
		return nil, backoff.Permanent(fmt.Errorf("permission source answered invalid JSON"))
	}
	return body, nil
}
