package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/swurapp/swur/internal/apperrors"
	"github.com/swurapp/swur/internal/config"
	"github.com/swurapp/swur/internal/metrics"
	"github.com/swurapp/swur/internal/models"
)

// BasePath is prefixed to every endpoint.
const BasePath = "/api/v3"

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// Client is the gateway to a single Sonarr instance.
type Client interface {
	// Call issues one authenticated request against BasePath+endpoint and
	// returns the response with its body fully buffered. Any status outside
	// [200, 300) is returned as *apperrors.ErrAPICallFailed.
	Call(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Response, error)

	GetTags(ctx context.Context) ([]models.Tag, error)
	GetSeries(ctx context.Context) ([]models.SeriesSummary, error)
	GetEpisodes(ctx context.Context, seriesID, seasonNumber int) ([]models.UpstreamEpisode, error)
	SetEpisodesMonitored(ctx context.Context, episodeIDs []int, monitored bool) error
	SearchEpisodes(ctx context.Context, episodeIDs []int) error

	// Close releases idle connections held by the client.
	Close() error
}

type client struct {
	httpClient *http.Client
	transport  *http.Transport
	baseURL    *url.URL
	apiKey     string
	userAgent  string
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewClient creates a gateway for cfg.BaseURL. The base URL must be http or https.
func NewClient(cfg *config.Config, logger zerolog.Logger) (Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", cfg.BaseURL)
	}

	// Clone DefaultTransport to keep its pooling and HTTP/2 settings
	baseTransport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyConnectionString != "" {
		proxyURL, err := url.Parse(cfg.ProxyConnectionString)
		if err != nil {
			logger.Warn().Err(err).Str("proxy", cfg.ProxyConnectionString).Msg("Invalid proxy URL, continuing without proxy")
		} else {
			baseTransport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	var transport http.RoundTripper = newCompressionTransport(baseTransport)
	if cfg.RateLimit > 0 {
		transport = newRateLimitTransport(transport, cfg.RateLimit)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent()
	}

	return &client{
		httpClient: &http.Client{
			Transport: transport,
			// 3xx responses go to the status check as-is
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		transport:  baseTransport,
		baseURL:    base,
		apiKey:     cfg.APIKey,
		userAgent:  userAgent,
		timeout:    cfg.Timeout(),
		logger:     logger.With().Str("component", "client").Logger(),
	}, nil
}

// endpointURL joins the base URL path, BasePath and endpoint without doubling
// separators and adds the API key to a copy of query.
func (c *client) endpointURL(endpoint string, query url.Values) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + BasePath + "/" + strings.TrimLeft(endpoint, "/")
	u.RawPath = ""

	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	return &u
}

func (c *client) Call(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
		}
	}
	target := c.endpointURL(endpoint, query)

	start := time.Now()
	resp, err := failsafe.With[*http.Response](timeout.New[*http.Response](c.timeout)).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
			return c.do(exec.Context(), method, target, payload)
		})
	elapsed := time.Since(start)

	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	metrics.APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	metrics.APIRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(err, timeout.ErrExceeded) {
			c.logger.Debug().Str("method", method).Str("endpoint", endpoint).Dur("timeout", c.timeout).Msg("API call timed out")
			return nil, &apperrors.ErrRequestTimeout{Method: method, Endpoint: endpoint, Timeout: c.timeout}
		}
		c.logger.Debug().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("API call failed")
		return nil, apperrors.NewTransportError(method, endpoint, c.redact(err))
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("API call completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, apperrors.NewAPICallFailedError(method, endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// do sends a single request and buffers the response body so it outlives ctx.
func (c *client) do(ctx context.Context, method string, target *url.URL, payload []byte) (*http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// redact strips the API key from URLs embedded in transport errors.
func (c *client) redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) || c.apiKey == "" {
		return err
	}
	redacted := *urlErr
	redacted.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey), "REDACTED")
	return &redacted
}

func (c *client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
