package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/five82/metricdeck/internal/session"
)

const (
	defaultBaseURL   = "http://localhost:5000/api"
	defaultUserAgent = "metricdeck/0.1"
	defaultTimeout   = 30 * time.Second
)

// TokenStore is the session the client reads credentials from and writes
// refreshed credentials back to. *session.Store implements it.
type TokenStore interface {
	AccessToken() string
	BeginRefresh() (string, error)
	CompleteRefresh(issued, access, refresh string) error
	AbortRefresh(issued string) bool
	Clear()
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	Logger     zerolog.Logger
	HTTPClient *http.Client
}

// Client issues authenticated requests to the metrics backend. A 401 on an
// authenticated request triggers at most one token refresh and one retry.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenStore
	logger    zerolog.Logger
	refreshes singleflight.Group
}

// NewClient builds a Client for the backend at opts.BaseURL.
func NewClient(tokens TokenStore, opts Options) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token store is nil")
	}
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: userAgent,
		tokens:    tokens,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
	}, nil
}

// BaseURL returns the resolved backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request describes one logical backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Accept string

	// Token, when set, is sent instead of the session's access token.
	Token string
	// Anonymous requests carry no Authorization header and never refresh.
	Anonymous bool
	// NoRefresh makes a 401 fail immediately instead of refreshing.
	NoRefresh bool

	// retried marks the single re-issue after a refresh. It is only ever
	// set on a copy, never mutated in place.
	retried bool
	id      string
}

func (r Request) retry() Request {
	r.retried = true
	return r
}

// Response is a fully read 2xx response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do runs req through the auth pipeline.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if req.id == "" {
		req.id = uuid.NewString()
	}

	resp, sentToken, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && !req.Anonymous && !req.NoRefresh {
		if req.retried {
			c.logger.Warn().Str("request_id", req.id).Str("path", req.Path).Msg("unauthorized after refresh")
			return nil, newHTTPError(resp.Status, req.Path, resp.Body)
		}
		// Another request may already have refreshed while this one was in flight.
		if current := c.tokens.AccessToken(); current == "" || current == sentToken {
			if err := c.refresh(ctx); err != nil {
				return nil, err
			}
		}
		return c.Do(ctx, req.retry())
	}

	if resp.Status < 200 || resp.Status >= 300 {
		return nil, newHTTPError(resp.Status, req.Path, resp.Body)
	}
	return resp, nil
}

// DoJSON runs req and decodes the JSON response body into dest.
func (c *Client) DoJSON(ctx context.Context, req Request, dest any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if dest == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// refresh obtains a new access token. Concurrent callers share one round trip.
func (c *Client) refresh(ctx context.Context) error {
	_, err, shared := c.refreshes.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(context.WithoutCancel(ctx))
	})
	if shared {
		c.logger.Debug().Msg("joined in-flight token refresh")
	}
	return err
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) doRefresh(ctx context.Context) error {
	token, err := c.tokens.BeginRefresh()
	if err != nil {
		c.tokens.Clear()
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}

	resp, _, err := c.send(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/auth/refresh",
		Body:      refreshRequest{RefreshToken: token},
		Anonymous: true,
		id:        uuid.NewString(),
	})
	if err == nil && (resp.Status < 200 || resp.Status >= 300) {
		err = newHTTPError(resp.Status, "/auth/refresh", resp.Body)
	}
	var payload refreshResponse
	if err == nil {
		if derr := json.Unmarshal(resp.Body, &payload); derr != nil {
			err = fmt.Errorf("decode refresh response: %w", derr)
		} else if payload.AccessToken == "" {
			err = fmt.Errorf("refresh response missing access_token")
		}
	}
	if err != nil {
		if c.tokens.AbortRefresh(token) {
			c.logger.Warn().Err(err).Msg("token refresh failed, session cleared")
		}
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}

	if err := c.tokens.CompleteRefresh(token, payload.AccessToken, payload.RefreshToken); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			c.logger.Info().Msg("session ended during token refresh, result dropped")
			return fmt.Errorf("%w: %w", ErrAuthRequired, err)
		}
		c.logger.Error().Err(err).Msg("persist refreshed tokens failed")
	}
	c.logger.Info().Msg("access token refreshed")
	return nil
}

// send performs a single HTTP round trip and returns the token it sent.
func (c *Client) send(ctx context.Context, req Request) (*Response, string, error) {
	op := req.Method + " " + req.Path
	reqURL := c.resolve(req.Path, req.Query)

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	accept := req.Accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", req.id)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	var token string
	if !req.Anonymous {
		token = req.Token
		if token == "" {
			token = c.tokens.AccessToken()
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", req.id).Str("op", op).Msg("request failed")
		return nil, token, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, token, &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug().
		Str("request_id", req.id).
		Str("op", op).
		Int("status", resp.StatusCode).
		Bool("retried", req.retried).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, token, nil
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	u := c.baseURL.JoinPath(strings.TrimPrefix(path, "/"))
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api_url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
