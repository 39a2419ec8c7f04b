// Package twitter implements the parts of the Twitter v1.1 API the bot
// talks to: OAuth 1.0a request signing, the INIT/APPEND/FINALIZE media
// upload, Direct Message delivery, and the webhook challenge-response check.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/masganem/PuffleBot/internal/metrics"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 2000 * time.Millisecond

// maxErrorBody caps how much of a failed response is kept in a TransportError.
const maxErrorBody = 2048

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Endpoints  Endpoints
	Signer     *Signer
	HTTPClient Doer          // default: pooled client with Timeout
	Timeout    time.Duration // default: DefaultTimeout
	Logger     *slog.Logger
}

// Client performs signed calls against both API hosts.
type Client struct {
	endpoints Endpoints
	signer    *Signer
	http      Doer
	timeout   time.Duration
	logger    *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoints.API == "" {
		cfg.Endpoints.API = DefaultEndpoints.API
	}
	if cfg.Endpoints.Upload == "" {
		cfg.Endpoints.Upload = DefaultEndpoints.Upload
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		endpoints: cfg.Endpoints,
		signer:    cfg.Signer,
		http:      cfg.HTTPClient,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// NewHTTPClient returns a pooled HTTP client whose every request is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewRequest builds a request against the client's endpoints.
func (c *Client) NewRequest(api API, method, target string, query Params) *Request {
	return NewRequest(c.endpoints, api, method, target, query)
}

// Do signs req, sends it, and decodes a JSON response into out when out is
// non-nil. Any failure, including a non-2xx status, is a *TransportError.
func (c *Client) Do(ctx context.Context, op string, req *Request, out any) error {
	auth := c.signer.AuthHeader(req)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return &TransportError{Op: op, Method: req.Method, URL: req.URL, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Authorization", auth)
	httpReq.Header.Set("Accept", "*/*")
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.TwitterLatency.ObserveSince(start)
	if err != nil {
		return &TransportError{Op: op, Method: req.Method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return &TransportError{
			Op:         op,
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	c.logger.Debug("twitter request ok", "op", op, "status", resp.StatusCode, "latency", time.Since(start))

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: op, Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
