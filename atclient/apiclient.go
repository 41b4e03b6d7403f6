package atclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Interface for auth implementations which can be used with [APIClient].
type AuthMethod interface {
	DoWithAuth(c *http.Client, req *http.Request, endpoint string) (*http.Response, error)
}

// General purpose client for atproto "XRPC" API endpoints.
type APIClient struct {
	// Inner HTTP client. May be customized after the overall [APIClient] struct is created.
	Client *http.Client

	// Host URL prefix: scheme, hostname, and port. This field is required.
	Host string

	// Optional auth client "middleware".
	Auth AuthMethod

	// Optional HTTP headers which will be included in all requests.
	Headers http.Header

	// Optional limiter shared by every request issued through this client (and copies from [APIClient.WithAuth]).
	Limiter *rate.Limiter
}

// Creates an APIClient for the provided host, with a trace-instrumented HTTP transport and no request timeout.
func NewAPIClient(host string) *APIClient {
	return &APIClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Host: host,
		Headers: map[string][]string{
			"User-Agent": []string{"engagebot"},
		},
	}
}

// Returns a shallow copy of the client which authenticates every request with the given method.
func (c *APIClient) WithAuth(auth AuthMethod) *APIClient {
	out := *c
	out.Auth = auth
	return &out
}

// High-level helper for simple JSON "Query" API calls. Non-successful responses are returned as [*APIError].
func (c *APIClient) Get(ctx context.Context, endpoint string, params map[string]any, out any) error {
	req := NewAPIRequest(http.MethodGet, endpoint, nil)
	req.Headers.Set("Accept", "application/json")

	if params != nil {
		qp, err := ParseParams(params)
		if err != nil {
			return err
		}
		req.QueryParams = qp
	}

	return c.doJSON(ctx, req, out)
}

// High-level helper for simple JSON-to-JSON "Procedure" API calls, with no query params.
func (c *APIClient) Post(ctx context.Context, endpoint string, body any, out any) error {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req := NewAPIRequest(http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	req.Headers.Set("Accept", "application/json")
	req.Headers.Set("Content-Type", "application/json")

	return c.doJSON(ctx, req, out)
}

func (c *APIClient) doJSON(ctx context.Context, req *APIRequest, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return readAPIError(resp)
	}

	if out == nil {
		// drain body before returning
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed decoding JSON response body: %w", err)
	}
	return nil
}

// Full-featured method for atproto API requests. Waits on the client limiter, if any, before sending.
func (c *APIClient) Do(ctx context.Context, req *APIRequest) (*http.Response, error) {
	if c.Client == nil {
		c.Client = http.DefaultClient
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := req.HTTPRequest(ctx, c.Host, c.Headers)
	if err != nil {
		return nil, err
	}

	if c.Auth != nil {
		return c.Auth.DoWithAuth(c.Client, httpReq, req.Endpoint)
	}
	return c.Client.Do(httpReq)
}
