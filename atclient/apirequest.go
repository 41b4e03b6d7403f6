package atclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type APIRequest struct {
	// HTTP method as a string (eg "GET") (required)
	Method string

	// atproto API endpoint, as NSID (required)
	Endpoint string

	// Optional request body (may be nil). If this is provided, then 'Content-Type' header should be specified
	Body io.Reader

	// Optional query parameters (field may be nil)
	QueryParams url.Values

	// Optional HTTP headers (field may be nil). Only the first value will be included for each header key ("Set" behavior).
	Headers http.Header
}

// Initializes a new request struct, with Headers and QueryParams ready to be manipulated.
func NewAPIRequest(method, endpoint string, body io.Reader) *APIRequest {
	return &APIRequest{
		Method:      method,
		Endpoint:    endpoint,
		Body:        body,
		Headers:     map[string][]string{},
		QueryParams: map[string][]string{},
	}
}

// Creates an [http.Request] for this API request.
//
// `host` parameter should be a URL prefix: schema, hostname, port (required). `clientHeaders` are client-level defaults, clobbered by request-level values.
func (r *APIRequest) HTTPRequest(ctx context.Context, host string, clientHeaders http.Header) (*http.Request, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("empty hostname in host URL")
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("empty scheme in host URL")
	}
	if r.Endpoint == "" {
		return nil, fmt.Errorf("empty request endpoint")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/xrpc/" + r.Endpoint
	u.RawQuery = ""
	if len(r.QueryParams) > 0 {
		u.RawQuery = r.QueryParams.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), r.Body)
	if err != nil {
		return nil, err
	}

	for k := range clientHeaders {
		httpReq.Header.Set(k, clientHeaders.Get(k))
	}
	for k := range r.Headers {
		httpReq.Header.Set(k, r.Headers.Get(k))
	}
	return httpReq, nil
}
