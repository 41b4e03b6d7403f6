/*
Thin client for the handful of atproto "XRPC" HTTP endpoints the engagement bot calls.

[APIClient] wraps an [http.Client] and knows how to issue JSON "Query" (HTTP GET) and "Procedure" (HTTP POST) requests against a single PDS host. Requests are not authenticated by default; [Session] implements [AuthMethod] and is attached per-call with [APIClient.WithAuth].

Non-successful responses are parsed to [APIError], which carries the HTTP status, the atproto 'error' and 'message' fields, and the raw response body. Calling code is expected to use [errors.As] to pull out the status for logging.

The client does not retry. Outbound request rate can be bounded with an optional [rate.Limiter] on the client.
*/
package atclient
