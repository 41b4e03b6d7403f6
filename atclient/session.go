package atclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Password-auth session with a PDS. Tokens are held only in memory; there is no refresh logic, callers are expected to create a fresh session when the old one is no longer wanted.
type Session struct {
	AccessToken  string
	RefreshToken string
	AccountDID   string
	Handle       string
}

var _ AuthMethod = (*Session)(nil)

func (s *Session) DoWithAuth(c *http.Client, req *http.Request, endpoint string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	return c.Do(req)
}

// Keeps tokens out of structured logs.
func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("did", s.AccountDID),
		slog.String("handle", s.Handle),
	)
}

type createSessionRequest struct {
	// identifier: Handle or other identifier supported by the server for the authenticating user.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createSessionResponse struct {
	AccessJwt  string  `json:"accessJwt"`
	RefreshJwt string  `json:"refreshJwt"`
	Did        string  `json:"did"`
	Handle     string  `json:"handle"`
	Active     *bool   `json:"active,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// Logs in with an account identifier (handle, DID, or email) and password (or app password).
func (c *APIClient) CreateSession(ctx context.Context, identifier, password string) (*Session, error) {
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("account identifier and password are required")
	}

	body := createSessionRequest{
		Identifier: identifier,
		Password:   password,
	}
	var out createSessionResponse
	// unauthenticated request, even if this client has auth configured
	if err := c.WithAuth(nil).Post(ctx, "com.atproto.server.createSession", body, &out); err != nil {
		return nil, err
	}
	if out.AccessJwt == "" || out.Did == "" {
		return nil, fmt.Errorf("createSession response missing access token or DID")
	}

	return &Session{
		AccessToken:  out.AccessJwt,
		RefreshToken: out.RefreshJwt,
		AccountDID:   out.Did,
		Handle:       out.Handle,
	}, nil
}
