package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/five82/metricdeck/internal/session"
)

var _ session.Authenticator = (*Client)(nil)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair and user record.
func (c *Client) Login(ctx context.Context, email, password string) (session.Credentials, error) {
	var creds session.Credentials
	err := c.DoJSON(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      loginRequest{Email: email, Password: password},
		Anonymous: true,
	}, &creds)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized {
			return session.Credentials{}, fmt.Errorf("%w: %s", session.ErrInvalidCredentials, httpErr.Message)
		}
		return session.Credentials{}, err
	}
	if creds.AccessToken == "" {
		return session.Credentials{}, fmt.Errorf("login response missing access_token")
	}
	return creds, nil
}

// Logout tells the backend to invalidate accessToken. A 401 here is final.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := c.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/auth/logout",
		Token:     accessToken,
		NoRefresh: true,
	})
	return err
}
