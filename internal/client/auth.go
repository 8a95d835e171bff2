package client

import (
	"context"
	"net/http"

	"github.com/callingitnow/callit/internal/model"
)

// Login exchanges email and password for a bearer token. The token is not
// installed on the client; the caller decides where it lives.
func (c *Client) Login(ctx context.Context, email, password string) (model.AuthToken, error) {
	body := map[string]string{"email": email, "password": password}
	var tok model.AuthToken
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &tok)
	return tok, err
}

func (c *Client) Register(ctx context.Context, email, handle, password string) (model.AuthToken, error) {
	body := map[string]string{
		"email":      email,
		"handle":     handle,
		"password":   password,
		"login_type": string(model.LoginPassword),
	}
	var tok model.AuthToken
	err := c.do(ctx, http.MethodPost, "/auth/register", nil, body, &tok)
	return tok, err
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (model.UserProfile, error) {
	var p model.UserProfile
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &p)
	return p, err
}
