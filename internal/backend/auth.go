package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/pos-terminal/internal/common"
)

// Employee is the staff member behind a terminal session.
type Employee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// LoginResult is the backend's answer to a successful login.
type LoginResult struct {
	Token    string   `json:"token"`
	Employee Employee `json:"employee"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges staff credentials for a backend access token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", nil, loginRequest{
		Username: strings.TrimSpace(username),
		Password: password,
	})
	if err != nil {
		return LoginResult{}, err
	}
	var out envelope[struct {
		LoginResult
		AccessToken string `json:"access_token"`
	}]
	if err := c.do(ctx, c.writes, "login", req, &out); err != nil {
		return LoginResult{}, err
	}
	result := out.Data.LoginResult
	if result.Token == "" {
		result.Token = out.Data.AccessToken
	}
	if result.Token == "" {
		return LoginResult{}, errors.New("backend login: response carries no token")
	}
	return result, nil
}

// Logout revokes token on the backend.
func (c *Client) Logout(ctx context.Context, token string) error {
	ctx = common.WithAccessToken(ctx, token)
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, c.writes, "logout", req, nil)
}
