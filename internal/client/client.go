// Package client is a small HTTP client for the AuthGate API, used by the
// interactive CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Session mirrors the API's session payload.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	ExpiresIn    int64     `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type apiError struct {
	Error string `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authorizations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doSession(req)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, sessionID, refreshToken string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/authorizations/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	return c.doSession(req)
}

// Revoke kills the session. The access token authenticates the call.
func (c *Client) Revoke(ctx context.Context, sessionID, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/authorizations/"+sessionID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

func (c *Client) doSession(req *http.Request) (*Session, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &session, nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body apiError
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("server answered %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server answered %d", resp.StatusCode)
}
