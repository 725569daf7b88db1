// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/samber/oops"
)

// maxErrorBodySize bounds how much of an error response is read.
const maxErrorBodySize = 4 << 10

// HTTPIdentityClient calls the identity service's token endpoint.
type HTTPIdentityClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPIdentityClient creates a client for the given token endpoint URL.
func NewHTTPIdentityClient(endpoint string, client *http.Client) (*HTTPIdentityClient, error) {
	if endpoint == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("identity endpoint is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPIdentityClient{endpoint: endpoint, client: client}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Login posts the credentials to the token endpoint. Rejected
// credentials come back as a LoginResult with Success=false carrying the
// server's detail message; only transport-level failures return an error.
func (c *HTTPIdentityClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, oops.Code("LOGIN_ENCODE_FAILED").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, oops.Code("LOGIN_REQUEST_FAILED").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, oops.Code("LOGIN_TRANSPORT_FAILED").Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		var token tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
			return nil, oops.Code("LOGIN_DECODE_FAILED").Wrap(err)
		}
		return &LoginResult{Success: true, Token: token.AccessToken}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		var detail errorResponse
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if err == nil {
			_ = json.Unmarshal(raw, &detail)
		}
		return &LoginResult{Success: false, Error: detail.Detail}, nil

	default:
		return nil, oops.Code("LOGIN_UNEXPECTED_STATUS").
			With("status", resp.StatusCode).
			Errorf("identity service returned status %d", resp.StatusCode)
	}
}

// Compile-time interface check.
var _ IdentityClient = (*HTTPIdentityClient)(nil)
