// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package marzban is a client for the panel management API used during node
// provisioning. Each call is one attempt with its own time budget; retrying is
// left to the caller.
package marzban

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Adembc/lazynode/internal/core/domain"
)

const (
	tokenPath    = "/api/admin/token"
	settingsPath = "/api/node/settings"
	nodePath     = "/api/node"

	defaultAuthTimeout     = 10 * time.Second
	defaultCertTimeout     = 10 * time.Second
	defaultRegisterTimeout = 15 * time.Second

	// bodySnippetLimit caps how much of an error response ends up in errors.
	bodySnippetLimit = 256
	maxResponseBytes = 1 << 20
)

var (
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrMissingField     = errors.New("response is missing a required field")
)

// Client is stateless apart from its *http.Client and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger

	authTimeout     time.Duration
	certTimeout     time.Duration
	registerTimeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to trust a private CA.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		logger:          logger,
		authTimeout:     defaultAuthTimeout,
		certTimeout:     defaultCertTimeout,
		registerTimeout: defaultRegisterTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type settingsResponse struct {
	Certificate string `json:"certificate"`
}

// Authenticate exchanges the panel's admin credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, panel domain.Panel) (domain.AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("username", panel.Username)
	form.Set("password", panel.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, panel.BaseURL()+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.AuthError{Panel: panel.ID(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out tokenResponse
	if err := c.do(req, &out); err != nil {
		c.logger.Errorw("failed to obtain access token", "panel", panel.ID(), "error", err)
		return "", &domain.AuthError{Panel: panel.ID(), Err: err}
	}
	if out.AccessToken == "" {
		c.logger.Errorw("token response has no access_token", "panel", panel.ID())
		return "", &domain.AuthError{Panel: panel.ID(), Err: fmt.Errorf("%w: access_token", ErrMissingField)}
	}

	c.logger.Infow("obtained access token", "panel", panel.ID())
	return domain.AccessToken(out.AccessToken), nil
}

// FetchCertificate returns the client certificate nodes of this panel must trust.
func (c *Client) FetchCertificate(ctx context.Context, panel domain.Panel, token domain.AccessToken) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.certTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, panel.BaseURL()+settingsPath, nil)
	if err != nil {
		return "", &domain.CertError{Panel: panel.ID(), Err: err}
	}
	authorize(req, token)

	var out settingsResponse
	if err := c.do(req, &out); err != nil {
		c.logger.Errorw("failed to retrieve certificate", "panel", panel.ID(), "error", err)
		return "", &domain.CertError{Panel: panel.ID(), Err: err}
	}
	if out.Certificate == "" {
		c.logger.Errorw("settings response has no certificate", "panel", panel.ID())
		return "", &domain.CertError{Panel: panel.ID(), Err: fmt.Errorf("%w: certificate", ErrMissingField)}
	}

	c.logger.Infow("retrieved node certificate", "panel", panel.ID())
	return out.Certificate, nil
}

// RegisterNode adds the node to the panel. The panel does not deduplicate, so
// callers must not call this speculatively.
func (c *Client) RegisterNode(ctx context.Context, panel domain.Panel, token domain.AccessToken, node domain.NodeRegistration) error {
	ctx, cancel := context.WithTimeout(ctx, c.registerTimeout)
	defer cancel()

	payload, err := json.Marshal(node)
	if err != nil {
		return &domain.RegisterError{Panel: panel.ID(), Address: node.Address, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, panel.BaseURL()+nodePath, bytes.NewReader(payload))
	if err != nil {
		return &domain.RegisterError{Panel: panel.ID(), Address: node.Address, Err: err}
	}
	authorize(req, token)
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		c.logger.Errorw("failed to register node", "panel", panel.ID(), "address", node.Address, "error", err)
		return &domain.RegisterError{Panel: panel.ID(), Address: node.Address, Err: err}
	}

	c.logger.Infow("node registered", "panel", panel.ID(), "address", node.Address)
	return nil
}

func authorize(req *http.Request, token domain.AccessToken) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+string(token))
}

func (c *Client) do(req *http.Request, out any) error {
	// #nosec G107 -- the URL is built from an operator-registered panel.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, snippet(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodySnippetLimit {
		s = s[:bodySnippetLimit] + "..."
	}
	return s
}
