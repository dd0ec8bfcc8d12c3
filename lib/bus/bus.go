// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus is the HTTP client for the KMP message bus: device
// provisioning, trust token renewal, supply-chain event submission,
// monitoring heartbeats, and the agent update manifest.
//
// The client is transport only. It attaches exactly the headers it is
// given and reports non-2xx responses as *HTTPError; signing,
// canonicalization, and token storage live in lib/trust and
// lib/submit.
package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Request headers the bus authenticates devices with.
const (
	HeaderDeviceID    = "X-PEA-Device-Id"
	HeaderPublicKey   = "X-PEA-Public-Key"
	HeaderSignature   = "X-PEA-Signature"
	HeaderPayloadHash = "X-PEA-Payload-Hash"
	HeaderNonce       = "X-PEA-Nonce"
	HeaderTimestamp   = "X-PEA-Timestamp"
	HeaderHMAC        = "X-PEA-HMAC"
	HeaderCompanyID   = "X-Company-Id"
)

// Per-endpoint deadlines. Provisioning and event submission tolerate a
// slow bus; renewal and the manifest probe are best-effort and give up
// quickly so they never stall the run loop.
const (
	registerTimeout  = 30 * time.Second
	renewTimeout     = 10 * time.Second
	eventTimeout     = 30 * time.Second
	heartbeatTimeout = 15 * time.Second
	manifestTimeout  = 10 * time.Second
)

// Response bodies are small JSON documents; anything past this is a
// misbehaving server.
const maxResponseBytes = 4 << 20

// HTTPError is a non-2xx bus response. The status code distinguishes
// rejection (the request was understood and refused) from transport
// failure, which surfaces as a plain wrapped error instead.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("bus: server returned %d: %s", e.StatusCode, body)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the bus root, e.g. "https://bus.example.com".
	BaseURL string

	// HTTPClient overrides http.DefaultClient, mainly for tests.
	HTTPClient *http.Client

	// Logger records request failures. Nil means slog.Default.
	Logger *slog.Logger
}

// Client talks to one message bus.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("bus: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("bus: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// RegisterRequest is a provisioning handshake. Body is the canonical
// JSON registration document; HMAC authenticates Body, Nonce, and
// TimestampMS under the operator-issued provisioning secret.
type RegisterRequest struct {
	Body        []byte
	Nonce       string
	TimestampMS int64
	HMAC        string
	CompanyID   string
}

// Register performs the provisioning handshake and returns the issued
// trust token. Any non-2xx response is fatal to the call; nothing is
// retried here.
func (c *Client) Register(ctx context.Context, request RegisterRequest) (string, error) {
	responseBody, err := c.do(ctx, registerTimeout, http.MethodPost, "/api/provisioning/register", request.Body, func(h http.Header) {
		h.Set(HeaderNonce, request.Nonce)
		h.Set(HeaderTimestamp, strconv.FormatInt(request.TimestampMS, 10))
		h.Set(HeaderHMAC, request.HMAC)
		if request.CompanyID != "" {
			h.Set(HeaderCompanyID, request.CompanyID)
		}
	})
	if err != nil {
		return "", err
	}
	return extractTrustToken(responseBody)
}

// Renew exchanges a still-valid trust token for a fresh one.
func (c *Client) Renew(ctx context.Context, token string) (string, error) {
	responseBody, err := c.do(ctx, renewTimeout, http.MethodPost, "/api/provisioning/renew", nil, func(h http.Header) {
		h.Set("Authorization", "Bearer "+token)
	})
	if err != nil {
		return "", err
	}
	return extractTrustToken(responseBody)
}

// EventHeaders carries the per-request device authentication headers.
// Bearer is the trust token and may be empty before provisioning; the
// bus decides whether to accept unauthenticated submissions.
type EventHeaders struct {
	DeviceID    string
	PublicKey   string // base64 ed25519 public key
	Signature   string // base64 ed25519 signature over the payload
	PayloadHash string // hex SHA-256 of the payload
	Nonce       string
	TimestampMS int64
	Bearer      string
}

func (h EventHeaders) apply(header http.Header) {
	header.Set(HeaderDeviceID, h.DeviceID)
	header.Set(HeaderPublicKey, h.PublicKey)
	header.Set(HeaderSignature, h.Signature)
	header.Set(HeaderPayloadHash, h.PayloadHash)
	header.Set(HeaderNonce, h.Nonce)
	header.Set(HeaderTimestamp, strconv.FormatInt(h.TimestampMS, 10))
	if h.Bearer != "" {
		header.Set("Authorization", "Bearer "+h.Bearer)
	}
}

// SubmitEvent posts one signed supply-chain event. The payload must be
// the exact bytes the signature and hash in headers were computed over.
func (c *Client) SubmitEvent(ctx context.Context, payload []byte, headers EventHeaders) error {
	_, err := c.do(ctx, eventTimeout, http.MethodPost, "/api/supply-chain/event", payload, headers.apply)
	return err
}

// Heartbeat posts one signed monitoring heartbeat.
func (c *Client) Heartbeat(ctx context.Context, payload []byte, headers EventHeaders) error {
	_, err := c.do(ctx, heartbeatTimeout, http.MethodPost, "/api/monitoring/heartbeat", payload, headers.apply)
	return err
}

// LatestManifest fetches the agent update manifest. The body is passed
// through opaque; the agent prints it and never self-updates.
func (c *Client) LatestManifest(ctx context.Context) (string, error) {
	body, err := c.do(ctx, manifestTimeout, http.MethodGet, "/api/updates/pea/latest", nil, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// do sends one request and returns the response body, or *HTTPError
// for a non-2xx status. Each call gets its own deadline layered on the
// caller's context.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body []byte, setHeaders func(http.Header)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("bus: creating request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if setHeaders != nil {
		setHeaders(request.Header)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("bus: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("bus: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	c.logger.Debug("bus: request rejected",
		"method", method, "path", path, "status", response.StatusCode)
	return nil, &HTTPError{StatusCode: response.StatusCode, Body: string(responseBody)}
}

// extractTrustToken pulls the trust_ack field out of a provisioning or
// renewal response.
func extractTrustToken(body []byte) (string, error) {
	var response struct {
		TrustAck string `json:"trust_ack"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("bus: decoding provisioning response: %w", err)
	}
	if response.TrustAck == "" {
		return "", fmt.Errorf("bus: provisioning response missing trust_ack")
	}
	return response.TrustAck, nil
}
