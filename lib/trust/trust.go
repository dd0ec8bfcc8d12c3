// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/27inator/KPM-cursor/lib/bus"
	"github.com/27inator/KPM-cursor/lib/canonical"
	"github.com/27inator/KPM-cursor/lib/clock"
	"github.com/27inator/KPM-cursor/lib/identity"
	"github.com/27inator/KPM-cursor/lib/secret"
	"github.com/27inator/KPM-cursor/lib/vault"
)

// TokenAccount is the vault account the trust token is stored under.
const TokenAccount = "trust-ack-jwt"

// DefaultRenewThreshold is how close to expiry a token must be before
// RenewIfNeeded asks the bus for a fresh one.
const DefaultRenewThreshold = 2 * time.Hour

// ErrNotProvisioned reports that no trust token is held on either
// vault backend.
var ErrNotProvisioned = errors.New("trust: device not provisioned")

// State is the device's position in the trust lifecycle, derived from
// the stored token. It exists for status display; request handling
// always just attaches whatever token is held.
type State int

const (
	// Unprovisioned means no token is stored.
	Unprovisioned State = iota
	// Provisioned means a token is stored and not past its exp claim.
	// Tokens whose claims cannot be read also report Provisioned: the
	// bus is the authority on their validity, not the agent.
	Provisioned
	// Expired means the stored token's exp claim is in the past.
	Expired
)

func (s State) String() string {
	switch s {
	case Unprovisioned:
		return "unprovisioned"
	case Provisioned:
		return "provisioned"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures a Manager.
type Config struct {
	// Bus is the provisioning and renewal transport.
	Bus *bus.Client

	// Vault locates the token; Account is overridden with TokenAccount.
	Vault vault.Config

	// Backend is the preferred vault backend.
	Backend vault.Backend

	// RenewThreshold overrides DefaultRenewThreshold when positive.
	RenewThreshold time.Duration

	// Clock supplies the time for expiry checks. Nil means the real
	// clock.
	Clock clock.Clock

	// Logger records renewal outcomes. Nil means slog.Default.
	Logger *slog.Logger
}

// Manager provisions, stores, and renews the trust token.
type Manager struct {
	bus       *bus.Client
	vault     vault.Config
	backend   vault.Backend
	threshold time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewManager creates a Manager.
func NewManager(config Config) (*Manager, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("trust: Bus is required")
	}

	threshold := config.RenewThreshold
	if threshold <= 0 {
		threshold = DefaultRenewThreshold
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	vaultConfig := config.Vault
	vaultConfig.Account = TokenAccount

	return &Manager{
		bus:       config.Bus,
		vault:     vaultConfig,
		backend:   config.Backend,
		threshold: threshold,
		clock:     clk,
		logger:    logger,
	}, nil
}

// registrationBody is the provisioning handshake document. Field order
// is irrelevant: the HMAC is computed over the canonical rendering.
type registrationBody struct {
	DeviceID  string            `json:"device_id"`
	PublicKey string            `json:"public_key_b64"`
	Metadata  map[string]string `json:"metadata"`
}

// Provision performs the one-time registration handshake and persists
// the issued token. The provisioning secret authenticates the request;
// it is consumed from a protected buffer and not retained. Any failure
// leaves no token stored.
func (m *Manager) Provision(ctx context.Context, device *identity.Device, provisioningSecret *secret.Buffer, companyID string) error {
	body := registrationBody{
		DeviceID:  device.DeviceID(),
		PublicKey: device.PublicKeyBase64(),
		Metadata:  map[string]string{"platform": runtime.GOOS},
	}
	canonicalBody, err := canonical.Stringify(body)
	if err != nil {
		return fmt.Errorf("trust: canonicalizing registration body: %w", err)
	}

	nonce := uuid.NewString()
	timestampMS := m.clock.Now().UnixMilli()

	mac := hmac.New(sha256.New, provisioningSecret.Bytes())
	fmt.Fprintf(mac, "%s|%s|%d", canonicalBody, nonce, timestampMS)

	token, err := m.bus.Register(ctx, bus.RegisterRequest{
		Body:        []byte(canonicalBody),
		Nonce:       nonce,
		TimestampMS: timestampMS,
		HMAC:        hex.EncodeToString(mac.Sum(nil)),
		CompanyID:   companyID,
	})
	if err != nil {
		return fmt.Errorf("trust: provisioning: %w", err)
	}

	if err := m.SaveToken(token); err != nil {
		return err
	}
	m.logger.Info("trust: device provisioned", "device_id", device.DeviceID())
	return nil
}

// Token returns the stored trust token, trying the preferred backend
// then the alternate. Returns ErrNotProvisioned when neither holds one.
func (m *Manager) Token() (string, error) {
	for _, backend := range []vault.Backend{m.backend, m.backend.Alternate()} {
		data, err := vault.New(backend, m.vault).Load()
		if err == nil {
			return string(data), nil
		}
	}
	return "", ErrNotProvisioned
}

// SaveToken persists the token on the preferred backend, falling back
// to the alternate when the preferred store is unusable.
func (m *Manager) SaveToken(token string) error {
	err := vault.New(m.backend, m.vault).Store([]byte(token))
	if err == nil {
		return nil
	}
	m.logger.Warn("trust: preferred backend rejected token, using fallback",
		"backend", m.backend.String(), "error", err)
	if err := vault.New(m.backend.Alternate(), m.vault).Store([]byte(token)); err != nil {
		return fmt.Errorf("trust: storing token: %w", err)
	}
	return nil
}

// DeleteToken removes the token from both backends. Absence is not an
// error.
func (m *Manager) DeleteToken() error {
	var failure error
	for _, backend := range []vault.Backend{m.backend, m.backend.Alternate()} {
		if err := vault.New(backend, m.vault).Delete(); err != nil {
			failure = err
		}
	}
	if failure != nil {
		return fmt.Errorf("trust: deleting token: %w", failure)
	}
	return nil
}

// ParseExpiry reads the exp claim from a JWT-shaped token without
// verifying its signature. The agent uses the claim only to schedule
// renewal; acceptance is the bus's decision.
func ParseExpiry(token string) (time.Time, error) {
	segments := strings.Split(token, ".")
	if len(segments) < 2 {
		return time.Time{}, fmt.Errorf("trust: token is not JWT-shaped")
	}
	claimBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(segments[1], "="))
	if err != nil {
		return time.Time{}, fmt.Errorf("trust: decoding token claims: %w", err)
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(claimBytes, &claims); err != nil {
		return time.Time{}, fmt.Errorf("trust: parsing token claims: %w", err)
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("trust: token has no exp claim")
	}
	return time.Unix(claims.Exp, 0), nil
}

// RenewIfNeeded renews the stored token when it is within the renewal
// threshold of expiry. No stored token, an unreadable exp claim, and a
// renewal refused or unreachable are all non-fatal: the error is
// returned for logging but callers proceed with whatever token they
// hold.
func (m *Manager) RenewIfNeeded(ctx context.Context) error {
	token, err := m.Token()
	if err != nil {
		return nil
	}
	expiry, err := ParseExpiry(token)
	if err != nil {
		return err
	}
	if expiry.Sub(m.clock.Now()) > m.threshold {
		return nil
	}

	fresh, err := m.bus.Renew(ctx, token)
	if err != nil {
		return fmt.Errorf("trust: renewing token: %w", err)
	}
	if err := m.SaveToken(fresh); err != nil {
		return err
	}
	m.logger.Info("trust: token renewed", "expiry", expiry)
	return nil
}

// State derives the trust lifecycle state from the stored token.
func (m *Manager) State() State {
	token, err := m.Token()
	if err != nil {
		return Unprovisioned
	}
	expiry, err := ParseExpiry(token)
	if err != nil {
		return Provisioned
	}
	if expiry.Before(m.clock.Now()) {
		return Expired
	}
	return Provisioned
}
