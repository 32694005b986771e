package oidc

import (
	"context"
	"fmt"

	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/middleware"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify verifies the provided raw ID token using the provided context and returns a middleware.Token
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// FromConfig picks the verifier guarding identity sync. It returns nil when
// neither an issuer nor insecure mode is configured, in which case sync
// trusts the request body.
func FromConfig(ctx context.Context, cfg config.OIDCConfig) middleware.Verifier {
	if cfg.Issuer != "" && cfg.ClientID != "" {
		ver, err := NewVerifier(ctx, cfg.Issuer, cfg.ClientID)
		if err == nil {
			logger.Infof("OIDC verifier ready for issuer %s", cfg.Issuer)
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.AllowInsecure {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		return NewInsecureVerifier()
	}
	return nil
}
