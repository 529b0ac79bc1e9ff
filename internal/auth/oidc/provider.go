// Package oidc adapts an external OpenID Connect identity provider for
// kpiflow sign-in. kpiflow never stores passwords; every sign-in exchanges
// an authorization code at the provider and upserts the user from the
// verified ID token claims.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/kpiflow/kpiflow/internal/config"
)

// Identity is the subset of ID token claims kpiflow needs to upsert a user.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Provider wraps OIDC discovery, code exchange, and ID token verification.
type Provider struct {
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
	provider *oidc.Provider
}

// NewProvider initializes the provider using a background context.
func NewProvider(cfg *config.OIDCConfig) (*Provider, error) {
	return NewProviderWithContext(context.Background(), cfg)
}

// NewProviderWithContext initializes the provider with the given context,
// allowing callers to bound the OIDC discovery request.
func NewProviderWithContext(ctx context.Context, cfg *config.OIDCConfig) (*Provider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}

	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	return &Provider{
		verifier: verifier,
		oauth:    oauthConfig,
		provider: provider,
	}, nil
}

// AuthURL returns the provider's authorization URL for the given state.
func (p *Provider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// EndSessionEndpoint returns the provider's end_session_endpoint from the
// discovery document, or an empty string if the provider does not
// advertise one.
func (p *Provider) EndSessionEndpoint() string {
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.provider.Claims(&claims); err != nil {
		return ""
	}
	return claims.EndSessionEndpoint
}

// ExchangeCode exchanges the authorization code for tokens.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return token, nil
}

// VerifyIDToken verifies the raw ID token against the issuer's keys.
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return idToken, nil
}

// Authenticate runs the full code flow: exchange the authorization code,
// verify the returned ID token, and extract the identity claims.
func (p *Provider) Authenticate(ctx context.Context, code string) (*Identity, error) {
	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("token response missing id_token")
	}

	idToken, err := p.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	return p.ExtractIdentity(idToken)
}

// ExtractIdentity reads the claims kpiflow needs from a verified ID token.
func (p *Provider) ExtractIdentity(idToken *oidc.IDToken) (*Identity, error) {
	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	if claims.Sub == "" {
		return nil, fmt.Errorf("ID token missing 'sub' claim")
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("ID token missing 'email' claim")
	}

	// Name is optional, fall back to the email address.
	if claims.Name == "" {
		claims.Name = claims.Email
	}

	return &Identity{
		Subject: claims.Sub,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}
