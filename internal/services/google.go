package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var ErrGoogleDisabled = errors.New("google sign-in is not configured")

// IdentityProvider is the external sign-in surface used by the Google
// redirect flow.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*GoogleProfile, error)
}

type GoogleOAuthProvider struct {
	OAuth    *oauth2.Config
	ClientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func NewGoogleOAuthProvider(cfg config.GoogleConfig) (*GoogleOAuthProvider, error) {
	if !cfg.Enabled() {
		return nil, ErrGoogleDisabled
	}
	return &GoogleOAuthProvider{
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		ClientID: cfg.ClientID,
	}, nil
}

func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.OAuth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		logger.Warn("google_exchange_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
		profile, err := p.profileFromIDToken(ctx, raw)
		if err == nil {
			return profile, nil
		}
		logger.Warn("google_id_token_rejected", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return p.profileFromUserInfo(ctx, token)
}

func (p *GoogleOAuthProvider) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifier != nil {
		return p.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, err
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: p.ClientID})
	return p.verifier, nil
}

func (p *GoogleOAuthProvider) profileFromIDToken(ctx context.Context, raw string) (*GoogleProfile, error) {
	verifier, err := p.idTokenVerifier(ctx)
	if err != nil {
		return nil, err
	}
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, err
	}
	return normalizeProfile(&GoogleProfile{
		GoogleID:      claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		Picture:       claims.Picture,
	})
}

func (p *GoogleOAuthProvider) profileFromUserInfo(ctx context.Context, token *oauth2.Token) (*GoogleProfile, error) {
	client := p.OAuth.Client(ctx, token)

	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	return normalizeProfile(&GoogleProfile{
		GoogleID:      data.ID,
		Email:         data.Email,
		EmailVerified: data.VerifiedEmail,
		Name:          data.Name,
		GivenName:     data.GivenName,
		FamilyName:    data.FamilyName,
		Picture:       data.Picture,
	})
}

func normalizeProfile(p *GoogleProfile) (*GoogleProfile, error) {
	p.Email = NormalizeEmail(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	if p.GoogleID == "" || p.Email == "" {
		return nil, errors.New("google profile is missing id or email")
	}
	return p, nil
}
