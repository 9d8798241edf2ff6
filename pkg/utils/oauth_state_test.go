package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateOAuthState(t *testing.T) {
	configureJWTForTest(t, "state-secret", 1)

	state, nonce, err := GenerateOAuthState()
	if err != nil {
		t.Fatalf("GenerateOAuthState() error = %v", err)
	}
	if state == "" || nonce == "" {
		t.Fatal("expected non-empty state and nonce")
	}

	claims, err := ValidateOAuthState(state, nonce)
	if err != nil {
		t.Fatalf("ValidateOAuthState() error = %v", err)
	}
	if claims.Nonce != nonce {
		t.Fatalf("expected nonce %q, got %q", nonce, claims.Nonce)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Sub(time.Now()) > OAuthStateTTL() {
		t.Fatalf("expected expiry within %s, got %v", OAuthStateTTL(), claims.ExpiresAt)
	}
}

func TestValidateOAuthState_Rejects(t *testing.T) {
	configureJWTForTest(t, "state-secret", 1)

	state, nonce, err := GenerateOAuthState()
	if err != nil {
		t.Fatalf("GenerateOAuthState() error = %v", err)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, OAuthStateClaims{
		Nonce:     nonce,
		TokenType: oauthStateType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("failed to sign expired state: %v", err)
	}

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, OAuthStateClaims{
		Nonce:     nonce,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("failed to sign state: %v", err)
	}

	tests := []struct {
		name  string
		state string
		nonce string
	}{
		{"missing state", "", nonce},
		{"missing nonce", state, ""},
		{"nonce from another browser", state, "some-other-nonce"},
		{"malformed state", "not-a-jwt", nonce},
		{"expired state", expired, nonce},
		{"wrong token type", wrongType, nonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateOAuthState(tt.state, tt.nonce); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}

func TestValidateOAuthState_RejectsBearerToken(t *testing.T) {
	configureJWTForTest(t, "state-secret", 1)

	_, nonce, err := GenerateOAuthState()
	if err != nil {
		t.Fatalf("GenerateOAuthState() error = %v", err)
	}

	other, _, err := GenerateOAuthState()
	if err != nil {
		t.Fatalf("GenerateOAuthState() error = %v", err)
	}

	if _, err := ValidateOAuthState(other, nonce); err == nil {
		t.Fatal("expected state issued for a different nonce to be rejected")
	}
}
