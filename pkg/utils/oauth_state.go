package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const oauthStateExpiry = 10 * time.Minute

const oauthStateType = "oauth_state"

// OAuthStateClaims are carried in the state parameter of the Google redirect.
// The nonce is also stored in a cookie on the initiating browser, which makes
// the guard against duplicate or forged callbacks per client.
type OAuthStateClaims struct {
	Nonce     string `json:"nonce"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

func GenerateOAuthState() (state string, nonce string, err error) {
	nonce = uuid.New().String()
	now := time.Now()
	claims := OAuthStateClaims{
		Nonce:     nonce,
		TokenType: oauthStateType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        nonce,
		},
	}

	state, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		return "", "", err
	}
	return state, nonce, nil
}

func OAuthStateTTL() time.Duration {
	return oauthStateExpiry
}

// ValidateOAuthState checks the signature and expiry of state and that it was
// issued for the nonce the browser presents.
func ValidateOAuthState(state, nonce string) (*OAuthStateClaims, error) {
	if state == "" || nonce == "" {
		return nil, fmt.Errorf("missing oauth state")
	}

	token, err := jwt.ParseWithClaims(state, &OAuthStateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*OAuthStateClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid oauth state")
	}
	if claims.TokenType != oauthStateType {
		return nil, fmt.Errorf("invalid token type")
	}
	if claims.Nonce != nonce {
		return nil, fmt.Errorf("oauth state mismatch")
	}

	return claims, nil
}
