package main

import (
	"crypto/rsa"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// VerificationClaims are the claims carried by a verification token.
type VerificationClaims struct {
	SessionId string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints verification tokens. In production the backend
// issues these; running with the issuer enabled allows end-to-end
// testing against this service alone.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	issuerId   string
	validity   time.Duration
}

func NewTokenIssuer(privateKeyPath string, issuerId string, validity time.Duration) (*TokenIssuer, error) {
	keyBytes, err := os.ReadFile(privateKeyPath)

	if err != nil {
		return nil, err
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(keyBytes)

	if err != nil {
		return nil, err
	}

	if validity <= 0 {
		validity = TokenTimeout
	}

	return &TokenIssuer{
		privateKey: privateKey,
		issuerId:   issuerId,
		validity:   validity,
	}, nil
}

// PublicKey exposes the verification half of the signing key so the
// resolver can be wired without a separate key file.
func (ti *TokenIssuer) PublicKey() *rsa.PublicKey {
	return &ti.privateKey.PublicKey
}

// IssueToken creates a signed verification token for the session.
func (ti *TokenIssuer) IssueToken(sessionId string) (string, error) {
	now := time.Now()
	claims := VerificationClaims{
		SessionId: sessionId,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuerId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(ti.privateKey)
}
