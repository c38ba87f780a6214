package main

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken covers every way a verification token can be bad:
// malformed, wrong signature, expired, or no longer live in storage.
var ErrInvalidToken = errors.New("invalid verification token")

// TokenResolver turns a presented verification token into the session
// id it was issued for, or rejects it.
type TokenResolver interface {
	ResolveToken(token string) (sessionId string, err error)
}

type JwtTokenResolver struct {
	publicKey *rsa.PublicKey
	storage   TokenStorage
}

func NewJwtTokenResolver(publicKeyPath string, storage TokenStorage) (*JwtTokenResolver, error) {
	keyBytes, err := os.ReadFile(publicKeyPath)

	if err != nil {
		return nil, err
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(keyBytes)

	if err != nil {
		return nil, err
	}

	return &JwtTokenResolver{publicKey: publicKey, storage: storage}, nil
}

// NewJwtTokenResolverWithKey wires a resolver around an already loaded
// public key, used when the in-process issuer provides it.
func NewJwtTokenResolverWithKey(publicKey *rsa.PublicKey, storage TokenStorage) *JwtTokenResolver {
	return &JwtTokenResolver{publicKey: publicKey, storage: storage}
}

// ResolveToken verifies the signature and expiry of the token, then
// confirms it is still the live token for its session in storage.
func (tr *JwtTokenResolver) ResolveToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: no token supplied", ErrInvalidToken)
	}

	var claims VerificationClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tr.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.SessionId == "" {
		return "", fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}

	stored, err := tr.storage.RetrieveToken(claims.SessionId)
	if err != nil {
		return "", fmt.Errorf("%w: token not found in storage", ErrInvalidToken)
	}
	if stored != tokenString {
		return "", fmt.Errorf("%w: token superseded", ErrInvalidToken)
	}

	return claims.SessionId, nil
}
