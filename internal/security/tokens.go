package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims holds JWT claims for the access token. The session claim is empty for tokens
// issued before a session exists (they may only call CreateSession and device registration).
type AccessClaims struct {
	jwt.RegisteredClaims
	Username     string `json:"username,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// Identity is the caller identity carried by a validated access token.
type Identity struct {
	UserID       string
	Username     string
	DepartmentID string
	SessionID    string
}

// TokenProvider issues and validates access JWTs using RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        time.Now,
	}
}

// IssueAccess issues a short-lived access JWT bound to the identity. It never outlives
// notAfter when notAfter is non-zero (the session expiry).
func (p *TokenProvider) IssueAccess(id Identity, notAfter time.Time) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.accessTTL)
	if !notAfter.IsZero() && notAfter.Before(expiresAt) {
		expiresAt = notAfter.UTC()
	}
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:     id.Username,
		DepartmentID: id.DepartmentID,
		SessionID:    id.SessionID,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	return token, expiresAt, err
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateAccess(tokenString string) (*Identity, error) {
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.now), jwt.WithIssuer(p.issuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !slices.Contains([]string(claims.Audience), p.audience) || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:       claims.Subject,
		Username:     claims.Username,
		DepartmentID: claims.DepartmentID,
		SessionID:    claims.SessionID,
	}, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
