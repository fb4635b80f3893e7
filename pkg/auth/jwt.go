package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. Each purpose is signed with its own key.
const (
	PurposeSession       = "session"
	PurposeVerification  = "email-verification"
	PurposePasswordReset = "password-reset"
)

// ErrInvalidToken covers expired, malformed and badly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID  int64  `json:"user_id"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

const issuer = "parcel-bookings"

// Sign issues an HS256 token carrying claims that expires after ttl.
func Sign(claims Claims, key []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// Parse verifies tokenString against key. It does not look at Purpose; callers
// that care about the token kind must check it themselves.
func Parse(tokenString string, key []byte) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return claims, nil
}

type Keys struct {
	Session      []byte
	Verification []byte
	Reset        []byte
}

type TTLs struct {
	Session      time.Duration
	Verification time.Duration
	Reset        time.Duration
}

// TokenManager issues and verifies the three token kinds with their own keys
// and lifetimes.
type TokenManager struct {
	keys Keys
	ttls TTLs
}

func NewTokenManager(keys Keys, ttls TTLs) *TokenManager {
	return &TokenManager{keys: keys, ttls: ttls}
}

func (m *TokenManager) IssueSession(userID int64) (string, error) {
	return Sign(Claims{UserID: userID, Purpose: PurposeSession}, m.keys.Session, m.ttls.Session)
}

func (m *TokenManager) IssueVerification(userID int64) (string, error) {
	return Sign(Claims{UserID: userID, Purpose: PurposeVerification}, m.keys.Verification, m.ttls.Verification)
}

func (m *TokenManager) IssueReset(userID int64) (string, error) {
	return Sign(Claims{UserID: userID, Purpose: PurposePasswordReset}, m.keys.Reset, m.ttls.Reset)
}

func (m *TokenManager) ParseSession(token string) (*Claims, error) {
	return Parse(token, m.keys.Session)
}

func (m *TokenManager) ParseVerification(token string) (*Claims, error) {
	return Parse(token, m.keys.Verification)
}

func (m *TokenManager) ParseReset(token string) (*Claims, error) {
	return Parse(token, m.keys.Reset)
}
