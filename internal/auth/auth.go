package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextUserID = "auth.user_id"

var errMissingToken = errors.New("missing bearer token")

// Claims carries the authenticated bidder identity
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// TokenManager issues and verifies HS256 session tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token for userID valid for the configured TTL from now
func (m *TokenManager) Issue(userID string, now time.Time) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates signature, issuer and expiry and returns the claims
func (m *TokenManager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("parse token: missing user_id claim")
	}
	return claims, nil
}

// RequireUser rejects requests without a valid bearer token with 401
func (m *TokenManager) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.fromRequest(c.Request)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthenticated.Error(),
				gin.H{"reason": biddingerrors.ReasonUnauthenticated})
			utils.Warn("auth: rejected request", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			return
		}
		c.Set(contextUserID, claims.UserID)
		c.Next()
	}
}

// OptionalUser attaches the caller identity when a valid token is present and never rejects
func (m *TokenManager) OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := m.fromRequest(c.Request); err == nil {
			c.Set(contextUserID, claims.UserID)
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by RequireUser or OptionalUser
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(contextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// fromRequest reads "Authorization: Bearer" first, then the token query parameter used by sockets
func (m *TokenManager) fromRequest(r *http.Request) (*Claims, error) {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return nil, fmt.Errorf("malformed authorization header")
		}
		token = strings.TrimSpace(value)
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, errMissingToken
	}
	return m.Parse(token)
}

// ViewerID resolves an optional viewer identity from a raw request, used by the socket upgrade
func (m *TokenManager) ViewerID(r *http.Request) string {
	claims, err := m.fromRequest(r)
	if err != nil {
		return ""
	}
	return claims.UserID
}
