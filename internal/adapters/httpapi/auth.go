package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const claimsContextKey = "OperatorClaims"

// OperatorClaims are the JWT claims accepted by the API. A non-zero UserID scopes the
// token to that user's alerts, config, orders and guards.
type OperatorClaims struct {
	UserID int64 `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject. ttl <= 0 issues a token without expiry.
func IssueToken(secret, subject string, userID int64, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}
	now := time.Now()
	claims := OperatorClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AuthMiddleware enforces a Bearer JWT signed with secret.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_AUTH_HEADER",
				"error": "invalid Authorization header",
			})
			return
		}

		claims, err := parseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// scopedUser returns the user a token is restricted to, or 0 when it is not restricted
// (or auth is disabled).
func scopedUser(c *gin.Context) int64 {
	if v, ok := c.Get(claimsContextKey); ok {
		if claims, okCast := v.(*OperatorClaims); okCast {
			return claims.UserID
		}
	}
	return 0
}

// allowUser writes 403 and returns false when the caller's token is scoped to
// another user.
func allowUser(c *gin.Context, userID int64) bool {
	if scope := scopedUser(c); scope != 0 && scope != userID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":  "FORBIDDEN_USER",
			"error": fmt.Sprintf("token is not valid for user %d", userID),
		})
		return false
	}
	return true
}
