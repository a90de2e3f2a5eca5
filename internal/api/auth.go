package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const accountIDKey = "account_id"

// NewToken issues an HS256 token whose subject is accountID
func NewToken(secret []byte, accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authMiddleware requires a valid bearer token and exposes its subject as the account id
func authMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}
		if claims.Subject == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set(accountIDKey, claims.Subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"details": details,
	})
}

func accountID(c *gin.Context) string {
	return c.GetString(accountIDKey)
}
