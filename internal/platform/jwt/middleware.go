// Package jwtmw resolves the caller identity from an HS256 bearer token.
package jwtmw

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextUserID is the gin context key holding the resolved subject.
	ContextUserID = "userID"

	EnvKeyJWTSecret = "JWT_SECRET"

	// queryToken lets browsers, which cannot set headers on a websocket
	// handshake, pass the token in the URL.
	queryToken = "token"
)

// SecretFromEnv returns the signing secret, or "" when identity resolution is disabled.
func SecretFromEnv() string {
	return strings.TrimSpace(os.Getenv(EnvKeyJWTSecret))
}

// AuthRequired returns a Gin middleware function that validates JWT tokens
// and restricts access to authenticated users only.
func AuthRequired(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		if len(key) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured"})
			return
		}

		tokenStr, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := parser.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, ok := subject(claims["sub"]); ok {
				c.Set(ContextUserID, sub)
			}
		}
		c.Next()
	}
}

// UserID returns the subject set by AuthRequired, if any.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func bearerToken(c *gin.Context) (string, bool) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if !strings.HasPrefix(auth, "Bearer ") {
			return "", false
		}
		tok := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		return tok, tok != ""
	}
	tok := c.Query(queryToken)
	return tok, tok != ""
}

// subject accepts both string and numeric sub claims (JSON numbers decode as float64).
func subject(v any) (string, bool) {
	switch sub := v.(type) {
	case string:
		return sub, sub != ""
	case float64:
		return strconv.FormatFloat(sub, 'f', -1, 64), true
	default:
		return "", false
	}
}
