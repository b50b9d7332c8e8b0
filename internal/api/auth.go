package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"tableside/internal/hub"
)

// authRequired validates the bearer token and stashes its role claim on the
// request context. With no secret configured every request passes, which is
// how development instances run.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authSecret == "" {
			c.Next()
			return
		}

		role, err := s.roleFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set("role", role)
		c.Next()
	}
}

// roleFromRequest parses the Authorization header (or the token query
// parameter, for websocket clients that cannot set headers) and returns the
// verified role claim.
func (s *Server) roleFromRequest(c *gin.Context) (hub.Role, error) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if raw == "" || raw == c.GetHeader("Authorization") {
		raw = c.Query("token")
	}
	if raw == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.authSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	role, ok := claims["role"].(string)
	if !ok || !hub.ValidRole(hub.Role(role)) {
		return "", errors.New("token carries no valid role claim")
	}
	return hub.Role(role), nil
}
