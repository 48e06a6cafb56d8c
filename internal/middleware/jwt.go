package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/relnote/internal/pkg/errcode"
	"github.com/xxxsen/relnote/internal/pkg/jwt"
	"github.com/xxxsen/relnote/internal/pkg/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUserNameKey = "user_name"
)

// JWTAuth rejects requests without a valid bearer token.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, msg := parseBearer(c, secret)
		if claims == nil {
			response.Error(c, errcode.ErrUnauthorized, msg)
			c.Abort()
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth sets the identity when a valid token is present and lets the
// request through either way.
func OptionalJWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, _ := parseBearer(c, secret); claims != nil {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

func parseBearer(c *gin.Context, secret []byte) (*jwt.Claims, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, "missing authorization"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, "invalid authorization"
	}
	claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
	if err != nil {
		return nil, "invalid token"
	}
	return claims, ""
}

func setIdentity(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextUserIDKey, claims.UserID)
	if claims.Name != "" {
		c.Set(ContextUserNameKey, claims.Name)
	}
}
