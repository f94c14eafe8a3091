package auth

import (
	"fmt"
	"strings"

	"github.com/MoMannn/wanchain-example/common/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SubjectKey is the gin context key holding the token subject
const SubjectKey = "auth_subject"

// RequireBearer rejects requests that do not carry an HS256 bearer token signed
// with secret. When issuer is set the token's iss claim must match it.
func RequireBearer(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
			unauthorized(c, fmt.Sprintf("invalid token: %v", err))
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", `Bearer realm="assetgw"`)
	_ = c.Error(errors.NewUnauthorizedError(detail, c.Request.URL.Path))
	c.Abort()
}
