package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/payout-engine/pkg/auth"
	"github.com/d60-Lab/payout-engine/pkg/response"
)

const claimsKey = "auth.claims"

// JWTAuth 校验 Bearer 令牌并要求指定角色
func JWTAuth(secret, issuer, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		claims, err := auth.Parse(secret, issuer, token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		if role != "" && claims.Role != role {
			response.Forbidden(c, "insufficient role")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Claims 返回当前请求的令牌声明
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
