package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAuthorization = "Authorization"
	QueryToken          = "token"
)

// BearerToQuery 把 Authorization: Bearer xxx 转成 ?token=xxx，
// 这样非浏览器客户端可以走请求头，身份解析只看 query。query 里已有 token 时不覆盖。
func BearerToQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader(HeaderAuthorization))
		if token == "" {
			c.Next()
			return
		}
		q := c.Request.URL.Query()
		if q.Get(QueryToken) == "" {
			q.Set(QueryToken, token)
			c.Request.URL.RawQuery = q.Encode()
		}
		c.Next()
	}
}

// BearerToken 兼容 "Bearer xxx"（大小写不敏感）
func BearerToken(authz string) string {
	authz = strings.TrimSpace(authz)
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}
