package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを伝達するHTTPヘッダー名。
const RequestIDHeader = "X-Request-ID"

// ContextKeyRequestID はGinコンテキストにリクエストIDを格納するためのキー。
const ContextKeyRequestID = "request_id"

// RequestID は各リクエストに一意のIDを割り当てるGinミドルウェアを返す。
// クライアントがX-Request-IDヘッダーを送信した場合はその値を引き継ぎ、
// 未指定の場合はUUIDを新規に採番する。
// IDはGinコンテキストとレスポンスヘッダーの両方に設定する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
