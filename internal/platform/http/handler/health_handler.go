// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StreamStats exposes live distribution counters for the health payload.
type StreamStats interface {
	Connections() int
	ActiveFeeds() int
}

// HealthHandler serves /healthz and /api/v1/health.
type HealthHandler struct {
	stats StreamStats
}

// NewHealthHandler returns a health handler. stats may be nil.
func NewHealthHandler(stats StreamStats) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// Health はサービスヘルスチェックを処理します。
// HTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。
func (h *HealthHandler) Health(c *gin.Context) {
	// 明示的にキャッシュを防止
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		body := gin.H{"status": "ok"}
		if h.stats != nil {
			body["connections"] = h.stats.Connections()
			body["feeds"] = h.stats.ActiveFeeds()
		}
		c.JSON(http.StatusOK, body)
	}
}
