// Package router builds the gin engine and route table.
package router

import (
	"os"
	"strings"
	"time"

	"market_backend/internal/feature/marketdata/transport/handler"
	healthhandler "market_backend/internal/platform/http/handler"
	jwtmw "market_backend/internal/platform/jwt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const defaultFrontendURL = "http://localhost:3000"

// Handlers are the HTTP entry points mounted by NewRouter.
type Handlers struct {
	Health     *healthhandler.HealthHandler
	MarketData *handler.MarketDataHandler
	Stream     *handler.StreamHandler
}

// Options configures cross-cutting middleware.
type Options struct {
	CORSOrigins []string
	// JWTSecret enables bearer-token identity on market data routes when non-empty.
	JWTSecret string
}

// LoadOptions reads CORS_ORIGINS (comma separated), FRONTEND_URL and JWT_SECRET.
// FRONTEND_URL is always allowed.
func LoadOptions() Options {
	frontend := strings.TrimSpace(os.Getenv("FRONTEND_URL"))
	if frontend == "" {
		frontend = defaultFrontendURL
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	found := false
	for _, o := range origins {
		if o == frontend {
			found = true
			break
		}
	}
	if !found {
		origins = append(origins, frontend)
	}

	return Options{CORSOrigins: origins, JWTSecret: jwtmw.SecretFromEnv()}
}

func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		AllowWebSockets:  true,
		MaxAge:           12 * time.Hour,
	}))

	// 認証不要
	// 導通確認用
	r.GET("/healthz", h.Health.Health)
	r.HEAD("/healthz", h.Health.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Health)
	v1.HEAD("/health", h.Health.Health)

	market := v1.Group("/market-data")
	// JWT_SECRET 設定時のみトークン必須
	if opts.JWTSecret != "" {
		market.Use(jwtmw.AuthRequired(opts.JWTSecret))
	}
	{
		market.GET("/history", h.MarketData.History)
		market.GET("/symbols", h.MarketData.Symbols)
		market.GET("/ws", h.Stream.Serve)
	}

	return r
}
