package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/karmafeed/internal/models"
)

// RouteConfig carries the settings SetupRoutes needs beyond the handlers.
type RouteConfig struct {
	CORSOrigin string
	Actor      models.UserRef
}

// SetupRoutes configures all application routes and middleware. The
// rate limiter sweeper stops with ctx.
func SetupRoutes(ctx context.Context, router *gin.Engine, env *Env, cfg RouteConfig) {

	// --- Middleware ---

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*" // Default to allow all for local dev
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID", "X-Username"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go limiter.RunSweeper(ctx, 10*time.Minute)

	// --- API Routes ---

	api := router.Group("/api", ActorMiddleware(cfg.Actor))
	{
		api.GET("/feed", env.GetFeed)
		api.POST("/feed/refresh", env.RefreshFeed)
		api.POST("/feed/more", env.LoadMore)

		api.POST("/posts", RateLimitMiddleware(limiter), env.CreatePost)
		api.GET("/posts/:id", env.GetPost)
		api.POST("/posts/:id/reload", env.ReloadPost)
		api.POST("/posts/:id/like", env.LikePost)
		api.GET("/posts/:id/comments", env.GetComments)
		api.POST("/posts/:id/comments", env.CreateComment)
		api.POST("/posts/:id/comments/:cid/like", env.LikeComment)

		api.GET("/leaderboard", env.GetLeaderboard)
		api.POST("/leaderboard/refresh", env.RefreshLeaderboard)

		api.GET("/drafts", env.GetDrafts)
	}

	// --- Operational Routes ---

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
