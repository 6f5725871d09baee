package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kunaal-theme/notify/internal/middleware"
	"github.com/kunaal-theme/notify/internal/modules/blast"
	notifymod "github.com/kunaal-theme/notify/internal/modules/notify"
	"github.com/kunaal-theme/notify/internal/modules/subscribe"
	"github.com/kunaal-theme/notify/internal/modules/tracking"
	pkgredis "github.com/kunaal-theme/notify/internal/pkg/redis"
	"github.com/kunaal-theme/notify/internal/pkg/response"
)

type handlers struct {
	subscribe *subscribe.Handler
	notify    *notifymod.Handler
	tracking  *tracking.Handler
	blast     *blast.Handler
}

func (a *App) registerRoutes(rc *pkgredis.Client, h *handlers) {
	r := a.router
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "kunaal-notify",
		"version":  "1.0.0",
		"homepage": "https://github.com/kunaal-theme/notify",
	}

	// Rate limiting runs on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))

	// Human-facing link endpoints live at the root: these URLs go into
	// email footers and must stay short and stable.
	root := r.Group("")
	h.subscribe.RegisterPublicRoutes(root)
	h.tracking.RegisterRoutes(root)

	api := r.Group("/api/v1")

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"timestamp": time.Since(processStart).Milliseconds(),
		})
	})

	h.subscribe.RegisterAPIRoutes(api)
	h.notify.RegisterRoutes(api, authMW)
	h.blast.RegisterRoutes(api, authMW)
}

var processStart = time.Now()
