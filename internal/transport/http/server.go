package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/observability"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

// NewServer builds the HTTP server. The websocket endpoint is served by a
// plain ServeMux; the project REST API, health and metrics go through gin.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	projectHandlers := NewProjectHandlers(st, hub, cfg.Chat.HistoryLimit, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/projects/:projectId/messages", projectHandlers.ListMessages)
		api.GET("/projects/:projectId/online", projectHandlers.Online)
	}

	// The websocket endpoint stays off the gin engine: its ResponseWriter
	// wrapper corrupts hijacked connections.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
