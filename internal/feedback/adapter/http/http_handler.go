// Package http serves a RemoteStore to remote clients: a REST write endpoint
// and a websocket listen channel, behind the auth module's bearer tokens.
package http

import (
	authhttp "feedback-sync/internal/auth/adapter/http"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/metrics"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// HTTPHandler exposes a RemoteStore over HTTP and WebSocket.
type HTTPHandler struct {
	Store   repository.RemoteStore
	Log     logger.Logger
	Metrics *metrics.ServerMetrics
}

// NewHTTPHandler creates a handler over store. m may be nil.
func NewHTTPHandler(store repository.RemoteStore, log logger.Logger, m *metrics.ServerMetrics) *HTTPHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &HTTPHandler{Store: store, Log: log.WithComponent("store_http"), Metrics: m}
}

// RegisterRoutes registers the document and listen routes. Every route
// requires a bearer token; the websocket accepts it as ?token=.
func (h *HTTPHandler) RegisterRoutes(router fiber.Router, middleware *authhttp.AuthMiddleware) {
	router.Post("/collections/:collection/documents", middleware.Protect(), h.CreateDocument)

	router.Use("/listen", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/listen", middleware.Protect(), websocket.New(h.handleListen))
}
