package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AlertsStreamHandler mounts the websocket alert hub.
type AlertsStreamHandler struct {
	hub http.Handler
}

func NewAlertsStreamHandler(hub http.Handler) *AlertsStreamHandler {
	return &AlertsStreamHandler{hub: hub}
}

func (h *AlertsStreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/alerts", echo.WrapHandler(h.hub))
}
