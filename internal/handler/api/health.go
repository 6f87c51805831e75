package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "SignalDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

// Checker pings one backing service.
type Checker func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Checker
	started time.Time
}

func NewHealthHandler(checks map[string]Checker) *HealthHandler {
	return &HealthHandler{checks: checks, started: time.Now()}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

type healthReport struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	Services map[string]string `json:"services,omitempty"`
}

// Health answers 503 when any dependency check fails.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := healthReport{Status: "ok", Uptime: time.Since(h.started).Truncate(time.Second).String()}
	status := http.StatusOK
	for _, name := range names {
		if report.Services == nil {
			report.Services = make(map[string]string, len(names))
		}
		if err := h.checks[name](ctx); err != nil {
			report.Services[name] = err.Error()
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Services[name] = "ok"
	}
	return xhttp.DataResponse(c, status, report)
}
