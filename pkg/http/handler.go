package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler defines HTTP route registration interface.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// HealthCheck is one dependency reported by /healthz. A nil error is healthy.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// HealthReport is the body of /healthz.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler runs every check under timeout. Any failure turns the
// answer into 503 with the failing checks named.
func healthHandler(checks []HealthCheck, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := HealthReport{Status: "ok"}
		if len(checks) == 0 {
			return SuccessResponse(c, report)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		report.Checks = make(map[string]string, len(checks))
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				report.Status = "degraded"
				report.Checks[hc.Name] = err.Error()
				continue
			}
			report.Checks[hc.Name] = "ok"
		}
		if report.Status != "ok" {
			return DataResponse(c, http.StatusServiceUnavailable, report)
		}
		return SuccessResponse(c, report)
	}
}
