package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sellwise/sellwise/internal/observability"
	"github.com/sellwise/sellwise/server/assistant"
	"github.com/sellwise/sellwise/server/finops"
)

// Health reports aggregate provider health. Degraded and unhealthy states are
// still 200s; the payload carries the verdict.
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Monitor.GetHealthStatus())
}

type systemMetricsResponse struct {
	Version       string                                    `json:"version"`
	TotalRequests int64                                     `json:"totalRequests"`
	TotalFailures int64                                     `json:"totalFailures"`
	Providers     map[string]observability.ProviderSnapshot `json:"providers"`
	Cache         assistant.Stats                           `json:"cache"`
	Spend         *finops.CostReport                        `json:"spend,omitempty"`
}

// SystemMetrics reports request counters per provider plus cache statistics.
func (s *APIV1Service) SystemMetrics(c echo.Context) error {
	metrics := s.Balancer.Metrics()
	resp := systemMetricsResponse{
		Version:       s.Profile.Version,
		TotalRequests: metrics.TotalRequests(),
		TotalFailures: metrics.TotalFailures(),
		Providers:     metrics.Snapshot(),
		Cache:         s.Manager.Cache().GetStats(),
	}
	if s.Costs != nil {
		report := s.Costs.Report()
		resp.Spend = &report
	}
	return c.JSON(http.StatusOK, resp)
}
