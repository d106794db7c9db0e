// Package v1 exposes the assistant core over HTTP: chat turns, context
// inspection and deletion, provider health and runtime metrics.
package v1

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/sellwise/sellwise/internal/profile"
	"github.com/sellwise/sellwise/server/assistant"
	"github.com/sellwise/sellwise/server/finops"
	"github.com/sellwise/sellwise/server/llm"
	"github.com/sellwise/sellwise/server/middleware"
)

// APIV1Service bundles the handlers of the v1 API.
type APIV1Service struct {
	Profile  *profile.Profile
	Pipeline *assistant.Pipeline
	Manager  *assistant.Manager
	Monitor  *llm.HealthMonitor
	Balancer *llm.LoadBalancer
	Costs    *finops.CostMonitor

	limiter *middleware.RateLimiter
}

// NewAPIV1Service creates the v1 API service. costs may be nil.
func NewAPIV1Service(p *profile.Profile, pipeline *assistant.Pipeline, manager *assistant.Manager, monitor *llm.HealthMonitor, balancer *llm.LoadBalancer, costs *finops.CostMonitor) *APIV1Service {
	return &APIV1Service{
		Profile:  p,
		Pipeline: pipeline,
		Manager:  manager,
		Monitor:  monitor,
		Balancer: balancer,
		Costs:    costs,
		limiter:  middleware.NewRateLimiter(middleware.RateLimiterConfig{}),
	}
}

// Register mounts the v1 routes on the echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(echomw.CORS())

	group.POST("/chat", s.Chat, s.limiter.PerUser(chatUserKey))
	group.GET("/health", s.Health)
	group.GET("/metrics", s.SystemMetrics)
	group.GET("/contexts/:user/:session", s.GetConversationContext)
	group.DELETE("/contexts/:user/:session", s.DeleteConversationContext)
	group.DELETE("/contexts/:user", s.DeleteUserContexts)
}
