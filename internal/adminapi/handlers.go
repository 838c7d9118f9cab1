package adminapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"streamsub/internal/subscription"
)

// Registry is the slice of *host.Host's contract this package needs,
// declared locally the way the teacher's handlers package declares
// ConfigManager/ReadinessChecker rather than depending on a concrete type.
type Registry interface {
	Subscriptions() []*subscription.Subscription
	Lookup(referenceID string) (*subscription.Subscription, bool)
	UnsubscribeByTag(tag string) int
}

// Handlers holds the admin API's gin.HandlerFunc constructors.
type Handlers struct {
	registry  Registry
	version   string
	startTime time.Time
}

// NewHandlers builds Handlers bound to registry.
func NewHandlers(registry Registry, version string, startTime time.Time) *Handlers {
	return &Handlers{registry: registry, version: version, startTime: startTime}
}

// HealthCheck answers GET /healthz: process liveness only.
func (h *Handlers) HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Version: h.version,
			Uptime:  int64(time.Since(h.startTime).Seconds()),
		})
	}
}

// Readiness answers GET /readyz: reports whether the registry is reachable.
// There is no external dependency to probe beyond the registry itself — no
// database, no broker — so readiness here just confirms the admin surface
// is wired to a live Registry.
func (h *Handlers) Readiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		ready := h.registry != nil
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, ReadinessResponse{
			Ready:  ready,
			Checks: map[string]bool{"registry": ready},
		})
	}
}

// ListSubscriptions answers GET /subscriptions.
func (h *Handlers) ListSubscriptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		subs := h.registry.Subscriptions()
		out := make([]SubscriptionSummary, 0, len(subs))
		for _, sub := range subs {
			out = append(out, SubscriptionSummary{
				ReferenceID: sub.ReferenceID(),
				State:       sub.State().String(),
				Tag:         sub.Tag(),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

// ResetSubscription answers POST /subscriptions/:id/reset.
func (h *Handlers) ResetSubscription() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		sub, ok := h.registry.Lookup(id)
		if !ok {
			c.JSON(http.StatusNotFound, NewErrorResponse(
				"NOT_FOUND", "no subscription with that reference id", c.GetString("request_id"),
			))
			return
		}
		sub.Reset()
		c.JSON(http.StatusOK, ResetResponse{ReferenceID: id, Status: "reset"})
	}
}

// UnsubscribeByTag answers POST /subscriptions/tag/:tag/unsubscribe.
func (h *Handlers) UnsubscribeByTag() gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := c.Param("tag")
		count := h.registry.UnsubscribeByTag(tag)
		c.JSON(http.StatusOK, UnsubscribeByTagResponse{Tag: tag, Count: count, Status: "unsubscribed"})
	}
}
