package services

import (
	"context"
	"time"

	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is anything health can probe. Stores and rate limiters satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

type HealthService struct {
	store     Pinger
	limiter   Pinger
	notifier  Notifier
	version   string
	startTime time.Time
	log       *zap.SugaredLogger
}

func NewHealthService(store Pinger, limiter Pinger, notifier Notifier, version string) *HealthService {
	return &HealthService{
		store:     store,
		limiter:   limiter,
		notifier:  notifier,
		version:   version,
		startTime: time.Now(),
		log:       logger.GetLogger(),
	}
}

// CheckHealth probes the store and the rate-limit backend. A dead store
// makes the service DOWN; a dead limiter only DEGRADED, since admission
// control fails open.
func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	if h.store != nil {
		storeStatus := h.probe(ctx, h.store, "Store connection failed")
		components["store"] = storeStatus
		if storeStatus.Status == types.HealthStatusDown {
			overallStatus = types.HealthStatusDown
		}
	}

	if h.limiter != nil {
		limiterStatus := h.probe(ctx, h.limiter, "Rate limit backend unreachable")
		if limiterStatus.Status == types.HealthStatusDown {
			limiterStatus.Status = types.HealthStatusDegraded
		}
		components["rateLimiter"] = limiterStatus
		if limiterStatus.Status == types.HealthStatusDegraded && overallStatus != types.HealthStatusDown {
			overallStatus = types.HealthStatusDegraded
		}
	}

	if h.notifier != nil {
		email := types.HealthComponent{Status: types.HealthStatusUp, Details: "enabled"}
		if !h.notifier.Enabled() {
			email.Details = "disabled"
		}
		components["email"] = email
	}

	return types.HealthCheck{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     h.Uptime().Seconds(),
	}
}

// Uptime is the time since the service was constructed.
func (h *HealthService) Uptime() time.Duration {
	return time.Since(h.startTime)
}

func (h *HealthService) probe(ctx context.Context, p Pinger, failure string) types.HealthComponent {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		h.log.Errorw("Health check failed", "component", p.Name(), "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: failure,
		}
	}
	return types.HealthComponent{
		Status:  types.HealthStatusUp,
		Details: p.Name(),
	}
}
