package core

import (
	"context"
	"time"
)

const (
	healthCheckTimeout = 2 * time.Second
	componentOK        = "ok"
	// componentDown is all a caller sees of a failed check; the cause is logged.
	componentDown = "unavailable"
)

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// SystemStatus is the aggregated /healthz payload.
type SystemStatus struct {
	Status        string            `json:"status"`
	Components    map[string]string `json:"components"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Healthy reports whether every component answered.
func (s SystemStatus) Healthy() bool {
	return s.Status == "ok"
}

// CollectSystemStatus runs every check with a short timeout.
func CollectSystemStatus(ctx context.Context, checks []HealthCheck, startedAt time.Time) SystemStatus {
	log := FromContext(ctx)
	st := SystemStatus{Status: "ok", Components: make(map[string]string, len(checks))}
	for _, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check.Ping(cctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("component", check.Name).Msg("health check failed")
			st.Components[check.Name] = componentDown
			st.Status = "degraded"
			continue
		}
		st.Components[check.Name] = componentOK
	}
	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}
