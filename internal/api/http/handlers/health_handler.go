package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependencyCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	service      string
	version      string
	startedAt    time.Time
	dependencies map[string]Pinger
}

// NewHealthHandler takes only configured dependencies; nil means nothing to check.
func NewHealthHandler(service, version string, dependencies map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		service:      service,
		version:      version,
		startedAt:    time.Now(),
		dependencies: dependencies,
	}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "alive",
		"service":        h.service,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Ready pings every dependency and answers 503 if any of them fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	checks := make(map[string]dependencyCheck, len(h.dependencies))
	healthy := true
	for name, dep := range h.dependencies {
		check := ping(ctx, dep)
		if check.Status != "ok" {
			healthy = false
		}
		checks[name] = check
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": checks,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": checks})
}

func ping(ctx context.Context, dep Pinger) dependencyCheck {
	start := time.Now()
	err := dep.Ping(ctx)
	check := dependencyCheck{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = "down"
		check.Error = err.Error()
	}
	return check
}
