package health

import (
	"context"
	"time"

	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/database"
	"github.com/sirupsen/logrus"
)

// HealthChecker manages health checks for all backing services
type HealthChecker struct {
	dbManager *database.Manager
	generator answers.Generator
	logger    *logrus.Logger
}

func NewHealthChecker(dbManager *database.Manager, generator answers.Generator, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		dbManager: dbManager,
		generator: generator,
		logger:    logger,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckPostgreSQL checks PostgreSQL database health
func (h *HealthChecker) CheckPostgreSQL() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingDatabase()
	return h.serviceHealth("postgresql", start, err)
}

// CheckRedis checks Redis cache health
func (h *HealthChecker) CheckRedis() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingRedis()
	return h.serviceHealth("redis", start, err)
}

// CheckAnswers checks the answer pipeline health
func (h *HealthChecker) CheckAnswers(ctx context.Context) ServiceHealth {
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := h.generator.Ping(pingCtx)
	return h.serviceHealth("answers", start, err)
}

func (h *HealthChecker) serviceHealth(name string, start time.Time, err error) ServiceHealth {
	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", name).Error("Health check failed")
	}
	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: int(time.Since(start).Milliseconds()),
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(),
		h.CheckRedis(),
		h.CheckAnswers(ctx),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}
}

var startTime = time.Now()

func (h *HealthChecker) getUptime() string {
	return time.Since(startTime).String()
}
