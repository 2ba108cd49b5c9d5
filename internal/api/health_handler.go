package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/dm-dispatch/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pinger is anything with a reachability check, such as the run archive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports on PostgreSQL, Redis, the run archive and the
// dispatch backlog. Any dependency can be nil.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	archive     Pinger
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, archive Pinger) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		archive:     archive,
		startTime:   time.Now(),
	}
}

const (
	healthVersion = "1.0.0"
	notConfigured = "not configured"

	// backlogDegraded is the number of overdue recipients at which the
	// cron is considered to be falling behind.
	backlogDegraded = 1000
)

// HandleHealth returns the status of every component. It always answers
// 200; use /health/ready for probes that need a 503.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness answers 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 4)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"archive", hc.checkArchive(ctx)} }()
	go func() { ch <- result{"backlog", hc.checkBacklog(ctx)} }()

	checks := make(map[string]ComponentCheck, 4)
	for i := 0; i < 4; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// timed runs fn under timeout and classifies the result by latency.
func timed(ctx context.Context, timeout, slow time.Duration, fn func(context.Context) error) ComponentCheck {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 3*time.Second, time.Second, hc.db.PingContext)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
		return hc.redisClient.Ping(ctx).Err()
	})
}

func (hc *HealthChecker) checkArchive(ctx context.Context) ComponentCheck {
	if hc.archive == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 3*time.Second, 2*time.Second, hc.archive.Ping)
}

// checkBacklog counts active recipients of RUNNING campaigns that are
// overdue by more than an hour.
func (hc *HealthChecker) checkBacklog(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "database not available"}
	}

	qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	var count int
	err := hc.db.QueryRowContext(qctx, `
		SELECT COUNT(*) FROM dm_campaign_recipients r
		JOIN dm_campaigns c ON c.id = r.campaign_id
		WHERE c.status = 'RUNNING'
		  AND r.status IN ('PENDING', 'IN_PROGRESS')
		  AND r.next_action_at < NOW() - INTERVAL '1 hour'
	`).Scan(&count)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("backlog check failed: %v", err)}
	}
	if count >= backlogDegraded {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("high backlog: %d overdue recipients", count)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: fmt.Sprintf("%d overdue recipients", count)}
}

// determineOverallStatus is "unhealthy" when a configured database is
// down, "degraded" when anything else is degraded or down, and "healthy"
// otherwise.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" && db.Message != notConfigured {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != notConfigured {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
