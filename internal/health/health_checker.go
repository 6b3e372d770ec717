// Package health aggregates component checks for the triage services: storage
// backends, the session cache, the remote predictive service and the rule
// tables.
package health

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/triage-risk-engine/internal/rules"
	"github.com/triage-risk-engine/pkg/external"
)

// HealthState is the coarse state of a component or the whole service.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateWarning   HealthState = "warning"
	HealthStateUnknown   HealthState = "unknown"
)

// HealthConfig controls the checker.
type HealthConfig struct {
	CheckInterval time.Duration `json:"check_interval"`
	Timeout       time.Duration `json:"timeout"`
	EnabledChecks []string      `json:"enabled_checks"`
	Version       string        `json:"version"`
}

// HealthStatus is the aggregated result of one round of checks.
type HealthStatus struct {
	Overall     HealthState                `json:"overall"`
	Timestamp   time.Time                  `json:"timestamp"`
	Version     string                     `json:"version"`
	RuleSet     string                     `json:"rule_set"`
	Uptime      time.Duration              `json:"uptime"`
	Components  map[string]ComponentHealth `json:"components"`
	Goroutines  int                        `json:"goroutines"`
	LastChecked time.Time                  `json:"last_checked"`
	CheckCount  int64                      `json:"check_count"`
}

// ComponentHealth is the result of a single check.
type ComponentHealth struct {
	Name        string                 `json:"name"`
	Status      HealthState            `json:"status"`
	Message     string                 `json:"message"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// HealthCheck is one component probe.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
	Priority() int
}

// HealthChecker runs registered checks in parallel, on demand or on a ticker.
type HealthChecker struct {
	config    HealthConfig
	logger    *logrus.Logger
	checks    map[string]HealthCheck
	status    *HealthStatus
	startedAt time.Time
	mutex     sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewHealthChecker creates a checker with the rule table check registered.
func NewHealthChecker(config HealthConfig, logger *logrus.Logger) *HealthChecker {
	if config.CheckInterval == 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	hc := &HealthChecker{
		config:    config,
		logger:    logger,
		checks:    make(map[string]HealthCheck),
		startedAt: time.Now(),
		status: &HealthStatus{
			Overall:    HealthStateUnknown,
			Timestamp:  time.Now(),
			Version:    config.Version,
			RuleSet:    rules.Version,
			Components: make(map[string]ComponentHealth),
		},
		stopChan: make(chan struct{}),
	}

	hc.RegisterCheck(&RuleTableHealthCheck{})
	return hc
}

// RegisterCheck adds or replaces a check by name.
func (h *HealthChecker) RegisterCheck(check HealthCheck) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checks[check.Name()] = check
}

// Start runs an initial round and then one per CheckInterval until Stop.
func (h *HealthChecker) Start(ctx context.Context) {
	h.RunChecks(ctx)

	ticker := time.NewTicker(h.config.CheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.RunChecks(ctx)
			case <-h.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	h.logger.Info("Health checker started")
}

// Stop halts the background loop. It is safe to call more than once.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		h.logger.Info("Health checker stopped")
	})
}

// RunChecks executes every enabled check and stores the aggregate.
func (h *HealthChecker) RunChecks(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	h.mutex.RLock()
	checks := make([]HealthCheck, 0, len(h.checks))
	for _, check := range h.checks {
		if h.isCheckEnabled(check.Name()) {
			checks = append(checks, check)
		}
	}
	h.mutex.RUnlock()

	startTime := time.Now()
	results := make(chan ComponentHealth, len(checks))
	var wg sync.WaitGroup

	for _, check := range checks {
		wg.Add(1)
		go func(c HealthCheck) {
			defer wg.Done()
			results <- c.Check(ctx)
		}(check)
	}

	wg.Wait()
	close(results)

	components := make(map[string]ComponentHealth, len(checks))
	for result := range results {
		components[result.Name] = result
	}
	overall := aggregate(components)

	h.mutex.Lock()
	h.status = &HealthStatus{
		Overall:     overall,
		Timestamp:   startTime,
		Version:     h.config.Version,
		RuleSet:     rules.Version,
		Uptime:      time.Since(h.startedAt),
		Components:  components,
		Goroutines:  runtime.NumGoroutine(),
		LastChecked: time.Now(),
		CheckCount:  h.status.CheckCount + 1,
	}
	status := h.copyStatus()
	h.mutex.Unlock()

	if overall != HealthStateHealthy {
		h.logger.WithFields(logrus.Fields{
			"overall_status":       overall,
			"unhealthy_components": unhealthyComponents(components),
		}).Warn("Health check completed with issues")
	} else {
		h.logger.Debug("Health check completed successfully")
	}

	return status
}

// GetStatus returns a copy of the last aggregate.
func (h *HealthChecker) GetStatus() *HealthStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.copyStatus()
}

func (h *HealthChecker) copyStatus() *HealthStatus {
	status := *h.status
	status.Components = make(map[string]ComponentHealth, len(h.status.Components))
	for k, v := range h.status.Components {
		status.Components[k] = v
	}
	return &status
}

func (h *HealthChecker) isCheckEnabled(checkName string) bool {
	if len(h.config.EnabledChecks) == 0 {
		return true
	}

	for _, enabled := range h.config.EnabledChecks {
		if enabled == checkName {
			return true
		}
	}
	return false
}

func aggregate(components map[string]ComponentHealth) HealthState {
	overall := HealthStateHealthy
	for _, c := range components {
		switch c.Status {
		case HealthStateUnhealthy:
			return HealthStateUnhealthy
		case HealthStateWarning, HealthStateUnknown:
			overall = HealthStateWarning
		}
	}
	return overall
}

func unhealthyComponents(components map[string]ComponentHealth) []string {
	var unhealthy []string
	for name, component := range components {
		if component.Status == HealthStateUnhealthy {
			unhealthy = append(unhealthy, name)
		}
	}
	sort.Strings(unhealthy)
	return unhealthy
}

// RuleTableHealthCheck reports the loaded rule tables.
type RuleTableHealthCheck struct{}

func (r *RuleTableHealthCheck) Name() string  { return "rule_tables" }
func (r *RuleTableHealthCheck) Priority() int { return 0 }

func (r *RuleTableHealthCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	symptoms, conditions := len(rules.Symptoms()), len(rules.Conditions())

	status, message := HealthStateHealthy, "Rule tables loaded"
	if symptoms == 0 || conditions == 0 {
		status, message = HealthStateUnhealthy, "Rule tables are empty"
	}

	return ComponentHealth{
		Name:        r.Name(),
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Duration:    time.Since(start),
		Metadata: map[string]interface{}{
			"version":    rules.Version,
			"symptoms":   symptoms,
			"conditions": conditions,
		},
	}
}

// PingHealthCheck probes a store through its Ping method. A non-critical
// failure degrades the service to warning instead of unhealthy.
type PingHealthCheck struct {
	name     string
	ping     func(ctx context.Context) error
	critical bool
	timeout  time.Duration
}

// NewPingHealthCheck wraps a ping function as a named check.
func NewPingHealthCheck(name string, ping func(ctx context.Context) error, critical bool, timeout time.Duration) *PingHealthCheck {
	return &PingHealthCheck{name: name, ping: ping, critical: critical, timeout: timeout}
}

func (p *PingHealthCheck) Name() string { return p.name }

func (p *PingHealthCheck) Priority() int {
	if p.critical {
		return 1
	}
	return 3
}

func (p *PingHealthCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.ping(ctx); err != nil {
		status := HealthStateWarning
		if p.critical {
			status = HealthStateUnhealthy
		}
		return ComponentHealth{
			Name:        p.name,
			Status:      status,
			Message:     fmt.Sprintf("%s unreachable", p.name),
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Error:       err.Error(),
		}
	}

	return ComponentHealth{
		Name:        p.name,
		Status:      HealthStateHealthy,
		Message:     fmt.Sprintf("%s reachable", p.name),
		LastChecked: time.Now(),
		Duration:    time.Since(start),
	}
}

// defaultProbeTimeout applies to probes constructed without a timeout.
const defaultProbeTimeout = 2 * time.Second

// RedisClient is the part of the Redis client the check uses.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
}

// RedisHealthCheck probes the Redis instance backing sessions and the
// prediction cache.
type RedisHealthCheck struct {
	client  RedisClient
	timeout time.Duration
}

// NewRedisHealthCheck creates a Redis probe.
func NewRedisHealthCheck(client RedisClient, timeout time.Duration) *RedisHealthCheck {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &RedisHealthCheck{client: client, timeout: timeout}
}

// NewRedisHealthCheckFromURL dials its own small client for probing.
func NewRedisHealthCheckFromURL(redisURL string, timeout time.Duration) (*RedisHealthCheck, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolSize = 1
	client := redis.NewClient(opts)
	return NewRedisHealthCheck(client, timeout), client, nil
}

func (r *RedisHealthCheck) Name() string  { return "redis" }
func (r *RedisHealthCheck) Priority() int { return 2 }

func (r *RedisHealthCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()

	if r.client == nil {
		return ComponentHealth{
			Name:        r.Name(),
			Status:      HealthStateUnhealthy,
			Message:     "Redis client not configured",
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Error:       "redis client is nil",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return ComponentHealth{
			Name:        r.Name(),
			Status:      HealthStateUnhealthy,
			Message:     "Redis connection failed",
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Error:       err.Error(),
		}
	}
	duration := time.Since(start)

	info, _ := r.client.Info(ctx, "server").Result()
	return ComponentHealth{
		Name:        r.Name(),
		Status:      HealthStateHealthy,
		Message:     "Redis connection healthy",
		LastChecked: time.Now(),
		Duration:    duration,
		Metadata: map[string]interface{}{
			"redis_info": info[:min(len(info), 200)],
		},
	}
}

// RemoteHealthChecker is the part of the predictive client the check uses.
type RemoteHealthChecker interface {
	Health(ctx context.Context) (*external.HealthResponse, error)
}

// RemoteHealthCheck probes the remote predictive service. The triage service
// falls back to local scoring, so an outage is a warning.
type RemoteHealthCheck struct {
	remote  RemoteHealthChecker
	timeout time.Duration
}

// NewRemoteHealthCheck creates a remote predictive service probe.
func NewRemoteHealthCheck(remote RemoteHealthChecker, timeout time.Duration) *RemoteHealthCheck {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &RemoteHealthCheck{remote: remote, timeout: timeout}
}

func (r *RemoteHealthCheck) Name() string  { return "remote_predictor" }
func (r *RemoteHealthCheck) Priority() int { return 4 }

func (r *RemoteHealthCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.remote.Health(ctx)
	if err != nil {
		return ComponentHealth{
			Name:        r.Name(),
			Status:      HealthStateWarning,
			Message:     "Remote predictor unreachable, local scoring only",
			LastChecked: time.Now(),
			Duration:    time.Since(start),
			Error:       err.Error(),
		}
	}

	status := HealthStateHealthy
	message := "Remote predictor healthy"
	if !resp.ModelsLoaded {
		status = HealthStateWarning
		message = "Remote predictor has no models loaded"
	}

	return ComponentHealth{
		Name:        r.Name(),
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Duration:    time.Since(start),
		Metadata: map[string]interface{}{
			"status":        resp.Status,
			"models_loaded": resp.ModelsLoaded,
		},
	}
}
