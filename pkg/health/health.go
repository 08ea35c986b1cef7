package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type registered struct {
	checker  Checker
	critical bool
}

type CheckerRegistry struct {
	checkers []registered
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]registered, 0),
	}
}

// Register adds a critical checker: its failure makes the service unhealthy.
func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, registered{checker: checker, critical: true})
}

// RegisterOptional adds a checker whose failure only degrades the service.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.checkers = append(r.checkers, registered{checker: checker})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	allHealthy := true
	anyDegraded := false

	for _, reg := range r.checkers {
		err := reg.checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		switch {
		case err == nil:
			result.Status = StatusHealthy
		case reg.critical:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		default:
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		}

		results[reg.checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Connection is anything that can report whether it is currently connected.
type Connection interface {
	Connected() bool
	Name() string
}

type TransportChecker struct {
	conn Connection
}

func NewTransportChecker(conn Connection) *TransportChecker {
	return &TransportChecker{conn: conn}
}

func (c *TransportChecker) Name() string {
	return "transport"
}

func (c *TransportChecker) Check(context.Context) error {
	if !c.conn.Connected() {
		return fmt.Errorf("%s transport not connected", c.conn.Name())
	}
	return nil
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type BackendChecker struct {
	name   string
	pinger Pinger
}

func NewBackendChecker(name string, pinger Pinger) *BackendChecker {
	return &BackendChecker{name: name, pinger: pinger}
}

func (c *BackendChecker) Name() string {
	return c.name
}

func (c *BackendChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	if err := c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}
