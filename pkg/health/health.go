// Package health aggregates dependency probes into the /health report.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

// ErrDegraded marks a failure that leaves the service usable, such as an
// open circuit breaker that will close again on its own.
var ErrDegraded = errors.New("degraded")

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

func (r *CheckerRegistry) Register(checkers ...Checker) {
	r.checkers = append(r.checkers, checkers...)
}

// Check probes every dependency concurrently, each bounded by its own
// timeout. The worst individual status becomes the overall status.
func (r *CheckerRegistry) Check(ctx context.Context) Report {
	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(r.checkers))
	)

	var g errgroup.Group
	for _, checker := range r.checkers {
		g.Go(func() error {
			result := probe(ctx, checker)
			mu.Lock()
			results[checker.Name()] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	overall := StatusHealthy
	for _, res := range results {
		if severity(res.Status) > severity(overall) {
			overall = res.Status
		}
	}

	return Report{Status: overall, Timestamp: time.Now().UTC(), Checks: results}
}

func probe(ctx context.Context, checker Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.Check(ctx)
	res := CheckResult{Status: StatusHealthy, Latency: time.Since(start), Timestamp: start.UTC()}
	if err != nil {
		res.Message = err.Error()
		res.Status = StatusUnhealthy
		if errors.Is(err, ErrDegraded) {
			res.Status = StatusDegraded
		}
	}
	return res
}

func severity(s Status) int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	}
	return 0
}

// Handler serves the report. Only an unhealthy service answers 503, so an
// open breaker does not pull the pod out of rotation.
func (r *CheckerRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Check(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewCheckerFunc(name string, fn func(ctx context.Context) error) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (c *CheckerFunc) Name() string { return c.name }

func (c *CheckerFunc) Check(ctx context.Context) error { return c.fn(ctx) }

func ping(name string, fn func(ctx context.Context) error) *CheckerFunc {
	return NewCheckerFunc(name, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
		return nil
	})
}

func Postgres(db *sql.DB) Checker {
	return ping("postgresql", db.PingContext)
}

func Redis(client redis.UniversalClient) Checker {
	return ping("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
}

func Mongo(client *mongo.Client) Checker {
	return ping("mongodb", func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) })
}

type breaker interface {
	IsOpen() bool
}

// Breaker reports degraded while b is open.
func Breaker(name string, b breaker) Checker {
	return NewCheckerFunc(name, func(context.Context) error {
		if b.IsOpen() {
			return fmt.Errorf("circuit breaker open: %w", ErrDegraded)
		}
		return nil
	})
}
