// Package circuitbreaker guards calls to external inference endpoints.
// Wraps sony/gobreaker with OpenTelemetry integration and triage-specific
// defaults: consecutive failures within a rolling window open the circuit for
// a cooldown, after which a single half-open probe is allowed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker configuration
type Config struct {
	// Name identifies the breaker; by convention "<base_url>::<model>".
	Name string
	// FailuresThreshold is the consecutive-failure count that opens the circuit
	FailuresThreshold uint32
	// Cooldown is how long the circuit stays open before a half-open probe
	Cooldown time.Duration
	// Window is the cyclic period for clearing failure counts while closed
	Window time.Duration
}

// DefaultConfig returns defaults suitable for OpenAI-compatible endpoints
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailuresThreshold: 2,
		Cooldown:          15 * time.Second,
		Window:            60 * time.Second,
	}
}

// CircuitBreaker wraps gobreaker with observability
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer

	meter          metric.Meter
	requestCounter metric.Int64Counter
	failureCounter metric.Int64Counter
	rejectCounter  metric.Int64Counter
	currentState   State
	stateMu        sync.RWMutex
}

// New creates a new circuit breaker
func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailuresThreshold == 0 {
		cfg.FailuresThreshold = DefaultConfig(cfg.Name).FailuresThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig(cfg.Name).Cooldown
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig(cfg.Name).Window
	}

	cb := &CircuitBreaker{
		name:         cfg.Name,
		logger:       logger,
		tracer:       otel.Tracer("circuit-breaker"),
		meter:        otel.Meter("circuit-breaker"),
		currentState: StateClosed,
	}

	var err error
	cb.requestCounter, err = cb.meter.Int64Counter("inference_circuit_requests_total",
		metric.WithDescription("Total requests through the inference circuit breaker"))
	if err != nil {
		return nil, err
	}
	cb.failureCounter, err = cb.meter.Int64Counter("inference_circuit_failures_total",
		metric.WithDescription("Total failed inference requests"))
	if err != nil {
		return nil, err
	}
	cb.rejectCounter, err = cb.meter.Int64Counter("inference_circuit_rejects_total",
		metric.WithDescription("Total requests rejected while the circuit is open"))
	if err != nil {
		return nil, err
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// Exactly one probe is allowed in half-open state.
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailuresThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cb.onStateChange(from, to)
		},
	}
	cb.cb = gobreaker.NewCircuitBreaker(settings)

	return cb, nil
}

// Execute runs a function through the circuit breaker
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(
			attribute.String("breaker_name", c.name),
			attribute.String("state", string(c.GetState())),
		))
	defer span.End()

	c.requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("name", c.name)))

	result, err := c.cb.Execute(fn)
	if err != nil {
		if IsOpen(err) {
			c.rejectCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("name", c.name)))
			span.SetAttributes(attribute.Bool("circuit_open", true))
		} else {
			c.failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("name", c.name)))
		}
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// IsOpen reports whether err means the breaker rejected the call without
// attempting it.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// GetState returns the current circuit breaker state
func (c *CircuitBreaker) GetState() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.currentState
}

func (c *CircuitBreaker) onStateChange(from, to gobreaker.State) {
	fromState := mapState(from)
	toState := mapState(to)

	c.stateMu.Lock()
	c.currentState = toState
	c.stateMu.Unlock()

	c.logger.Warn("circuit breaker state changed",
		zap.String("breaker", c.name),
		zap.String("from", string(fromState)),
		zap.String("to", string(toState)))
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts returns the current counts from the circuit breaker
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

// Manager holds one breaker per endpoint, shared process-wide.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a circuit breaker manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// GetOrCreate returns an existing breaker or creates a new one
func (m *Manager) GetOrCreate(name string, cfg Config) (*CircuitBreaker, error) {
	m.mu.RLock()
	if cb, ok := m.breakers[name]; ok {
		m.mu.RUnlock()
		return cb, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb, nil
	}

	cfg.Name = name
	cb, err := New(cfg, m.logger)
	if err != nil {
		return nil, err
	}

	m.breakers[name] = cb
	return cb, nil
}

// HealthStatus describes one breaker for diagnostics endpoints.
type HealthStatus struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Requests uint32 `json:"requests"`
	Failures uint32 `json:"failures"`
	Healthy  bool   `json:"healthy"`
}

// GetHealthStatus returns health status for all circuit breakers
func (m *Manager) GetHealthStatus() []HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var statuses []HealthStatus
	for name, cb := range m.breakers {
		counts := cb.Counts()
		statuses = append(statuses, HealthStatus{
			Name:     name,
			State:    cb.GetState(),
			Requests: counts.Requests,
			Failures: counts.TotalFailures,
			Healthy:  cb.GetState() == StateClosed,
		})
	}
	return statuses
}
