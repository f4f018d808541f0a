// Package service refuses further attempts against a key once it has failed
// too often within a window. Claim verification uses it to stop pickup codes
// being guessed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"foodlink/internal/ratelimit/models"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/requestcontext"
)

type Store interface {
	RecordFailure(ctx context.Context, key string, window time.Duration) (*models.Lockout, error)
	Lock(ctx context.Context, key string, until time.Time) error
	Get(ctx context.Context, key string) (*models.Lockout, error)
	Clear(ctx context.Context, key string) error
}

// Config bounds attempts: MaxAttempts failures within Window lock the key for
// LockDuration.
type Config struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

type Service struct {
	store   Store
	config  Config
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithConfig overrides the defaults field by field; zero fields keep them.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.MaxAttempts > 0 {
			s.config.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.Window > 0 {
			s.config.Window = cfg.Window
		}
		if cfg.LockDuration > 0 {
			s.config.LockDuration = cfg.LockDuration
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	svc := &Service{
		store:  store,
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check returns a too_many_attempts error while key is locked. A store
// failure lets the attempt through.
func (s *Service) Check(ctx context.Context, key string) error {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.storeFailure("check")
		s.logger.WarnContext(ctx, "lockout check failed, allowing attempt", "error", err)
		return nil
	}
	now := requestcontext.Now(ctx)
	if !rec.IsLockedAt(now) {
		return nil
	}
	s.metrics.refused()
	retryIn := rec.LockedUntil.Sub(now).Round(time.Second)
	return dErrors.New(dErrors.CodeTooMany,
		fmt.Sprintf("too many invalid codes, retry in %s", retryIn))
}

// RecordFailure counts a failed attempt and locks the key when the window's
// limit is reached.
func (s *Service) RecordFailure(ctx context.Context, key string) {
	rec, err := s.store.RecordFailure(ctx, key, s.config.Window)
	if err != nil {
		s.metrics.storeFailure("record")
		s.logger.WarnContext(ctx, "failed to record attempt", "error", err)
		return
	}
	s.metrics.failure()
	if rec.Failures < s.config.MaxAttempts || rec.LockedUntil != nil {
		return
	}
	until := requestcontext.Now(ctx).Add(s.config.LockDuration)
	if err := s.store.Lock(ctx, key, until); err != nil {
		s.metrics.storeFailure("lock")
		s.logger.WarnContext(ctx, "failed to lock key", "error", err)
		return
	}
	s.metrics.locked()
	s.logger.WarnContext(ctx, "attempt limit reached, key locked",
		"key", key,
		"failures", rec.Failures,
		"locked_until", until,
	)
}

// Clear forgets key's failures after a successful attempt.
func (s *Service) Clear(ctx context.Context, key string) {
	if err := s.store.Clear(ctx, key); err != nil {
		s.metrics.storeFailure("clear")
		s.logger.WarnContext(ctx, "failed to clear lockout", "error", err)
	}
}
