package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger    *logger.Logger
	DB        pinger
	Redis     pinger
	PubSub    pinger
	Consumers map[string]consumer
}

// Service runs every domain-event consumer until one fails or ctx ends.
type Service struct {
	logg      *logger.Logger
	deps      map[string]pinger
	consumers map[string]consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	deps := map[string]pinger{"database": params.DB, "redis": params.Redis, "pubsub": params.PubSub}
	for name, dep := range deps {
		if dep == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	return &Service{logg: params.Logger, deps: deps, consumers: params.Consumers}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		name string
		err  error
	}
	exits := make(chan exit, len(s.consumers))
	for name, c := range s.consumers {
		go func(name string, c consumer) {
			exits <- exit{name: name, err: c.Run(ctx)}
		}(name, c)
	}

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case e := <-exits:
		if e.err != nil && !errors.Is(e.err, context.Canceled) {
			s.logg.Error(s.logg.WithField(ctx, "consumer", e.name), "consumer stopped unexpectedly", e.err)
			return e.err
		}
		return e.err
	}
}
