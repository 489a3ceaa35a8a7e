package counter

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	serviceName = "counter"
)

type CounterRepository interface {
	IncFileCounter(ctx context.Context, name string) (int64, error)
	IncFileCounters(ctx context.Context, names []string) error
	GetDownloadCounters(ctx context.Context) (map[string]int64, error)
}

type counterService struct {
	repo CounterRepository
	log  *slog.Logger
}

func NewCounterService(repo CounterRepository, log *slog.Logger) *counterService {
	return &counterService{
		repo: repo,
		log:  log.With(slog.String("service", serviceName)),
	}
}

func (c *counterService) FileServed(ctx context.Context, name string) {
	counter, err := c.repo.IncFileCounter(ctx, name)
	if err != nil {
		c.log.Error("Cannot increment download counter", slog.String("name", name), slog.Any("error", err))

		return
	}

	c.log.Debug("Download file", slog.String("name", name), slog.Int64("counter", counter))
}

func (c *counterService) ArchiveServed(ctx context.Context, names []string) {
	if err := c.repo.IncFileCounters(ctx, names); err != nil {
		c.log.Error("Cannot increment download counters", slog.Any("names", names), slog.Any("error", err))
	}
}

func (c *counterService) GetDownloadCounters(ctx context.Context) (map[string]int64, error) {
	counters, err := c.repo.GetDownloadCounters(ctx)
	if err != nil {
		c.log.Error("Cannot get download counters", slog.Any("error", err))

		return nil, fmt.Errorf("cannot get download counters: %w", err)
	}

	return counters, nil
}
