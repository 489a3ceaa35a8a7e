package stats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix    = "artifactory"
	KeyFileStats = "fs" // HASH. file name -> download counter. HINCRBY artifactory:fs {name} 1
	KeyArchives  = "as" // STRING. Number of archives served.

	KeySeparator = ":"
)

type statsRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewStatsRepository(cl *redis.Client, log *slog.Logger) *statsRepository {
	return &statsRepository{
		cl:  cl,
		log: log.With(slog.String("item", "StatsRepository")),
	}
}

// Connect parses url, creates a client and checks it with PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cannot parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()

		return nil, fmt.Errorf("cannot ping redis: %w", err)
	}

	return rdb, nil
}

func (r *statsRepository) IncFileCounter(ctx context.Context, name string) (int64, error) {
	counter, err := r.cl.HIncrBy(ctx, getKey(KeyPrefix, KeyFileStats), name, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment file %s counter: %w", name, err)
	}

	return counter, nil
}

// IncFileCounters increments the counters of every archived file and the archive counter in one pipeline.
func (r *statsRepository) IncFileCounters(ctx context.Context, names []string) error {
	pipe := r.cl.Pipeline()
	for _, name := range names {
		pipe.HIncrBy(ctx, getKey(KeyPrefix, KeyFileStats), name, 1)
	}
	pipe.Incr(ctx, getKey(KeyPrefix, KeyArchives))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot increment file counters: %w", err)
	}

	return nil
}

func (r *statsRepository) GetDownloadCounters(ctx context.Context) (map[string]int64, error) {
	values, err := r.cl.HGetAll(ctx, getKey(KeyPrefix, KeyFileStats)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get download counters: %w", err)
	}

	counters := make(map[string]int64, len(values))
	for name, value := range values {
		c, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.log.Error("Cannot convert counter value to int", slog.String("name", name), slog.Any("error", err))

			continue
		}

		counters[name] = c
	}

	return counters, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
