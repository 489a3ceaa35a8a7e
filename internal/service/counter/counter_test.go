package counter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type repoMock struct {
	counters map[string]int64
	archives int
	err      error
}

func (r *repoMock) IncFileCounter(_ context.Context, name string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}

	r.counters[name]++

	return r.counters[name], nil
}

func (r *repoMock) IncFileCounters(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := r.IncFileCounter(ctx, name); err != nil {
			return err
		}
	}
	r.archives++

	return nil
}

func (r *repoMock) GetDownloadCounters(context.Context) (map[string]int64, error) {
	return r.counters, r.err
}

func newTestService(repo *repoMock) *counterService {
	return NewCounterService(repo, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
}

func TestCounterService(t *testing.T) {
	repo := &repoMock{counters: map[string]int64{}}
	srv := newTestService(repo)
	ctx := context.Background()

	srv.FileServed(ctx, "a.txt")
	srv.ArchiveServed(ctx, []string{"a.txt", "b.txt"})

	counters, err := srv.GetDownloadCounters(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"a.txt": 2, "b.txt": 1}, counters)
	require.Equal(t, 1, repo.archives)
}

func TestCounterServiceErrors(t *testing.T) {
	repo := &repoMock{counters: map[string]int64{}, err: errors.New("redis is down")}
	srv := newTestService(repo)
	ctx := context.Background()

	require.NotPanics(t, func() {
		srv.FileServed(ctx, "a.txt")
		srv.ArchiveServed(ctx, []string{"a.txt"})
	})

	_, err := srv.GetDownloadCounters(ctx)
	require.Error(t, err)
}
