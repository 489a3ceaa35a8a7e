package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/entity"
)

type FileStorage interface {
	Scan(ctx context.Context) ([]entity.FileRecord, error)
}

type Catalog interface {
	Merge(found []entity.FileRecord) int
}

// IndexerService picks up files that were put into the artifacts directory while the server runs.
type IndexerService struct {
	running atomic.Bool
	store   FileStorage
	catalog Catalog
	log     *slog.Logger
}

func NewIndexService(store FileStorage, catalog Catalog, log *slog.Logger) *IndexerService {
	return &IndexerService{
		store:   store,
		catalog: catalog,
		log:     log.With(slog.String("item", "IndexService")),
	}
}

func (i *IndexerService) Index(ctx context.Context) (int, error) {
	if !i.running.CompareAndSwap(false, true) {
		return 0, common.ErrIndexingProcessHasAlreadyStarted
	}
	defer i.running.Store(false)

	found, err := i.store.Scan(ctx)
	if err != nil {
		i.log.Error("Cannot scan", slog.Any("error", err))

		return 0, fmt.Errorf("cannot scan artifacts directory: %w", err)
	}

	added := i.catalog.Merge(found)
	i.log.Info("Scan artifacts directory", slog.Int("found", len(found)), slog.Int("added", added))

	return added, nil
}
