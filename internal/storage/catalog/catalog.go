package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jgivc/artifactory/internal/entity"
)

type Scanner interface {
	Scan(ctx context.Context) ([]entity.FileRecord, error)
}

/*
Catalog is the ordered, in-memory set of known files. Names are not deduplicated:
a second record with the same name is appended and Lookup keeps returning the first one.
Every read and append goes through the same lock; callers always get copies.
*/
type Catalog struct {
	mu      sync.RWMutex
	records []entity.FileRecord
	log     *slog.Logger
}

func New(log *slog.Logger) *Catalog {
	return &Catalog{
		log: log.With(slog.String("item", "Catalog")),
	}
}

// Initialize appends one record per file found by the scanner, in scan order.
func (c *Catalog) Initialize(ctx context.Context, scanner Scanner) (int, error) {
	found, err := scanner.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot scan artifacts: %w", err)
	}

	for _, rec := range found {
		c.Register(rec.Name, rec.Path, rec.Size)
	}

	c.log.Info("Catalog initialized", slog.Int("count", len(found)))

	return len(found), nil
}

// Merge appends the records whose path is not known yet and returns how many were added.
func (c *Catalog) Merge(found []entity.FileRecord) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	known := make(map[string]struct{}, len(c.records))
	for i := range c.records {
		known[c.records[i].Path] = struct{}{}
	}

	var added int
	for _, rec := range found {
		if _, exists := known[rec.Path]; exists {
			continue
		}

		known[rec.Path] = struct{}{}
		c.records = append(c.records, newRecord(rec.Name, rec.Path, rec.Size))
		added++
	}

	return added
}

// Lookup returns the first record named exactly name.
func (c *Catalog) Lookup(name string) (entity.FileRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.records {
		if c.records[i].Name == name {
			return c.records[i], true
		}
	}

	return entity.FileRecord{}, false
}

func (c *Catalog) Register(name, path string, size int64) entity.FileRecord {
	rec := newRecord(name, path, size)

	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()

	c.log.Debug("Register file", slog.String("id", rec.ID.String()), slog.String("name", name), slog.String("path", path), slog.Int64("size", size))

	return rec
}

// List returns a snapshot of all records in insertion order.
func (c *Catalog) List() []entity.FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]entity.FileRecord, len(c.records))
	copy(records, c.records)

	return records
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.records)
}

func newRecord(name, path string, size int64) entity.FileRecord {
	return entity.FileRecord{
		ID:   uuid.New(),
		Name: name,
		Path: path,
		Size: size,
	}
}
