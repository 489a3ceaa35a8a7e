package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/entity"
	"github.com/jgivc/artifactory/internal/service/archive"
	"github.com/spf13/afero"
)

const (
	serviceName = "transfer"
)

type Catalog interface {
	Lookup(name string) (entity.FileRecord, bool)
	Register(name, path string, size int64) entity.FileRecord
	List() []entity.FileRecord
}

type FileStore interface {
	Save(name string, r io.Reader) (string, int64, error)
	Open(path string) (afero.File, error)
	MimeType(f afero.File) string
}

type ArchiveBuilder interface {
	Build(ctx context.Context, records []entity.FileRecord, w io.Writer) (*archive.Result, error)
}

// Archive is a complete zip archive held in memory.
type Archive struct {
	Data       []byte
	Entries    []string
	Unresolved []string
	Skipped    []string
}

// OpenedFile is a resolved record together with its open file. The caller closes File.
type OpenedFile struct {
	Record   entity.FileRecord
	File     afero.File
	MIMEType string
}

type transferService struct {
	catalog Catalog
	store   FileStore
	builder ArchiveBuilder
	log     *slog.Logger
}

func NewTransferService(catalog Catalog, store FileStore, builder ArchiveBuilder, log *slog.Logger) *transferService {
	return &transferService{
		catalog: catalog,
		store:   store,
		builder: builder,
		log:     log.With(slog.String("service", serviceName)),
	}
}

func (s *transferService) List(ctx context.Context) []entity.FileInfo {
	records := s.catalog.List()

	infos := make([]entity.FileInfo, 0, len(records))
	for i := range records {
		infos = append(infos, records[i].Info())
	}

	return infos
}

// ResolveOne is the single file lookup: a miss is an error.
func (s *transferService) ResolveOne(ctx context.Context, name string) (entity.FileRecord, error) {
	rec, found := s.catalog.Lookup(name)
	if !found {
		s.log.Error("Cannot find file", slog.String("name", name))

		return entity.FileRecord{}, fmt.Errorf("cannot resolve %s: %w", name, common.ErrFileNotFound)
	}

	return rec, nil
}

// ResolveMany resolves names in order; misses are collected instead of failing the call.
func (s *transferService) ResolveMany(ctx context.Context, names []string) ([]entity.FileRecord, []string) {
	var (
		resolved   []entity.FileRecord
		unresolved []string
	)

	for _, name := range names {
		rec, found := s.catalog.Lookup(name)
		if !found {
			s.log.Error("Cannot find file, skip", slog.String("name", name))
			unresolved = append(unresolved, name)

			continue
		}

		resolved = append(resolved, rec)
	}

	return resolved, unresolved
}

func (s *transferService) Open(ctx context.Context, name string) (*OpenedFile, error) {
	rec, err := s.ResolveOne(ctx, name)
	if err != nil {
		return nil, err
	}

	f, err := s.store.Open(rec.Path)
	if err != nil {
		s.log.Error("Cannot open file", slog.String("name", name), slog.String("path", rec.Path), slog.Any("error", err))

		return nil, fmt.Errorf("cannot open %s: %w", name, err)
	}

	return &OpenedFile{
		Record:   rec,
		File:     f,
		MIMEType: s.store.MimeType(f),
	}, nil
}

/*
Archive resolves names and packs the hits into one in-memory zip archive. It fails with
common.ErrNoFilesResolved when nothing could be put into the archive.
*/
func (s *transferService) Archive(ctx context.Context, names []string) (*Archive, error) {
	resolved, unresolved := s.ResolveMany(ctx, names)
	if len(resolved) == 0 {
		return nil, fmt.Errorf("cannot build archive of %v: %w", names, common.ErrNoFilesResolved)
	}

	var buf bytes.Buffer
	res, err := s.builder.Build(ctx, resolved, &buf)
	if err != nil {
		s.log.Error("Cannot build archive", slog.Any("error", err))

		return nil, fmt.Errorf("cannot build archive: %w", err)
	}

	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("cannot read any of %v: %w", names, common.ErrNoFilesResolved)
	}

	s.log.Info("Build archive", slog.Int("entries", len(res.Entries)), slog.Int("unresolved", len(unresolved)), slog.Int("skipped", len(res.Skipped)))

	return &Archive{
		Data:       buf.Bytes(),
		Entries:    res.Entries,
		Unresolved: unresolved,
		Skipped:    res.Skipped,
	}, nil
}

// ArchiveAll packs every file currently known to the catalog.
func (s *transferService) ArchiveAll(ctx context.Context) (*Archive, error) {
	records := s.catalog.List()

	names := make([]string, 0, len(records))
	for i := range records {
		names = append(names, records[i].Name)
	}

	return s.Archive(ctx, names)
}

// Store writes an uploaded file to disk and registers it. Nothing is registered when the write fails.
func (s *transferService) Store(ctx context.Context, name string, r io.Reader) (entity.FileRecord, error) {
	path, size, err := s.store.Save(name, r)
	if err != nil {
		s.log.Error("Cannot save file", slog.String("name", name), slog.Any("error", err))

		return entity.FileRecord{}, fmt.Errorf("cannot save %s: %w", name, err)
	}

	rec := s.catalog.Register(filepath.Base(path), path, size)
	s.log.Info("Store file", slog.String("name", rec.Name), slog.Int64("size", size))

	return rec, nil
}
