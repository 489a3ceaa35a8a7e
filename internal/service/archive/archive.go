package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/jgivc/artifactory/internal/entity"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

const (
	FileName    = "archive.zip"
	ContentType = "application/x-zip-compressed"
)

type FileOpener interface {
	Open(path string) (afero.File, error)
}

// Result lists the entries written and the records skipped because their file could not be read.
type Result struct {
	Entries []string
	Skipped []string
}

type Builder struct {
	opener FileOpener
	log    *slog.Logger
}

func NewBuilder(opener FileOpener, log *slog.Logger) *Builder {
	return &Builder{
		opener: opener,
		log:    log.With(slog.String("item", "ArchiveBuilder")),
	}
}

/*
Build writes a flat zip archive to w with one entry per record, in input order. The entry
name is the base name of the record path; duplicates are written as separate entries.
A record whose file cannot be opened is skipped and reported in Result.Skipped.
*/
func (b *Builder) Build(ctx context.Context, records []entity.FileRecord, w io.Writer) (*Result, error) {
	zw := zip.NewWriter(w)
	res := &Result{}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			zw.Close()

			return nil, err
		}

		written, err := b.addEntry(zw, rec)
		if err != nil {
			zw.Close()

			return nil, fmt.Errorf("cannot add %s to archive: %w", rec.Name, err)
		}

		if !written {
			res.Skipped = append(res.Skipped, rec.Name)

			continue
		}

		res.Entries = append(res.Entries, filepath.Base(rec.Path))
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("cannot finish archive: %w", err)
	}

	return res, nil
}

func (b *Builder) addEntry(zw *zip.Writer, rec entity.FileRecord) (bool, error) {
	f, err := b.opener.Open(rec.Path)
	if err != nil {
		b.log.Warn("Cannot open file, skip", slog.String("name", rec.Name), slog.String("path", rec.Path), slog.Any("error", err))

		return false, nil
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		b.log.Warn("Cannot stat file, skip", slog.String("name", rec.Name), slog.String("path", rec.Path), slog.Any("error", err))

		return false, nil
	}

	header := &zip.FileHeader{
		Name:     filepath.Base(rec.Path),
		Method:   zip.Deflate,
		Modified: stat.ModTime(),
	}
	header.SetMode(0o644)

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return false, err
	}

	n, err := io.Copy(entry, f)
	if err != nil {
		return false, err
	}

	b.log.Debug("Add archive entry", slog.String("name", header.Name), slog.Int64("size", n))

	return true, nil
}
