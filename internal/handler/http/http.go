package httphandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/entity"
	"github.com/jgivc/artifactory/internal/service/archive"
	"github.com/jgivc/artifactory/internal/service/transfer"
	"github.com/jgivc/artifactory/internal/util"
)

const (
	UploadFieldName        = "files"
	UnresolvedFilesHeader  = "X-Unresolved-Files" // one query-escaped value per unresolved name
	contentDispositionTmpl = "attachment; filename=%q"
)

type TransferService interface {
	List(ctx context.Context) []entity.FileInfo
	Open(ctx context.Context, name string) (*transfer.OpenedFile, error)
	Archive(ctx context.Context, names []string) (*transfer.Archive, error)
	Store(ctx context.Context, name string, r io.Reader) (entity.FileRecord, error)
}

// CounterService is optional: handlers accept nil when download statistics are disabled.
type CounterService interface {
	FileServed(ctx context.Context, name string)
	ArchiveServed(ctx context.Context, names []string)
	GetDownloadCounters(ctx context.Context) (map[string]int64, error)
}

type Recorder interface {
	FileServed()
	ArchiveServed(entries, unresolved int)
	FileUploaded(size int64)
	UploadFailed()
}

func NewRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, true)
	}
}

func NewListHandler(srv TransferService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		infos := srv.List(r.Context())
		log.Debug("List files", slog.Int("count", len(infos)))

		respondJSON(w, http.StatusOK, infos)
	}
}

func NewFileHandler(srv TransferService, counters CounterService, rec Recorder, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "FileHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req entity.FileRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err)

			return
		}

		if req.Name == "" {
			respondError(w, http.StatusBadRequest, fmt.Errorf("%w: name is required", common.ErrInvalidRequest))

			return
		}

		opened, err := srv.Open(r.Context(), req.Name)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrFileNotFound):
				respondError(w, http.StatusNotFound, fmt.Errorf("item not found: %s", req.Name))
			default:
				respondError(w, http.StatusInternalServerError, fmt.Errorf("cannot get file %s", req.Name))
			}

			return
		}
		defer opened.File.Close()

		stat, err := opened.File.Stat()
		if err != nil {
			log.Error("Cannot stat file", slog.String("path", opened.Record.Path), slog.Any("error", err))
			respondError(w, http.StatusInternalServerError, fmt.Errorf("cannot get file %s", req.Name))

			return
		}

		w.Header().Set("Content-Type", opened.MIMEType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(contentDispositionTmpl, opened.Record.Name))
		w.Header().Set("ETag", util.ETag(opened.Record.Path, stat.Size(), stat.ModTime()))

		sw := newStatusWriter(w)
		http.ServeContent(sw, r, opened.Record.Name, stat.ModTime(), opened.File)
		if !sw.succeeded() {
			log.Debug("File not sent", slog.String("name", req.Name), slog.Int("status", sw.status))

			return
		}

		log.Info("Download file", slog.String("name", req.Name), slog.String("path", opened.Record.Path))
		rec.FileServed()
		if counters != nil {
			counters.FileServed(context.WithoutCancel(r.Context()), opened.Record.Name)
		}
	}
}

func NewFilesHandler(srv TransferService, counters CounterService, rec Recorder, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "FilesHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req []entity.FileRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err)

			return
		}

		names := make([]string, 0, len(req))
		for _, item := range req {
			names = append(names, item.Name)
		}

		arch, err := srv.Archive(r.Context(), names)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrNoFilesResolved):
				respondError(w, http.StatusNotFound, common.ErrNoFilesResolved)
			default:
				log.Error("Cannot build archive", slog.Any("error", err))
				respondError(w, http.StatusInternalServerError, fmt.Errorf("cannot build archive"))
			}

			return
		}

		if len(arch.Unresolved) > 0 {
			log.Warn("Archive is incomplete", slog.Any("unresolved", arch.Unresolved), slog.Any("skipped", arch.Skipped))
			for _, name := range arch.Unresolved {
				w.Header().Add(UnresolvedFilesHeader, url.QueryEscape(name))
			}
		}

		w.Header().Set("Content-Type", archive.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(contentDispositionTmpl, archive.FileName))

		sw := newStatusWriter(w)
		http.ServeContent(sw, r, archive.FileName, time.Time{}, bytes.NewReader(arch.Data))
		if !sw.succeeded() {
			log.Debug("Archive not sent", slog.Int("status", sw.status))

			return
		}

		rec.ArchiveServed(len(arch.Entries), len(arch.Unresolved))
		if counters != nil {
			counters.ArchiveServed(context.WithoutCancel(r.Context()), arch.Entries)
		}
	}
}

func NewUploadHandler(srv TransferService, maxMemory int64, rec Recorder, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "UploadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err))

			return
		}
		defer r.MultipartForm.RemoveAll()

		parts := r.MultipartForm.File[UploadFieldName]
		if len(parts) == 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("%w: no files in field %q", common.ErrInvalidRequest, UploadFieldName))

			return
		}

		results := make([]entity.UploadResult, 0, len(parts))
		for _, part := range parts {
			result := storePart(r.Context(), srv, part)
			if result.Error != "" {
				log.Error("Cannot store file", slog.String("name", part.Filename), slog.String("error", result.Error))
				rec.UploadFailed()
			} else {
				rec.FileUploaded(result.Size)
			}

			results = append(results, result)
		}

		respondJSON(w, http.StatusOK, results)
	}
}

func storePart(ctx context.Context, srv TransferService, part *multipart.FileHeader) entity.UploadResult {
	f, err := part.Open()
	if err != nil {
		return entity.UploadResult{Name: part.Filename, Error: fmt.Sprintf("cannot read part: %s", err)}
	}
	defer f.Close()

	rec, err := srv.Store(ctx, part.Filename, f)
	if err != nil {
		msg := "cannot store file"
		if errors.Is(err, common.ErrInvalidFileName) {
			msg = common.ErrInvalidFileName.Error()
		}

		return entity.UploadResult{Name: part.Filename, Error: msg}
	}

	return entity.UploadResult{Name: rec.Name, Size: rec.Size}
}

func NewStatHandler(counters CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if counters == nil {
			respondError(w, http.StatusNotFound, common.ErrStatsDisabled)

			return
		}

		stats, err := counters.GetDownloadCounters(r.Context())
		if err != nil {
			log.Error("Cannot get counters", slog.Any("error", err))
			respondError(w, http.StatusInternalServerError, fmt.Errorf("cannot get download counters"))

			return
		}

		respondJSON(w, http.StatusOK, stats)
	}
}
