package fsadapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/entity"
	"github.com/spf13/afero"
)

const (
	mimeTypeUnknown = "application/octet-stream"
	tmpFileSuffix   = ".part"
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// fsAdapter keeps artifacts as regular files under a single root directory.
type fsAdapter struct {
	fs   afero.Fs
	root string
	log  *slog.Logger
}

func NewFSAdapter(root string, log *slog.Logger) (*fsAdapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve artifacts root %s: %w", root, err)
	}

	return NewFSAdapterWithFS(afero.NewOsFs(), abs, log)
}

func NewFSAdapterWithFS(fs afero.Fs, root string, log *slog.Logger) (*fsAdapter, error) {
	if root == "" {
		return nil, fmt.Errorf("artifacts root is required")
	}

	if err := fs.MkdirAll(root, dirPermissions); err != nil {
		return nil, fmt.Errorf("cannot create artifacts root %s: %w", root, err)
	}

	return &fsAdapter{
		fs:   fs,
		root: filepath.Clean(root),
		log:  log.With(slog.String("item", "FSAdapter")),
	}, nil
}

func (a *fsAdapter) Root() string {
	return a.root
}

/*
Scan walks the artifacts root recursively in lexical order and returns one record per
regular file. Records carry no ID: identifiers are assigned by the catalog.
*/
func (a *fsAdapter) Scan(ctx context.Context) ([]entity.FileRecord, error) {
	var records []entity.FileRecord

	err := afero.Walk(a.fs, a.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			a.log.Error("Cannot read path", slog.String("path", path), slog.Any("error", err))

			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !info.Mode().IsRegular() || strings.HasSuffix(info.Name(), tmpFileSuffix) {
			return nil
		}

		a.log.Debug("Found file", slog.String("path", path), slog.Int64("size", info.Size()))

		records = append(records, entity.FileRecord{
			Name: info.Name(),
			Path: path,
			Size: info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot scan %s: %w", a.root, err)
	}

	return records, nil
}

/*
Save writes r to a temporary file of its own under the root and renames it to <root>/<name>.
The returned size is read from disk before the rename.
*/
func (a *fsAdapter) Save(name string, r io.Reader) (string, int64, error) {
	name, err := SanitizeName(name)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(a.root, name)
	log := a.log.With(slog.String("op", "Save"), slog.String("path", path))
	log.Debug("Save artifact")

	out, err := afero.TempFile(a.fs, a.root, name+".*"+tmpFileSuffix)
	if err != nil {
		return "", 0, fmt.Errorf("cannot create temporary file for %s: %w", path, err)
	}
	tmpPath := out.Name()

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		a.remove(tmpPath)

		return "", 0, fmt.Errorf("cannot write file %s: %w", tmpPath, err)
	}

	if err := out.Close(); err != nil {
		a.remove(tmpPath)

		return "", 0, fmt.Errorf("cannot close file %s: %w", tmpPath, err)
	}

	stat, err := a.fs.Stat(tmpPath)
	if err != nil {
		a.remove(tmpPath)

		return "", 0, fmt.Errorf("cannot get file %s size: %w", tmpPath, err)
	}

	if err := a.fs.Chmod(tmpPath, filePermissions); err != nil {
		log.Warn("Cannot change file mode", slog.String("tmp", tmpPath), slog.Any("error", err))
	}

	if err := a.fs.Rename(tmpPath, path); err != nil {
		a.remove(tmpPath)

		return "", 0, fmt.Errorf("cannot move file to %s: %w", path, err)
	}

	return path, stat.Size(), nil
}

func (a *fsAdapter) Open(path string) (afero.File, error) {
	if !a.contains(path) {
		return nil, fmt.Errorf("%w: %s is outside of the artifacts root", common.ErrFileNotFound, path)
	}

	f, err := a.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, path)
		}

		return nil, fmt.Errorf("cannot open file %s: %w", path, err)
	}

	return f, nil
}

// MimeType guesses the content type by extension first and falls back to sniffing the content.
func (a *fsAdapter) MimeType(f afero.File) string {
	if ext := filepath.Ext(f.Name()); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}

	mtype, err := mimetype.DetectReader(f)
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		a.log.Error("Cannot rewind file", slog.String("path", f.Name()), slog.Any("error", seekErr))
	}

	if err != nil {
		a.log.Error("Cannot get file mimeType", slog.String("path", f.Name()), slog.Any("error", err))

		return mimeTypeUnknown
	}

	return mtype.String()
}

func (a *fsAdapter) contains(path string) bool {
	rel, err := filepath.Rel(a.root, filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}

func (a *fsAdapter) remove(path string) {
	if err := a.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		a.log.Error("Cannot remove file", slog.String("path", path), slog.Any("error", err))
	}
}

// SanitizeName reduces a client supplied file name to its base name.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := filepath.Base(name)

	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", common.ErrInvalidFileName, name)
	}

	if strings.HasSuffix(base, tmpFileSuffix) {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidFileName, name)
	}

	return base, nil
}
