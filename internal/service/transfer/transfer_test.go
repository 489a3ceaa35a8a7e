package transfer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jgivc/artifactory/internal/adapter/fsadapter"
	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/entity"
	"github.com/jgivc/artifactory/internal/service/archive"
	"github.com/jgivc/artifactory/internal/storage/catalog"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testRoot = "/artifacts"

type testEnv struct {
	srv     *transferService
	catalog *catalog.Catalog
	fs      afero.Fs
}

func newTestEnv(t *testing.T, files map[string]string) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testRoot, 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, testRoot+"/"+name, []byte(content), 0o644))
	}

	store, err := fsadapter.NewFSAdapterWithFS(fs, testRoot, log)
	require.NoError(t, err)

	cat := catalog.New(log)
	_, err = cat.Initialize(context.Background(), store)
	require.NoError(t, err)

	return &testEnv{
		srv:     NewTransferService(cat, store, archive.NewBuilder(store, log), log),
		catalog: cat,
		fs:      fs,
	}
}

func archiveContent(t *testing.T, data []byte) map[string]string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	content := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		content[f.Name] = string(b)
	}

	return content
}

func TestList(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello", "b.txt": "world!"})

	expected := []entity.FileInfo{{Name: "a.txt", Size: 5}, {Name: "b.txt", Size: 6}}
	require.Equal(t, expected, env.srv.List(context.Background()))
	require.Equal(t, expected, env.srv.List(context.Background()))
}

func TestResolveOne(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello"})

	rec, err := env.srv.ResolveOne(context.Background(), "a.txt")
	require.NoError(t, err)
	require.Equal(t, testRoot+"/a.txt", rec.Path)

	_, err = env.srv.ResolveOne(context.Background(), "c.txt")
	require.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestResolveMany(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello", "b.txt": "world!"})

	testCases := []struct {
		name       string
		names      []string
		resolved   []string
		unresolved []string
	}{
		{
			name:     "all resolved in request order",
			names:    []string{"b.txt", "a.txt"},
			resolved: []string{"b.txt", "a.txt"},
		},
		{
			name:       "partial",
			names:      []string{"a.txt", "c.txt", "b.txt"},
			resolved:   []string{"a.txt", "b.txt"},
			unresolved: []string{"c.txt"},
		},
		{
			name:       "none",
			names:      []string{"x", "y"},
			unresolved: []string{"x", "y"},
		},
		{
			name: "empty request",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, unresolved := env.srv.ResolveMany(context.Background(), tc.names)

			var names []string
			for _, rec := range resolved {
				names = append(names, rec.Name)
			}
			require.Equal(t, tc.resolved, names)
			require.Equal(t, tc.unresolved, unresolved)
		})
	}
}

func TestOpen(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello"})

	opened, err := env.srv.Open(context.Background(), "a.txt")
	require.NoError(t, err)
	defer opened.File.Close()

	content, err := io.ReadAll(opened.File)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
	require.Contains(t, opened.MIMEType, "text/plain")

	_, err = env.srv.Open(context.Background(), "missing.txt")
	require.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestOpenRemovedFromDisk(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello"})
	require.NoError(t, env.fs.Remove(testRoot+"/a.txt"))

	_, err := env.srv.Open(context.Background(), "a.txt")
	require.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestArchive(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello", "b.txt": "world!"})

	arch, err := env.srv.Archive(context.Background(), []string{"a.txt", "c.txt"})
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, arch.Entries)
	require.Equal(t, []string{"c.txt"}, arch.Unresolved)
	require.Equal(t, map[string]string{"a.txt": "hello"}, archiveContent(t, arch.Data))
}

func TestArchiveNothingResolved(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello"})

	_, err := env.srv.Archive(context.Background(), []string{"c.txt"})
	require.ErrorIs(t, err, common.ErrNoFilesResolved)

	_, err = env.srv.Archive(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrNoFilesResolved)
}

func TestArchiveEverythingMissingOnDisk(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello"})
	require.NoError(t, env.fs.Remove(testRoot+"/a.txt"))

	_, err := env.srv.Archive(context.Background(), []string{"a.txt"})
	require.ErrorIs(t, err, common.ErrNoFilesResolved)
}

func TestArchiveAll(t *testing.T) {
	files := map[string]string{"a.txt": "hello", "b.txt": "world!", "c.bin": "\x00\x01\x02"}
	env := newTestEnv(t, files)

	arch, err := env.srv.ArchiveAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, files, archiveContent(t, arch.Data))
}

func TestStore(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, err := env.srv.Store(context.Background(), "/tmp/upload/report.txt", strings.NewReader("report"))
	require.NoError(t, err)
	require.Equal(t, "report.txt", rec.Name)
	require.EqualValues(t, 6, rec.Size)
	require.Equal(t, testRoot+"/report.txt", rec.Path)

	found, ok := env.catalog.Lookup("report.txt")
	require.True(t, ok)
	require.Equal(t, rec, found)

	opened, err := env.srv.Open(context.Background(), "report.txt")
	require.NoError(t, err)
	defer opened.File.Close()
	content, err := io.ReadAll(opened.File)
	require.NoError(t, err)
	require.Equal(t, "report", string(content))
}

func TestStoreInvalidName(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.srv.Store(context.Background(), "..", strings.NewReader("x"))
	require.ErrorIs(t, err, common.ErrInvalidFileName)
	require.Empty(t, env.srv.List(context.Background()))
}

func TestStoreDuplicateAppends(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "hello"})

	_, err := env.srv.Store(context.Background(), "a.txt", strings.NewReader("hello again"))
	require.NoError(t, err)

	list := env.srv.List(context.Background())
	require.Equal(t, []entity.FileInfo{{Name: "a.txt", Size: 5}, {Name: "a.txt", Size: 11}}, list)
}
