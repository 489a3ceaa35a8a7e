package fsadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jgivc/artifactory/internal/common"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testRoot = "/artifacts"

func newTestAdapter(t *testing.T, files map[string]string) (*fsAdapter, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), dirPermissions))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), filePermissions))
	}

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	a, err := NewFSAdapterWithFS(fs, testRoot, log)
	require.NoError(t, err)

	return a, fs
}

func TestScan(t *testing.T) {
	testCases := []struct {
		name     string
		files    map[string]string
		expected map[string]int64
	}{
		{
			name:     "Empty folder",
			expected: map[string]int64{},
		},
		{
			name: "Flat folder",
			files: map[string]string{
				testRoot + "/a.txt": "hello",
				testRoot + "/b.txt": "world!",
			},
			expected: map[string]int64{
				testRoot + "/a.txt": 5,
				testRoot + "/b.txt": 6,
			},
		},
		{
			name: "Nested folder and leftovers",
			files: map[string]string{
				testRoot + "/a.txt":      "hello",
				testRoot + "/sub/c.bin":  "123",
				testRoot + "/d.txt.part": "partial",
				"/elsewhere/e.txt":       "not in root",
			},
			expected: map[string]int64{
				testRoot + "/a.txt":     5,
				testRoot + "/sub/c.bin": 3,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestAdapter(t, tc.files)

			records, err := a.Scan(context.Background())
			require.NoError(t, err)
			require.Len(t, records, len(tc.expected))

			for _, rec := range records {
				size, exists := tc.expected[rec.Path]
				require.True(t, exists, rec.Path)
				require.Equal(t, size, rec.Size)
				require.Equal(t, filepath.Base(rec.Path), rec.Name)
			}
		})
	}
}

func TestScanOrder(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]string{
		testRoot + "/c.txt": "c",
		testRoot + "/a.txt": "a",
		testRoot + "/b.txt": "b",
	})

	records, err := a.Scan(context.Background())
	require.NoError(t, err)

	var names []string
	for _, rec := range records {
		names = append(names, rec.Name)
	}
	require.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)
}

func TestScanCanceled(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]string{testRoot + "/a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSave(t *testing.T) {
	a, fs := newTestAdapter(t, nil)

	path, size, err := a.Save("../../etc/report.txt", strings.NewReader("report body"))
	require.NoError(t, err)
	require.Equal(t, testRoot+"/report.txt", path)
	require.EqualValues(t, len("report body"), size)

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, "report body", string(content))

	requireNoTempFiles(t, fs, testRoot)
}

func TestSaveOverwrite(t *testing.T) {
	a, fs := newTestAdapter(t, map[string]string{testRoot + "/a.txt": "old content"})

	_, size, err := a.Save("a.txt", strings.NewReader("new"))
	require.NoError(t, err)
	require.EqualValues(t, 3, size)

	content, err := afero.ReadFile(fs, testRoot+"/a.txt")
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSaveFailedWriteKeepsOriginal(t *testing.T) {
	a, fs := newTestAdapter(t, map[string]string{testRoot + "/a.txt": "original"})

	_, _, err := a.Save("a.txt", failingReader{})
	require.Error(t, err)

	content, err := afero.ReadFile(fs, testRoot+"/a.txt")
	require.NoError(t, err)
	require.Equal(t, "original", string(content))

	requireNoTempFiles(t, fs, testRoot)
}

func requireNoTempFiles(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()

	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	for _, info := range infos {
		require.False(t, strings.HasSuffix(info.Name(), tmpFileSuffix), "temporary file left: %s", info.Name())
	}
}

func TestSaveConcurrentSameName(t *testing.T) {
	const size = 1 << 20

	root := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	a, err := NewFSAdapterWithFS(afero.NewOsFs(), root, log)
	require.NoError(t, err)

	for round := 0; round < 10; round++ {
		payloads := []string{strings.Repeat("A", size), strings.Repeat("B", size)}
		errs := make([]error, len(payloads))
		sizes := make([]int64, len(payloads))

		var wg sync.WaitGroup
		for i, payload := range payloads {
			wg.Add(1)

			go func(i int, payload string) {
				defer wg.Done()

				_, sizes[i], errs[i] = a.Save("same.bin", strings.NewReader(payload))
			}(i, payload)
		}
		wg.Wait()

		for i := range payloads {
			require.NoError(t, errs[i], "round %d", round)
			require.EqualValues(t, size, sizes[i], "round %d", round)
		}

		content, err := os.ReadFile(filepath.Join(root, "same.bin"))
		require.NoError(t, err)
		require.Len(t, content, size)
		require.Contains(t, payloads, string(content), "round %d: stored file mixes both uploads", round)
		requireNoTempFiles(t, afero.NewOsFs(), root)
	}
}

func TestOpen(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]string{
		testRoot + "/a.txt": "hello",
		"/secret.txt":       "secret",
	})

	f, err := a.Open(testRoot + "/a.txt")
	require.NoError(t, err)
	defer f.Close()

	content, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	_, err = a.Open(testRoot + "/missing.txt")
	require.ErrorIs(t, err, common.ErrFileNotFound)

	_, err = a.Open("/secret.txt")
	require.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestMimeType(t *testing.T) {
	a, _ := newTestAdapter(t, map[string]string{
		testRoot + "/page.html": "<html></html>",
		testRoot + "/noext":     "%PDF-1.4 document",
	})

	f, err := a.Open(testRoot + "/page.html")
	require.NoError(t, err)
	defer f.Close()
	require.Contains(t, a.MimeType(f), "text/html")

	f2, err := a.Open(testRoot + "/noext")
	require.NoError(t, err)
	defer f2.Close()
	require.Equal(t, "application/pdf", a.MimeType(f2))

	content, err := io.ReadAll(f2)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 document", string(content))
}

func TestSanitizeName(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		isValid  bool
	}{
		{name: "plain", input: "a.txt", expected: "a.txt", isValid: true},
		{name: "unix path", input: "/home/user/a.txt", expected: "a.txt", isValid: true},
		{name: "windows path", input: `C:\Users\user\a.txt`, expected: "a.txt", isValid: true},
		{name: "traversal", input: "../../a.txt", expected: "a.txt", isValid: true},
		{name: "empty", input: ""},
		{name: "spaces", input: "   "},
		{name: "dot", input: "."},
		{name: "dot dot", input: ".."},
		{name: "root", input: "/"},
		{name: "temporary suffix", input: "a.txt.part"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, err := SanitizeName(tc.input)
			if !tc.isValid {
				require.ErrorIs(t, err, common.ErrInvalidFileName)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, name)
		})
	}
}
