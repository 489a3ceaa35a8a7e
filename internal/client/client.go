package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jgivc/artifactory/internal/adapter/fsadapter"
	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/config"
	"github.com/jgivc/artifactory/internal/entity"
	httphandler "github.com/jgivc/artifactory/internal/handler/http"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

const (
	maxErrorBodySize = 4 << 10
	filePermissions  = 0o644
	tmpFilePattern   = ".download-*"
)

// ArchiveResult lists what a multi-file download wrote to the local artifacts directory.
type ArchiveResult struct {
	Files      []string
	Unresolved []string
}

type Client struct {
	baseURL string
	hc      *http.Client
	fs      afero.Fs
	dir     string
	log     *slog.Logger
}

// New builds a client for the configured server. The CA file is read from fs.
func New(cfg *config.ClientConfig, fs afero.Fs, log *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.Server.Scheme == config.SchemeHTTPS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

		switch {
		case cfg.Server.Insecure:
			log.Warn("Server certificate verification is disabled")
			tlsConfig.InsecureSkipVerify = true //nolint:gosec
		case cfg.Server.CAFile != "":
			pem, err := afero.ReadFile(fs, cfg.Server.CAFile)
			if err != nil {
				return nil, fmt.Errorf("%w: cannot read ca file: %w", common.ErrConfig, err)
			}

			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("%w: no certificates in %s", common.ErrConfig, cfg.Server.CAFile)
			}
			tlsConfig.RootCAs = pool
		}

		transport.TLSClientConfig = tlsConfig
	}

	return NewWithHTTPClient(cfg.BaseURL(), &http.Client{Transport: transport, Timeout: cfg.Timeout}, fs, cfg.Artifacts.Directory, log), nil
}

func NewWithHTTPClient(baseURL string, hc *http.Client, fs afero.Fs, dir string, log *slog.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{
		baseURL: baseURL,
		hc:      hc,
		fs:      fs,
		dir:     dir,
		log:     log.With(slog.String("item", "Client")),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the server root answers with 200.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s answered with status %d", common.ErrConnection, c.baseURL, resp.StatusCode)
	}

	return nil
}

func (c *Client) List(ctx context.Context) ([]entity.FileInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "list", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var infos []entity.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("cannot decode file list: %w", err)
	}

	return infos, nil
}

// DownloadOne fetches a single file and writes it into the artifacts directory. It returns the local path.
func (c *Client) DownloadOne(ctx context.Context, name string) (string, error) {
	localName, err := fsadapter.SanitizeName(name)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(entity.FileRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("cannot encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodGet, "file", bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", common.ErrFileNotFound, name)
	default:
		return "", responseError(resp)
	}

	path := filepath.Join(c.dir, localName)
	if err := c.save(path, resp.Body); err != nil {
		return "", err
	}
	c.log.Debug("File downloaded", slog.String("name", name), slog.String("path", path))

	return path, nil
}

// DownloadMany fetches names as one archive and extracts it into the artifacts directory.
func (c *Client) DownloadMany(ctx context.Context, names []string) (*ArchiveResult, error) {
	req := make([]entity.FileRequest, 0, len(names))
	for _, name := range names {
		req = append(req, entity.FileRequest{Name: name})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cannot encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodGet, "files", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, common.ErrNoFilesResolved
	default:
		return nil, responseError(resp)
	}

	zipPath := filepath.Join(c.dir, uuid.NewString()+".zip")
	if err := c.save(zipPath, resp.Body); err != nil {
		return nil, err
	}
	defer c.remove(zipPath)

	files, err := c.extract(zipPath)
	if err != nil {
		return nil, err
	}

	return &ArchiveResult{Files: files, Unresolved: c.unresolved(resp.Header)}, nil
}

// DownloadAll lists the server and fetches every known file as one archive.
func (c *Client) DownloadAll(ctx context.Context) (*ArchiveResult, error) {
	infos, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		return nil, common.ErrNoFilesResolved
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}

	return c.DownloadMany(ctx, names)
}

// Upload sends a local file as a single multipart PUT and returns the server's per-part results.
func (c *Client) Upload(ctx context.Context, localPath string) ([]entity.UploadResult, error) {
	f, err := c.fs.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open file %s: %w", localPath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(httphandler.UploadFieldName, filepath.Base(localPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.do(ctx, http.MethodPut, "file", pr, mw.FormDataContentType())
	if err != nil {
		pr.CloseWithError(err)

		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var results []entity.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("cannot decode upload result: %w", err)
	}

	return results, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.Debug("Request", slog.String("method", method), slog.String("url", req.URL.String()))

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConnection, err)
	}

	return resp, nil
}

// save writes r next to path and renames it into place once the copy succeeded.
func (c *Client) save(path string, r io.Reader) error {
	tmp, err := afero.TempFile(c.fs, filepath.Dir(path), tmpFilePattern)
	if err != nil {
		return fmt.Errorf("cannot create file in %s: %w", filepath.Dir(path), err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		c.remove(tmp.Name())

		return fmt.Errorf("cannot write file %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		c.remove(tmp.Name())

		return fmt.Errorf("cannot close file %s: %w", path, err)
	}

	if err := c.fs.Rename(tmp.Name(), path); err != nil {
		c.remove(tmp.Name())

		return fmt.Errorf("cannot move file to %s: %w", path, err)
	}

	return nil
}

// extract unpacks every entry of the archive flat into the artifacts directory.
func (c *Client) extract(zipPath string) ([]string, error) {
	f, err := c.fs.Open(zipPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive %s: %w", zipPath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat archive %s: %w", zipPath, err)
	}

	zr, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("cannot read archive %s: %w", zipPath, err)
	}

	files := make([]string, 0, len(zr.File))
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		name, err := fsadapter.SanitizeName(entry.Name)
		if err != nil {
			c.log.Warn("Skip archive entry", slog.String("entry", entry.Name), slog.Any("error", err))

			continue
		}

		if err := c.extractEntry(entry, filepath.Join(c.dir, name)); err != nil {
			return files, err
		}
		files = append(files, name)
	}

	return files, nil
}

func (c *Client) extractEntry(entry *zip.File, path string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("cannot open archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := c.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("cannot create file %s: %w", path, err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()

		return fmt.Errorf("cannot write file %s: %w", path, err)
	}

	return out.Close()
}

func (c *Client) unresolved(header http.Header) []string {
	var names []string
	for _, value := range header.Values(httphandler.UnresolvedFilesHeader) {
		name, err := url.QueryUnescape(value)
		if err != nil {
			c.log.Warn("Cannot decode unresolved name", slog.String("value", value), slog.Any("error", err))
			name = value
		}
		names = append(names, name)
	}

	return names
}

func (c *Client) remove(path string) {
	if err := c.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Error("Cannot remove file", slog.String("path", path), slog.Any("error", err))
	}
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
	}

	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
