package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/jgivc/artifactory/internal/client"
	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/config"
	"github.com/jgivc/artifactory/internal/entity"
)

const (
	OpExit = iota
	OpList
	OpDownload
	OpUpload
	OpDownloadAll
)

var operations = []string{
	OpExit:        "exit",
	OpList:        "get list of all files",
	OpDownload:    "download artifacts",
	OpUpload:      "upload artifacts",
	OpDownloadAll: "download all",
}

const separator = "====================================================================="

type Client interface {
	BaseURL() string
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]entity.FileInfo, error)
	DownloadOne(ctx context.Context, name string) (string, error)
	DownloadMany(ctx context.Context, names []string) (*client.ArchiveResult, error)
	DownloadAll(ctx context.Context) (*client.ArchiveResult, error)
	Upload(ctx context.Context, path string) ([]entity.UploadResult, error)
}

// Session is the interactive menu loop of the client.
type Session struct {
	client   Client
	prompt   Prompter
	out      io.Writer
	attempts int
	log      *slog.Logger
}

func New(cl Client, prompt Prompter, out io.Writer, attempts int, log *slog.Logger) *Session {
	if attempts < 1 {
		attempts = 1
	}

	return &Session{
		client:   cl,
		prompt:   prompt,
		out:      out,
		attempts: attempts,
		log:      log.With(slog.String("item", "Session")),
	}
}

// Run connects to the server and serves menu choices until the user exits or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer fmt.Fprintln(s.out, "bye bye (:")

	if err := s.connect(ctx); err != nil {
		return err
	}

	for ctx.Err() == nil {
		fmt.Fprintln(s.out, separator)

		op, err := s.prompt.Select("Please pick operation", operations)
		if err != nil {
			return ignoreAbort(err)
		}

		switch op {
		case OpList:
			err = s.list(ctx)
		case OpDownload:
			err = s.download(ctx)
		case OpUpload:
			err = s.upload(ctx)
		case OpDownloadAll:
			err = s.downloadAll(ctx)
		default:
			return nil
		}

		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}

			s.log.Error("Operation failed", slog.String("operation", operations[op]), slog.Any("error", err))
			fmt.Fprintf(s.out, "(!) %s failed: %s\n", operations[op], err)
		}
	}

	return nil
}

// connect pings the server up to the configured number of attempts, asking before each retry.
func (s *Session) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		fmt.Fprintf(s.out, "testing connection to %s\n", s.client.BaseURL())

		err := s.client.Ping(ctx)
		if err == nil {
			fmt.Fprintf(s.out, "successful connection to %s\n", s.client.BaseURL())

			return nil
		}

		s.log.Error("Cannot connect", slog.Int("attempt", attempt), slog.Any("error", err))
		fmt.Fprintf(s.out, "(!) could not connect to server %s: %s\n", s.client.BaseURL(), err)

		if attempt >= s.attempts || ctx.Err() != nil {
			return err
		}

		retry, perr := s.prompt.Confirm("Would you like to retry?")
		if perr != nil {
			return ignoreAbort(perr)
		}

		if !retry {
			return err
		}
	}
}

func (s *Session) list(ctx context.Context) error {
	infos, err := s.client.List(ctx)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		fmt.Fprintln(s.out, "no artifacts on server")

		return nil
	}

	fmt.Fprintln(s.out, "artifacts:")
	for _, info := range infos {
		fmt.Fprintf(s.out, "  %s\t%s\n", info.Name, humanize.Bytes(uint64(info.Size)))
	}

	return nil
}

func (s *Session) download(ctx context.Context) error {
	names, err := s.collect("Please enter the names of the files you want to download", "Would you like to download more files?")
	if err != nil {
		return err
	}

	switch len(names) {
	case 0:
		fmt.Fprintln(s.out, "nothing to download")

		return nil
	case 1:
		path, err := s.client.DownloadOne(ctx, names[0])
		if err != nil {
			if errors.Is(err, common.ErrFileNotFound) {
				fmt.Fprintf(s.out, "file %s is not found in server\n", names[0])

				return nil
			}

			return err
		}
		fmt.Fprintf(s.out, "file %s downloaded successfully to %s\n", names[0], path)

		return nil
	}

	res, err := s.client.DownloadMany(ctx, names)
	if err != nil {
		return err
	}
	s.reportArchive(res)

	return nil
}

func (s *Session) downloadAll(ctx context.Context) error {
	res, err := s.client.DownloadAll(ctx)
	if err != nil {
		return err
	}
	s.reportArchive(res)

	return nil
}

func (s *Session) reportArchive(res *client.ArchiveResult) {
	for _, name := range res.Files {
		fmt.Fprintf(s.out, "file %s downloaded successfully\n", name)
	}

	for _, name := range res.Unresolved {
		fmt.Fprintf(s.out, "file %s is not found in server\n", name)
	}
}

func (s *Session) upload(ctx context.Context) error {
	paths, err := s.collect("Please enter the paths of the files you want to upload", "Would you like to upload more files?")
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		fmt.Fprintln(s.out, "nothing to upload")

		return nil
	}

	var failed int
	for _, path := range paths {
		results, err := s.client.Upload(ctx, path)
		if err != nil {
			s.log.Error("Cannot upload file", slog.String("path", path), slog.Any("error", err))
			fmt.Fprintf(s.out, "(!) cannot upload %s: %s\n", path, err)
			failed++

			continue
		}

		for _, res := range results {
			if res.Error != "" {
				fmt.Fprintf(s.out, "(!) %s rejected: %s\n", res.Name, res.Error)
				failed++

				continue
			}
			fmt.Fprintf(s.out, "uploaded %s (%s)\n", res.Name, humanize.Bytes(uint64(res.Size)))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files were not uploaded", failed, len(paths))
	}

	return nil
}

// collect reads whitespace separated values until the user declines to enter more.
func (s *Session) collect(title, more string) ([]string, error) {
	var values []string

	for {
		line, err := s.prompt.Input(title)
		if err != nil {
			return nil, err
		}
		values = append(values, strings.Fields(line)...)

		again, err := s.prompt.Confirm(more)
		if err != nil {
			return nil, err
		}

		if !again {
			return values, nil
		}
	}
}

// AskServer fills a missing server address or port from the prompter.
func AskServer(prompt Prompter, cfg *config.ClientConfig) error {
	for cfg.Server.Address == "" {
		address, err := prompt.Input("Please enter the server address")
		if err != nil {
			return err
		}
		cfg.Server.Address = strings.TrimSpace(address)
	}

	for cfg.Server.Port == 0 {
		value, err := prompt.Input("Please enter the server port")
		if err != nil {
			return err
		}

		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		cfg.Server.Port = port
	}

	return nil
}

func ignoreAbort(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}

	return err
}
