package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jgivc/artifactory/internal/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	DefaultFileName = "config.yml"
	envFileName     = ".env"

	defaultArtifactsDir     = "artifacts"
	defaultReadTimeout      = 5 * time.Minute
	defaultWriteTimeout     = 5 * time.Minute
	defaultIdleTimeout      = 2 * time.Minute
	defaultUploadMaxMemory  = 32 << 20
	defaultClientTimeout    = 5 * time.Minute
	defaultConnectAttempts  = 3
	defaultServerLogLevel   = LogLevelInfo
	defaultClientLogLevel   = LogLevelError
	artifactsDirPermissions = 0o755
)

type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type ArtifactsConfig struct {
	Directory string `yaml:"directory"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type TimeoutsConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Idle  time.Duration `yaml:"idle"`
}

type ServerConfig struct {
	Listen          ListenConfig    `yaml:"listen"`
	Artifacts       ArtifactsConfig `yaml:"artifacts"`
	TLS             TLSConfig       `yaml:"tls"`
	Timeouts        TimeoutsConfig  `yaml:"timeouts"`
	UploadMaxMemory int64           `yaml:"upload_max_memory"`
	RedisURL        string          `yaml:"redis_url"`
	LogLevel        string          `yaml:"log_level"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Artifacts.Directory == "" {
		c.Artifacts.Directory = defaultArtifactsDir
	}

	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = defaultReadTimeout
	}

	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = defaultWriteTimeout
	}

	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = defaultIdleTimeout
	}

	if c.UploadMaxMemory == 0 {
		c.UploadMaxMemory = defaultUploadMaxMemory
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultServerLogLevel
	}
}

// Validate reports every problem that must stop the server before it binds a socket.
func (c *ServerConfig) Validate() error {
	if c.Listen.Address == "" {
		return fmt.Errorf("%w: please provide a valid address", common.ErrConfig)
	}

	if err := validatePort(c.Listen.Port); err != nil {
		return err
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls cert_file and key_file must be set together", common.ErrConfig)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Listen.Address, strconv.Itoa(c.Listen.Port))
}

func (c *ServerConfig) TLSEnabled() bool {
	return c.TLS.CertFile != "" && c.TLS.KeyFile != ""
}

type RemoteConfig struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"`
	CAFile   string `yaml:"ca_file"`
	Insecure bool   `yaml:"insecure"`
}

type ClientConfig struct {
	Server          RemoteConfig    `yaml:"server"`
	Artifacts       ArtifactsConfig `yaml:"artifacts"`
	Timeout         time.Duration   `yaml:"timeout"`
	ConnectAttempts int             `yaml:"connect_attempts"`
	LogLevel        string          `yaml:"log_level"`
}

func (c *ClientConfig) SetDefaults() {
	if c.Server.Scheme == "" {
		c.Server.Scheme = SchemeHTTPS
	}

	if c.Artifacts.Directory == "" {
		c.Artifacts.Directory = defaultArtifactsDir
	}

	if c.Timeout == 0 {
		c.Timeout = defaultClientTimeout
	}

	if c.ConnectAttempts < 1 {
		c.ConnectAttempts = defaultConnectAttempts
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultClientLogLevel
	}
}

// Validate does not require the server address and port: the client asks for them when missing.
func (c *ClientConfig) Validate() error {
	if c.Server.Scheme != SchemeHTTP && c.Server.Scheme != SchemeHTTPS {
		return fmt.Errorf("%w: unknown scheme %q", common.ErrConfig, c.Server.Scheme)
	}

	if c.Server.Port != 0 {
		if err := validatePort(c.Server.Port); err != nil {
			return err
		}
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

func (c *ClientConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s/", c.Server.Scheme, net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port)))
}

func LoadServer(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir, err := prepareArtifactsDir(path, cfg.Artifacts.Directory)
	if err != nil {
		return nil, err
	}
	cfg.Artifacts.Directory = dir
	cfg.TLS.CertFile = resolvePath(path, cfg.TLS.CertFile)
	cfg.TLS.KeyFile = resolvePath(path, cfg.TLS.KeyFile)

	return cfg, nil
}

func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir, err := prepareArtifactsDir(path, cfg.Artifacts.Directory)
	if err != nil {
		return nil, err
	}
	cfg.Artifacts.Directory = dir
	cfg.Server.CAFile = resolvePath(path, cfg.Server.CAFile)

	return cfg, nil
}

// ParseLogLevel maps a configured level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug, nil
	case LogLevelInfo:
		return slog.LevelInfo, nil
	case LogLevelWarn:
		return slog.LevelWarn, nil
	case LogLevelError:
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", common.ErrConfig, level)
}

func NewLogger(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

/*
load reads an optional .env file located next to the config, expands environment
variables inside the YAML and decodes it into out.
*/
func load(path string, out any) error {
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), envFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: cannot load env file: %w", common.ErrConfig, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: cannot read config file %s: %w", common.ErrConfig, path, err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(content))), out); err != nil {
		return fmt.Errorf("%w: cannot parse config file %s: %w", common.ErrConfig, path, err)
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: please provide a valid port: %d", common.ErrConfig, port)
	}

	return nil
}

func resolvePath(cfgPath, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(filepath.Dir(cfgPath), path)
}

func prepareArtifactsDir(cfgPath, dir string) (string, error) {
	dir, err := filepath.Abs(resolvePath(cfgPath, dir))
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve artifacts directory: %w", common.ErrConfig, err)
	}

	if err := os.MkdirAll(dir, artifactsDirPermissions); err != nil {
		return "", fmt.Errorf("%w: cannot create artifacts directory %s: %w", common.ErrConfig, dir, err)
	}

	return dir, nil
}
