package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/pkg/zid"
)

// EnvPath names the environment variable consulted for the config file path.
const EnvPath = "ZID_CONFIG"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the daemon configuration. The zero value of every section is
// replaced by Default before a file is decoded over it.
type Config struct {
	Log       log.Config      `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	QUIC      QUICConfig      `yaml:"quic"`
	Limits    LimitsConfig    `yaml:"limits"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Auth      AuthConfig      `yaml:"auth"`
}

type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WebSocketConfig configures the streaming endpoint mounted on the HTTP server.
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Path            string        `yaml:"path"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
}

type QUICConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// CertFile and KeyFile are both set or both empty; empty means a self-signed certificate.
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
	MaxStreams     int64         `yaml:"max_streams"`
}

type LimitsConfig struct {
	// MaxBatch caps ids per request, at most zid.MaxBatch.
	MaxBatch int `yaml:"max_batch"`
	// MaxFrameBytes caps websocket and QUIC request frames.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

type MetricsConfig struct {
	Shards int `yaml:"shards"`
}

// AuthConfig enables bearer token checks on every id endpoint when Token is set.
type AuthConfig struct {
	Token string `yaml:"token"`
}

func Default() *Config {
	return &Config{
		Log: log.Config{
			Level:              "info",
			Encoding:           "json",
			SamplingInitial:    100,
			SamplingThereafter: 100,
		},
		HTTP: HTTPConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/v1/ws",
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			IdleTimeout:     60 * time.Second,
		},
		QUIC: QUICConfig{
			Enabled:        false,
			Host:           "0.0.0.0",
			Port:           8443,
			MaxIdleTimeout: 60 * time.Second,
			MaxStreams:     1000,
		},
		Limits: LimitsConfig{
			MaxBatch:      zid.MaxBatch,
			MaxFrameBytes: 4 * 1024,
		},
		Metrics: MetricsConfig{
			Shards: 16,
		},
	}
}

// Load reads the yaml file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}

// Decode reads yaml from r over Default and validates the result.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(cfg); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "decode config")
		}
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by path, falling back to EnvPath, then to Default.
func FromEnv(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if !c.HTTP.Enabled && !c.QUIC.Enabled {
		return errors.Wrap(ErrInvalidConfig, "at least one of http or quic must be enabled")
	}
	if c.WebSocket.Enabled && !c.HTTP.Enabled {
		return errors.Wrap(ErrInvalidConfig, "websocket requires http")
	}
	if c.HTTP.Enabled && !validPort(c.HTTP.Port) {
		return errors.Wrapf(ErrInvalidConfig, "http.port %d out of range", c.HTTP.Port)
	}
	if c.QUIC.Enabled && !validPort(c.QUIC.Port) {
		return errors.Wrapf(ErrInvalidConfig, "quic.port %d out of range", c.QUIC.Port)
	}
	if (c.QUIC.CertFile == "") != (c.QUIC.KeyFile == "") {
		return errors.Wrap(ErrInvalidConfig, "quic.cert_file and quic.key_file must be set together")
	}
	if c.Limits.MaxBatch <= 0 || c.Limits.MaxBatch > zid.MaxBatch {
		return errors.Wrapf(ErrInvalidConfig, "limits.max_batch must be in [1, %d], got %d", zid.MaxBatch, c.Limits.MaxBatch)
	}
	if c.Limits.MaxFrameBytes <= 0 {
		return errors.Wrap(ErrInvalidConfig, "limits.max_frame_bytes must be > 0")
	}
	return nil
}

// port 0 lets the kernel pick one
func validPort(p int) bool {
	return p >= 0 && p <= 65535
}
