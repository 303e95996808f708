package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zid/pkg/zid"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, zid.MaxBatch, cfg.Limits.MaxBatch)
	assert.True(t, cfg.HTTP.Enabled)
	assert.False(t, cfg.QUIC.Enabled)
}

func TestDecode_OverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
log:
  level: debug
http:
  port: 9090
  read_timeout: 2s
quic:
  enabled: true
  port: 9443
limits:
  max_batch: 1000
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Encoding)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.WriteTimeout)
	assert.True(t, cfg.QUIC.Enabled)
	assert.Equal(t, 9443, cfg.QUIC.Port)
	assert.Equal(t, 1000, cfg.Limits.MaxBatch)
	assert.Equal(t, "/v1/ws", cfg.WebSocket.Path)
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "bogus: 1"},
		{"batch above id space", "limits: {max_batch: 65537}"},
		{"zero batch", "limits: {max_batch: 0}"},
		{"bad level", "log: {level: loud}"},
		{"no listeners", "http: {enabled: false}\nwebsocket: {enabled: false}"},
		{"websocket without http", "http: {enabled: false}\nquic: {enabled: true}"},
		{"cert without key", "quic: {cert_file: /tmp/cert.pem}"},
		{"port out of range", "http: {port: 70000}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDecode_ValidationErrorsMatchSentinel(t *testing.T) {
	_, err := Decode(strings.NewReader("limits: {max_batch: -1}"))
	require.Error(t, err)
	assert.Equal(t, ErrInvalidConfig, errors.Cause(err))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.HTTP.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 7070\n"), 0o600))

	t.Setenv(EnvPath, "")
	cfg, err := FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	t.Setenv(EnvPath, path)
	cfg, err = FromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
}
