package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: market-streamer
port: 8000
log_level: DEBUG
api:
  client_id: from-file
  token_ttl_hours: 12
streaming:
  historical_grace: 3s
  keepalive_interval: 20s
  data_channel: 3
storage:
  enabled: true
  db_type: sqlite
  db_path: bars.db
`

func TestParseAppliesDefaultsAndDurations(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Streaming.HistoricalGrace)
	assert.Equal(t, 20*time.Second, cfg.Streaming.KeepaliveInterval)
	assert.Equal(t, 15*time.Second, cfg.Streaming.NegotiationTimeout)
	assert.Equal(t, 3, cfg.Streaming.DataChannel)
	assert.Equal(t, "0.1-DXF-JS/0.3.0", cfg.Streaming.ProtocolVersion)
	assert.Equal(t, 12, cfg.API.TokenTTLHours)
	assert.Equal(t, 50051, cfg.GrpcPort)
	assert.Equal(t, SandboxURL, cfg.BaseURL())
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("TASTY_CLIENT_ID", "from-env")
	t.Setenv("TASTY_USE_PRODUCTION", "true")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.API.ClientID)
	assert.Equal(t, ProductionURL, cfg.BaseURL())
}

func TestValidateRejectsControlChannel(t *testing.T) {
	cfg := Default()
	cfg.Streaming.DataChannel = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDatabase(t *testing.T) {
	cfg := Default()
	cfg.Storage.DBType = "mongo"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Streaming, loaded.Streaming)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
