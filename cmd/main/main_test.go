package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"market-streamer/src/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "bars", "quotes", "token", "snapshot", "earnings", "status", "config"}, names)

	bars, _, err := root.Find([]string{"bars"})
	require.NoError(t, err)
	assert.Equal(t, "5m", bars.Flags().Lookup("interval").DefValue)
	assert.Equal(t, "24h0m0s", bars.Flags().Lookup("lookback").DefValue)
}

func TestBarsRejectsUnknownInterval(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"bars", "AAPL", "--interval", "7m"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported interval")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "market-streamer", cfg.Name)
	assert.False(t, cfg.Storage.Enabled)
}

func TestConfigInitWritesLoadableDefaults(t *testing.T) {
	t.Setenv("TASTY_REFRESH_TOKEN", "secret-refresh")
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCommand()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init", path})
	require.NoError(t, root.Execute())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-refresh")

	cfg, err := config.NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Streaming, cfg.Streaming)
	assert.Equal(t, "secret-refresh", cfg.API.RefreshToken)

	root = newRootCommand()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init", path})
	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
