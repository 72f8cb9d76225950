package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobbyd/internal/config"
)

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv(config.EnvMinPort, "20000")
	t.Setenv(config.EnvMaxPort, "20100")
	t.Setenv(config.EnvLogLevel, "warn")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--max-port", "20050",
		"--broker-addr", "127.0.0.1:9999",
		"--start-reset", "2s",
	}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 20000, cfg.MinPort)
	assert.Equal(t, 20050, cfg.MaxPort)
	assert.Equal(t, "127.0.0.1:9999", cfg.BrokerAddr)
	assert.Equal(t, 2*time.Second, cfg.StartReset)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--min-port", "500",
		"--max-port", "400",
	}))
	_, err := loadConfig(cmd)
	assert.ErrorContains(t, err, "must exceed min port")
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.BrokerAddr = "127.0.0.1:0"
	cfg.AdminAddr = "127.0.0.1:0"
	cfg.GameServer = "true"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zaptest.NewLogger(t)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
