// Package config reads broker settings from the environment, after loading an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/lobbyd/internal/launcher"
)

const (
	EnvBrokerAddr     = "LOBBYD_BROKER_ADDR"
	EnvAdminAddr      = "LOBBYD_ADMIN_ADDR"
	EnvMinPort        = "LOBBYD_MIN_PORT"
	EnvMaxPort        = "LOBBYD_MAX_PORT"
	EnvGameServer     = "LOBBYD_GAME_SERVER"
	EnvGameServerArgs = "LOBBYD_GAME_SERVER_ARGS"
	EnvStartReset     = "LOBBYD_START_RESET"
	EnvLogLevel       = "LOBBYD_LOG_LEVEL"
	EnvLogFormat      = "LOBBYD_LOG_FORMAT"
	EnvDatabaseURL    = "LOBBYD_DATABASE_URL"
)

type Config struct {
	BrokerAddr string
	AdminAddr  string

	MinPort int
	MaxPort int

	GameServer     string
	GameServerArgs []string
	StartReset     time.Duration

	LogLevel  string
	LogFormat string

	// DatabaseURL enables the Postgres match history when set.
	DatabaseURL string
}

func Default() Config {
	return Config{
		BrokerAddr:     ":12939",
		AdminAddr:      ":8080",
		MinPort:        12940,
		MaxPort:        22940,
		GameServer:     "./gameserver",
		GameServerArgs: append([]string(nil), launcher.DefaultArgs...),
		StartReset:     time.Second,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load applies the given .env files (".env" if none) and then the process
// environment on top of Default. Missing .env files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	var err error
	cfg.BrokerAddr = getEnv(EnvBrokerAddr, cfg.BrokerAddr)
	cfg.AdminAddr = getEnv(EnvAdminAddr, cfg.AdminAddr)
	cfg.MinPort = getEnvInt(EnvMinPort, cfg.MinPort, &err)
	cfg.MaxPort = getEnvInt(EnvMaxPort, cfg.MaxPort, &err)
	cfg.GameServer = getEnv(EnvGameServer, cfg.GameServer)
	if v := getEnv(EnvGameServerArgs, ""); v != "" {
		cfg.GameServerArgs = strings.Fields(v)
	}
	cfg.StartReset = getEnvDuration(EnvStartReset, cfg.StartReset, &err)
	cfg.LogLevel = getEnv(EnvLogLevel, cfg.LogLevel)
	cfg.LogFormat = getEnv(EnvLogFormat, cfg.LogFormat)
	cfg.DatabaseURL = getEnv(EnvDatabaseURL, cfg.DatabaseURL)
	return cfg, err
}

func (c Config) Validate() error {
	var err error
	if c.MinPort <= 0 {
		err = multierr.Append(err, fmt.Errorf("min port %d must be positive", c.MinPort))
	}
	if c.MaxPort <= c.MinPort {
		err = multierr.Append(err, fmt.Errorf("max port %d must exceed min port %d", c.MaxPort, c.MinPort))
	}
	if c.MaxPort > 65536 {
		err = multierr.Append(err, fmt.Errorf("max port %d out of range", c.MaxPort))
	}
	if c.GameServer == "" {
		err = multierr.Append(err, errors.New("game server path is empty"))
	}
	if c.StartReset <= 0 {
		err = multierr.Append(err, fmt.Errorf("start reset %s must be positive", c.StartReset))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log level: %w", lerr))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		err = multierr.Append(err, fmt.Errorf("log format %q must be json or console", c.LogFormat))
	}
	return err
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errp *error) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errp = multierr.Append(*errp, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration, errp *error) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errp = multierr.Append(*errp, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
