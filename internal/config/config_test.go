package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, 5, cfg.Workers)
	require.Equal(t, 24*time.Hour, cfg.Token.TTL)
	require.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("AMPERE_STORE", "Postgres")
	t.Setenv("AMPERE_DB", "postgres://ampere@localhost/ampere")
	t.Setenv("KAFKA_URL", "kafka1:9092, kafka2:9092")
	t.Setenv("AMPERE_SIMULATOR_PLOTS", "1,2,42")
	t.Setenv("AMPERE_WORKERS", "0")
	t.Setenv("AMPERE_BANK_TIMEOUT", "2s")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, []uint32{1, 2, 42}, cfg.Simulator.Plots)
	require.Equal(t, 1, cfg.Workers)
	require.Equal(t, 2*time.Second, cfg.Bank.Timeout)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "store:\n  driver: sqlite\n  sqlite_path: /tmp/ampere.db\nhttp:\n  port: \"9000\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/ampere.db", cfg.Store.SQLitePath)
	require.Equal(t, "9000", cfg.HTTPPort)

	// переменная окружения важнее файла
	t.Setenv("AMPERE_PORT", "9100")
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.HTTPPort)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		env   map[string]string
		error string
	}{
		{map[string]string{"AMPERE_STORE": "postgres"}, "env AMPERE_DB is not set"},
		{map[string]string{"AMPERE_STORE": "oracle"}, "unknown store driver"},
		{map[string]string{"AMPERE_SIMULATOR_PLOTS": "x"}, "simulator plot"},
	}
	for _, ts := range tests {
		t.Run(ts.error, func(t *testing.T) {
			for k, v := range ts.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			require.ErrorContains(t, err, ts.error)
		})
	}
	require.EqualError(t, Require("", "NATS_URL"), "env NATS_URL is not set")
	require.NoError(t, Require("nats://localhost", "NATS_URL"))
}
