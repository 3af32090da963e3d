package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().App.Port, cfg.App.Port)
	assert.Equal(t, "order-placed-v1", cfg.Infra.Kafka.OrderPlacedTopic)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9000
  storeDriver: memory
  processingTimeout: 3s
infra:
  mysql:
    addr: db:3306
    lockWaitTimeout: 2s
  kafka:
    brokers: k1:9092,k2:9092
`)
	t.Setenv("KAFKA_BROKERS", "k3:9092")
	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.App.Port)
	assert.Equal(t, "memory", cfg.App.StoreDriver)
	assert.Equal(t, 3*time.Second, cfg.App.ProcessingTimeout)
	assert.Equal(t, "db:3306", cfg.Infra.MySQL.Addr)
	assert.Equal(t, 2*time.Second, cfg.Infra.MySQL.LockWaitTimeout)
	assert.Equal(t, "k3:9092", cfg.Infra.Kafka.Brokers)
	// 文件中未出现的字段保留默认值
	assert.Equal(t, "storefront", cfg.Infra.MySQL.Database)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"driver":      "app:\n  storeDriver: postgres\n",
		"lock wait":   "infra:\n  mysql:\n    lockWaitTimeout: 500ms\n",
		"sampleRatio": "infra:\n  jaeger:\n    sampleRatio: 2\n",
		"yaml":        "app: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInit_SetsCurrentConfig(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := Init("")
	require.NoError(t, err)
	assert.Same(t, cfg, GetCurrentConfig())
	assert.Equal(t, "memory", GetCurrentConfig().App.StoreDriver)
}
