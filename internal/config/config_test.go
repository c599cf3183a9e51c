package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridgeOptions mirrors the shape of main's Options.
type bridgeOptions struct {
	Config string

	ServiceAddress string        `toml:"service.address" env:"SERVICE_ADDRESS"`
	ServicePort    int           `toml:"service.port" env:"SERVICE_PORT"`
	SampleRate     string        `toml:"bridge.sample_rate" env:"BRIDGE_SAMPLE_RATE"`
	Rate           float64       `toml:"bridge.rate" env:"BRIDGE_RATE"`
	IdleYield      time.Duration `toml:"bridge.idle_yield" env:"BRIDGE_IDLE_YIELD"`
	Autostart      bool          `toml:"bridge.autostart" env:"BRIDGE_AUTOSTART"`
	Devices        []string      `toml:"bridge.devices" env:"BRIDGE_DEVICES"`
	NATSEmbedded   bool          `toml:"nats.embedded" env:"NATS_EMBEDDED"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
[service]
address = "10.0.0.5"
port = 9001

[bridge]
sample_rate = 120
rate = 60.5
idle_yield = "2ms"
autostart = true
devices = ["0", "00:06:f7:c9:a1:fb"]
`)
	opts := &bridgeOptions{Config: path}
	require.NoError(t, LoadConfig(opts, nil))

	assert.Equal(t, "10.0.0.5", opts.ServiceAddress)
	assert.Equal(t, 9001, opts.ServicePort)
	assert.Equal(t, "120", opts.SampleRate, "numbers load into string options")
	assert.InDelta(t, 60.5, opts.Rate, 1e-9)
	assert.Equal(t, 2*time.Millisecond, opts.IdleYield)
	assert.True(t, opts.Autostart)
	assert.Equal(t, []string{"0", "00:06:f7:c9:a1:fb"}, opts.Devices)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PSMOVE_SERVICE_ADDRESS", "psmove.local")
	t.Setenv("PSMOVE_SERVICE_PORT", "9100")
	t.Setenv("PSMOVE_BRIDGE_IDLE_YIELD", "1s")
	t.Setenv("PSMOVE_BRIDGE_DEVICES", " 0 , 1 ")
	t.Setenv("PSMOVE_BRIDGE_AUTOSTART", "true")

	opts := &bridgeOptions{}
	require.NoError(t, LoadConfig(opts, nil))

	assert.Equal(t, "psmove.local", opts.ServiceAddress)
	assert.Equal(t, 9100, opts.ServicePort)
	assert.Equal(t, time.Second, opts.IdleYield)
	assert.Equal(t, []string{"0", "1"}, opts.Devices)
	assert.True(t, opts.Autostart)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, `
[service]
address = "from-file"
port = 9001

[nats]
embedded = false
`)
	t.Setenv("PSMOVE_SERVICE_ADDRESS", "from-env")
	t.Setenv("PSMOVE_NATS_EMBEDDED", "true")

	opts := &bridgeOptions{Config: path, ServicePort: 9000}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("service-address", "", "")
	cmd.Flags().Bool("nats-embedded", false, "")
	require.NoError(t, cmd.Flags().Set("nats-embedded", "false"))

	require.NoError(t, LoadConfig(opts, cmd))

	assert.Equal(t, "from-env", opts.ServiceAddress, "env beats file")
	assert.Equal(t, 9001, opts.ServicePort, "file beats default")
	assert.False(t, opts.NATSEmbedded, "changed flag beats env")
}

func TestLoadConfigReportsBadValues(t *testing.T) {
	path := writeConfig(t, `
[service]
port = "not a number"

[bridge]
idle_yield = "soon"
`)
	t.Setenv("PSMOVE_BRIDGE_RATE", "fast")

	err := LoadConfig(&bridgeOptions{Config: path}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.port")
	assert.Contains(t, err.Error(), "bridge.idle_yield")
	assert.Contains(t, err.Error(), "PSMOVE_BRIDGE_RATE")
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &bridgeOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), ServicePort: 9000}
	require.NoError(t, LoadConfig(opts, nil))
	assert.Equal(t, 9000, opts.ServicePort)
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeConfig(t, "[service\nport = ")
	assert.ErrorContains(t, LoadConfig(&bridgeOptions{Config: path}, nil), "failed to parse TOML config")
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"logging": map[string]any{"level": "debug"},
		"bridge":  map[string]any{"acquire": map[string]any{"policy": "all"}},
		"root":    "value",
	}

	assert.Equal(t, "value", getNestedValue(data, "root"))
	assert.Equal(t, "debug", getNestedValue(data, "logging.level"))
	assert.Equal(t, "all", getNestedValue(data, "bridge.acquire.policy"))
	assert.Nil(t, getNestedValue(data, "logging.format"))
	assert.Nil(t, getNestedValue(data, "root.child"))
	assert.Nil(t, getNestedValue(data, "missing"))
}

func TestSetFieldValueDurations(t *testing.T) {
	s := &struct{ Timeout time.Duration }{}
	field := reflect.ValueOf(s).Elem().Field(0)

	require.NoError(t, setFieldValue(field, int64(1500)))
	assert.Equal(t, 1500*time.Millisecond, s.Timeout, "bare integers are milliseconds")

	require.NoError(t, setFieldValue(field, "3s"))
	assert.Equal(t, 3*time.Second, s.Timeout)

	assert.Error(t, setFieldValue(field, true))
}

func TestSetFieldValueRejectsMixedLists(t *testing.T) {
	s := &struct{ Devices []string }{}
	err := setFieldValue(reflect.ValueOf(s).Elem().Field(0), []any{"0", int64(1)})
	assert.Error(t, err)
	assert.Nil(t, s.Devices)
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"LoggingLevel":      "logging-level",
		"NATSEmbedded":      "nats-embedded",
		"LoggingAPI":        "logging-api",
		"FeaturesLEDStatus": "features-led-status",
		"SimRateHz":         "sim-rate-hz",
	}
	for in, want := range tests {
		assert.Equal(t, want, fieldNameToFlag(in), in)
	}
}

func TestReadLoggingConfig(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
bridge = "debug"
outlet = "error"
`)
	cfg, err := ReadLoggingConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, map[string]string{"bridge": "debug", "outlet": "error"}, cfg.Modules)

	cfg, err = ReadLoggingConfig("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Level)

	_, err = ReadLoggingConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
	assert.Equal(t, "info", LoadLoggingConfig(filepath.Join(t.TempDir(), "absent.toml")).Level)
}
