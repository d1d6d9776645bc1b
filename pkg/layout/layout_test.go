package layout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "layout.yaml", "layout.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "dir", name)
			cfg := Config{
				Host: "broker.local",
				Port: 8883,
				Subscriptions: []Subscription{
					{Topic: "sensor/temp", Type: live.KindGauge},
					{Topic: "a/#", Type: live.KindText},
					{Topic: "power", Type: live.KindSparkline, Transform: "json.watts"},
				},
			}

			require.NoError(t, Save(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestSave_JSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Config{
		Host:          "localhost",
		Port:          1883,
		Subscriptions: []Subscription{{Topic: "a/b", Type: live.KindText}},
	}

	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"localhost","port":1883,"subscriptions":[{"topic":"a/b","type":"text"}]}`, string(data))
	assert.NotContains(t, string(data), "transform")
}

func TestSave_EmptyConfigWritesEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(path, Config{Host: "h", Port: 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"subscriptions": []`)
}

func TestSave_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := Save(filepath.Join(blocker, "config.json"), Default())
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Malformed(t *testing.T) {
	tests := map[string]string{
		"config.json": `{"host": "x", "port": `,
		"wrong.json":  `{"host": "x", "port": "not a number"}`,
		"bad.yaml":    "host: [unterminated",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			cfg, err := Load(path)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestLoad_Normalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "host": "",
  "port": 70000,
  "subscriptions": [
    {"topic": "a", "type": "gauge"},
    {"topic": "", "type": "text"},
    {"topic": "b", "type": "pie-chart"},
    {"topic": "c"},
    {"topic": "a", "type": "sparkline"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, []Subscription{
		{Topic: "a", Type: live.KindGauge},
		{Topic: "b", Type: live.KindText},
		{Topic: "c", Type: live.KindText},
	}, cfg.Subscriptions)
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	assert.Equal(t, "config.json", filepath.Base(path))
	assert.Equal(t, "mqtt-dashboard", filepath.Base(filepath.Dir(path)))
}
