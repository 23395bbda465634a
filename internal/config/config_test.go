package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"session": { "monitorInterval": "500ms", "driftThreshold": 75 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))

	sc := GetSessionConfig()
	assert.Equal(t, 500*time.Millisecond, sc.MonitorInterval)
	assert.Equal(t, 75.0, sc.DriftThreshold)
	assert.Equal(t, time.Second, sc.BoostInterval)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./mocklogs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "mockloc", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "./mockloc.journal", viper.GetString("journal.path"))
	assert.Equal(t, "broker", viper.GetString("privileged.backend"))

	sc := GetSessionConfig()
	assert.Equal(t, 2*time.Second, sc.MonitorInterval)
	assert.Equal(t, 2*time.Second, sc.InterferenceInterval)
	assert.Equal(t, time.Second, sc.StopTimeout)
	assert.Equal(t, 100.0, sc.DriftThreshold)

	syn := GetSynthConfig()
	assert.Equal(t, 50.0, syn.MaxSpeed)
	assert.Equal(t, 0.5, syn.JitterMeters)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// defaults are still registered
	assert.Equal(t, "info", viper.GetString("logLevel"))
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "postgres",
			"sqlite": { "path": "/tmp/other.db" },
			"flushInterval": "10s"
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "postgres", sc.Type)
	assert.Equal(t, "/tmp/other.db", sc.SQLitePath)
	assert.Equal(t, 10*time.Second, sc.FlushInterval)
}

func TestGetGeocodeConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	LoadDefaults()

	gc := GetGeocodeConfig()
	assert.Equal(t, "baidu", gc.Provider)
	assert.Equal(t, "https://api.map.baidu.com", gc.BaiduBaseURL)
	assert.Equal(t, 10*time.Second, gc.Timeout)
}

func TestGetMQTTConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"mqtt": { "enabled": true, "broker": "tcp://broker:1883", "topicPrefix": "lab/mockloc" }
	}`)
	require.NoError(t, Load(dir))

	mc := GetMQTTConfig()
	assert.True(t, mc.Enabled)
	assert.Equal(t, "tcp://broker:1883", mc.Broker)
	assert.Equal(t, "lab/mockloc", mc.TopicPrefix)
	assert.Equal(t, "mockloc", mc.ClientID)
}

func TestGetDeviceConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{ "device": { "vendor": "Xiaomi", "model": "M2012K11AC", "sdk": 33 } }`)
	require.NoError(t, Load(dir))

	dc := GetDeviceConfig()
	assert.Equal(t, "Xiaomi", dc.Vendor)
	assert.Equal(t, "M2012K11AC", dc.Model)
	assert.Equal(t, 33, dc.SDK)
}
