package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the JSON config file looked up in the config directory.
const FileName = "mockloc.cfg.json"

// SessionConfig holds persistence monitor and scheduler settings
type SessionConfig struct {
	MonitorInterval      time.Duration
	BoostInterval        time.Duration
	InterferenceInterval time.Duration
	DriftThreshold       float64
	StopTimeout          time.Duration
}

// SynthConfig holds sample synthesizer settings
type SynthConfig struct {
	MaxSpeed       float64
	JitterMeters   float64
	BaseAltitude   float64
	AltitudeJitter float64
}

// StorageConfig holds session history and favorites storage settings
type StorageConfig struct {
	Type          string
	SQLitePath    string
	FlushInterval time.Duration
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds pushed-sample stream settings
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// MetricsConfig holds Prometheus and OTel settings
type MetricsConfig struct {
	Listen      string
	OTelEnabled bool
	OTelFile    string
	OTelPeriod  time.Duration
	ServiceName string
}

// MQTTConfig holds status event publisher settings
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// GeocodeConfig holds address lookup settings
type GeocodeConfig struct {
	Provider     string
	BaiduBaseURL string
	BaiduAK      string
	BaiduSK      string
	GoogleAPIKey string
	Timeout      time.Duration
}

// DeviceConfig identifies the device the session runs on
type DeviceConfig struct {
	Vendor string
	Model  string
	SDK    int
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./mocklogs")

	viper.SetDefault("session.monitorInterval", "2s")
	viper.SetDefault("session.boostInterval", "1s")
	viper.SetDefault("session.interferenceInterval", "2s")
	viper.SetDefault("session.driftThreshold", 100.0)
	viper.SetDefault("session.stopTimeout", "1s")

	viper.SetDefault("synth.maxSpeed", 50.0)
	viper.SetDefault("synth.jitterMeters", 0.5)
	viper.SetDefault("synth.baseAltitude", 50.0)
	viper.SetDefault("synth.altitudeJitter", 0.3)

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./mockloc.db")
	viper.SetDefault("storage.flushInterval", "5s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mockloc")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "mockloc")
	viper.SetDefault("influx.bucket", "samples")
	viper.SetDefault("influx.backupPath", "./mockloc_samples.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientId", "mockloc")
	viper.SetDefault("mqtt.topicPrefix", "mockloc")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")

	viper.SetDefault("metrics.listen", "")
	viper.SetDefault("metrics.otel.enabled", false)
	viper.SetDefault("metrics.otel.file", "")
	viper.SetDefault("metrics.otel.period", "30s")
	viper.SetDefault("metrics.otel.serviceName", "mockloc")

	viper.SetDefault("journal.path", "./mockloc.journal")

	viper.SetDefault("geocode.provider", "baidu")
	viper.SetDefault("geocode.baidu.baseUrl", "https://api.map.baidu.com")
	viper.SetDefault("geocode.baidu.ak", "")
	viper.SetDefault("geocode.baidu.sk", "")
	viper.SetDefault("geocode.google.apiKey", "")
	viper.SetDefault("geocode.timeout", "10s")

	viper.SetDefault("privileged.backend", "broker")

	viper.SetDefault("device.vendor", "")
	viper.SetDefault("device.model", "")
	viper.SetDefault("device.sdk", 0)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults registers default values without reading a file.
func LoadDefaults() {
	setDefaults()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSessionConfig returns the session settings.
func GetSessionConfig() SessionConfig {
	return SessionConfig{
		MonitorInterval:      viper.GetDuration("session.monitorInterval"),
		BoostInterval:        viper.GetDuration("session.boostInterval"),
		InterferenceInterval: viper.GetDuration("session.interferenceInterval"),
		DriftThreshold:       viper.GetFloat64("session.driftThreshold"),
		StopTimeout:          viper.GetDuration("session.stopTimeout"),
	}
}

// GetSynthConfig returns the synthesizer settings.
func GetSynthConfig() SynthConfig {
	return SynthConfig{
		MaxSpeed:       viper.GetFloat64("synth.maxSpeed"),
		JitterMeters:   viper.GetFloat64("synth.jitterMeters"),
		BaseAltitude:   viper.GetFloat64("synth.baseAltitude"),
		AltitudeJitter: viper.GetFloat64("synth.altitudeJitter"),
	}
}

// GetStorageConfig returns the storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		SQLitePath:    viper.GetString("storage.sqlite.path"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
	}
}

// GetDatabaseConfig returns the Postgres settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetMetricsConfig returns the metrics settings.
func GetMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Listen:      viper.GetString("metrics.listen"),
		OTelEnabled: viper.GetBool("metrics.otel.enabled"),
		OTelFile:    viper.GetString("metrics.otel.file"),
		OTelPeriod:  viper.GetDuration("metrics.otel.period"),
		ServiceName: viper.GetString("metrics.otel.serviceName"),
	}
}

// GetMQTTConfig returns the MQTT publisher settings.
func GetMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:     viper.GetBool("mqtt.enabled"),
		Broker:      viper.GetString("mqtt.broker"),
		ClientID:    viper.GetString("mqtt.clientId"),
		TopicPrefix: viper.GetString("mqtt.topicPrefix"),
		Username:    viper.GetString("mqtt.username"),
		Password:    viper.GetString("mqtt.password"),
	}
}

// GetGeocodeConfig returns the geocoder settings.
func GetGeocodeConfig() GeocodeConfig {
	return GeocodeConfig{
		Provider:     viper.GetString("geocode.provider"),
		BaiduBaseURL: viper.GetString("geocode.baidu.baseUrl"),
		BaiduAK:      viper.GetString("geocode.baidu.ak"),
		BaiduSK:      viper.GetString("geocode.baidu.sk"),
		GoogleAPIKey: viper.GetString("geocode.google.apiKey"),
		Timeout:      viper.GetDuration("geocode.timeout"),
	}
}

// GetDeviceConfig returns the configured device identity.
func GetDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Vendor: viper.GetString("device.vendor"),
		Model:  viper.GetString("device.model"),
		SDK:    viper.GetInt("device.sdk"),
	}
}
