// Package config loads sentinel's process configuration (Viper + OS
// environment) and the two auxiliary YAML documents that drive control
// policy and device resolution (policy.yaml, devices.yaml).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime knob the engine and its collaborators need,
// populated from Viper (file + environment). Mirrors the env-var surface
// named in the spec's "Environment variables" section.
type Config struct {
	Site string

	MQTTURL  string
	MQTTUser string
	MQTTPass string

	DBPath      string
	PolicyPath  string
	DevicesPath string

	Mode        string
	AutoEnabled bool

	DiscoverySubnet          string
	DiscoveryTopic           string
	DiscoveryTimeoutS        int
	DiscoveryIntervalHours   int

	HTTPPort int
}

// LoadViper builds a Viper instance bound to OS environment variables and,
// if provided, a config file. Environment variables take precedence, the
// same way viper.AutomaticEnv layers over file values in the teacher.
func LoadViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("site", "dc1")
	v.SetDefault("db_path", "sentinel.db")
	v.SetDefault("policy_path", "policy.yaml")
	v.SetDefault("devices_path", "devices.yaml")
	v.SetDefault("mode", "propose")
	v.SetDefault("auto_enabled", false)
	v.SetDefault("discovery_subnet", "")
	v.SetDefault("discovery_topic", "ctrl/discover/start")
	v.SetDefault("discovery_timeout_s", 180)
	v.SetDefault("discovery_interval_hours", 6)
	v.SetDefault("http_port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Load reads Config fields from Viper, honoring the exact environment
// variable names listed in the spec (MQTT_URL, DB_PATH, POLICY_PATH, ...)
// on top of whatever AutomaticEnv/SetEnvKeyReplacer already bound.
func Load(v *viper.Viper) Config {
	return Config{
		Site:                   firstNonEmpty(v.GetString("MQTT_SITE"), v.GetString("site")),
		MQTTURL:                firstNonEmpty(v.GetString("MQTT_URL"), v.GetString("mqtt_url")),
		MQTTUser:               firstNonEmpty(v.GetString("MQTT_USER"), v.GetString("mqtt_user")),
		MQTTPass:               firstNonEmpty(v.GetString("MQTT_PASS"), v.GetString("mqtt_pass")),
		DBPath:                 firstNonEmpty(v.GetString("DB_PATH"), v.GetString("db_path")),
		PolicyPath:             firstNonEmpty(v.GetString("POLICY_PATH"), v.GetString("policy_path")),
		DevicesPath:            firstNonEmpty(v.GetString("DEVICES_PATH"), v.GetString("devices_path")),
		Mode:                   firstNonEmpty(v.GetString("MODE"), v.GetString("mode")),
		AutoEnabled:            v.GetBool("auto_enabled"),
		DiscoverySubnet:        firstNonEmpty(v.GetString("DISCOVERY_SUBNET"), v.GetString("discovery_subnet")),
		DiscoveryTopic:         firstNonEmpty(v.GetString("DISCOVERY_TOPIC"), v.GetString("discovery_topic")),
		DiscoveryTimeoutS:      firstPositive(v.GetInt("DISCOVERY_TIMEOUT_S"), v.GetInt("discovery_timeout_s")),
		DiscoveryIntervalHours: firstPositive(v.GetInt("DISCOVERY_INTERVAL_HOURS"), v.GetInt("discovery_interval_hours")),
		HTTPPort:               firstPositive(v.GetInt("PORT"), v.GetInt("http_port")),
	}
}

// DiscoveryTimeout is DiscoveryTimeoutS as a time.Duration.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.DiscoveryTimeoutS) * time.Second
}

// DiscoveryInterval is DiscoveryIntervalHours as a time.Duration.
func (c Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.DiscoveryIntervalHours) * time.Hour
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
