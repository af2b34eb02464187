package bus

import "time"

// Config configures the MQTT connection used as sentinel's external bus
// (spec §6 "Bus (authoritative contract)").
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig mirrors the connection defaults the teacher's MQTT
// publisher module uses (internal/mqtt/config.go): modest timeouts, QoS 1
// to match the spec's "QoS 1" requirement.
func DefaultConfig() Config {
	return Config{
		ClientID:       "sentinel",
		QoS:            1,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}
