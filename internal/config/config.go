package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// Config represents the application configuration
type Config struct {
	Keys     KeysConfig     `yaml:"keys"`
	Device   DeviceConfig   `yaml:"device"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Radio    RadioConfig    `yaml:"radio"`
	Group    GroupConfig    `yaml:"group"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	NATS     NATSConfig     `yaml:"nats"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// KeysConfig holds the provisioned root keys, hex encoded.
type KeysConfig struct {
	AppKey  string `yaml:"app_key"`
	HmacKey string `yaml:"hmac_key"`
}

// DeviceConfig represents end-device configuration
type DeviceConfig struct {
	DevEUI       string        `yaml:"dev_eui"`
	AppEUI       string        `yaml:"app_eui"`
	GatewayEUI   string        `yaml:"gateway_eui"`
	KeystorePath string        `yaml:"keystore_path"`
	JoinRetries  int           `yaml:"join_retries"`
	JoinDelay    time.Duration `yaml:"join_delay"`
}

// GatewayConfig represents gateway configuration
type GatewayConfig struct {
	GatewayEUI   string `yaml:"gateway_eui"`
	NetID        string `yaml:"net_id"`
	KeystorePath string `yaml:"keystore_path"`
}

// RadioConfig represents the physical-layer binding and the settle delays
// around radio transitions
type RadioConfig struct {
	UDPBind      string        `yaml:"udp_bind"`
	UDPPeer      string        `yaml:"udp_peer"`
	PreTransmit  time.Duration `yaml:"pre_transmit"`
	PostTransmit time.Duration `yaml:"post_transmit"`
	QuietPeriod  time.Duration `yaml:"quiet_period"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// GroupConfig bounds the store-and-forward buffer
type GroupConfig struct {
	Dir              string `yaml:"dir"`
	MaxFileSize      int    `yaml:"max_file_size"`
	GroupLimit       int    `yaml:"group_limit"`
	GroupPrefixLimit int    `yaml:"group_prefix_limit"`
}

// MQTTConfig represents the northbound broker link
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig represents the optional event-bus publisher
type NATSConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// APIConfig represents the admin REST server
type APIConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Addr              string        `yaml:"addr"`
	JWTSecret         string        `yaml:"jwt_secret"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

// DatabaseConfig represents the optional frame/event log database
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			KeystorePath: "sessions.db",
			JoinRetries:  3,
			JoinDelay:    5 * time.Second,
		},
		Gateway: GatewayConfig{
			NetID:        "012345",
			KeystorePath: "sessions.db",
		},
		Radio: RadioConfig{
			PreTransmit:  5 * time.Millisecond,
			PostTransmit: 10 * time.Millisecond,
			QuietPeriod:  500 * time.Millisecond,
			PollInterval: 2 * time.Millisecond,
		},
		Group: GroupConfig{
			Dir:              "groups",
			MaxFileSize:      1024,
			GroupLimit:       4,
			GroupPrefixLimit: 8,
		},
		API: APIConfig{
			Addr:     ":8080",
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) validate() error {
	if c.Keys.AppKey == "" || c.Keys.HmacKey == "" {
		return fmt.Errorf("keys.app_key and keys.hmac_key are required")
	}
	if _, err := c.AppKey(); err != nil {
		return fmt.Errorf("keys.app_key: %w", err)
	}
	if _, err := c.HmacKey(); err != nil {
		return fmt.Errorf("keys.hmac_key: %w", err)
	}
	if c.Group.GroupLimit < 1 || c.Group.GroupLimit > 32 {
		return fmt.Errorf("group.group_limit must be in [1,32]")
	}
	if c.API.Enabled && c.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required when the api is enabled")
	}
	return nil
}

func parseKey(s string) (lorawan.AES128Key, error) {
	var k lorawan.AES128Key
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return k, err
	}
	return k, nil
}

// AppKey parses the provisioned AppKey.
func (c *Config) AppKey() (lorawan.AES128Key, error) { return parseKey(c.Keys.AppKey) }

// HmacKey parses the network-wide HMAC secret.
func (c *Config) HmacKey() (lorawan.AES128Key, error) { return parseKey(c.Keys.HmacKey) }

// NetID parses the gateway's 3-byte network identifier.
func (c *Config) NetID() ([3]byte, error) {
	var id [3]byte
	b, err := hex.DecodeString(c.Gateway.NetID)
	if err != nil {
		return id, err
	}
	if len(b) != 3 {
		return id, fmt.Errorf("net_id must be 3 bytes")
	}
	copy(id[:], b)
	return id, nil
}
