package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	TransportTCP       = "tcp"
	TransportTLS       = "tls"
	TransportSSH       = "ssh"
	TransportWebSocket = "websocket"
)

type ClientConfig struct {
	Name       string           `toml:"name"`
	LogLevel   string           `toml:"log_level"`
	Connection ConnectionConfig `toml:"connection"`
	TLS        TLSConfig        `toml:"tls"`
	SSH        SSHConfig        `toml:"ssh"`
	Status     StatusConfig     `toml:"status"`
}

type ConnectionConfig struct {
	Transport       string `toml:"transport"`
	Address         string `toml:"address"`
	Session         string `toml:"session"`
	ClientID        uint32 `toml:"client_id"`
	Width           uint32 `toml:"width"`
	Height          uint32 `toml:"height"`
	Quality         uint32 `toml:"quality"`
	DialTimeout     string `toml:"dial_timeout"`
	MaxMessageBytes int    `toml:"max_message_bytes"`
}

type TLSConfig struct {
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type SSHConfig struct {
	Host                        string `toml:"host"`
	Port                        string `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
}

type StatusConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type PeerConfig struct {
	Name         string        `toml:"name"`
	LogLevel     string        `toml:"log_level"`
	Listen       string        `toml:"listen"`
	HTTPAddr     string        `toml:"http_addr"`
	CorsOrigins  []string      `toml:"cors_origins"`
	Width        uint32        `toml:"width"`
	Height       uint32        `toml:"height"`
	Windows      int           `toml:"windows"`
	Codec        string        `toml:"codec"`
	Backlog      uint32        `toml:"backlog"`
	PingInterval string        `toml:"ping_interval"`
	TLS          PeerTLSConfig `toml:"tls"`
}

type PeerTLSConfig struct {
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
	ClientCAFile string `toml:"client_ca_file"`
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	var cfg PeerConfig
	if err := loadToml(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidatePeerConfig(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Name == "" {
		c.Name = "deskctl"
	}
	if c.Connection.Transport == "" {
		c.Connection.Transport = TransportTCP
	}
	c.Connection.Transport = strings.ToLower(strings.TrimSpace(c.Connection.Transport))
	if c.Connection.DialTimeout == "" {
		c.Connection.DialTimeout = "5s"
	}
	if c.Status.Addr == "" {
		c.Status.Addr = "127.0.0.1:7480"
	}
	return c
}

func (c PeerConfig) withDefaults() PeerConfig {
	if c.Name == "" {
		c.Name = "deskpeer"
	}
	if c.Listen == "" {
		c.Listen = ":7400"
	}
	if c.Codec == "" {
		c.Codec = "png"
	}
	if c.PingInterval == "" {
		c.PingInterval = "5s"
	}
	return c
}

func ValidateClientConfig(cfg ClientConfig) error {
	conn := cfg.Connection
	if strings.TrimSpace(conn.Address) == "" {
		return fmt.Errorf("client config missing connection.address")
	}
	switch conn.Transport {
	case TransportTCP, TransportTLS, TransportWebSocket:
	case TransportSSH:
		if strings.TrimSpace(cfg.SSH.Host) == "" || strings.TrimSpace(cfg.SSH.User) == "" {
			return fmt.Errorf("ssh transport requires ssh.host and ssh.user")
		}
		if strings.TrimSpace(cfg.SSH.KeyPath) == "" {
			return fmt.Errorf("ssh transport requires ssh.key_path")
		}
	default:
		return fmt.Errorf("unknown connection.transport: %s", conn.Transport)
	}
	if (conn.Width == 0) != (conn.Height == 0) {
		return fmt.Errorf("connection.width and connection.height must be set together")
	}
	if _, err := parseDuration("connection.dial_timeout", conn.DialTimeout); err != nil {
		return err
	}
	if conn.MaxMessageBytes < 0 {
		return fmt.Errorf("connection.max_message_bytes must not be negative")
	}
	if (strings.TrimSpace(cfg.TLS.CertFile) == "") != (strings.TrimSpace(cfg.TLS.KeyFile) == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}

func ValidatePeerConfig(cfg PeerConfig) error {
	if strings.TrimSpace(cfg.Listen) == "" && strings.TrimSpace(cfg.HTTPAddr) == "" {
		return fmt.Errorf("peer config needs listen or http_addr")
	}
	switch strings.ToLower(cfg.Codec) {
	case "png", "jpeg", "raw":
	default:
		return fmt.Errorf("peer codec must be png, jpeg or raw: %s", cfg.Codec)
	}
	if cfg.Windows < 0 {
		return fmt.Errorf("peer windows must not be negative")
	}
	if _, err := parseDuration("ping_interval", cfg.PingInterval); err != nil {
		return err
	}
	if (strings.TrimSpace(cfg.TLS.CertFile) == "") != (strings.TrimSpace(cfg.TLS.KeyFile) == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
