// Package config loads and validates the YAML configuration file
// describing node identity, channel key material, modulation
// parameters, and storage/transport endpoints (A1), using a nested
// Config struct plus a Load function.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Node struct {
		ID              uint32 `yaml:"id"`
		ChannelKey      string `yaml:"channel_key"`
		ChannelSelector uint8  `yaml:"channel_selector"`
	} `yaml:"node"`

	Radio struct {
		FrequencyHz     uint32 `yaml:"frequency"`
		SpreadingFactor uint8  `yaml:"spreading_factor"`
		BandwidthHz     uint32 `yaml:"bandwidth"`
		CodingRate      uint8  `yaml:"coding_rate"`
		Preamble        uint16 `yaml:"preamble"`
		SyncWord        uint8  `yaml:"syncword"`
		TxPowerDbm      int8   `yaml:"tx_power"`
		RXBoost         bool   `yaml:"rx_boost"`
	} `yaml:"radio"`

	Transport struct {
		Mode             string `yaml:"mode"` // "loopback" | "concentrator"
		ConcentratorAddr string `yaml:"concentrator_addr"`
		EventAddr        string `yaml:"event_addr"`
	} `yaml:"transport"`

	Storage struct {
		AuditLogPath string `yaml:"audit_log_path"`
	} `yaml:"storage"`

	Stats struct {
		GRPCAddr string `yaml:"grpc_addr"`
		WSAddr   string `yaml:"ws_addr"`
	} `yaml:"stats"`
}

// Load reads and unmarshals the YAML configuration at path, then
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields required for the core to start safely:
// the node ID, if explicitly set, must not be one of the reserved
// source addresses (§3); the channel key, once hex-decoded, must be a
// supported length; transport.mode must be a known mode, and the
// concentrator mode needs transport.concentrator_addr.
func (c *Config) Validate() error {
	if c.Node.ID == 0xFFFFFFFF {
		return fmt.Errorf("config: node.id must not be the broadcast sentinel")
	}

	key, err := c.ChannelKeyBytes()
	if err != nil {
		return err
	}
	switch len(key) {
	case 1, 16, 32:
	default:
		return fmt.Errorf("config: channel_key must decode to 1, 16, or 32 bytes, got %d", len(key))
	}

	switch c.Transport.Mode {
	case "", "loopback", "concentrator":
	default:
		return fmt.Errorf("config: transport.mode must be 'loopback' or 'concentrator', got %q", c.Transport.Mode)
	}

	if c.Transport.Mode == "concentrator" && c.Transport.ConcentratorAddr == "" {
		return fmt.Errorf("config: transport.concentrator_addr is required when transport.mode is 'concentrator'")
	}

	return nil
}

// ChannelKeyBytes hex-decodes the configured channel key material.
func (c *Config) ChannelKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.Node.ChannelKey)
	if err != nil {
		return nil, fmt.Errorf("config: invalid channel_key hex: %w", err)
	}
	return key, nil
}
