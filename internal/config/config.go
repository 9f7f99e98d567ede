// Package config loads sdlink settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kabili207/sdlink/core/codec"
	"github.com/kabili207/sdlink/transport"
	"github.com/kabili207/sdlink/transport/mqtt"
	"github.com/kabili207/sdlink/transport/serial"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid config")

// Config is the complete sdlink configuration.
type Config struct {
	LogLevel slog.Level
	// MetricsAddr, if set, is the listen address of the /metrics endpoint.
	MetricsAddr string
	Line        Line
	Serial      Serial
	MQTT        MQTT
}

// Line holds the framing settings shared by every transport.
type Line struct {
	// MaxPayload is the largest payload, or codec.NoLimit.
	MaxPayload int
	// BufferSize is the receive buffer size. Zero derives it from MaxPayload.
	BufferSize int
}

// Serial holds serial port settings.
type Serial struct {
	Port         string
	BaudRate     int
	PollInterval time.Duration
}

// MQTT holds broker and topic settings.
type MQTT struct {
	Broker       string
	Username     string
	Password     string
	UseTLS       bool
	ClientID     string
	TopicPrefix  string
	LocalID      string
	PeerID       string
	PollInterval time.Duration
}

type fileConfig struct {
	LogLevel    string     `toml:"log_level"`
	MetricsAddr string     `toml:"metrics_addr"`
	Line        fileLine   `toml:"line"`
	Serial      fileSerial `toml:"serial"`
	MQTT        fileMQTT   `toml:"mqtt"`
}

type fileLine struct {
	MaxPayload int `toml:"max_payload"`
	BufferSize int `toml:"buffer_size"`
}

type fileSerial struct {
	Port         string `toml:"port"`
	BaudRate     int    `toml:"baud_rate"`
	PollInterval string `toml:"poll_interval"`
}

type fileMQTT struct {
	Broker       string `toml:"broker"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	UseTLS       bool   `toml:"use_tls"`
	ClientID     string `toml:"client_id"`
	TopicPrefix  string `toml:"topic_prefix"`
	LocalID      string `toml:"local_id"`
	PeerID       string `toml:"peer_id"`
	PollInterval string `toml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: slog.LevelInfo,
		Line: Line{
			MaxPayload: codec.DefaultMaxPayload,
		},
		Serial: Serial{
			BaudRate:     serial.DefaultBaudRate,
			PollInterval: transport.DefaultPollInterval,
		},
		MQTT: MQTT{
			TopicPrefix:  mqtt.DefaultTopicPrefix,
			PollInterval: transport.DefaultPollInterval,
		},
	}
}

// Load reads path over Default. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("line", "max_payload") {
		cfg.Line.MaxPayload = raw.Line.MaxPayload
	}
	if meta.IsDefined("line", "buffer_size") {
		cfg.Line.BufferSize = raw.Line.BufferSize
	}

	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud_rate") {
		cfg.Serial.BaudRate = raw.Serial.BaudRate
	}
	if meta.IsDefined("serial", "poll_interval") {
		d, err := parseDuration(raw.Serial.PollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse serial.poll_interval: %w", err)
		}
		cfg.Serial.PollInterval = d
	}

	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "username") {
		cfg.MQTT.Username = raw.MQTT.Username
	}
	if meta.IsDefined("mqtt", "password") {
		cfg.MQTT.Password = raw.MQTT.Password
	}
	if meta.IsDefined("mqtt", "use_tls") {
		cfg.MQTT.UseTLS = raw.MQTT.UseTLS
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = strings.TrimSpace(raw.MQTT.ClientID)
	}
	if meta.IsDefined("mqtt", "topic_prefix") {
		cfg.MQTT.TopicPrefix = strings.Trim(strings.TrimSpace(raw.MQTT.TopicPrefix), "/")
	}
	if meta.IsDefined("mqtt", "local_id") {
		cfg.MQTT.LocalID = strings.TrimSpace(raw.MQTT.LocalID)
	}
	if meta.IsDefined("mqtt", "peer_id") {
		cfg.MQTT.PeerID = strings.TrimSpace(raw.MQTT.PeerID)
	}
	if meta.IsDefined("mqtt", "poll_interval") {
		d, err := parseDuration(raw.MQTT.PollInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse mqtt.poll_interval: %w", err)
		}
		cfg.MQTT.PollInterval = d
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(s))
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Line.MaxPayload == codec.NoLimit:
		if c.Line.BufferSize <= 0 {
			return fmt.Errorf("%w: line.buffer_size is required when max_payload is unlimited", ErrInvalid)
		}
	case c.Line.MaxPayload <= 0:
		return fmt.Errorf("%w: line.max_payload %d", ErrInvalid, c.Line.MaxPayload)
	}
	if c.Line.BufferSize < 0 || c.Line.BufferSize == 1 {
		return fmt.Errorf("%w: line.buffer_size %d", ErrInvalid, c.Line.BufferSize)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("%w: serial.baud_rate %d", ErrInvalid, c.Serial.BaudRate)
	}
	if c.Serial.PollInterval <= 0 {
		return fmt.Errorf("%w: serial.poll_interval %v", ErrInvalid, c.Serial.PollInterval)
	}
	if c.MQTT.PollInterval <= 0 {
		return fmt.Errorf("%w: mqtt.poll_interval %v", ErrInvalid, c.MQTT.PollInterval)
	}
	if c.MQTT.LocalID != "" && c.MQTT.LocalID == c.MQTT.PeerID {
		return fmt.Errorf("%w: mqtt.local_id and peer_id must differ", ErrInvalid)
	}
	return nil
}

// Limits returns the payload limits for a line.
func (c Config) Limits() codec.Limits {
	return codec.Limits{MaxPayload: c.Line.MaxPayload}
}

// SerialConfig returns the serial transport configuration.
func (c Config) SerialConfig(logger *slog.Logger) serial.Config {
	return serial.Config{
		Port:         c.Serial.Port,
		BaudRate:     c.Serial.BaudRate,
		Limits:       c.Limits(),
		BufferSize:   c.Line.BufferSize,
		PollInterval: c.Serial.PollInterval,
		Logger:       logger,
	}
}

// MQTTConfig returns the MQTT transport configuration.
func (c Config) MQTTConfig(logger *slog.Logger) mqtt.Config {
	return mqtt.Config{
		Broker:       c.MQTT.Broker,
		Username:     c.MQTT.Username,
		Password:     c.MQTT.Password,
		UseTLS:       c.MQTT.UseTLS,
		ClientID:     c.MQTT.ClientID,
		TopicPrefix:  c.MQTT.TopicPrefix,
		LocalID:      c.MQTT.LocalID,
		PeerID:       c.MQTT.PeerID,
		Limits:       c.Limits(),
		BufferSize:   c.Line.BufferSize,
		PollInterval: c.MQTT.PollInterval,
		Logger:       logger,
	}
}
