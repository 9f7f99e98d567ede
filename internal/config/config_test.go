package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kabili207/sdlink/core/codec"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sdlink.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
metrics_addr = ":9464"

[line]
max_payload = 64
buffer_size = 512

[serial]
port = " /dev/ttyUSB0 "
baud_rate = 9600
poll_interval = "25ms"

[mqtt]
broker = "tcp://broker.example.com:1883"
username = "user"
password = "pass"
use_tls = true
client_id = "node-a"
topic_prefix = "/links/"
local_id = "a"
peer_id = "b"
poll_interval = "1s"
`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Config{
		LogLevel:    slog.LevelDebug,
		MetricsAddr: ":9464",
		Line:        Line{MaxPayload: 64, BufferSize: 512},
		Serial: Serial{
			Port:         "/dev/ttyUSB0",
			BaudRate:     9600,
			PollInterval: 25 * time.Millisecond,
		},
		MQTT: MQTT{
			Broker:       "tcp://broker.example.com:1883",
			Username:     "user",
			Password:     "pass",
			UseTLS:       true,
			ClientID:     "node-a",
			TopicPrefix:  "links",
			LocalID:      "a",
			PeerID:       "b",
			PollInterval: time.Second,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = "COM3"
`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Serial.Port = "COM3"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[line\nmax_payload = 1"},
		{"unknown key", "[line]\nmax_paylod = 10"},
		{"bad duration", "[serial]\npoll_interval = \"soon\""},
		{"bad level", "log_level = \"loud\""},
		{"wrong type", "[line]\nmax_payload = \"big\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"unlimited with buffer", func(c *Config) {
			c.Line.MaxPayload = codec.NoLimit
			c.Line.BufferSize = 4096
		}, false},
		{"unlimited without buffer", func(c *Config) { c.Line.MaxPayload = codec.NoLimit }, true},
		{"zero max payload", func(c *Config) { c.Line.MaxPayload = 0 }, true},
		{"negative max payload", func(c *Config) { c.Line.MaxPayload = -7 }, true},
		{"tiny buffer", func(c *Config) { c.Line.BufferSize = 1 }, true},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }, true},
		{"zero poll", func(c *Config) { c.MQTT.PollInterval = 0 }, true},
		{"same ids", func(c *Config) {
			c.MQTT.LocalID = "x"
			c.MQTT.PeerID = "x"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestTransportConfigs(t *testing.T) {
	cfg := Default()
	cfg.Line.MaxPayload = 32
	cfg.Serial.Port = "/dev/ttyACM0"
	cfg.MQTT.LocalID = "a"
	cfg.MQTT.PeerID = "b"

	sc := cfg.SerialConfig(nil)
	if sc.Port != "/dev/ttyACM0" || sc.Limits.Max() != 32 {
		t.Errorf("SerialConfig() = %+v", sc)
	}
	mc := cfg.MQTTConfig(nil)
	if mc.LocalID != "a" || mc.PeerID != "b" || mc.Limits.Max() != 32 {
		t.Errorf("MQTTConfig() = %+v", mc)
	}
}
