package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: ami
ami:
  secret: s3cret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Mode != ModeAMI {
		t.Errorf("expected ami mode, got %q", cfg.Mode)
	}
	if cfg.AMI.Addr() != "127.0.0.1:5038" {
		t.Errorf("unexpected ami addr: %s", cfg.AMI.Addr())
	}
	if cfg.Dial.ChannelPrefix != "PJSIP" {
		t.Errorf("unexpected channel prefix: %s", cfg.Dial.ChannelPrefix)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Port != 8080 {
		t.Errorf("unexpected http config: %+v", cfg.HTTP)
	}
	if cfg.MQTT.Enabled {
		t.Error("mqtt should be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
mode: rest
ami:
  host: 10.0.0.5
  port: 5039
dial:
  channel_prefix: SIP
  default_caller_id: "0188776655"
http:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Mode != ModeREST {
		t.Errorf("expected rest mode, got %q", cfg.Mode)
	}
	if cfg.AMI.Addr() != "10.0.0.5:5039" {
		t.Errorf("unexpected ami addr: %s", cfg.AMI.Addr())
	}
	if cfg.Dial.ChannelPrefix != "SIP" {
		t.Errorf("unexpected channel prefix: %s", cfg.Dial.ChannelPrefix)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("unexpected http port: %d", cfg.HTTP.Port)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, `
mode: carrier-pigeon
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for invalid mode")
	}
}

func TestLoadRequiresSecretInAMIMode(t *testing.T) {
	path := writeConfig(t, `
mode: ami
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing secret")
	}
}
