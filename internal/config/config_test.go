package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{IntervalSeconds: 300},
		Storage:   StorageConfig{Backend: "file", StateDir: ".state"},
		Notifications: NotificationsConfig{
			Language: "en",
		},
		Export: ExportConfig{Days: 90},
	}
}

func TestIntervalClampedToBounds(t *testing.T) {
	cases := []struct {
		seconds int
		want    time.Duration
	}{
		{10, MinTickIntervalSeconds * time.Second},
		{60, 60 * time.Second},
		{300, 300 * time.Second},
		{3600, 3600 * time.Second},
		{7200, MaxTickIntervalSeconds * time.Second},
	}
	for _, c := range cases {
		got := SchedulerConfig{IntervalSeconds: c.seconds}.Interval()
		if got != c.want {
			t.Errorf("Interval(%d) = %s, want %s", c.seconds, got, c.want)
		}
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_interval", func(c *Config) { c.Scheduler.IntervalSeconds = 0 }},
		{"unknown_backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"file_without_dir", func(c *Config) { c.Storage.StateDir = "" }},
		{"postgres_without_dsn", func(c *Config) { c.Storage.Backend = "postgres"; c.Database.DSN = "" }},
		{"unknown_language", func(c *Config) { c.Notifications.Language = "fr" }},
		{"webhook_without_url", func(c *Config) { c.Notifications.Webhook.Enabled = true }},
		{"mqtt_without_broker", func(c *Config) { c.Notifications.MQTT.Enabled = true }},
		{"zero_export_days", func(c *Config) { c.Export.Days = 0 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	loc, err := cfg.Location()
	if err != nil || loc == nil {
		t.Fatalf("empty timezone must fall back to local: %v", err)
	}

	cfg.App.Timezone = "Europe/Amsterdam"
	loc, err = cfg.Location()
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	if loc.String() != "Europe/Amsterdam" {
		t.Fatalf("location = %s", loc)
	}

	cfg.App.Timezone = "Mars/Olympus"
	if _, err := cfg.Location(); err == nil {
		t.Fatal("bogus timezone must error")
	}
}

func TestInputSensors(t *testing.T) {
	cfg := validConfig()
	cfg.Sensors.Imported = []string{"sensor.a"}
	cfg.Sensors.Exported = []string{"sensor.b"}
	cfg.Sensors.Produced = []string{"sensor.c", "sensor.d"}

	groups := cfg.InputSensors()
	if len(groups["imported"]) != 1 || len(groups["exported"]) != 1 || len(groups["produced"]) != 2 {
		t.Fatalf("unexpected grouping: %v", groups)
	}
}
