package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crane")
	t.Setenv("CRANE_CONFIG", "")
	t.Setenv("MQTT_TOPIC_FILTERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []string{"company/+/crane/+/+", "+/crane/+/+", "crane/+/+", "+/+"}
	if len(cfg.TopicFilters) != len(want) {
		t.Fatalf("filters = %v, want %v", cfg.TopicFilters, want)
	}
	for i, filter := range want {
		if cfg.TopicFilters[i] != filter {
			t.Fatalf("filter[%d] = %q, want %q", i, cfg.TopicFilters[i], filter)
		}
	}

	if cfg.BrokerURL != "tcp://localhost:1883" {
		t.Fatalf("broker = %q", cfg.BrokerURL)
	}
	if cfg.PendingTTL != 24*time.Hour {
		t.Fatalf("pending ttl = %s", cfg.PendingTTL)
	}
	if cfg.DedupWindow != 5*time.Minute {
		t.Fatalf("dedup window = %s", cfg.DedupWindow)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CRANE_CONFIG", "")

	if _, err := Load(); err == nil {
		t.Fatal("load without DATABASE_URL should error")
	}
}

func TestLoadTopicFilterOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crane")
	t.Setenv("CRANE_CONFIG", "")
	t.Setenv("MQTT_TOPIC_FILTERS", "crane/+/+, 86001234/1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.TopicFilters) != 2 || cfg.TopicFilters[1] != "86001234/1" {
		t.Fatalf("filters = %v", cfg.TopicFilters)
	}
}
