package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the ingestion service.
type Config struct {
	BrokerURL    string   `yaml:"broker_url"`
	BrokerUser   string   `yaml:"broker_user"`
	BrokerPass   string   `yaml:"broker_pass"`
	ClientID     string   `yaml:"client_id"`
	TopicFilters []string `yaml:"topic_filters"`

	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`

	UtilizationCeiling float64       `yaml:"utilization_ceiling"`
	PendingTTL         time.Duration `yaml:"pending_ttl"`
	DedupWindow        time.Duration `yaml:"dedup_window"`
	PersistTimeout     time.Duration `yaml:"persist_timeout"`
	TicketActor        string        `yaml:"ticket_actor"`

	// HardwareTenants maps legacy numeric hardware ids to tenants.
	HardwareTenants map[string]string `yaml:"hardware_tenants"`

	Debug bool `yaml:"debug"`
}

// Load reads configuration: defaults, then an optional YAML file named by
// CRANE_CONFIG, then environment overrides. A .env file is honored when
// present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BrokerURL: getenvDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		ClientID:  getenvDefault("MQTT_CLIENT_ID", "crane-ingest"),
		TopicFilters: []string{
			"company/+/crane/+/+",
			"+/crane/+/+",
			"crane/+/+",
			"+/+",
		},
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		UtilizationCeiling: 85,
		PendingTTL:         24 * time.Hour,
		DedupWindow:        5 * time.Minute,
		PersistTimeout:     5 * time.Second,
	}

	if path := os.Getenv("CRANE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.BrokerURL = getenvDefault("MQTT_BROKER_URL", cfg.BrokerURL)
	cfg.BrokerUser = getenvDefault("MQTT_USERNAME", cfg.BrokerUser)
	cfg.BrokerPass = getenvDefault("MQTT_PASSWORD", cfg.BrokerPass)
	cfg.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.ClientID)
	if filters := splitCSV(os.Getenv("MQTT_TOPIC_FILTERS")); len(filters) > 0 {
		cfg.TopicFilters = filters
	}
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.UtilizationCeiling = getenvFloatDefault("UTILIZATION_ALERT_CEILING", cfg.UtilizationCeiling)
	cfg.PendingTTL = getenvDuration("PENDING_DEVICE_TTL", cfg.PendingTTL)
	cfg.DedupWindow = getenvDuration("ALERT_DEDUP_WINDOW", cfg.DedupWindow)
	cfg.PersistTimeout = getenvDuration("PERSIST_TIMEOUT", cfg.PersistTimeout)
	cfg.TicketActor = getenvDefault("TICKET_ACTOR", cfg.TicketActor)
	if os.Getenv("DEBUG") != "" {
		cfg.Debug = true
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: DATABASE_URL is required")
	}
	if cfg.BrokerURL == "" {
		return cfg, errors.New("config: MQTT_BROKER_URL is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
