package config

import (
	"os"
	"strconv"
	"time"
)

// IntakeConfig configures the patient intake service.
type IntakeConfig struct {
	Port         string
	DatabaseURL  string
	NATSURL      string
	TriagePolicy string
}

// DashboardConfig configures the dashboard and auth service.
type DashboardConfig struct {
	Port              string
	DatabaseURL       string
	NATSURL           string
	RedisURL          string
	JWTSecret         string
	InfluxURL         string
	InfluxToken       string
	InfluxOrg         string
	InfluxBucket      string
	RecomputeInterval time.Duration
}

// NotifierConfig configures the email notifier.
type NotifierConfig struct {
	NATSURL      string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func LoadIntake() IntakeConfig {
	return IntakeConfig{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  getenv("DATABASE_URL", ""),
		NATSURL:      getenv("NATS_URL", "nats://localhost:4222"),
		TriagePolicy: getenv("TRIAGE_POLICY", ""),
	}
}

func LoadDashboard() DashboardConfig {
	return DashboardConfig{
		Port:              getenv("PORT", "8081"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		NATSURL:           getenv("NATS_URL", "nats://localhost:4222"),
		RedisURL:          getenv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:         getenv("JWT_SECRET", "careflow-dev-secret"),
		InfluxURL:         getenv("INFLUX_URL", ""),
		InfluxToken:       getenv("INFLUX_TOKEN", ""),
		InfluxOrg:         getenv("INFLUX_ORG", "careflow"),
		InfluxBucket:      getenv("INFLUX_BUCKET", "hospital"),
		RecomputeInterval: getduration("METRICS_RECOMPUTE_INTERVAL", 30*time.Second),
	}
}

func LoadNotifier() NotifierConfig {
	return NotifierConfig{
		NATSURL:      getenv("NATS_URL", "nats://localhost:4222"),
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getint("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "noreply@careflow.local"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
