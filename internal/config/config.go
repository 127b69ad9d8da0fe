package config

import (
	"os"
	"time"
)

// Config collects every environment-driven setting. Values are read once at
// startup; nothing below the composition root touches the environment.
type Config struct {
	ServiceName string
	Env         string
	Addr        string

	// Store selects the persistence backend: "memory" or "bolt".
	Store    string
	BoltPath string

	WompiAPIURL         string
	WompiPublicKey      string
	WompiPrivateKey     string
	WompiIntegrityKey   string
	WompiEventsKey      string
	GatewayTimeout      time.Duration
	SweepInterval       time.Duration
	SweepStaleAfter     time.Duration
	SweepMaxConcurrency int
}

func Load() Config {
	return Config{
		ServiceName: getenv("SERVICE_NAME", "tienda-backend"),
		Env:         getenv("ENV", "dev"),
		Addr:        getenv("ADDR", ":8080"),

		Store:    getenv("STORE", "memory"),
		BoltPath: getenv("BOLT_PATH", "tienda.db"),

		WompiAPIURL:         getenv("WOMPI_API_URL", "https://api-sandbox.co.uat.wompi.dev/v1"),
		WompiPublicKey:      os.Getenv("WOMPI_PUBLIC_KEY"),
		WompiPrivateKey:     os.Getenv("WOMPI_PRIVATE_KEY"),
		WompiIntegrityKey:   os.Getenv("WOMPI_INTEGRITY_KEY"),
		WompiEventsKey:      os.Getenv("WOMPI_EVENTS_KEY"),
		GatewayTimeout:      getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		SweepInterval:       getenvDuration("SWEEP_INTERVAL", time.Minute),
		SweepStaleAfter:     getenvDuration("SWEEP_STALE_AFTER", 5*time.Minute),
		SweepMaxConcurrency: 4,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
