package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Agent stores courier device settings.
type Agent struct {
	ServerURL        string
	Token            string
	CourierID        int64
	DeviceID         string
	DataDir          string
	LocationInterval time.Duration
	AutoAccept       bool
	LogLevel         string
}

// QueuePath is the bbolt file holding the offline queue.
func (a Agent) QueuePath() string {
	return filepath.Join(a.DataDir, "courier-"+a.DeviceID+".db")
}

// LoadAgent reads agent settings from .env, the environment and args.
func LoadAgent(args []string) (*Agent, error) {
	_ = godotenv.Load(".env")

	e := &envReader{}
	cfg := &Agent{
		ServerURL:        e.str("AGENT_SERVER_URL", "http://localhost:8080"),
		Token:            e.str("AGENT_TOKEN", ""),
		CourierID:        int64(e.integer("AGENT_COURIER_ID", 0)),
		DeviceID:         e.str("AGENT_DEVICE_ID", "device"),
		DataDir:          e.str("AGENT_DATA_DIR", os.TempDir()),
		LocationInterval: e.duration("AGENT_LOCATION_INTERVAL", 5*time.Second),
		AutoAccept:       e.boolean("AGENT_AUTO_ACCEPT", false),
		LogLevel:         e.str("LOG_LEVEL", "info"),
	}
	if e.err != nil {
		return nil, e.err
	}

	fs := pflag.NewFlagSet("courier-agent", pflag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "dispatch server base URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "bearer token issued for the courier")
	fs.Int64Var(&cfg.CourierID, "courier-id", cfg.CourierID, "courier id")
	fs.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "stable device id used in idempotency keys")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the offline queue")
	fs.DurationVar(&cfg.LocationInterval, "location-interval", cfg.LocationInterval, "location beacon interval")
	fs.BoolVar(&cfg.AutoAccept, "auto-accept", cfg.AutoAccept, "accept every offer")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if cfg.CourierID <= 0 {
		return nil, fmt.Errorf("courier id is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("token is required")
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return cfg, nil
}
