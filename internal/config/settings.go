package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultAPIPort      = 8080
	defaultConfigDir    = "./configs"
)

// Settings holds the service configuration read from the environment
type Settings struct {
	DeviceURL          string
	DeviceToken        string
	PollInterval       time.Duration
	APIPort            int
	ConfigDir          string
	RunPeriodicUpdates bool
}

// LoadSettings reads settings from environment variables. DEVICE_URL and
// DEVICE_TOKEN are required; everything else has a default.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		DeviceURL:          os.Getenv("DEVICE_URL"),
		DeviceToken:        os.Getenv("DEVICE_TOKEN"),
		PollInterval:       defaultPollInterval,
		APIPort:            defaultAPIPort,
		ConfigDir:          defaultConfigDir,
		RunPeriodicUpdates: true,
	}

	if s.DeviceURL == "" || s.DeviceToken == "" {
		return nil, fmt.Errorf("DEVICE_URL and DEVICE_TOKEN environment variables must be set")
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", d)
		}
		s.PollInterval = d
	}

	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid API_PORT %q", v)
		}
		s.APIPort = port
	}

	if v := os.Getenv("CONFIG_DIR"); v != "" {
		s.ConfigDir = v
	}

	if v := os.Getenv("RUN_PERIODIC_UPDATES"); v != "" {
		run, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_PERIODIC_UPDATES %q: %w", v, err)
		}
		s.RunPeriodicUpdates = run
	}

	return s, nil
}

// APIAddr returns the listen address of the HTTP API
func (s *Settings) APIAddr() string {
	return fmt.Sprintf(":%d", s.APIPort)
}
