package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"whsync/internal/capability"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CapabilitiesFile is the catalog file looked up in the config directory
const CapabilitiesFile = "capabilities.yaml"

// CapabilitiesConfig represents the capabilities.yaml structure
type CapabilitiesConfig struct {
	Capabilities []capability.Capability `yaml:"capabilities"`
}

// Loader manages configuration file loading
type Loader struct {
	configDir string
	logger    *zap.Logger
	registry  *capability.Registry
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// LoadCapabilities loads the capability catalog. A missing capabilities.yaml
// selects the built-in catalog; an unreadable or invalid one is an error.
func (l *Loader) LoadCapabilities() (*capability.Registry, error) {
	path := filepath.Join(l.configDir, CapabilitiesFile)
	l.logger.Debug("Loading capability catalog", zap.String("path", path))

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Info("No capability catalog found, using built-in catalog",
			zap.String("path", path),
			zap.Int("capabilities", len(capability.DefaultCapabilities)))
		l.registry = capability.DefaultRegistry()
		return l.registry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capability catalog: %w", err)
	}

	var config CapabilitiesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse capability catalog: %w", err)
	}

	registry, err := capability.NewRegistry(config.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("invalid capability catalog %s: %w", path, err)
	}

	l.registry = registry
	l.logger.Info("Capability catalog loaded successfully",
		zap.Int("capabilities", registry.Len()))
	return registry, nil
}

// GetRegistry returns the loaded catalog, nil before LoadCapabilities succeeds
func (l *Loader) GetRegistry() *capability.Registry {
	return l.registry
}
