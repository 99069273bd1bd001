// Package config loads a participant's YAML configuration document into
// the structs core.Connection and cmd/participant need at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// MiddlewareConfig controls how a participant reaches the registry and
// tunes its transport.
type MiddlewareConfig struct {
	RegistryUri       string        `yaml:"registryUri"`
	EnableLocalSocket bool          `yaml:"enableLocalSocket"`
	TcpNoDelay        bool          `yaml:"tcpNoDelay"`
	TcpQuickAck       bool          `yaml:"tcpQuickAck"`
	ConnectAttempts   int           `yaml:"connectAttempts"`
	ConnectRetryDelay time.Duration `yaml:"connectRetryDelay"`
}

// ControllerConfig declares one simulated controller a participant creates
// at startup, on a named network.
type ControllerConfig struct {
	Name    string `yaml:"name"`
	Network string `yaml:"network"`
}

// LoggingConfig sets the default Logger's level for a participant process.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ParticipantConfiguration is the root document loaded from a
// --config file.
type ParticipantConfiguration struct {
	ParticipantName types.ParticipantName `yaml:"participantName"`
	Middleware      MiddlewareConfig      `yaml:"middleware"`
	CanControllers  []ControllerConfig    `yaml:"canControllers"`
	RpcClients      []ControllerConfig    `yaml:"rpcClients"`
	Logging         LoggingConfig         `yaml:"logging"`
}

// ClusterConfiguration lists the participants a test harness expects to
// join a domain.
type ClusterConfiguration struct {
	Participants []types.ParticipantName `yaml:"participants"`
}

func defaultMiddleware() MiddlewareConfig {
	return MiddlewareConfig{
		RegistryUri:       "tcp://localhost:8500",
		EnableLocalSocket: true,
		TcpNoDelay:        true,
		ConnectAttempts:   10,
		ConnectRetryDelay: 100 * time.Millisecond,
	}
}

// Default returns a ParticipantConfiguration with the same connection
// defaults spec.md §6 specifies (10 attempts, 100ms apart), for callers
// that don't pass --config.
func Default(name types.ParticipantName) ParticipantConfiguration {
	return ParticipantConfiguration{
		ParticipantName: name,
		Middleware:      defaultMiddleware(),
		Logging:         LoggingConfig{Level: "info"},
	}
}

// Load reads and decodes a YAML participant configuration file, filling in
// middleware defaults for any zero-valued fields left unset by the
// document.
func Load(path string) (ParticipantConfiguration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ParticipantConfiguration{}, fmt.Errorf("config: reading %s: %w", path, types.ErrConfiguration)
	}

	cfg := ParticipantConfiguration{Middleware: defaultMiddleware()}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ParticipantConfiguration{}, fmt.Errorf("config: parsing %s: %v: %w", path, err, types.ErrConfiguration)
	}

	if cfg.ParticipantName == "" {
		return ParticipantConfiguration{}, fmt.Errorf("config: %s: participantName is required: %w", path, types.ErrConfiguration)
	}
	if cfg.Middleware.RegistryUri == "" {
		cfg.Middleware.RegistryUri = defaultMiddleware().RegistryUri
	}
	if cfg.Middleware.ConnectAttempts == 0 {
		cfg.Middleware.ConnectAttempts = defaultMiddleware().ConnectAttempts
	}
	if cfg.Middleware.ConnectRetryDelay == 0 {
		cfg.Middleware.ConnectRetryDelay = defaultMiddleware().ConnectRetryDelay
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return cfg, nil
}
