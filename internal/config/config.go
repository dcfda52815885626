// Package config provides the configuration structure for the chatterbox
// service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied when the loaded configuration leaves fields unset.
const (
	DefaultPort           = 8000
	DefaultModelBaseURL   = "http://localhost:8001"
	DefaultModelDevice    = "cpu"
	DefaultTimeoutSeconds = 300

	defaultVoicesDirName = "voices"
	defaultAudioDirName  = "audio"
	voicesLibraryFile    = "voices.json"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Port int `toml:"port"`
}

// PathsConfig holds the configuration for file paths. PersistentMountDir
// names a volume mount (e.g. a RunPod volume); when it exists the voice and
// audio roots are placed under it, otherwise local relative fallbacks are
// used.
type PathsConfig struct {
	BaseLogsDir        string `toml:"base_logs_dir"`
	PersistentMountDir string `toml:"persistent_mount_dir"`
	VoicesDir          string `toml:"voices_dir"`
	AudioDir           string `toml:"audio_dir"`
}

// ModelConfig holds the configuration for the speech-model sidecar.
type ModelConfig struct {
	BaseURL        string `toml:"base_url"`
	Device         string `toml:"device"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the optional NATS wiring. A non-empty URL enables the
// JetStream artifact bucket and the pipeline job worker.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	Paths  PathsConfig  `toml:"paths"`
	Model  ModelConfig  `toml:"model"`
	NATS   NATSConfig   `toml:"nats"`
}

// Load loads the configuration for the service, then applies defaults and
// environment overrides.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnvironment()

	return &cfg, nil
}

// ApplyDefaults fills unset fields and resolves the storage roots against the
// persistent mount.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Model.BaseURL == "" {
		c.Model.BaseURL = DefaultModelBaseURL
	}

	if c.Model.Device == "" {
		c.Model.Device = DefaultModelDevice
	}

	if c.Model.TimeoutSeconds == 0 {
		c.Model.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}

	c.resolveStorageRoots()
}

// ApplyEnvironment applies process-environment overrides. PORT wins over the
// configured listener port when it parses as a positive integer.
func (c *Config) ApplyEnvironment() {
	portValue := os.Getenv("PORT")
	if portValue == "" {
		return
	}

	port, parseErr := strconv.Atoi(portValue)
	if parseErr != nil || port <= 0 {
		return
	}

	c.Server.Port = port
}

// VoicesLibraryPath is the location of the persisted custom-voice library.
func (c *Config) VoicesLibraryPath() string {
	return filepath.Join(c.Paths.VoicesDir, voicesLibraryFile)
}

// ListenAddr is the HTTP listener address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) resolveStorageRoots() {
	root := ""

	if c.Paths.PersistentMountDir != "" {
		info, statErr := os.Stat(c.Paths.PersistentMountDir)
		if statErr == nil && info.IsDir() {
			root = c.Paths.PersistentMountDir
		}
	}

	if c.Paths.VoicesDir == "" {
		c.Paths.VoicesDir = fallbackDir(root, defaultVoicesDirName)
	}

	if c.Paths.AudioDir == "" {
		c.Paths.AudioDir = fallbackDir(root, defaultAudioDirName)
	}
}

// fallbackDir places name under root when a persistent mount is present and
// falls back to a local relative directory otherwise.
func fallbackDir(root, name string) string {
	if root == "" {
		return name
	}

	return filepath.Join(root, name)
}
