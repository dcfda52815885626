// Package config_test tests the configuration loading for the service.
package config_test

import (
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/config"
)

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
port = 9000

[paths]
base_logs_dir = "/var/log/chatterbox"
persistent_mount_dir = "/runpod-volume"

[model]
base_url = "http://localhost:8001"
device = "cuda"
timeout_seconds = 120

[nats]
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"
audio_chunk_created_subject = "audio.chunk.created"
audio_object_store_bucket = "AUDIO_FILES"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/log/chatterbox", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "/runpod-volume", cfg.Paths.PersistentMountDir)
	assert.Equal(t, "http://localhost:8001", cfg.Model.BaseURL)
	assert.Equal(t, "cuda", cfg.Model.Device)
	assert.Equal(t, 120, cfg.Model.TimeoutSeconds)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "audio.chunk.created", cfg.NATS.AudioChunkCreatedSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
}

func TestApplyDefaults_FillsUnsetFields(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultModelBaseURL, cfg.Model.BaseURL)
	assert.Equal(t, config.DefaultModelDevice, cfg.Model.Device)
	assert.Equal(t, config.DefaultTimeoutSeconds, cfg.Model.TimeoutSeconds)
	assert.Equal(t, "voices", cfg.Paths.VoicesDir)
	assert.Equal(t, "audio", cfg.Paths.AudioDir)
	assert.Equal(t, filepath.Join("voices", "voices.json"), cfg.VoicesLibraryPath())
}

func TestApplyDefaults_UsesPersistentMountWhenPresent(t *testing.T) {
	t.Parallel()

	mount := t.TempDir()

	cfg := config.Config{
		Server: config.ServerConfig{Port: 0},
		Paths: config.PathsConfig{
			BaseLogsDir:        "",
			PersistentMountDir: mount,
			VoicesDir:          "",
			AudioDir:           "",
		},
		Model: config.ModelConfig{BaseURL: "", Device: "", TimeoutSeconds: 0},
		NATS: config.NATSConfig{
			URL:                      "",
			TextProcessedSubject:     "",
			AudioChunkCreatedSubject: "",
			AudioObjectStoreBucket:   "",
		},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, filepath.Join(mount, "voices"), cfg.Paths.VoicesDir)
	assert.Equal(t, filepath.Join(mount, "audio"), cfg.Paths.AudioDir)
}

func TestApplyDefaults_MissingMountFallsBackToLocal(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Server: config.ServerConfig{Port: 0},
		Paths: config.PathsConfig{
			BaseLogsDir:        "",
			PersistentMountDir: "/definitely/not/mounted",
			VoicesDir:          "",
			AudioDir:           "",
		},
		Model: config.ModelConfig{BaseURL: "", Device: "", TimeoutSeconds: 0},
		NATS: config.NATSConfig{
			URL:                      "",
			TextProcessedSubject:     "",
			AudioChunkCreatedSubject: "",
			AudioObjectStoreBucket:   "",
		},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, "voices", cfg.Paths.VoicesDir)
	assert.Equal(t, "audio", cfg.Paths.AudioDir)
}

func TestApplyEnvironment_PortOverride(t *testing.T) {
	t.Setenv("PORT", "8443")

	var cfg config.Config

	cfg.ApplyDefaults()
	cfg.ApplyEnvironment()

	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, ":8443", cfg.ListenAddr())
}

func TestApplyEnvironment_IgnoresInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	var cfg config.Config

	cfg.ApplyDefaults()
	cfg.ApplyEnvironment()

	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
}
