// Package worker_test tests the NATS job intake.
package worker_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/artifact"
	"github.com/book-expert/chatterbox-service/internal/audio"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/engine"
	"github.com/book-expert/chatterbox-service/internal/objectstore"
	"github.com/book-expert/chatterbox-service/internal/voice"
	"github.com/book-expert/chatterbox-service/internal/worker"
)

// mockSynthesizer is a mock implementation of the SpeechSynthesizer interface.
type mockSynthesizer struct {
	lastInput core.SynthesisInput
	output    []byte
}

func (m *mockSynthesizer) Synthesize(_ context.Context, input core.SynthesisInput) ([]byte, error) {
	m.lastInput = input

	return m.output, nil
}

func (m *mockSynthesizer) Healthy(_ context.Context) error {
	return nil
}

// stubFetcher is unused by these tests; jobs reference a custom voice.
type stubFetcher struct{}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return "", core.ErrNotFound
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func testWAV(t *testing.T, frames, sampleRate int) []byte {
	t.Helper()

	blob, err := audio.Encode(audio.Clip{
		Samples:    make([]int16, frames),
		SampleRate: sampleRate,
		Channels:   1,
	})
	require.NoError(t, err)

	return blob
}

func TestWorker_ProcessesJobAndReplies(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	registry, err := voice.NewRegistry(
		filepath.Join(t.TempDir(), "voices.json"),
		&stubFetcher{},
		testLogger,
	)
	require.NoError(t, err)

	record, err := registry.Create(audio.Clip{
		Samples:    make([]int16, 8000),
		SampleRate: 8000,
		Channels:   1,
	}, "Pipeline Voice", "")
	require.NoError(t, err)

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	synthesizer := &mockSynthesizer{
		lastInput: core.SynthesisInput{},
		output:    testWAV(t, 24000, 24000),
	}

	synthesisEngine := engine.New(registry, artifact.NewCache(), store, synthesizer, testLogger)

	workerInstance, err := worker.NewNatsWorker(
		natsConnection, "test.synthesize", store, synthesisEngine, testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	// Stage the job text in the object store.
	require.NoError(t, store.Upload(
		context.Background(), "job-text-key", []byte("Read this page aloud."),
	))

	testEvent := &events.TextProcessedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		TextKey:           "job-text-key",
		PNGKey:            "",
		PageNumber:        3,
		TotalPages:        10,
		Voice:             record.VoiceID,
		Seed:              7,
		NGL:               0,
		TopP:              0,
		RepetitionPenalty: 0,
		Temperature:       0.7,
	}
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("test.synthesize", eventData, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent events.AudioChunkCreatedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.NotEmpty(t, replyEvent.AudioKey)
	assert.Equal(t, testEvent.PageNumber, replyEvent.PageNumber)
	assert.Equal(t, testEvent.TotalPages, replyEvent.TotalPages)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)

	assert.Equal(t, "Read this page aloud.", synthesizer.lastInput.Text)
	assert.Equal(t, int64(7), synthesizer.lastInput.Seed)

	// The generated audio must be retrievable under the reply key.
	blob, err := store.Download(context.Background(), replyEvent.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, synthesizer.output, blob)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}
