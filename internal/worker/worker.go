// Package worker provides the optional NATS intake: pipeline jobs arrive as
// text-processed events, run through the same synthesis engine as HTTP
// requests, and are answered with audio-chunk-created events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/engine"
)

const handleMessageTimeout = 10 * time.Minute

// NatsWorker listens for synthesis jobs on a NATS subject and processes them
// through the engine.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	engine         *engine.Engine
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	synthesisEngine *engine.Engine,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		engine:         synthesisEngine,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages. It blocks until
// ctx is cancelled, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal event: %v", err)

		return
	}

	result, processErr := w.processJob(ctx, &event)
	if processErr != nil {
		w.log.Error(
			"Failed to process synthesis job for workflow %s: %v",
			event.Header.WorkflowID,
			processErr,
		)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   result.StorageKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	replyErr := w.publishReply(msg, replyEvent)
	if replyErr != nil {
		w.log.Error(
			"Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID,
			replyErr,
		)
	}
}

// processJob downloads the job text and synthesizes it with the requested
// voice. The generated audio is stored by the engine under the returned key.
func (w *NatsWorker) processJob(
	ctx context.Context,
	event *events.TextProcessedEvent,
) (engine.Result, error) {
	textData, downloadErr := w.store.Download(ctx, event.TextKey)
	if downloadErr != nil {
		return engine.Result{}, fmt.Errorf(
			"failed to download text data for key '%s': %w",
			event.TextKey,
			downloadErr,
		)
	}

	text := string(textData)
	if len([]rune(text)) > engine.MaxTextLength {
		w.log.Warn(
			"Job text for workflow %s exceeds %d characters, truncating",
			event.Header.WorkflowID,
			engine.MaxTextLength,
		)

		text = string([]rune(text)[:engine.MaxTextLength])
	}

	voiceID := event.Voice
	if voiceID == "" {
		voiceID = engine.DefaultVoiceID
	}

	result, synthErr := w.engine.Synthesize(ctx, engine.Request{
		Text:         text,
		VoiceID:      voiceID,
		Exaggeration: 0,
		Temperature:  event.Temperature,
		CFGWeight:    0,
		Seed:         int64(event.Seed),
	})
	if synthErr != nil {
		return engine.Result{}, fmt.Errorf("failed to synthesize job text: %w", synthErr)
	}

	return result, nil
}

// publishReply marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}
