// Package engine orchestrates speech synthesis: it validates requests,
// resolves the voice to a reference-audio prompt, invokes the external model,
// and records the resulting artifact.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/chatterbox-service/internal/artifact"
	"github.com/book-expert/chatterbox-service/internal/audio"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/voice"
)

const (
	// MaxTextLength is the acceptance limit for request text.
	MaxTextLength = 500
	// ModelTextLimit is the length actually sent to the model. The gap
	// between the two limits matches the original service contract;
	// callers may rely on 500-character requests being accepted.
	ModelTextLimit = 300

	// DefaultVoiceID is used when a request names no voice.
	DefaultVoiceID = "female_default"
)

// Static errors.
var (
	ErrTextEmpty   = errors.New("text cannot be empty")
	ErrTextTooLong = errors.New("text too long")
	ErrNoModel     = errors.New("no speech model configured")
)

// Request is a validated-on-entry synthesis request.
type Request struct {
	Text         string
	VoiceID      string
	Exaggeration float64
	Temperature  float64
	CFGWeight    float64
	Seed         int64
}

// Result summarizes a completed synthesis.
type Result struct {
	AudioID    string
	StorageKey string
	SampleRate int
	Duration   float64
	Message    string
}

// Engine wires the voice registry, artifact cache, blob store, and speech
// model together. It holds no request state; one Engine serves all requests.
type Engine struct {
	registry *voice.Registry
	cache    *artifact.Cache
	store    core.ObjectStore
	synth    core.SpeechSynthesizer
	log      *logger.Logger

	// seededMu serializes seeded invocations. The seed travels with the
	// request, but a sidecar that seeds its own process-wide RNG must not
	// see two seeded calls overlap.
	seededMu sync.Mutex
}

// New creates a synthesis engine.
func New(
	registry *voice.Registry,
	cache *artifact.Cache,
	store core.ObjectStore,
	synthesizer core.SpeechSynthesizer,
	log *logger.Logger,
) *Engine {
	return &Engine{
		registry: registry,
		cache:    cache,
		store:    store,
		synth:    synthesizer,
		log:      log,
		seededMu: sync.Mutex{},
	}
}

// Registry exposes the voice registry for the transport layer.
func (e *Engine) Registry() *voice.Registry {
	return e.registry
}

// Cache exposes the artifact cache for the transport layer.
func (e *Engine) Cache() *artifact.Cache {
	return e.cache
}

// Store exposes the artifact blob store, so the job worker can read staged
// text from the same backend it writes audio to.
func (e *Engine) Store() core.ObjectStore {
	return e.store
}

// Healthy reports whether the speech model is reachable and loaded.
func (e *Engine) Healthy(ctx context.Context) error {
	if e.synth == nil {
		return fmt.Errorf("%w: %w", core.ErrModelUnavailable, ErrNoModel)
	}

	err := e.synth.Healthy(ctx)
	if err != nil {
		return fmt.Errorf("model health check failed: %w", err)
	}

	return nil
}

// Synthesize runs one request through validate, resolve, invoke, and persist.
// Any stage failure is returned as a taxonomy error; on failure no artifact
// is recorded and the cache is unchanged.
func (e *Engine) Synthesize(ctx context.Context, req Request) (Result, error) {
	record, validateErr := e.validate(req)
	if validateErr != nil {
		return Result{}, validateErr
	}

	promptPath, resolveErr := e.registry.ResolveAudioPath(ctx, record.VoiceID)
	if resolveErr != nil {
		if errors.Is(resolveErr, core.ErrNotFound) {
			return Result{}, resolveErr
		}

		return Result{}, fmt.Errorf(
			"%w: could not resolve voice '%s': %w",
			core.ErrSynthesisFailed,
			record.VoiceID,
			resolveErr,
		)
	}

	// The prompt file is a request-scoped resource; release it on every
	// exit path.
	defer func() {
		removeErr := os.Remove(promptPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			e.log.Warn("Failed to remove prompt file '%s': %v", promptPath, removeErr)
		}
	}()

	started := time.Now()

	wavData, invokeErr := e.invoke(ctx, req, promptPath)
	if invokeErr != nil {
		if errors.Is(invokeErr, core.ErrModelUnavailable) {
			return Result{}, invokeErr
		}

		return Result{}, fmt.Errorf("%w: %w", core.ErrSynthesisFailed, invokeErr)
	}

	generationTime := time.Since(started).Seconds()

	return e.persist(ctx, req, record, wavData, generationTime)
}

// OpenArtifact returns artifact metadata together with its stored waveform.
// Missing metadata and a missing blob are both core.ErrNotFound: the caller
// cannot distinguish a never-created artifact from one whose file vanished.
func (e *Engine) OpenArtifact(ctx context.Context, audioID string) (core.AudioArtifact, []byte, error) {
	entry, err := e.cache.Get(audioID)
	if err != nil {
		return core.AudioArtifact{}, nil, err
	}

	data, downloadErr := e.store.Download(ctx, entry.StorageKey)
	if downloadErr != nil {
		return core.AudioArtifact{}, nil, fmt.Errorf(
			"%w: audio file for '%s' is missing: %w",
			core.ErrNotFound,
			audioID,
			downloadErr,
		)
	}

	return entry, data, nil
}

func (e *Engine) validate(req Request) (core.VoiceRecord, error) {
	if e.synth == nil {
		return core.VoiceRecord{}, fmt.Errorf("%w: %w", core.ErrModelUnavailable, ErrNoModel)
	}

	if strings.TrimSpace(req.Text) == "" {
		return core.VoiceRecord{}, fmt.Errorf("%w: %w", core.ErrInvalidInput, ErrTextEmpty)
	}

	if len([]rune(req.Text)) > MaxTextLength {
		return core.VoiceRecord{}, fmt.Errorf(
			"%w: %w (max %d characters)",
			core.ErrInvalidInput,
			ErrTextTooLong,
			MaxTextLength,
		)
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	record, getErr := e.registry.Get(voiceID)
	if getErr != nil {
		return core.VoiceRecord{}, getErr
	}

	return record, nil
}

func (e *Engine) invoke(ctx context.Context, req Request, promptPath string) ([]byte, error) {
	input := core.SynthesisInput{
		Text:         truncateRunes(req.Text, ModelTextLimit),
		PromptPath:   promptPath,
		Exaggeration: req.Exaggeration,
		Temperature:  req.Temperature,
		CFGWeight:    req.CFGWeight,
		Seed:         req.Seed,
	}

	if req.Seed != 0 {
		e.seededMu.Lock()
		defer e.seededMu.Unlock()
	}

	return e.synth.Synthesize(ctx, input)
}

func (e *Engine) persist(
	ctx context.Context,
	req Request,
	record core.VoiceRecord,
	wavData []byte,
	generationTime float64,
) (Result, error) {
	clip, decodeErr := audio.Decode(wavData)
	if decodeErr != nil {
		return Result{}, fmt.Errorf(
			"%w: model returned undecodable audio: %w",
			core.ErrSynthesisFailed,
			decodeErr,
		)
	}

	audioID := uuid.NewString()
	storageKey := audioID + ".wav"

	uploadErr := e.store.Upload(ctx, storageKey, wavData)
	if uploadErr != nil {
		return Result{}, fmt.Errorf(
			"%w: failed to store audio: %w",
			core.ErrSynthesisFailed,
			uploadErr,
		)
	}

	entry := core.AudioArtifact{
		AudioID:        audioID,
		StorageKey:     storageKey,
		Text:           req.Text,
		VoiceID:        record.VoiceID,
		VoiceName:      record.Name,
		SampleRate:     clip.SampleRate,
		Duration:       clip.Duration(),
		GeneratedAt:    time.Now().UTC(),
		GenerationTime: generationTime,
	}
	e.cache.Put(entry)

	e.log.Info(
		"Audio generated: %s (%.2fs) with voice '%s'",
		audioID,
		generationTime,
		record.Name,
	)

	return Result{
		AudioID:    audioID,
		StorageKey: storageKey,
		SampleRate: clip.SampleRate,
		Duration:   clip.Duration(),
		Message: fmt.Sprintf(
			"Speech synthesized successfully using voice '%s'",
			record.Name,
		),
	}, nil
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}
