// Package core defines the domain types, interfaces, and error taxonomy for
// the chatterbox service.
package core

import "context"

// SynthesisInput holds the parameters for a single model invocation.
// PromptPath points at a locally readable reference-audio file used to
// condition the generated voice.
type SynthesisInput struct {
	Text         string
	PromptPath   string
	Exaggeration float64
	Temperature  float64
	CFGWeight    float64
	Seed         int64
}

// SpeechSynthesizer is the external text-to-speech capability. It is resolved
// once at startup; the returned bytes are a complete WAV container.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, input SynthesisInput) ([]byte, error)
	Healthy(ctx context.Context) error
}

// ObjectStore defines the interface for interacting with a key-value blob
// store. Generated audio artifacts live behind this interface so the backing
// storage (local filesystem or a NATS bucket) is a wiring decision.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
