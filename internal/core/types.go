package core

import "time"

// VoiceKind distinguishes seeded builtin voices from user-created ones.
type VoiceKind string

const (
	// VoiceBuiltin voices are seeded at startup, never persisted, and
	// cannot be deleted. Their reference audio is fetched from a remote
	// URL on demand.
	VoiceBuiltin VoiceKind = "builtin"
	// VoiceCustom voices are created via upload, carry their reference
	// audio as an embedded base64 WAV blob, and are persisted to the
	// voice library file.
	VoiceCustom VoiceKind = "custom"
)

// CreatedAtFormat is the fixed UTC timestamp format used for voice records.
const CreatedAtFormat = "2006-01-02T15:04:05Z"

// VoiceRecord is a named voice identity bound to a reference audio sample.
// Exactly one of AudioURL (builtin) or AudioBase64 (custom) is set.
type VoiceRecord struct {
	VoiceID       string    `json:"voice_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Kind          VoiceKind `json:"type"`
	CreatedAt     string    `json:"created_at"`
	AudioDuration float64   `json:"audio_duration,omitempty"`
	AudioURL      string    `json:"audio_url,omitempty"`
	AudioBase64   string    `json:"audio_base64,omitempty"`
	SampleRate    int       `json:"sample_rate,omitempty"`
}

// AudioArtifact records one generated audio file and its provenance. Records
// are immutable once created; the waveform itself lives in the object store
// under StorageKey.
type AudioArtifact struct {
	AudioID        string    `json:"audio_id"`
	StorageKey     string    `json:"storage_key"`
	Text           string    `json:"text"`
	VoiceID        string    `json:"voice_id"`
	VoiceName      string    `json:"voice_name"`
	SampleRate     int       `json:"sample_rate"`
	Duration       float64   `json:"duration"`
	GeneratedAt    time.Time `json:"generated_at"`
	GenerationTime float64   `json:"generation_time"`
}
