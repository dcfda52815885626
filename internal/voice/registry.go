// Package voice owns the mapping from voice identifier to voice record. It
// seeds the builtin voices at startup, persists custom voices to a JSON
// library file, and resolves any voice to a playable reference-audio path.
package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/chatterbox-service/internal/audio"
	"github.com/book-expert/chatterbox-service/internal/core"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600

	voiceIDUUIDLength = 8
)

// Static errors.
var (
	ErrNameEmpty     = errors.New("voice name cannot be empty")
	ErrNoReference   = errors.New("voice record carries no reference audio")
	ErrVoiceNotFound = errors.New("voice not found")
	ErrBuiltinVoice  = errors.New("cannot delete builtin voices")
)

// builtinSeeds is the fixed seed table of voices every registry starts with.
// These ids are reserved and never reassigned.
var builtinSeeds = []core.VoiceRecord{
	{
		VoiceID:     "female_default",
		Name:        "Female Default",
		Description: "Professional female voice",
		Kind:        core.VoiceBuiltin,
		CreatedAt:   "2024-01-01T00:00:00Z",
		AudioURL:    "https://storage.googleapis.com/chatterbox-demo-samples/prompts/female_shadowheart4.flac",
	},
	{
		VoiceID:     "male_professional",
		Name:        "Male Professional",
		Description: "Confident male voice",
		Kind:        core.VoiceBuiltin,
		CreatedAt:   "2024-01-01T00:00:00Z",
		AudioURL:    "https://storage.googleapis.com/chatterbox-demo-samples/prompts/male_professional.flac",
	},
}

// RemoteFetcher downloads a remote blob to a fresh temporary file.
type RemoteFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Registry is the single source of truth for voice identities. All mutations
// are serialized under one writer lock, and the custom subset is rewritten to
// the library file (write-temp-then-rename) before a mutation commits.
type Registry struct {
	mu          sync.RWMutex
	records     map[string]core.VoiceRecord
	order       []string
	libraryPath string
	fetcher     RemoteFetcher
	log         *logger.Logger
}

// NewRegistry seeds the builtin voices, then merges any custom records found
// at libraryPath. An unreadable or malformed library is logged and skipped;
// startup is never fatal on persistence problems.
func NewRegistry(
	libraryPath string,
	fetcher RemoteFetcher,
	log *logger.Logger,
) (*Registry, error) {
	registry := &Registry{
		mu:          sync.RWMutex{},
		records:     make(map[string]core.VoiceRecord),
		order:       nil,
		libraryPath: libraryPath,
		fetcher:     fetcher,
		log:         log,
	}

	for _, seed := range builtinSeeds {
		registry.records[seed.VoiceID] = seed
		registry.order = append(registry.order, seed.VoiceID)
	}

	registry.loadLibrary()

	return registry, nil
}

// List returns summaries of every voice: builtins first, then custom records
// in creation order. Repeated calls without mutation return identical output.
func (r *Registry) List() []core.VoiceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]core.VoiceRecord, 0, len(r.order))
	for _, id := range r.order {
		records = append(records, summaryOf(r.records[id]))
	}

	return records
}

// Get returns the record for id, or core.ErrNotFound.
func (r *Registry) Get(id string) (core.VoiceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return core.VoiceRecord{}, fmt.Errorf("%w: %w: '%s'", core.ErrNotFound, ErrVoiceNotFound, id)
	}

	return record, nil
}

// Count returns the number of registered voices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

// Create registers a custom voice from an uploaded clip. The clip is encoded
// into the embedded WAV representation and the full custom set is persisted
// before the new record becomes visible. On encode or persist failure nothing
// is inserted.
func (r *Registry) Create(
	clip audio.Clip,
	name, description string,
) (core.VoiceRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.VoiceRecord{}, fmt.Errorf("%w: %w", core.ErrInvalidInput, ErrNameEmpty)
	}

	blob, encodeErr := audio.Encode(clip)
	if encodeErr != nil {
		return core.VoiceRecord{}, fmt.Errorf("failed to encode voice audio: %w", encodeErr)
	}

	record := core.VoiceRecord{
		VoiceID:       newVoiceID(),
		Name:          name,
		Description:   strings.TrimSpace(description),
		Kind:          core.VoiceCustom,
		CreatedAt:     time.Now().UTC().Format(core.CreatedAtFormat),
		AudioDuration: clip.Duration(),
		AudioURL:      "",
		AudioBase64:   base64.StdEncoding.EncodeToString(blob),
		SampleRate:    clip.SampleRate,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.VoiceID] = record
	r.order = append(r.order, record.VoiceID)

	persistErr := r.persistLocked()
	if persistErr != nil {
		delete(r.records, record.VoiceID)
		r.order = r.order[:len(r.order)-1]

		return core.VoiceRecord{}, fmt.Errorf("failed to persist voice library: %w", persistErr)
	}

	r.log.Info("Created voice: %s (%s)", record.Name, record.VoiceID)

	return record, nil
}

// Delete removes a custom voice. Unknown ids fail with core.ErrNotFound and
// builtin ids with core.ErrInvalidOperation. The library file is rewritten
// before the in-memory removal commits, so a failed write leaves the registry
// unchanged.
func (r *Registry) Delete(id string) (core.VoiceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return core.VoiceRecord{}, fmt.Errorf("%w: %w: '%s'", core.ErrNotFound, ErrVoiceNotFound, id)
	}

	if record.Kind == core.VoiceBuiltin {
		return core.VoiceRecord{}, fmt.Errorf("%w: %w", core.ErrInvalidOperation, ErrBuiltinVoice)
	}

	delete(r.records, id)

	persistErr := r.persistLocked()
	if persistErr != nil {
		r.records[id] = record

		return core.VoiceRecord{}, fmt.Errorf("failed to persist voice library: %w", persistErr)
	}

	for i, orderedID := range r.order {
		if orderedID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)

			break
		}
	}

	r.log.Info("Deleted voice: %s (%s)", record.Name, id)

	return record, nil
}

// ResolveAudioPath produces a locally readable reference-audio file for the
// voice: custom records decode their embedded blob, builtin records fetch
// their remote URL. Every call manufactures a new temporary file that the
// caller must remove.
func (r *Registry) ResolveAudioPath(ctx context.Context, id string) (string, error) {
	record, err := r.Get(id)
	if err != nil {
		return "", err
	}

	switch {
	case record.Kind == core.VoiceCustom && record.AudioBase64 != "":
		return r.resolveEmbedded(record)
	case record.Kind == core.VoiceBuiltin && record.AudioURL != "":
		return r.fetcher.Fetch(ctx, record.AudioURL)
	default:
		return "", fmt.Errorf("%w: '%s'", ErrNoReference, id)
	}
}

func (r *Registry) resolveEmbedded(record core.VoiceRecord) (string, error) {
	blob, decodeErr := base64.StdEncoding.DecodeString(record.AudioBase64)
	if decodeErr != nil {
		return "", fmt.Errorf(
			"failed to decode embedded audio for voice '%s': %w",
			record.VoiceID,
			decodeErr,
		)
	}

	path, writeErr := audio.WriteTemp(blob)
	if writeErr != nil {
		return "", fmt.Errorf(
			"failed to materialize audio for voice '%s': %w",
			record.VoiceID,
			writeErr,
		)
	}

	return path, nil
}

// loadLibrary merges persisted custom records into the registry. Builtin ids
// from the seed table are never overwritten.
func (r *Registry) loadLibrary() {
	data, readErr := os.ReadFile(r.libraryPath)
	if readErr != nil {
		if !errors.Is(readErr, os.ErrNotExist) {
			r.log.Error("Failed to read voice library %s: %v", r.libraryPath, readErr)
		} else {
			r.log.Info("No existing voice library found, starting fresh")
		}

		return
	}

	var persisted map[string]core.VoiceRecord

	unmarshalErr := json.Unmarshal(data, &persisted)
	if unmarshalErr != nil {
		r.log.Error(
			"Malformed voice library %s, continuing with builtin voices only: %v",
			r.libraryPath,
			unmarshalErr,
		)

		return
	}

	loaded := 0

	for _, id := range sortedByCreation(persisted) {
		if existing, ok := r.records[id]; ok && existing.Kind == core.VoiceBuiltin {
			continue
		}

		record := persisted[id]
		record.Kind = core.VoiceCustom
		r.records[id] = record
		r.order = append(r.order, id)
		loaded++
	}

	r.log.Info("Loaded %d custom voices from %s", loaded, r.libraryPath)
}

// persistLocked rewrites the full custom subset of the registry. Builtin
// records are reconstructible from the seed table and never persisted. The
// caller must hold the write lock.
func (r *Registry) persistLocked() error {
	custom := make(map[string]core.VoiceRecord)

	for id, record := range r.records {
		if record.Kind != core.VoiceBuiltin {
			custom[id] = record
		}
	}

	data, marshalErr := json.MarshalIndent(custom, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal voice library: %w", marshalErr)
	}

	dirErr := os.MkdirAll(filepath.Dir(r.libraryPath), dirPermissions)
	if dirErr != nil {
		return fmt.Errorf("failed to create voice library directory: %w", dirErr)
	}

	tempFile, tempErr := os.CreateTemp(filepath.Dir(r.libraryPath), "voices-*.json")
	if tempErr != nil {
		return fmt.Errorf("failed to create voice library temp file: %w", tempErr)
	}

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempFile.Name())

		return fmt.Errorf(
			"failed to write voice library temp file: %w",
			errors.Join(writeErr, closeErr),
		)
	}

	chmodErr := os.Chmod(tempFile.Name(), filePermissions)
	if chmodErr != nil {
		_ = os.Remove(tempFile.Name())

		return fmt.Errorf("failed to set voice library permissions: %w", chmodErr)
	}

	renameErr := os.Rename(tempFile.Name(), r.libraryPath)
	if renameErr != nil {
		_ = os.Remove(tempFile.Name())

		return fmt.Errorf("failed to replace voice library: %w", renameErr)
	}

	return nil
}

// sortedByCreation orders persisted record ids by creation time so listings
// keep creation order across restarts. CreatedAt has second resolution; the
// timestamp-prefixed voice id breaks ties deterministically.
func sortedByCreation(persisted map[string]core.VoiceRecord) []string {
	ids := make([]string, 0, len(persisted))
	for id := range persisted {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		left, right := persisted[ids[i]], persisted[ids[j]]
		if left.CreatedAt != right.CreatedAt {
			return left.CreatedAt < right.CreatedAt
		}

		return ids[i] < ids[j]
	})

	return ids
}

// summaryOf strips the embedded audio payload from a record for listings.
func summaryOf(record core.VoiceRecord) core.VoiceRecord {
	record.AudioBase64 = ""

	return record
}

func newVoiceID() string {
	return fmt.Sprintf(
		"voice_%d_%s",
		time.Now().Unix(),
		uuid.NewString()[:voiceIDUUIDLength],
	)
}
