// Package server exposes the chatterbox service over HTTP. Handlers translate
// between the JSON/multipart wire surface and the engine; every failure is
// returned as a structured response with a success flag and a human-readable
// message.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/chatterbox-service/internal/audio"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/engine"
)

const (
	serviceName    = "Chatterbox TTS API"
	serviceVersion = "1.0.0"

	maxUploadBytes = 32 << 20

	// healthProbeTimeout bounds the sidecar probe from status endpoints so a
	// hung model cannot stall liveness checks for the full generate timeout.
	healthProbeTimeout = 5 * time.Second

	listingTextLimit = 50

	defaultVoiceDescription = "Custom voice"
	defaultExaggeration     = 0.5
	defaultTemperature      = 0.8
	defaultCFGWeight        = 0.5
)

// synthesizeRequest is the JSON body of POST /synthesize. Pointer fields
// distinguish "absent" from "zero" so explicit zeros are honored.
type synthesizeRequest struct {
	Text         string   `json:"text"`
	VoiceID      string   `json:"voice_id"`
	Exaggeration *float64 `json:"exaggeration"`
	Temperature  *float64 `json:"temperature"`
	CFGWeight    *float64 `json:"cfg_weight"`
	Seed         int64    `json:"seed"`
}

type statusResponse struct {
	Service         string   `json:"service"`
	Version         string   `json:"version"`
	Status          string   `json:"status"`
	ModelLoaded     bool     `json:"model_loaded"`
	Device          string   `json:"device"`
	VoicesAvailable int      `json:"voices_available"`
	Endpoints       []string `json:"endpoints"`
}

type healthResponse struct {
	Status      string  `json:"status"`
	ModelLoaded bool    `json:"model_loaded"`
	Device      string  `json:"device"`
	VoicesTotal int     `json:"voices_total"`
	Timestamp   float64 `json:"timestamp"`
}

type voiceListResponse struct {
	Voices  []core.VoiceRecord `json:"voices"`
	Total   int                `json:"total"`
	Builtin int                `json:"builtin"`
	Custom  int                `json:"custom"`
}

type voiceResponse struct {
	Success   bool              `json:"success"`
	VoiceID   string            `json:"voice_id,omitempty"`
	Message   string            `json:"message"`
	VoiceInfo *core.VoiceRecord `json:"voice_info,omitempty"`
}

type synthesizeResponse struct {
	Success    bool    `json:"success"`
	AudioID    string  `json:"audio_id,omitempty"`
	Message    string  `json:"message"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type audioSummary struct {
	AudioID     string    `json:"audio_id"`
	Text        string    `json:"text"`
	VoiceName   string    `json:"voice_name"`
	Duration    float64   `json:"duration"`
	GeneratedAt time.Time `json:"generated_at"`
}

type audioListResponse struct {
	AudioFiles []audioSummary `json:"audio_files"`
	Total      int            `json:"total"`
}

// Handler serves the HTTP API.
type Handler struct {
	engine *engine.Engine
	device string
	log    *logger.Logger
}

// New creates the API handler. The device string is a deployment label
// (e.g. "cuda", "cpu") reported by status and health endpoints.
func New(eng *engine.Engine, device string, log *logger.Logger) *Handler {
	return &Handler{
		engine: eng,
		device: device,
		log:    log,
	}
}

// Register adds all API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /voices", h.ListVoices)
	mux.HandleFunc("POST /voices", h.CreateVoice)
	mux.HandleFunc("DELETE /voices/{voice_id}", h.DeleteVoice)
	mux.HandleFunc("POST /synthesize", h.Synthesize)
	mux.HandleFunc("GET /audio", h.ListAudio)
	mux.HandleFunc("GET /audio/{audio_id}", h.GetAudio)
	mux.HandleFunc("GET /audio/{audio_id}/info", h.GetAudioInfo)
}

// modelLoaded probes the model sidecar under a short deadline.
func (h *Handler) modelLoaded(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	return h.engine.Healthy(probeCtx) == nil
}

// Root reports a service status summary.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	modelLoaded := h.modelLoaded(r.Context())

	status := "operational"
	if !modelLoaded {
		status = "model_loading"
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Service:         serviceName,
		Version:         serviceVersion,
		Status:          status,
		ModelLoaded:     modelLoaded,
		Device:          h.device,
		VoicesAvailable: h.engine.Registry().Count(),
		Endpoints: []string{
			"GET /voices - List all voices",
			"POST /voices - Create new voice",
			"DELETE /voices/{voice_id} - Delete voice",
			"POST /synthesize - Generate speech",
			"GET /audio/{audio_id} - Download audio",
		},
	})
}

// Health is the liveness/readiness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	modelLoaded := h.modelLoaded(r.Context())

	status := "healthy"
	if !modelLoaded {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		ModelLoaded: modelLoaded,
		Device:      h.device,
		VoicesTotal: h.engine.Registry().Count(),
		Timestamp:   float64(time.Now().UnixMilli()) / 1000,
	})
}

// ListVoices returns all voice summaries with kind counts.
func (h *Handler) ListVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.engine.Registry().List()

	builtin := 0

	for _, record := range voices {
		if record.Kind == core.VoiceBuiltin {
			builtin++
		}
	}

	writeJSON(w, http.StatusOK, voiceListResponse{
		Voices:  voices,
		Total:   len(voices),
		Builtin: builtin,
		Custom:  len(voices) - builtin,
	})
}

// CreateVoice creates a custom voice from a multipart upload.
func (h *Handler) CreateVoice(w http.ResponseWriter, r *http.Request) {
	parseErr := r.ParseMultipartForm(maxUploadBytes)
	if parseErr != nil {
		h.writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", parseErr))

		return
	}

	name := r.FormValue("voice_name")

	description := r.FormValue("voice_description")
	if description == "" {
		description = defaultVoiceDescription
	}

	clip, clipErr := h.readUploadedClip(r)
	if clipErr != nil {
		h.writeFailure(w, http.StatusBadRequest, clipErr.Error())

		return
	}

	record, createErr := h.engine.Registry().Create(clip, name, description)
	if createErr != nil {
		h.log.Error("Voice creation failed: %v", createErr)
		h.writeFailure(w, statusForError(createErr), createErr.Error())

		return
	}

	summary := record
	summary.AudioBase64 = ""

	writeJSON(w, http.StatusOK, voiceResponse{
		Success:   true,
		VoiceID:   record.VoiceID,
		Message:   fmt.Sprintf("Voice '%s' created successfully", record.Name),
		VoiceInfo: &summary,
	})
}

// DeleteVoice removes a custom voice.
func (h *Handler) DeleteVoice(w http.ResponseWriter, r *http.Request) {
	voiceID := r.PathValue("voice_id")

	record, err := h.engine.Registry().Delete(voiceID)
	if err != nil {
		h.writeFailure(w, statusForError(err), err.Error())

		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: fmt.Sprintf("Voice '%s' deleted successfully", record.Name),
	})
}

// Synthesize generates speech from text.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest

	decodeErr := json.NewDecoder(r.Body).Decode(&req)
	if decodeErr != nil {
		h.writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", decodeErr))

		return
	}

	result, err := h.engine.Synthesize(r.Context(), engine.Request{
		Text:         req.Text,
		VoiceID:      req.VoiceID,
		Exaggeration: floatOrDefault(req.Exaggeration, defaultExaggeration),
		Temperature:  floatOrDefault(req.Temperature, defaultTemperature),
		CFGWeight:    floatOrDefault(req.CFGWeight, defaultCFGWeight),
		Seed:         req.Seed,
	})
	if err != nil {
		h.log.Error("Synthesis failed: %v", err)
		h.writeFailure(w, statusForError(err), err.Error())

		return
	}

	writeJSON(w, http.StatusOK, synthesizeResponse{
		Success:    true,
		AudioID:    result.AudioID,
		Message:    result.Message,
		SampleRate: result.SampleRate,
		Duration:   result.Duration,
	})
}

// GetAudio streams a stored waveform as a WAV attachment.
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	audioID := r.PathValue("audio_id")

	_, data, err := h.engine.OpenArtifact(r.Context(), audioID)
	if err != nil {
		h.writeFailure(w, statusForError(err), err.Error())

		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=tts_%s.wav", audioID),
	)
	_, _ = w.Write(data)
}

// GetAudioInfo returns artifact metadata.
func (h *Handler) GetAudioInfo(w http.ResponseWriter, r *http.Request) {
	audioID := r.PathValue("audio_id")

	entry, err := h.engine.Cache().Get(audioID)
	if err != nil {
		h.writeFailure(w, statusForError(err), err.Error())

		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListAudio lists all generated artifacts, with text truncated for display.
func (h *Handler) ListAudio(w http.ResponseWriter, _ *http.Request) {
	entries := h.engine.Cache().List()

	summaries := make([]audioSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, audioSummary{
			AudioID:     entry.AudioID,
			Text:        truncateForListing(entry.Text),
			VoiceName:   entry.VoiceName,
			Duration:    entry.Duration,
			GeneratedAt: entry.GeneratedAt,
		})
	}

	writeJSON(w, http.StatusOK, audioListResponse{
		AudioFiles: summaries,
		Total:      len(summaries),
	})
}

func (h *Handler) readUploadedClip(r *http.Request) (audio.Clip, error) {
	file, _, fileErr := r.FormFile("audio_file")
	if fileErr != nil {
		return audio.Clip{}, fmt.Errorf("missing audio_file upload: %w", fileErr)
	}
	defer file.Close()

	data, readErr := io.ReadAll(file)
	if readErr != nil {
		return audio.Clip{}, fmt.Errorf("failed to read uploaded audio: %w", readErr)
	}

	clip, decodeErr := audio.Decode(data)
	if decodeErr != nil {
		return audio.Clip{}, fmt.Errorf("uploaded audio is not valid PCM16 WAV: %w", decodeErr)
	}

	return clip, nil
}

func (h *Handler) writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{
		Success: false,
		Message: message,
	})
}

// statusForError maps the core taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func floatOrDefault(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}

	return *value
}

func truncateForListing(text string) string {
	runes := []rune(text)
	if len(runes) <= listingTextLimit {
		return text
	}

	return string(runes[:listingTextLimit]) + "..."
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, `{"success":false,"message":"encoding error"}`, http.StatusInternalServerError)
	}
}
