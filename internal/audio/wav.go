// Package audio provides lossless encoding and decoding of PCM16 sample data
// in a WAV container. The container is self-describing: sample rate and
// channel count survive a round trip exactly.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
	pcmFormatTag  = 1

	tempFilePattern = "chatterbox-audio-*.wav"
	filePermissions = 0o600
)

// Static errors.
var (
	ErrEmptyClip          = errors.New("clip has no samples")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
	ErrInvalidChannels    = errors.New("channel count must be positive")
	ErrShortHeader        = errors.New("data too short for a WAV header")
	ErrNotRIFF            = errors.New("missing RIFF/WAVE signature")
	ErrUnsupportedFormat  = errors.New("only PCM16 WAV data is supported")
	ErrTruncatedData      = errors.New("data chunk is truncated")
	ErrMissingDataChunk   = errors.New("missing data chunk")
	ErrOddDataChunkLength = errors.New("data chunk length is not sample-aligned")
)

// Clip is decoded audio: interleaved PCM16 samples plus the container
// metadata needed to reconstruct them exactly.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}

	frames := len(c.Samples) / c.Channels

	return float64(frames) / float64(c.SampleRate)
}

// Encode serializes the clip into a complete WAV container. On any
// validation failure no partial output is produced.
func Encode(clip Clip) ([]byte, error) {
	validationErr := validateClip(clip)
	if validationErr != nil {
		return nil, validationErr
	}

	dataSize := len(clip.Samples) * 2
	byteRate := clip.SampleRate * clip.Channels * bitsPerSample / 8
	blockAlign := clip.Channels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(out[22:24], uint16(clip.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(clip.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, sample := range clip.Samples {
		binary.LittleEndian.PutUint16(
			out[wavHeaderSize+i*2:wavHeaderSize+i*2+2],
			uint16(sample),
		)
	}

	return out, nil
}

// Decode parses a WAV container back into a Clip. It walks the chunk list
// rather than assuming a fixed layout, so containers with extra chunks
// (LIST, fact) decode correctly.
func Decode(blob []byte) (Clip, error) {
	if len(blob) < wavHeaderSize {
		return Clip{}, ErrShortHeader
	}

	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		return Clip{}, ErrNotRIFF
	}

	clip, fmtFound, dataFound, err := scanChunks(blob)
	if err != nil {
		return Clip{}, err
	}

	if !fmtFound || !dataFound {
		return Clip{}, ErrMissingDataChunk
	}

	return clip, nil
}

// WriteTemp materializes an encoded blob as a fresh temporary file and
// returns its path. The caller owns the file and must remove it.
func WriteTemp(blob []byte) (string, error) {
	tempFile, err := os.CreateTemp("", tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}

	_, writeErr := tempFile.Write(blob)
	closeErr := tempFile.Close()

	if writeErr != nil {
		_ = os.Remove(tempFile.Name())

		return "", fmt.Errorf("failed to write temp audio file: %w", writeErr)
	}

	if closeErr != nil {
		_ = os.Remove(tempFile.Name())

		return "", fmt.Errorf("failed to close temp audio file: %w", closeErr)
	}

	return tempFile.Name(), nil
}

func validateClip(clip Clip) error {
	if len(clip.Samples) == 0 {
		return ErrEmptyClip
	}

	if clip.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if clip.Channels <= 0 {
		return ErrInvalidChannels
	}

	return nil
}

func scanChunks(blob []byte) (Clip, bool, bool, error) {
	var clip Clip

	var fmtFound, dataFound bool

	offset := 12
	for offset+8 <= len(blob) {
		chunkID := string(blob[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(blob[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkSize > len(blob) {
			return Clip{}, false, false, ErrTruncatedData
		}

		switch chunkID {
		case "fmt ":
			fmtErr := parseFormatChunk(blob[body:body+chunkSize], &clip)
			if fmtErr != nil {
				return Clip{}, false, false, fmtErr
			}

			fmtFound = true
		case "data":
			dataErr := parseDataChunk(blob[body:body+chunkSize], &clip)
			if dataErr != nil {
				return Clip{}, false, false, dataErr
			}

			dataFound = true
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	return clip, fmtFound, dataFound, nil
}

func parseFormatChunk(body []byte, clip *Clip) error {
	if len(body) < 16 {
		return ErrShortHeader
	}

	formatTag := binary.LittleEndian.Uint16(body[0:2])
	bits := binary.LittleEndian.Uint16(body[14:16])

	if formatTag != pcmFormatTag || bits != bitsPerSample {
		return ErrUnsupportedFormat
	}

	clip.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
	clip.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))

	if clip.Channels <= 0 {
		return ErrInvalidChannels
	}

	if clip.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	return nil
}

func parseDataChunk(body []byte, clip *Clip) error {
	if len(body)%2 != 0 {
		return ErrOddDataChunkLength
	}

	samples := make([]int16, len(body)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(body[i*2 : i*2+2]))
	}

	clip.Samples = samples

	return nil
}
