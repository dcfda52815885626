// Package audio_test tests the WAV codec helper.
package audio_test

import (
	"os"
	"testing"

	"github.com/book-expert/chatterbox-service/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeClip(frames, sampleRate, channels int) audio.Clip {
	samples := make([]int16, frames*channels)
	for i := range samples {
		samples[i] = int16(i%1024 - 512)
	}

	return audio.Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

func TestEncodeDecode_RoundTripMono(t *testing.T) {
	t.Parallel()

	clip := makeClip(2400, 24000, 1)

	blob, err := audio.Encode(clip)
	require.NoError(t, err)

	decoded, err := audio.Decode(blob)
	require.NoError(t, err)

	assert.Equal(t, clip.Samples, decoded.Samples)
	assert.Equal(t, clip.SampleRate, decoded.SampleRate)
	assert.Equal(t, clip.Channels, decoded.Channels)
}

func TestEncodeDecode_RoundTripStereo(t *testing.T) {
	t.Parallel()

	clip := makeClip(800, 44100, 2)

	blob, err := audio.Encode(clip)
	require.NoError(t, err)

	decoded, err := audio.Decode(blob)
	require.NoError(t, err)

	assert.Equal(t, clip.Samples, decoded.Samples)
	assert.Equal(t, clip.SampleRate, decoded.SampleRate)
	assert.Equal(t, clip.Channels, decoded.Channels)
}

func TestClip_DurationTwoSecondsMono(t *testing.T) {
	t.Parallel()

	clip := makeClip(48000, 24000, 1)

	assert.InEpsilon(t, 2.0, clip.Duration(), 0.001)
}

func TestEncode_RejectsInvalidClips(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		clip    audio.Clip
		wantErr error
	}{
		{
			name:    "no samples",
			clip:    audio.Clip{Samples: nil, SampleRate: 24000, Channels: 1},
			wantErr: audio.ErrEmptyClip,
		},
		{
			name:    "zero sample rate",
			clip:    audio.Clip{Samples: []int16{1}, SampleRate: 0, Channels: 1},
			wantErr: audio.ErrInvalidSampleRate,
		},
		{
			name:    "zero channels",
			clip:    audio.Clip{Samples: []int16{1}, SampleRate: 24000, Channels: 0},
			wantErr: audio.ErrInvalidChannels,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := audio.Encode(testCase.clip)
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := audio.Decode([]byte("definitely not audio"))
	require.ErrorIs(t, err, audio.ErrShortHeader)
}

func TestDecode_RejectsWrongSignature(t *testing.T) {
	t.Parallel()

	blob := make([]byte, 64)
	copy(blob, "FORM")

	_, err := audio.Decode(blob)
	require.ErrorIs(t, err, audio.ErrNotRIFF)
}

func TestDecode_RejectsTruncatedData(t *testing.T) {
	t.Parallel()

	blob, err := audio.Encode(makeClip(100, 8000, 1))
	require.NoError(t, err)

	_, err = audio.Decode(blob[:len(blob)-10])
	require.ErrorIs(t, err, audio.ErrTruncatedData)
}

func TestWriteTemp_CreatesReadableFile(t *testing.T) {
	t.Parallel()

	blob, err := audio.Encode(makeClip(100, 8000, 1))
	require.NoError(t, err)

	path, err := audio.WriteTemp(blob)
	require.NoError(t, err)

	t.Cleanup(func() { _ = os.Remove(path) })

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, blob, written)
}
