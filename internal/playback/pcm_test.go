package playback

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBase64PCM(t *testing.T) {
	clip, err := DecodeBase64PCM(pcmPayload(32767, -32768, 0, -16384), 24000)
	require.NoError(t, err)

	assert.Len(t, clip.Samples, 4)
	assert.InDelta(t, 0.99997, clip.Samples[0], 1e-4)
	assert.Equal(t, float32(-1), clip.Samples[1])
	assert.Equal(t, float32(-0.5), clip.Samples[3])
	for _, s := range clip.Samples {
		assert.GreaterOrEqual(t, s, float32(-1))
		assert.Less(t, s, float32(1))
	}
}

func TestDecodePCM16DropsOddByte(t *testing.T) {
	clip, err := DecodePCM16([]byte{0x00, 0x40, 0x7f}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, clip.Samples)
	assert.Equal(t, DefaultSampleRate, clip.SampleRate)
	assert.Equal(t, []byte{0x00, 0x40}, clip.PCM())
}

func TestDecodePCM16Empty(t *testing.T) {
	_, err := DecodePCM16([]byte{0x01}, 24000)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestClipDuration(t *testing.T) {
	clip := Clip{Samples: make([]float32, 36000), SampleRate: 24000}
	assert.Equal(t, 1500*time.Millisecond, clip.Duration())
}

func TestEncodePCM16RoundTrip(t *testing.T) {
	clip, err := DecodePCM16(EncodePCM16([]float32{0.25, -0.75, 2}), 24000)
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), clip.Samples[0])
	assert.Equal(t, float32(-0.75), clip.Samples[1])
	assert.InDelta(t, 1, clip.Samples[2], 1e-4)
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := EncodeWAV(pcm, 24000)

	require.Len(t, wav, 48)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(wav[40:44]))
	assert.True(t, bytes.Equal(pcm, wav[44:]))
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5}), 1e-9)
}
