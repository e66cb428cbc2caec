package playback

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// DefaultSampleRate 语音合成输出的采样率（单声道 PCM16）。
const DefaultSampleRate = 24000

// ErrEmptyAudio is returned when a payload decodes to zero samples.
var ErrEmptyAudio = errors.New("audio payload is empty")

// Clip is a decoded mono buffer with samples normalized to [-1, 1).
type Clip struct {
	Samples    []float32
	SampleRate int
	raw        []byte
}

// Duration is the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// PCM returns the little-endian PCM16 bytes the clip was decoded from.
func (c Clip) PCM() []byte {
	return c.raw
}

// DecodeBase64PCM decodes base64 little-endian PCM16 mono audio. A trailing
// odd byte is dropped.
func DecodeBase64PCM(payload string, sampleRate int) (Clip, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Clip{}, fmt.Errorf("decode base64 audio: %w", err)
	}
	return DecodePCM16(raw, sampleRate)
}

// DecodePCM16 converts raw little-endian PCM16 bytes into a Clip.
func DecodePCM16(raw []byte, sampleRate int) (Clip, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := len(raw) / 2
	if n == 0 {
		return Clip{}, ErrEmptyAudio
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return Clip{Samples: samples, SampleRate: sampleRate, raw: raw[:n*2]}, nil
}

// EncodePCM16 converts normalized samples back to little-endian PCM16,
// clamping out-of-range values.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// RMS is the root mean square level of a frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// WriteWAV writes mono PCM16LE bytes to w as a canonical 44-byte-header WAV.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// EncodeWAV is WriteWAV into a byte slice.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}
