//go:build portaudio

package playback

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

func init() {
	DefaultSinkFactory = func() (Sink, error) {
		return OpenSpeaker(DefaultSampleRate)
	}
}

// SpeakerSink writes frames to the default output device. Stream.Write
// blocks until the device accepts the buffer, which paces playback.
type SpeakerSink struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenSpeaker initializes PortAudio and opens a mono output stream.
func OpenSpeaker(sampleRate int) (*SpeakerSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	framesPerBuffer := sampleRate * int(FrameDuration.Milliseconds()) / 1000
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return &SpeakerSink{stream: stream, buf: buf}, nil
}

func (s *SpeakerSink) Write(frame []float32) error {
	for len(frame) > 0 {
		n := copy(s.buf, frame)
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
		frame = frame[n:]
	}
	return nil
}

// Close stops the stream and releases PortAudio.
func (s *SpeakerSink) Close() error {
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
