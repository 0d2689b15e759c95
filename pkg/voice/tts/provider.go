// Package tts turns the companion's text replies into speech. All providers
// emit raw 16-bit little-endian PCM so the rest of the pipeline can share
// one codec path.
package tts

import (
	"context"
	"sync"
)

// Provider synthesizes a complete utterance in one call.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to a PCM clip.
	Synthesize(ctx context.Context, text string, opts Options) (*Clip, error)
}

// Streamer is implemented by providers that can deliver audio chunks while
// synthesis is still running, for lower time-to-first-sound on long
// narration.
type Streamer interface {
	SynthesizeStream(ctx context.Context, text string, opts Options) (*Stream, error)
}

// Options configures one synthesis call. Zero values mean provider
// defaults.
type Options struct {
	Voice      string  // provider-specific voice identifier
	Speed      float64 // speed multiplier, 1.0 is normal
	SampleRate int     // output sample rate in Hz
}

// Clip is one synthesized utterance as raw 16-bit LE PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Stream delivers PCM chunks as they are generated. The chunks channel is
// closed when synthesis finishes or fails; check Err after draining.
type Stream struct {
	chunks   chan []byte
	mu       sync.Mutex
	err      error
	done     chan struct{}
	stopOnce sync.Once
}

func newStream() *Stream {
	return &Stream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of PCM chunks.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Err blocks until the stream finishes and returns its terminal error.
func (s *Stream) Err() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream early. Safe to call more than once and
// concurrently with the producer finishing.
func (s *Stream) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

func (s *Stream) send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.chunks)
	s.stopOnce.Do(func() { close(s.done) })
}
