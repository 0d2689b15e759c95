package tts

import (
	"context"

	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/providers/gemini"
)

// DefaultGeminiVoice is the companion's standard voice.
const DefaultGeminiVoice = "Leda"

// GeminiProvider synthesizes speech through a TTS-capable Gemini model.
// Gemini emits a fixed 24 kHz mono stream; the SampleRate option is
// ignored.
type GeminiProvider struct {
	client *gemini.Provider
	model  string
}

// NewGemini wraps an existing Gemini client for synthesis with the given
// TTS model.
func NewGemini(client *gemini.Provider, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// Synthesize converts text to PCM. Remote failures come back as
// *core.RemoteError so callers can pace retries.
func (g *GeminiProvider) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultGeminiVoice
	}

	pcm, err := core.Invoke(ctx, func(ctx context.Context) ([]byte, error) {
		return g.client.SynthesizeSpeech(ctx, g.model, text, voice)
	})
	if err != nil {
		return nil, err
	}

	return &Clip{PCM: pcm, SampleRate: gemini.SpeechSampleRate}, nil
}
