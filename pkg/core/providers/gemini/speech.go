package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/lumikids/pip/pkg/core/types"
)

// SynthesizeSpeech converts text to speech through a TTS-capable Gemini
// model. The returned bytes are raw signed 16-bit little-endian PCM at
// SpeechSampleRate (24 kHz), mono. The model has no other output format.
func (p *Provider) SynthesizeSpeech(ctx context.Context, model, text, voice string) ([]byte, error) {
	req := &types.MessageRequest{
		Model:    model,
		Messages: []types.Message{types.NewTextMessage("user", text)},
		Speech:   &types.SpeechConfig{Voice: voice},
	}

	resp, err := p.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	audio := resp.AudioContent()
	if audio == nil {
		return nil, &Error{
			Type:    ErrProvider,
			Message: fmt.Sprintf("no audio in synthesis response for model %s", model),
		}
	}

	pcm, err := base64.StdEncoding.DecodeString(audio.Source.Data)
	if err != nil {
		return nil, fmt.Errorf("decode synthesis payload: %w", err)
	}

	return pcm, nil
}
