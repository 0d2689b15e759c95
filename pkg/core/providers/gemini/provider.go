// Package gemini implements the Google Generative Language API provider.
// It translates between the neutral message format and Gemini's wire format.
package gemini

import (
	"context"
	"net/http"

	"github.com/lumikids/pip/pkg/core/types"
)

const (
	// DefaultBaseURL is the default Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultMaxTokens is the default max tokens if not specified.
	DefaultMaxTokens = 4096

	// SpeechSampleRate is the fixed output rate of Gemini speech synthesis:
	// raw signed 16-bit little-endian PCM at 24 kHz, mono.
	SpeechSampleRate = 24000
)

// Provider implements the Gemini API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Gemini provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// CreateMessage sends a non-streaming request to Gemini.
func (p *Provider) CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error) {
	model := stripProviderPrefix(req.Model)

	geminiReq := p.buildRequest(req)

	respBody, err := p.doRequest(ctx, model, geminiReq)
	if err != nil {
		return nil, err
	}

	return p.parseResponse(respBody, model)
}
