package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaWSURL   = "wss://api.cartesia.ai/tts/websocket"
	cartesiaVersion = "2025-04-16"
	cartesiaModel   = "sonic-3"

	// DefaultCartesiaSampleRate matches the rest of the speech pipeline.
	DefaultCartesiaSampleRate = 24000
)

// CartesiaProvider synthesizes speech through Cartesia. It always requests
// raw pcm_s16le output so clips drop straight into the shared codec path.
type CartesiaProvider struct {
	apiKey     string
	baseURL    string
	wsURL      string
	voice      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// CartesiaOption configures the provider.
type CartesiaOption func(*CartesiaProvider)

// WithCartesiaBaseURL overrides the HTTP endpoint, for tests.
func WithCartesiaBaseURL(u string) CartesiaOption {
	return func(c *CartesiaProvider) { c.baseURL = u }
}

// WithCartesiaWSURL overrides the websocket endpoint, for tests.
func WithCartesiaWSURL(u string) CartesiaOption {
	return func(c *CartesiaProvider) { c.wsURL = u }
}

// WithCartesiaVoice sets the default voice ID.
func WithCartesiaVoice(id string) CartesiaOption {
	return func(c *CartesiaProvider) { c.voice = id }
}

// WithCartesiaHTTPClient sets a custom HTTP client.
func WithCartesiaHTTPClient(client *http.Client) CartesiaOption {
	return func(c *CartesiaProvider) { c.httpClient = client }
}

// NewCartesia creates a Cartesia provider.
func NewCartesia(apiKey string, opts ...CartesiaOption) *CartesiaProvider {
	c := &CartesiaProvider{
		apiKey:     apiKey,
		baseURL:    cartesiaBaseURL,
		wsURL:      cartesiaWSURL,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CartesiaProvider) Name() string { return "cartesia" }

type cartesiaRequest struct {
	ModelID          string             `json:"model_id"`
	Transcript       string             `json:"transcript"`
	Voice            cartesiaVoice      `json:"voice"`
	OutputFormat     cartesiaFormat     `json:"output_format"`
	GenerationConfig *cartesiaGenConfig `json:"generation_config,omitempty"`
	ContextID        string             `json:"context_id,omitempty"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type cartesiaGenConfig struct {
	Speed float64 `json:"speed,omitempty"`
}

func (c *CartesiaProvider) buildRequest(text string, opts Options) cartesiaRequest {
	voice := opts.Voice
	if voice == "" {
		voice = c.voice
	}
	rate := opts.SampleRate
	if rate == 0 {
		rate = DefaultCartesiaSampleRate
	}

	req := cartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: voice},
		OutputFormat: cartesiaFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: rate,
		},
	}
	if opts.Speed != 0 {
		req.GenerationConfig = &cartesiaGenConfig{Speed: opts.Speed}
	}
	return req
}

// Synthesize requests the whole clip over HTTP.
func (c *CartesiaProvider) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	body, err := json.Marshal(c.buildRequest(text, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Cartesia-Version", cartesiaVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cartesia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cartesia error %d: %s", resp.StatusCode, string(errBody))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis audio: %w", err)
	}

	rate := opts.SampleRate
	if rate == 0 {
		rate = DefaultCartesiaSampleRate
	}
	return &Clip{PCM: pcm, SampleRate: rate}, nil
}

type cartesiaWSMessage struct {
	Type  string `json:"type"` // "chunk", "done", "error"
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// SynthesizeStream streams PCM chunks over the websocket API while
// generation runs.
func (c *CartesiaProvider) SynthesizeStream(ctx context.Context, text string, opts Options) (*Stream, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("cartesia_version", cartesiaVersion)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	req := c.buildRequest(text, opts)
	req.ContextID = "ctx_" + uuid.NewString()[:8]
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send synthesis request: %w", err)
	}

	stream := newStream()
	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				stream.finish(ctx.Err())
				return
			case <-stream.done:
				stream.finish(nil)
				return
			default:
			}

			var msg cartesiaWSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					stream.finish(nil)
					return
				}
				stream.finish(err)
				return
			}

			switch msg.Type {
			case "chunk":
				pcm, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					stream.finish(fmt.Errorf("decode audio chunk: %w", err))
					return
				}
				if !stream.send(pcm) {
					stream.finish(nil)
					return
				}
			case "done":
				stream.finish(nil)
				return
			case "error":
				stream.finish(fmt.Errorf("cartesia error: %s", msg.Error))
				return
			}
		}
	}()

	return stream, nil
}
