package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/types"
	"github.com/lumikids/pip/pkg/voice/tts"
)

type scriptedProvider struct {
	responses []*types.MessageResponse
	err       error
	requests  []*types.MessageRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) CreateMessage(_ context.Context, req *types.MessageRequest) (*types.MessageResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func textResponse(text string) *types.MessageResponse {
	return &types.MessageResponse{
		Role:       "assistant",
		Content:    []types.ContentBlock{types.TextBlock{Type: "text", Text: text}},
		StopReason: types.StopReasonEndTurn,
	}
}

func TestStoryItemConsumption(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{
			textResponse("Once upon a time... Which shall it be: the Map, the Key, or the Compass?"),
			textResponse("The map glowed... The Key or the Compass?"),
			textResponse("The key turned... Only the Compass remains. Use it?"),
			textResponse("The compass pointed home, and everyone slept happily."),
		},
	}

	c := NewController(provider, "test-model")
	session := &Session{}

	if session.State() != StateNotStarted {
		t.Fatalf("state = %q, want not_started", session.State())
	}

	_, err := c.Start(context.Background(), session, "a moonlit forest", "Luna", "fox", [3]string{"Map", "Key", "Compass"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if session.State() != StateInProgress {
		t.Errorf("state after start = %q, want in_progress", session.State())
	}

	steps := []struct {
		choose    string
		remaining []string
		complete  bool
	}{
		{"Map", []string{"Key", "Compass"}, false},
		{"Key", []string{"Compass"}, false},
		{"Compass", []string{}, true},
	}

	for _, step := range steps {
		if _, err := c.Continue(context.Background(), session, step.choose); err != nil {
			t.Fatalf("Continue(%s): %v", step.choose, err)
		}
		if got := fmt.Sprint(session.RemainingItems); got != fmt.Sprint(step.remaining) {
			t.Errorf("after %s: remaining = %v, want %v", step.choose, session.RemainingItems, step.remaining)
		}
		if complete := session.State() == StateComplete; complete != step.complete {
			t.Errorf("after %s: complete = %v, want %v", step.choose, complete, step.complete)
		}
	}

	if len(session.Segments) != 4 {
		t.Errorf("segments = %d, want 4", len(session.Segments))
	}

	// The final prompt must be a conclusion, not another choice.
	last := provider.requests[3].Messages[0].TextContent()
	if !strings.Contains(last, "conclusion") {
		t.Errorf("final prompt should request a conclusion: %q", last)
	}
}

func TestContinueRejectsUnknownItem(t *testing.T) {
	c := NewController(&scriptedProvider{}, "test-model")
	session := &Session{
		Segments:       []string{"intro"},
		RemainingItems: []string{"Key"},
	}

	if _, err := c.Continue(context.Background(), session, "Sword"); err == nil {
		t.Fatal("expected error for unknown item")
	}
	if len(session.RemainingItems) != 1 {
		t.Errorf("remaining = %v, must be untouched", session.RemainingItems)
	}
}

func TestContinueRestoresItemOnRemoteFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("503 service unavailable")}
	c := NewController(provider, "test-model")
	session := &Session{
		Segments:       []string{"intro"},
		RemainingItems: []string{"Map", "Key"},
	}

	_, err := c.Continue(context.Background(), session, "Map")
	if err == nil {
		t.Fatal("expected error")
	}
	var remote *core.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error type = %T, want *core.RemoteError", err)
	}

	if len(session.RemainingItems) != 2 {
		t.Errorf("remaining = %v, item must be restored after failure", session.RemainingItems)
	}
	if len(session.Segments) != 1 {
		t.Errorf("segments = %d, must be unchanged after failure", len(session.Segments))
	}
}

func TestSessionReset(t *testing.T) {
	session := &Session{
		Theme:          "space",
		Hero:           "Milo",
		Animal:         "owl",
		Items:          []string{"a", "b", "c"},
		RemainingItems: []string{},
		Segments:       []string{"one", "two"},
	}
	if session.State() != StateComplete {
		t.Fatalf("state = %q, want complete", session.State())
	}

	session.Reset()
	if session.State() != StateNotStarted {
		t.Errorf("state after reset = %q, want not_started", session.State())
	}
	if session.Theme != "" || len(session.Segments) != 0 {
		t.Errorf("reset left fields: %+v", session)
	}
}

// fakeNarrator synthesizes a fixed PCM clip per segment and fails on
// request.
type fakeNarrator struct {
	failOn map[int]bool
	calls  int
	texts  []string
}

func (f *fakeNarrator) Name() string { return "fake" }

func (f *fakeNarrator) Synthesize(_ context.Context, text string, _ tts.Options) (*tts.Clip, error) {
	defer func() { f.calls++ }()
	f.texts = append(f.texts, text)
	if f.failOn[f.calls] {
		return nil, errors.New("synthesis failed")
	}
	// Two samples of 16-bit PCM per clip.
	return &tts.Clip{PCM: []byte{0x00, 0x40, 0x00, 0xc0}, SampleRate: 24000}, nil
}

func TestAssembleAudiobook(t *testing.T) {
	narrator := &fakeNarrator{}
	c := NewController(&scriptedProvider{}, "test-model", WithNarrator(narrator))

	wavData, err := c.AssembleAudiobook(context.Background(), []string{"one", "two", "three"}, "voice-1")
	if err != nil {
		t.Fatalf("AssembleAudiobook: %v", err)
	}

	if string(wavData[:4]) != "RIFF" || string(wavData[8:12]) != "WAVE" {
		t.Error("output is not a WAV file")
	}
	// 3 clips x 2 samples x 2 bytes + 44-byte header.
	if len(wavData) != 44+12 {
		t.Errorf("wav length = %d, want %d", len(wavData), 44+12)
	}
}

func TestAssembleAudiobookTruncatesOnRuneBoundary(t *testing.T) {
	narrator := &fakeNarrator{}
	c := NewController(&scriptedProvider{}, "test-model", WithNarrator(narrator))

	// Two-byte runes sized so a byte cut would land mid-rune.
	long := strings.Repeat("é", MaxNarrationChars)
	if _, err := c.AssembleAudiobook(context.Background(), []string{long}, "voice-1"); err != nil {
		t.Fatalf("AssembleAudiobook: %v", err)
	}

	if len(narrator.texts) != 1 {
		t.Fatalf("synthesized %d segments, want 1", len(narrator.texts))
	}
	got := narrator.texts[0]
	if len(got) > MaxNarrationChars {
		t.Errorf("narration length = %d bytes, cap %d", len(got), MaxNarrationChars)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("hello", 10); got != "hello" {
		t.Errorf("short input changed: %q", got)
	}
	if got := truncateRunes("héllo", 2); got != "h" {
		t.Errorf("mid-rune cut = %q, want %q", got, "h")
	}
	if got := truncateRunes("héllo", 3); got != "hé" {
		t.Errorf("boundary cut = %q, want %q", got, "hé")
	}
}

func TestAssembleAudiobookSkipsFailedSegments(t *testing.T) {
	narrator := &fakeNarrator{failOn: map[int]bool{1: true}}
	c := NewController(&scriptedProvider{}, "test-model", WithNarrator(narrator))

	wavData, err := c.AssembleAudiobook(context.Background(), []string{"one", "two", "three"}, "voice-1")
	if err != nil {
		t.Fatalf("AssembleAudiobook: %v", err)
	}

	// Middle segment skipped: 2 clips x 4 bytes of PCM.
	if len(wavData) != 44+8 {
		t.Errorf("wav length = %d, want %d", len(wavData), 44+8)
	}
}

func TestAssembleAudiobookAllFailedErrors(t *testing.T) {
	narrator := &fakeNarrator{failOn: map[int]bool{0: true, 1: true}}
	c := NewController(&scriptedProvider{}, "test-model", WithNarrator(narrator))

	_, err := c.AssembleAudiobook(context.Background(), []string{"one", "two"}, "voice-1")
	if err == nil {
		t.Fatal("expected error when every segment fails")
	}
}
