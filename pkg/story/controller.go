package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/lumikids/pip/pkg/audio"
	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/types"
	"github.com/lumikids/pip/pkg/voice/tts"
)

const (
	// MaxSegmentChars bounds each spoken story segment.
	MaxSegmentChars = 450

	// MaxNarrationChars bounds one synthesis request when assembling the
	// audiobook. Narration quality matters more than latency there, so the
	// cap is looser than conversational speech.
	MaxNarrationChars = 1500
)

// Precondition failures on Continue. Distinct from remote errors so the
// caller can treat them as bad requests.
var (
	ErrNotStarted  = errors.New("story not started")
	ErrComplete    = errors.New("story already complete")
	ErrUnknownItem = errors.New("item not in remaining pool")
)

const storySystemPrompt = `You are Pip, a gentle storyteller for young
children. Tell whimsical, kind, completely child-safe stories. Keep each
segment under 450 characters. Never frighten, never moralize heavily, and
always leave room for wonder.`

// Controller generates story segments and narrated audiobooks.
type Controller struct {
	provider core.Provider
	model    string
	narrator tts.Provider
	logger   *slog.Logger
}

// Option configures the Controller.
type Option func(*Controller)

// WithNarrator sets the synthesis provider used for audiobooks.
func WithNarrator(p tts.Provider) Option {
	return func(c *Controller) { c.narrator = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController wires the controller to a model provider.
func NewController(provider core.Provider, model string, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		model:    model,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a new story and returns the intro segment. The session is
// populated with the theme, cast, and full item pool; the intro ends by
// naming the items and asking the child to choose. Remote failures
// propagate as *core.RemoteError.
func (c *Controller) Start(ctx context.Context, session *Session, theme, hero, animal string, items [3]string) (string, error) {
	prompt := fmt.Sprintf(
		"Begin a story. Theme: %s. The hero is %s, accompanied by their animal friend, a %s. "+
			"The hero carries three magic items: %s. "+
			"Write the opening segment (under %d characters). End it by naming all three items and asking which one the hero should use first.",
		theme, hero, animal, strings.Join(items[:], ", "), MaxSegmentChars,
	)

	intro, err := c.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	session.Theme = theme
	session.Hero = hero
	session.Animal = animal
	session.Items = append([]string(nil), items[:]...)
	session.RemainingItems = append([]string(nil), items[:]...)
	session.Segments = []string{intro}
	return intro, nil
}

// Continue consumes the chosen item and returns the next segment: a
// chapter while items remain, the conclusion once the pool is empty.
func (c *Controller) Continue(ctx context.Context, session *Session, chosenItem string) (string, error) {
	if session.State() == StateNotStarted {
		return "", ErrNotStarted
	}
	if session.State() == StateComplete {
		return "", ErrComplete
	}
	if !session.consumeItem(chosenItem) {
		return "", fmt.Errorf("%w: %q", ErrUnknownItem, chosenItem)
	}

	soFar := strings.Join(session.Segments, "\n\n")

	var prompt string
	if len(session.RemainingItems) > 0 {
		prompt = fmt.Sprintf(
			"The story so far:\n%s\n\nThe hero uses the %s. "+
				"Write the next chapter (under %d characters). End it by naming the remaining items (%s) and asking which to use next.",
			soFar, chosenItem, MaxSegmentChars, strings.Join(session.RemainingItems, ", "),
		)
	} else {
		prompt = fmt.Sprintf(
			"The story so far:\n%s\n\nThe hero uses the %s, the last magic item. "+
				"Write the conclusion (under %d characters). Wrap the story up warmly. Do not offer any more choices.",
			soFar, chosenItem, MaxSegmentChars,
		)
	}

	segment, err := c.generate(ctx, prompt)
	if err != nil {
		// Give the item back so the child can retry the same choice.
		session.RemainingItems = append(session.RemainingItems, chosenItem)
		return "", err
	}

	session.Segments = append(session.Segments, segment)
	return segment, nil
}

func (c *Controller) generate(ctx context.Context, prompt string) (string, error) {
	req := &types.MessageRequest{
		Model:    c.model,
		Messages: []types.Message{types.NewTextMessage("user", prompt)},
		System:   storySystemPrompt,
	}

	resp, err := core.Invoke(ctx, func(ctx context.Context) (*types.MessageResponse, error) {
		return c.provider.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", err
	}

	segment := strings.TrimSpace(resp.FirstText())
	if segment == "" {
		return "", core.Classify(fmt.Errorf("empty story segment"))
	}
	return segment, nil
}

// AssembleAudiobook narrates each segment, concatenates the audio, and
// returns one WAV file. A segment whose synthesis fails is skipped; if
// every segment fails the whole operation fails rather than emitting an
// empty file.
func (c *Controller) AssembleAudiobook(ctx context.Context, segments []string, voice string) ([]byte, error) {
	if c.narrator == nil {
		return nil, fmt.Errorf("no narrator configured")
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments to narrate")
	}

	var buffers []*audio.Buffer
	for i, segment := range segments {
		text := truncateRunes(segment, MaxNarrationChars)

		clip, err := c.narrator.Synthesize(ctx, text, tts.Options{Voice: voice})
		if err != nil {
			c.logger.Warn("audiobook segment synthesis failed, skipping", "segment", i, "error", err)
			continue
		}

		buf, err := audio.DecodeSamples(clip.PCM, clip.SampleRate)
		if err != nil {
			c.logger.Warn("audiobook segment decode failed, skipping", "segment", i, "error", err)
			continue
		}
		buffers = append(buffers, buf)
	}

	if len(buffers) == 0 {
		return nil, fmt.Errorf("all %d segments failed to narrate", len(segments))
	}

	combined, err := audio.Concatenate(buffers)
	if err != nil {
		return nil, fmt.Errorf("concatenate narration: %w", err)
	}
	return audio.EncodeWAV(combined), nil
}

// truncateRunes shortens s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
