package therapy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumikids/pip/pkg/audio"
	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/types"
	"github.com/lumikids/pip/pkg/engine"
)

const generateSystemPrompt = `You are a pediatric speech-language assistant
choosing the next practice word for a young child. Pick one short, fun,
age-appropriate word that exercises the requested speech sound. Respond
with JSON only.`

const assessSystemPrompt = `You are Pip, a warm and playful companion who is
also a careful speech-language pathologist. The child just recorded
themselves saying their practice word. Listen to the recording, judge the
attempt kindly, and use the manage_task tool to record your assessment:
status, urgency, a one-line feedback note, and a parent report when the
picture is clear. Then speak a short, encouraging reply to the child.`

const baselineSystemPrompt = `You are a speech-language pathologist scoring
a ten-word diagnostic pass for a young child. For each recording, judge
whether the target sound was produced accurately. Respond with JSON only.`

const retryPrompt = "Hmm, I didn't quite catch that. Want to try saying it one more time?"

// Controller runs practice-word generation and attempt assessment.
type Controller struct {
	provider core.Provider
	engine   *engine.Engine
	model    string
	logger   *slog.Logger
}

// NewController wires the controller to a model provider. The engine drives
// assessment's tool-calling loop; generation and baseline are single
// structured calls.
func NewController(provider core.Provider, model string, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		model:    model,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = engine.New(provider, model, engine.WithLogger(c.logger))
	}
	return c
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithEngine overrides the conversation engine, for tests.
func WithEngine(e *engine.Engine) Option {
	return func(c *Controller) { c.engine = e }
}

// GenerateOptions steer practice-word generation.
type GenerateOptions struct {
	ExcludeWord   string   // the word just practiced; avoid repeating it
	ForcedPhoneme string   // overrides all weighting when set
	TargetWords   []string // caregiver-supplied words to prefer
	MasteredWords []string // caregiver-marked words to avoid
	BaselineStart string   // baseline recommendation, e.g. "stage 2: K, G"
}

type generatedWord struct {
	Word          string `json:"word"`
	TargetPhoneme string `json:"targetPhoneme"`
}

// statsFromHistory folds the task record into per-phoneme counters. A
// mastered task counts as one success for its phoneme.
func statsFromHistory(history []*Task) PhonemeStats {
	stats := PhonemeStats{}
	for _, t := range history {
		if t == nil || t.TargetPhoneme == "" {
			continue
		}
		s := stats[t.TargetPhoneme]
		s.Attempts += t.Attempts
		if t.Status == StatusMastered {
			s.Successes++
		}
		stats[t.TargetPhoneme] = s
	}
	return stats
}

// GenerateTask picks the next practice word. It never returns an error:
// any remote failure or unusable result degrades to the fixed default
// task.
func (c *Controller) GenerateTask(ctx context.Context, history []*Task, opts GenerateOptions) *Task {
	prompt := c.buildGeneratePrompt(history, opts)

	req := &types.MessageRequest{
		Model:    c.model,
		Messages: []types.Message{types.NewTextMessage("user", prompt)},
		System:   generateSystemPrompt,
		OutputFormat: &types.OutputFormat{
			Type: "json_schema",
			JSONSchema: &types.JSONSchema{
				Type: "object",
				Properties: map[string]types.JSONSchema{
					"word":          {Type: "string"},
					"targetPhoneme": {Type: "string"},
				},
				Required: []string{"word", "targetPhoneme"},
			},
		},
	}

	resp, err := core.Invoke(ctx, func(ctx context.Context) (*types.MessageResponse, error) {
		return c.provider.CreateMessage(ctx, req)
	})
	if err != nil {
		c.logger.Warn("task generation failed, using default", "error", err)
		return DefaultTask()
	}

	var gen generatedWord
	if err := json.Unmarshal([]byte(resp.FirstText()), &gen); err != nil || strings.TrimSpace(gen.Word) == "" {
		c.logger.Warn("task generation returned unusable result, using default")
		return DefaultTask()
	}

	phoneme := gen.TargetPhoneme
	if opts.ForcedPhoneme != "" {
		phoneme = opts.ForcedPhoneme
	}
	if phoneme == "" {
		phoneme = DefaultPhoneme
	}
	return NewTask(gen.Word, phoneme)
}

func (c *Controller) buildGeneratePrompt(history []*Task, opts GenerateOptions) string {
	var b strings.Builder
	b.WriteString("Choose the next practice word for the child.\n")

	if opts.ForcedPhoneme != "" {
		fmt.Fprintf(&b, "The word MUST exercise the %q sound.\n", opts.ForcedPhoneme)
	} else {
		stats := statsFromHistory(history)
		if struggling := stats.Struggling(); len(struggling) > 0 {
			fmt.Fprintf(&b, "Sounds the child is struggling with (prefer these): %s\n", strings.Join(struggling, ", "))
		}
		if confident := stats.Confident(); len(confident) > 0 {
			fmt.Fprintf(&b, "Sounds the child is confident with (avoid these): %s\n", strings.Join(confident, ", "))
		}
		if opts.BaselineStart != "" {
			fmt.Fprintf(&b, "Baseline recommendation: %s\n", opts.BaselineStart)
		}
	}

	if len(opts.TargetWords) > 0 {
		fmt.Fprintf(&b, "Caregiver target words (prefer one of these if suitable): %s\n", strings.Join(opts.TargetWords, ", "))
	}
	if len(opts.MasteredWords) > 0 {
		fmt.Fprintf(&b, "Already mastered words (do not pick these): %s\n", strings.Join(opts.MasteredWords, ", "))
	}
	if opts.ExcludeWord != "" {
		fmt.Fprintf(&b, "Do not pick %q, it was just practiced.\n", opts.ExcludeWord)
	}

	var recent []string
	for _, t := range history {
		if t != nil {
			recent = append(recent, t.Word)
		}
	}
	if len(recent) > 0 {
		fmt.Fprintf(&b, "Recent practice words: %s\n", strings.Join(recent, ", "))
	}

	return b.String()
}

// Assessment is the outcome of one assessed recording.
type Assessment struct {
	// Utterance is Pip's spoken feedback to the child.
	Utterance string

	// Mood is the model's requested expression, if any.
	Mood string
}

// AssessRecording submits the child's recording for assessment. The
// model's manage_task tool call is the only channel for task state change;
// the update is applied to task in place. Attempts increments on every
// assessed recording. Remote failures propagate as *core.RemoteError.
func (c *Controller) AssessRecording(ctx context.Context, recording []byte, mimeType string, task *Task) (*Assessment, error) {
	audioData, audioMIME := c.prepareRecording(recording, mimeType)

	prompt := fmt.Sprintf(
		"The child is practicing the word %q (target sound %q). This is attempt number %d. Assess the recording.",
		task.Word, task.TargetPhoneme, task.Attempts+1,
	)

	history := []types.Message{{
		Role: "user",
		Content: []types.ContentBlock{
			types.TextBlock{Type: "text", Text: prompt},
			types.AudioBlock{
				Type: "audio",
				Source: types.AudioSource{
					Type:      "base64",
					MediaType: audioMIME,
					Data:      audioData,
				},
			},
		},
	}}

	result, err := c.engine.Run(ctx, engine.Request{
		History: history,
		System:  assessSystemPrompt,
		Toolset: engine.TherapyToolset(),
	})
	if err != nil {
		return nil, err
	}

	task.Attempts++
	if task.Status == StatusNew {
		task.Status = StatusInProgress
	}

	assessment := &Assessment{Utterance: result.Utterance}
	for _, effect := range result.Effects {
		switch e := effect.(type) {
		case engine.TaskUpdateEffect:
			ApplyTaskUpdate(task, e.Updates)
		case engine.MoodEffect:
			assessment.Mood = e.Mood
		}
	}

	// The chat apology and play fallback read wrong mid-assessment; swap
	// in a practice-specific retry prompt when the model gave us no real
	// feedback text.
	switch assessment.Utterance {
	case engine.ApologyUtterance, engine.FallbackUtterance:
		assessment.Utterance = retryPrompt
	}
	return assessment, nil
}

// prepareRecording transcodes to WAV base64. Unsupported containers fall
// back to the original bytes with their native MIME type; the practice
// flow never aborts on a conversion problem.
func (c *Controller) prepareRecording(recording []byte, mimeType string) (data, mime string) {
	wavB64, err := audio.TranscodeToWAVBase64(recording, mimeType)
	if err == nil {
		return wavB64, "audio/wav"
	}

	var decodeErr *audio.DecodeError
	if errors.As(err, &decodeErr) {
		c.logger.Debug("recording transcode unsupported, submitting original", "mime", mimeType)
	} else {
		c.logger.Warn("recording transcode failed, submitting original", "mime", mimeType, "error", err)
	}
	return base64.StdEncoding.EncodeToString(recording), mimeType
}

// BaselineRecording is one word of the diagnostic pass.
type BaselineRecording struct {
	Word        string `json:"word"`
	Phoneme     string `json:"phoneme"`
	AudioBase64 string `json:"-"`
	MIMEType    string `json:"-"`
}

// BaselineWordResult is the model's judgment of one recording.
type BaselineWordResult struct {
	Word     string `json:"word"`
	Phoneme  string `json:"phoneme"`
	Accurate bool   `json:"accurate"`
	Notes    string `json:"notes,omitempty"`
}

// BaselineResult seeds long-term calibration.
type BaselineResult struct {
	Results                  []BaselineWordResult `json:"results"`
	Summary                  string               `json:"summary"`
	RecommendedStartingPoint string               `json:"recommendedStartingPoint"`
}

// AnalyzeBaseline bundles all baseline recordings into one structured
// call. Unlike task generation, failures here propagate: a silently wrong
// baseline would miscalibrate everything downstream.
func (c *Controller) AnalyzeBaseline(ctx context.Context, recordings []BaselineRecording) (*BaselineResult, error) {
	if len(recordings) == 0 {
		return nil, fmt.Errorf("no baseline recordings")
	}

	content := make([]types.ContentBlock, 0, 2*len(recordings))
	for i, rec := range recordings {
		content = append(content,
			types.TextBlock{
				Type: "text",
				Text: fmt.Sprintf("Recording %d: word %q, target sound %q.", i+1, rec.Word, rec.Phoneme),
			},
			types.AudioBlock{
				Type: "audio",
				Source: types.AudioSource{
					Type:      "base64",
					MediaType: rec.MIMEType,
					Data:      rec.AudioBase64,
				},
			},
		)
	}

	req := &types.MessageRequest{
		Model:    c.model,
		Messages: []types.Message{{Role: "user", Content: content}},
		System:   baselineSystemPrompt,
		OutputFormat: &types.OutputFormat{
			Type: "json_schema",
			JSONSchema: &types.JSONSchema{
				Type: "object",
				Properties: map[string]types.JSONSchema{
					"results": {
						Type: "array",
						Items: &types.JSONSchema{
							Type: "object",
							Properties: map[string]types.JSONSchema{
								"word":     {Type: "string"},
								"phoneme":  {Type: "string"},
								"accurate": {Type: "boolean"},
								"notes":    {Type: "string"},
							},
							Required: []string{"word", "phoneme", "accurate"},
						},
					},
					"summary":                  {Type: "string"},
					"recommendedStartingPoint": {Type: "string"},
				},
				Required: []string{"results", "summary", "recommendedStartingPoint"},
			},
		},
	}

	resp, err := core.Invoke(ctx, func(ctx context.Context) (*types.MessageResponse, error) {
		return c.provider.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	var result BaselineResult
	if err := json.Unmarshal([]byte(resp.FirstText()), &result); err != nil {
		return nil, core.Classify(fmt.Errorf("parse baseline analysis: %w", err))
	}
	return &result, nil
}
