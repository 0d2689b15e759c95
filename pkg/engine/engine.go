package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/types"
)

// MaxTurns bounds the tool-calling loop. The model gets at most this many
// calls per invocation; exhaustion returns accumulated text, never an error.
const MaxTurns = 5

// Fixed utterances for degraded turns.
const (
	// ApologyUtterance is returned when the very first model call comes
	// back with no usable content.
	ApologyUtterance = "Oh dear, my words got all jumbled up! Can you tell me that again?"

	// FallbackUtterance is returned when the loop ends with no text at all.
	FallbackUtterance = "Let's play!"
)

const defaultTemperature = 0.9

// StopReason indicates why the loop terminated.
type StopReason string

const (
	StopFinalText      StopReason = "final_text"      // model finished with plain text
	StopEmptyResponse  StopReason = "empty_response"  // model returned no usable content
	StopTurnsExhausted StopReason = "turns_exhausted" // hit MaxTurns mid tool loop
)

// Engine runs the tool-calling loop against a model provider. It is
// stateless across invocations: the caller owns the conversation history
// and passes a snapshot per call.
type Engine struct {
	provider core.Provider
	model    string
	maxTurns int
	logger   *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxTurns overrides the loop bound.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine for the given provider and model.
func New(provider core.Provider, model string, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		model:    model,
		maxTurns: MaxTurns,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one engine invocation.
type Request struct {
	// History is a read-only snapshot of the conversation so far, ending
	// with the new user or system-event content.
	History []types.Message

	// System is the system instruction for this calling context.
	System string

	// Temperature for generation; 0 means the engine default.
	Temperature float64

	// Toolset declares the callable tools. Defaults to ChatToolset.
	Toolset *Toolset

	// Hooks observe the run live; optional.
	Hooks Hooks
}

// Result is the outcome of a run.
type Result struct {
	// Utterance is the final natural-language reply to speak and display.
	Utterance string

	// Effects are the state changes the model requested, in dispatch order.
	Effects []Effect

	// Turns is the number of model calls made.
	Turns int

	Stop StopReason
}

// phase is the loop's explicit state.
type phase int

const (
	phaseAwaitingModel phase = iota
	phaseDispatchingTools
	phaseDone
)

// loopState carries everything the reducer threads between model calls.
type loopState struct {
	phase     phase
	turn      int
	texts     []string
	effects   []Effect
	utterance string
	stop      StopReason
}

// Run executes the loop: call the model, dispatch any tool calls, feed the
// results back, and terminate on plain text or the turn bound. Remote
// failures propagate as *core.RemoteError for the caller's retry pacing.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	ts := req.Toolset
	if ts == nil {
		ts = ChatToolset()
	}

	temp := req.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}

	messages := make([]types.Message, len(req.History))
	copy(messages, req.History)

	st := loopState{phase: phaseAwaitingModel}

	for st.phase != phaseDone && st.turn < e.maxTurns {
		turnReq := &types.MessageRequest{
			Model:       e.model,
			Messages:    messages,
			System:      req.System,
			Temperature: &temp,
			Tools:       ts.Tools(),
		}

		resp, err := core.Invoke(ctx, func(ctx context.Context) (*types.MessageResponse, error) {
			return e.provider.CreateMessage(ctx, turnReq)
		})
		if err != nil {
			return nil, err
		}

		st.turn++

		var appended []types.Message
		st, appended = e.reduce(st, resp, ts, req.Hooks)
		messages = append(messages, appended...)
	}

	if st.phase != phaseDone {
		// Turn bound hit while the model was still calling tools.
		st.utterance = strings.TrimSpace(strings.Join(st.texts, " "))
		if st.utterance == "" {
			st.utterance = FallbackUtterance
		}
		st.stop = StopTurnsExhausted
		e.logger.Debug("conversation loop exhausted turn bound", "turns", st.turn)
	}

	return &Result{
		Utterance: st.utterance,
		Effects:   st.effects,
		Turns:     st.turn,
		Stop:      st.stop,
	}, nil
}

// reduce consumes one model response and returns the next state plus the
// messages to append to the outbound history. It performs no I/O.
func (e *Engine) reduce(st loopState, resp *types.MessageResponse, ts *Toolset, hooks Hooks) (loopState, []types.Message) {
	filtered := filterContent(resp.Content)

	if len(filtered) == 0 {
		// No usable content. First turn apologizes; later turns fall back
		// to whatever text has accumulated.
		if st.turn <= 1 {
			st.utterance = ApologyUtterance
		} else {
			st.utterance = strings.TrimSpace(strings.Join(st.texts, " "))
			if st.utterance == "" {
				st.utterance = FallbackUtterance
			}
		}
		st.phase = phaseDone
		st.stop = StopEmptyResponse
		return st, nil
	}

	appended := types.AppendAssistantMessage(nil, filtered)

	var toolUses []types.ToolUseBlock
	for _, block := range filtered {
		switch b := block.(type) {
		case types.TextBlock:
			st.texts = append(st.texts, b.Text)
		case types.ToolUseBlock:
			toolUses = append(toolUses, b)
		}
	}

	if len(toolUses) == 0 {
		st.utterance = resp.FirstText()
		if strings.TrimSpace(st.utterance) == "" {
			st.utterance = FallbackUtterance
		}
		st.phase = phaseDone
		st.stop = StopFinalText
		return st, appended
	}

	// Every tool call gets exactly one result, and all results go back as
	// one combined turn before the next model call.
	st.phase = phaseDispatchingTools
	results := make([]types.ToolResultBlock, 0, len(toolUses))
	for _, call := range toolUses {
		if hooks.OnToolCall != nil {
			hooks.OnToolCall(call.Name, call.Input)
		}
		effect, result := ts.Dispatch(call)
		if effect != nil {
			st.effects = append(st.effects, effect)
			if hooks.OnEffect != nil {
				hooks.OnEffect(effect)
			}
		}
		results = append(results, result)
	}

	appended = types.AppendToolResultsMessage(appended, results)
	st.phase = phaseAwaitingModel
	return st, appended
}

// filterContent keeps non-empty text segments plus tool-call and audio
// blocks, dropping whitespace-only text.
func filterContent(content []types.ContentBlock) []types.ContentBlock {
	filtered := make([]types.ContentBlock, 0, len(content))
	for _, block := range content {
		switch b := block.(type) {
		case types.TextBlock:
			if strings.TrimSpace(b.Text) != "" {
				filtered = append(filtered, b)
			}
		case types.ToolUseBlock, types.AudioBlock:
			filtered = append(filtered, b)
		}
	}
	return filtered
}
