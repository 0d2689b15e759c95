// Package engine runs the bounded multi-turn tool-calling loop that drives
// the chat, practice, and story flows.
//
// The engine never mutates caller state. Every tool call the model makes is
// recorded as an Effect; the caller applies the effects to its own session
// state after the run completes (or live, through Hooks).
package engine

// Effect is one state change requested by the model through a tool call.
type Effect interface {
	effectKind() string
}

// MemoryUpdateEffect records a companion memory change.
type MemoryUpdateEffect struct {
	Key    string
	Value  any
	Action string // "set", "append", "delete"
}

func (MemoryUpdateEffect) effectKind() string { return "memory_update" }

// RenameEffect records the companion being given a new name.
type RenameEffect struct {
	Name string
}

func (RenameEffect) effectKind() string { return "rename" }

// MoodEffect records a mood change for the character display.
type MoodEffect struct {
	Mood string
}

func (MoodEffect) effectKind() string { return "mood" }

// TaskUpdateEffect records a practice task update from an assessment.
type TaskUpdateEffect struct {
	TaskID  string
	Updates map[string]any
}

func (TaskUpdateEffect) effectKind() string { return "task_update" }

// Hooks are optional callbacks for callers that want to observe the run
// live (a UI animating a mood change mid-turn). Effects are recorded in the
// result regardless.
type Hooks struct {
	// OnEffect is called for each effect as it is produced.
	OnEffect func(Effect)

	// OnToolCall is called before each tool dispatch.
	OnToolCall func(name string, input map[string]any)
}
