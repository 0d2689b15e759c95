// Package session holds the child's persistent state: companion memory,
// chat history, practice record, and the story in progress. The UI layer
// owns and mutates a Document; the core packages only read snapshots and
// return effects.
package session

import (
	"encoding/json"

	"github.com/lumikids/pip/pkg/core/types"
	"github.com/lumikids/pip/pkg/engine"
	"github.com/lumikids/pip/pkg/story"
	"github.com/lumikids/pip/pkg/therapy"
)

// DefaultCharacterName is the companion's name until the child renames it.
const DefaultCharacterName = "Pip"

// Character is the companion's identity and current expression.
type Character struct {
	Name string `json:"name"`
	Mood string `json:"mood,omitempty"`
}

// Turn is one entry of durable chat history.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Document is the whole session state as one JSON document. Export and
// import round-trip losslessly.
type Document struct {
	Memory        map[string]any          `json:"memory,omitempty"`
	ChatHistory   []Turn                  `json:"chatHistory,omitempty"`
	Character     Character               `json:"character"`
	TargetWords   []string                `json:"targetWords,omitempty"`
	MasteredWords []string                `json:"masteredWords,omitempty"`
	PhonemeStats  therapy.PhonemeStats    `json:"phonemeStats,omitempty"`
	Tasks         []*therapy.Task         `json:"tasks,omitempty"`
	Baseline      *therapy.BaselineResult `json:"baseline,omitempty"`
	TTSEngine     string                  `json:"ttsEngine,omitempty"` // "gemini" or "cartesia"
	Achievements  []string                `json:"achievements,omitempty"`
	Story         story.Session           `json:"story"`
}

// NewDocument creates a fresh session.
func NewDocument() *Document {
	return &Document{
		Memory:       map[string]any{},
		PhonemeStats: therapy.PhonemeStats{},
		Character:    Character{Name: DefaultCharacterName, Mood: "happy"},
	}
}

// HistoryMessages converts durable chat history into model messages.
func (d *Document) HistoryMessages() []types.Message {
	msgs := make([]types.Message, 0, len(d.ChatHistory))
	for _, turn := range d.ChatHistory {
		msgs = append(msgs, types.NewTextMessage(turn.Role, turn.Text))
	}
	return msgs
}

// AppendTurn records one chat exchange entry.
func (d *Document) AppendTurn(role, text string) {
	d.ChatHistory = append(d.ChatHistory, Turn{Role: role, Text: text})
}

// ApplyEffect folds one engine effect into the document.
func (d *Document) ApplyEffect(effect engine.Effect) {
	switch e := effect.(type) {
	case engine.MemoryUpdateEffect:
		if d.Memory == nil {
			d.Memory = map[string]any{}
		}
		switch e.Action {
		case "delete":
			delete(d.Memory, e.Key)
		case "append":
			if prev, ok := d.Memory[e.Key].(string); ok {
				if v, ok := e.Value.(string); ok {
					d.Memory[e.Key] = prev + "; " + v
					return
				}
			}
			d.Memory[e.Key] = e.Value
		default: // "set"
			d.Memory[e.Key] = e.Value
		}
	case engine.RenameEffect:
		if e.Name != "" {
			d.Character.Name = e.Name
		}
	case engine.MoodEffect:
		if e.Mood != "" {
			d.Character.Mood = e.Mood
		}
	case engine.TaskUpdateEffect:
		for _, task := range d.Tasks {
			if task.ID == e.TaskID {
				therapy.ApplyTaskUpdate(task, e.Updates)
				return
			}
		}
	}
}

// ApplyEffects folds a run's effects in dispatch order.
func (d *Document) ApplyEffects(effects []engine.Effect) {
	for _, e := range effects {
		d.ApplyEffect(e)
	}
}

// CurrentTask returns the newest task that is not mastered, or nil.
func (d *Document) CurrentTask() *therapy.Task {
	for i := len(d.Tasks) - 1; i >= 0; i-- {
		if d.Tasks[i].Status != therapy.StatusMastered {
			return d.Tasks[i]
		}
	}
	return nil
}

// Export serializes the document.
func (d *Document) Export() ([]byte, error) {
	return json.Marshal(d)
}

// Import replaces the document's contents from exported JSON.
func (d *Document) Import(data []byte) error {
	var next Document
	if err := json.Unmarshal(data, &next); err != nil {
		return err
	}
	if next.Character.Name == "" {
		next.Character.Name = DefaultCharacterName
	}
	// omitempty drops empty maps on export; restore them so callers can
	// assign without a nil check.
	if next.Memory == nil {
		next.Memory = map[string]any{}
	}
	if next.PhonemeStats == nil {
		next.PhonemeStats = therapy.PhonemeStats{}
	}
	*d = next
	return nil
}
