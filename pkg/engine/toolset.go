package engine

import (
	"github.com/lumikids/pip/pkg/core/types"
)

// toolHandler turns a tool call's arguments into an Effect. A nil effect
// means the call is acknowledged without producing a state change.
type toolHandler func(input map[string]any) Effect

// Toolset is the fixed set of tools declared for one calling context,
// with dispatch keyed by tool name.
type Toolset struct {
	tools    []types.Tool
	handlers map[string]toolHandler
}

// Tools returns the tool declarations to send with each model call.
func (ts *Toolset) Tools() []types.Tool {
	return ts.tools
}

// Dispatch maps a tool call to its effect and builds the acknowledgment
// result. Unknown tool names are acknowledged as a no-op success so a newer
// model prompt never fails the whole turn.
func (ts *Toolset) Dispatch(call types.ToolUseBlock) (Effect, types.ToolResultBlock) {
	result := types.ToolResultBlock{
		Type:      "tool_result",
		ToolUseID: call.ID,
		Content: []types.ContentBlock{
			types.TextBlock{Type: "text", Text: "ok"},
		},
	}

	handler, ok := ts.handlers[call.Name]
	if !ok {
		return nil, result
	}
	return handler(call.Input), result
}

// ChatToolset declares the free-chat tools: companion memory, renaming,
// and mood.
func ChatToolset() *Toolset {
	return &Toolset{
		tools: []types.Tool{
			types.NewTool("update_memory",
				"Remember, change, or forget a fact about the child.",
				&types.JSONSchema{
					Type: "object",
					Properties: map[string]types.JSONSchema{
						"key":    {Type: "string", Description: "Short identifier for the fact."},
						"value":  {Type: "string", Description: "The fact to store."},
						"action": {Type: "string", Enum: []string{"set", "append", "delete"}},
					},
					Required: []string{"key", "action"},
				}),
			types.NewTool("rename_character",
				"Adopt the new name the child gave you.",
				&types.JSONSchema{
					Type: "object",
					Properties: map[string]types.JSONSchema{
						"name": {Type: "string"},
					},
					Required: []string{"name"},
				}),
			moodTool(),
		},
		handlers: map[string]toolHandler{
			"update_memory": func(input map[string]any) Effect {
				return MemoryUpdateEffect{
					Key:    stringArg(input, "key"),
					Value:  input["value"],
					Action: stringArg(input, "action"),
				}
			},
			"rename_character": func(input map[string]any) Effect {
				return RenameEffect{Name: stringArg(input, "name")}
			},
			"set_mood": moodHandler,
		},
	}
}

// TherapyToolset declares the assessment tools: task management and mood.
func TherapyToolset() *Toolset {
	return &Toolset{
		tools: []types.Tool{
			types.NewTool("manage_task",
				"Update the practice task after assessing the child's attempt.",
				&types.JSONSchema{
					Type: "object",
					Properties: map[string]types.JSONSchema{
						"taskId": {Type: "string"},
						"updates": {
							Type:        "object",
							Description: "Fields to change: status, urgency, feedback, report.",
							Properties: map[string]types.JSONSchema{
								"status":  {Type: "string", Enum: []string{"in_progress", "mastered", "review_needed"}},
								"urgency": {Type: "string", Enum: []string{"high", "medium", "low"}},
								"feedback": {
									Type:        "string",
									Description: "One-line note for the attempt history.",
								},
								"report": {
									Type: "object",
									Properties: map[string]types.JSONSchema{
										"strengths": {Type: "string"},
										"needsWork": {Type: "string"},
										"howToHelp": {Type: "string"},
									},
								},
							},
						},
					},
					Required: []string{"taskId", "updates"},
				}),
			moodTool(),
		},
		handlers: map[string]toolHandler{
			"manage_task": func(input map[string]any) Effect {
				updates, _ := input["updates"].(map[string]any)
				return TaskUpdateEffect{
					TaskID:  stringArg(input, "taskId"),
					Updates: updates,
				}
			},
			"set_mood": moodHandler,
		},
	}
}

func moodTool() types.Tool {
	return types.NewTool("set_mood",
		"Change your facial expression.",
		&types.JSONSchema{
			Type: "object",
			Properties: map[string]types.JSONSchema{
				"mood": {Type: "string", Enum: []string{"happy", "excited", "thinking", "sad", "surprised", "encouraging"}},
			},
			Required: []string{"mood"},
		})
}

func moodHandler(input map[string]any) Effect {
	return MoodEffect{Mood: stringArg(input, "mood")}
}

func stringArg(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}
