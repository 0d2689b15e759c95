package types

// MessageRequest is the request structure for a single model call.
type MessageRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// Generation parameters
	MaxTokens   int      `json:"max_tokens,omitempty"`
	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Tools
	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// Output configuration
	OutputFormat *OutputFormat `json:"output_format,omitempty"`

	// Speech synthesis (mutually exclusive with Tools/OutputFormat)
	Speech *SpeechConfig `json:"speech,omitempty"`
}

// OutputFormat specifies structured output requirements.
type OutputFormat struct {
	Type       string      `json:"type"` // "json_schema"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// SpeechConfig requests inline audio output instead of text.
type SpeechConfig struct {
	Voice string `json:"voice"` // prebuilt voice name
}

// JSONSchema represents a JSON Schema for structured output and tool
// parameter declarations.
type JSONSchema struct {
	Type                 string                `json:"type"`
	Properties           map[string]JSONSchema `json:"properties,omitempty"`
	Required             []string              `json:"required,omitempty"`
	Description          string                `json:"description,omitempty"`
	Enum                 []string              `json:"enum,omitempty"`
	Items                *JSONSchema           `json:"items,omitempty"`
	AdditionalProperties *bool                 `json:"additionalProperties,omitempty"`
}
