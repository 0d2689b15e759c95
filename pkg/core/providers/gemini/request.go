package gemini

import (
	"encoding/json"
	"strings"

	"github.com/lumikids/pip/pkg/core/types"
)

// geminiRequest is the Gemini API request format.
// Note: Gemini API uses camelCase for JSON field names.
type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Tools             []geminiTool      `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
}

// geminiContent represents a content object in Gemini format.
type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user", "model", "function"
	Parts []geminiPart `json:"parts"`
}

// geminiPart represents a single part within content.
type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiBlob             `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

// geminiBlob represents inline binary data.
type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

// geminiFunctionCall represents a function call from the model.
type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// geminiFunctionResponse represents a function response.
type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// geminiTool represents a tool definition.
type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

// geminiFunctionDecl represents a function declaration.
type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// geminiToolConfig configures tool behavior.
type geminiToolConfig struct {
	FunctionCallingConfig *geminiFunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

// geminiFunctionCallingConfig controls function calling behavior.
type geminiFunctionCallingConfig struct {
	Mode                 string   `json:"mode,omitempty"` // AUTO, ANY, NONE
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// geminiGenConfig contains generation configuration.
type geminiGenConfig struct {
	Temperature        *float64            `json:"temperature,omitempty"`
	MaxOutputTokens    *int                `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType   string              `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage     `json:"responseJsonSchema,omitempty"`
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

// geminiSpeechConfig selects the synthesis voice.
type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

// buildRequest converts a neutral request to a Gemini request.
func (p *Provider) buildRequest(req *types.MessageRequest) *geminiRequest {
	geminiReq := &geminiRequest{}

	if req.System != "" {
		geminiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}

	geminiReq.Contents = p.translateMessages(req.Messages)

	if len(req.Tools) > 0 {
		geminiReq.Tools = p.translateTools(req.Tools)
	}

	if req.ToolChoice != nil {
		geminiReq.ToolConfig = p.translateToolChoice(req.ToolChoice)
	}

	geminiReq.GenerationConfig = p.buildGenerationConfig(req)

	return geminiReq
}

// translateMessages converts neutral messages to Gemini contents.
func (p *Provider) translateMessages(messages []types.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(messages))

	for _, msg := range messages {
		blocks := msg.ContentBlocks()

		// Tool results become role "function" contents, one per result.
		hasToolResults := false
		for _, block := range blocks {
			if _, ok := block.(types.ToolResultBlock); ok {
				hasToolResults = true
				break
			}
		}

		if hasToolResults {
			for _, block := range blocks {
				if tr, ok := block.(types.ToolResultBlock); ok {
					contents = append(contents, geminiContent{
						Role: "function",
						Parts: []geminiPart{{
							FunctionResponse: &geminiFunctionResponse{
								Name:     p.getToolNameFromID(tr.ToolUseID, messages),
								Response: p.toolResultToMap(tr.Content),
							},
						}},
					})
				}
			}
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		contents = append(contents, geminiContent{
			Role:  role,
			Parts: p.translateContentBlocks(blocks),
		})
	}

	return contents
}

// translateContentBlocks converts neutral content blocks to Gemini parts.
func (p *Provider) translateContentBlocks(blocks []types.ContentBlock) []geminiPart {
	parts := make([]geminiPart, 0, len(blocks))

	for _, block := range blocks {
		switch b := block.(type) {
		case types.TextBlock:
			parts = append(parts, geminiPart{Text: b.Text})

		case types.AudioBlock:
			parts = append(parts, geminiPart{
				InlineData: &geminiBlob{
					MIMEType: b.Source.MediaType,
					Data:     b.Source.Data,
				},
			})

		case types.ToolUseBlock:
			parts = append(parts, geminiPart{
				FunctionCall: &geminiFunctionCall{
					Name: b.Name,
					Args: b.Input,
				},
			})

		case types.ToolResultBlock:
			// Handled in translateMessages with role="function".
			continue
		}
	}

	return parts
}

// translateTools converts neutral tools to Gemini format.
func (p *Provider) translateTools(tools []types.Tool) []geminiTool {
	funcDecls := make([]geminiFunctionDecl, 0, len(tools))

	for _, tool := range tools {
		schemaBytes, _ := json.Marshal(tool.InputSchema)
		funcDecls = append(funcDecls, geminiFunctionDecl{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  sanitizeSchemaBytes(schemaBytes),
		})
	}

	return []geminiTool{{FunctionDeclarations: funcDecls}}
}

// translateToolChoice converts neutral tool choice to Gemini format.
func (p *Provider) translateToolChoice(tc *types.ToolChoice) *geminiToolConfig {
	config := &geminiToolConfig{
		FunctionCallingConfig: &geminiFunctionCallingConfig{},
	}

	switch tc.Type {
	case "auto":
		config.FunctionCallingConfig.Mode = "AUTO"
	case "none":
		config.FunctionCallingConfig.Mode = "NONE"
	case "any":
		config.FunctionCallingConfig.Mode = "ANY"
	case "tool":
		config.FunctionCallingConfig.Mode = "ANY"
		config.FunctionCallingConfig.AllowedFunctionNames = []string{tc.Name}
	}

	return config
}

// buildGenerationConfig creates the generation config from the request.
func (p *Provider) buildGenerationConfig(req *types.MessageRequest) *geminiGenConfig {
	config := &geminiGenConfig{
		Temperature: req.Temperature,
	}

	if req.MaxTokens > 0 {
		config.MaxOutputTokens = &req.MaxTokens
	}

	if req.OutputFormat != nil && req.OutputFormat.Type == "json_schema" {
		config.ResponseMIMEType = "application/json"
		if req.OutputFormat.JSONSchema != nil {
			schemaBytes, _ := json.Marshal(req.OutputFormat.JSONSchema)
			config.ResponseJSONSchema = sanitizeSchemaBytes(schemaBytes)
		}
	}

	if req.Speech != nil {
		config.ResponseModalities = []string{"AUDIO"}
		config.SpeechConfig = &geminiSpeechConfig{
			VoiceConfig: geminiVoiceConfig{
				PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: req.Speech.Voice},
			},
		}
	}

	return config
}

// getToolNameFromID looks up the tool name from a tool use ID in previous
// messages. Gemini keys function responses by name, not ID.
func (p *Provider) getToolNameFromID(toolUseID string, messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != "assistant" {
			continue
		}
		for _, block := range msg.ContentBlocks() {
			if tu, ok := block.(types.ToolUseBlock); ok {
				if tu.ID == toolUseID {
					return tu.Name
				}
			}
		}
	}
	// Fallback: return the ID itself (shouldn't happen normally)
	return toolUseID
}

// toolResultToMap converts tool result content to a map.
func (p *Provider) toolResultToMap(content []types.ContentBlock) map[string]any {
	result := make(map[string]any)

	var text strings.Builder
	for _, block := range content {
		if tb, ok := block.(types.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	if text.Len() > 0 {
		result["result"] = text.String()
	}

	return result
}

// stripProviderPrefix removes the provider prefix from a model string.
// "gemini/gemini-2.5-flash" -> "gemini-2.5-flash"
func stripProviderPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx != -1 {
		return model[idx+1:]
	}
	return model
}

// sanitizeSchemaBytes sanitizes a JSON schema in byte form for Gemini.
// Removes fields the API rejects: additionalProperties, $schema, $id, $ref,
// definitions.
func sanitizeSchemaBytes(schemaBytes []byte) json.RawMessage {
	if len(schemaBytes) == 0 {
		return nil
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return schemaBytes
	}

	sanitizeSchemaMap(schemaMap)

	sanitized, err := json.Marshal(schemaMap)
	if err != nil {
		return schemaBytes
	}
	return sanitized
}

// sanitizeSchemaMap recursively removes unsupported JSON Schema fields.
func sanitizeSchemaMap(schema map[string]any) {
	delete(schema, "additionalProperties")
	delete(schema, "$schema")
	delete(schema, "$id")
	delete(schema, "$ref")
	delete(schema, "definitions")
	delete(schema, "$defs")

	if props, ok := schema["properties"].(map[string]any); ok {
		for _, v := range props {
			if propSchema, ok := v.(map[string]any); ok {
				sanitizeSchemaMap(propSchema)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		sanitizeSchemaMap(items)
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if arr, ok := schema[key].([]any); ok {
			for _, item := range arr {
				if itemSchema, ok := item.(map[string]any); ok {
					sanitizeSchemaMap(itemSchema)
				}
			}
		}
	}
}
