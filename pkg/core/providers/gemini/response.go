package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumikids/pip/pkg/core/types"
)

// geminiResponse is the Gemini API response format.
type geminiResponse struct {
	Candidates   []geminiCandidate `json:"candidates"`
	ModelVersion string            `json:"modelVersion,omitempty"`
}

// geminiCandidate represents a single candidate response.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

// parseResponse parses a Gemini response into a neutral response.
func (p *Provider) parseResponse(body []byte, model string) (*types.MessageResponse, error) {
	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	resp := &types.MessageResponse{
		ID:    fmt.Sprintf("msg_%s", model), // Gemini doesn't return IDs
		Type:  "message",
		Role:  "assistant",
		Model: "gemini/" + model,
	}

	// A blocked or empty response has no candidates; the caller decides how
	// to degrade, so this is not an error.
	if len(geminiResp.Candidates) == 0 {
		resp.StopReason = types.StopReasonEndTurn
		return resp, nil
	}

	candidate := geminiResp.Candidates[0]
	resp.Content = p.parseContentParts(candidate.Content.Parts)

	// Gemini 3 returns STOP even for function calls, so detect by content.
	stopReason := mapFinishReason(candidate.FinishReason)
	if stopReason == types.StopReasonEndTurn && hasFunctionCalls(resp.Content) {
		stopReason = types.StopReasonToolUse
	}
	resp.StopReason = stopReason

	return resp, nil
}

// parseContentParts converts Gemini parts to neutral content blocks.
func (p *Provider) parseContentParts(parts []geminiPart) []types.ContentBlock {
	content := make([]types.ContentBlock, 0, len(parts))

	for _, part := range parts {
		if part.Text != "" {
			content = append(content, types.TextBlock{
				Type: "text",
				Text: part.Text,
			})
		}

		if part.FunctionCall != nil {
			input := part.FunctionCall.Args
			if input == nil {
				input = make(map[string]any)
			}

			// Gemini doesn't provide call IDs; mint one so every call can be
			// paired with exactly one result.
			content = append(content, types.ToolUseBlock{
				Type:  "tool_use",
				ID:    fmt.Sprintf("call_%s_%s", part.FunctionCall.Name, uuid.NewString()[:8]),
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		}

		if part.InlineData != nil {
			content = append(content, types.AudioBlock{
				Type: "audio",
				Source: types.AudioSource{
					Type:      "base64",
					MediaType: part.InlineData.MIMEType,
					Data:      part.InlineData.Data,
				},
			})
		}
	}

	return content
}

// hasFunctionCalls checks if content contains any tool use blocks.
func hasFunctionCalls(content []types.ContentBlock) bool {
	for _, block := range content {
		if _, ok := block.(types.ToolUseBlock); ok {
			return true
		}
	}
	return false
}

// mapFinishReason converts a Gemini finish reason to a neutral stop reason.
func mapFinishReason(reason string) types.StopReason {
	switch reason {
	case "STOP":
		return types.StopReasonEndTurn
	case "MAX_TOKENS":
		return types.StopReasonMaxTokens
	case "TOOL_USE", "FUNCTION_CALL":
		return types.StopReasonToolUse
	default:
		return types.StopReasonEndTurn
	}
}
