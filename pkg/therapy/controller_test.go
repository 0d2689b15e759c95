package therapy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/types"
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

func TestGenerateTask(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{
			textResponse(`{"word":"Rainbow","targetPhoneme":"R"}`),
		},
	}

	c := NewController(provider, "test-model")
	task := c.GenerateTask(context.Background(), nil, GenerateOptions{})

	if task.Word != "Rainbow" || task.TargetPhoneme != "R" {
		t.Errorf("task = %q/%q", task.Word, task.TargetPhoneme)
	}
	if task.Status != StatusNew {
		t.Errorf("status = %q, want new", task.Status)
	}
	if task.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", task.Attempts)
	}
	if task.ID == "" {
		t.Error("task id missing")
	}

	req := provider.requests[0]
	if req.OutputFormat == nil || req.OutputFormat.Type != "json_schema" {
		t.Error("structured output not requested")
	}
}

func TestGenerateTaskDefaultsOnRemoteFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("service unavailable")}

	c := NewController(provider, "test-model")
	task := c.GenerateTask(context.Background(), nil, GenerateOptions{})

	if task.Word != DefaultWord {
		t.Errorf("word = %q, want default", task.Word)
	}
	if task.Status != StatusNew || task.Attempts != 0 {
		t.Errorf("default task = %+v", task)
	}
}

func TestGenerateTaskDefaultsOnMissingWord(t *testing.T) {
	for _, text := range []string{`{"targetPhoneme":"R"}`, `not json at all`, `{"word":""}`} {
		provider := &scriptedProvider{responses: []*types.MessageResponse{textResponse(text)}}
		c := NewController(provider, "test-model")
		task := c.GenerateTask(context.Background(), nil, GenerateOptions{})
		if task.Word != DefaultWord {
			t.Errorf("response %q: word = %q, want default", text, task.Word)
		}
	}
}

func TestGenerateTaskForcedPhoneme(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{
			textResponse(`{"word":"Thunder","targetPhoneme":"TH"}`),
		},
	}

	// History that would normally weight toward R.
	history := []*Task{
		{Word: "Rabbit", TargetPhoneme: "R", Attempts: 4, Status: StatusInProgress},
	}

	c := NewController(provider, "test-model")
	task := c.GenerateTask(context.Background(), history, GenerateOptions{ForcedPhoneme: "TH"})

	if task.TargetPhoneme != "TH" {
		t.Errorf("phoneme = %q, want forced TH", task.TargetPhoneme)
	}

	prompt := provider.requests[0].Messages[0].TextContent()
	if !strings.Contains(prompt, "TH") {
		t.Errorf("prompt missing forced phoneme: %q", prompt)
	}
	if strings.Contains(prompt, "struggling") {
		t.Errorf("forced phoneme should suppress weighting, got prompt %q", prompt)
	}
}

func TestPhonemeStatsClassification(t *testing.T) {
	stats := PhonemeStats{
		"R":  {Attempts: 5, Successes: 1}, // ratio 0.2 → struggling
		"S":  {Attempts: 4, Successes: 3}, // 3 successes → confident
		"TH": {Attempts: 2, Successes: 0}, // too few attempts
	}

	struggling := stats.Struggling()
	if len(struggling) != 1 || struggling[0] != "R" {
		t.Errorf("struggling = %v, want [R]", struggling)
	}
	confident := stats.Confident()
	if len(confident) != 1 || confident[0] != "S" {
		t.Errorf("confident = %v, want [S]", confident)
	}
}

func TestAssessRecordingAppliesTaskUpdate(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{
			{
				Role: "assistant",
				Content: []types.ContentBlock{
					types.ToolUseBlock{
						Type: "tool_use", ID: "call_1", Name: "manage_task",
						Input: map[string]any{
							"taskId": "t-1",
							"updates": map[string]any{
								"status":   "mastered",
								"feedback": "Crisp R sound!",
								"report": map[string]any{
									"strengths": "Strong initial R",
									"needsWork": "Blends",
									"howToHelp": "Practice 'br' words",
								},
							},
						},
					},
				},
				StopReason: types.StopReasonToolUse,
			},
			textResponse("You did it! That R was perfect!"),
		},
	}

	task := &Task{ID: "t-1", Word: "Rabbit", TargetPhoneme: "R", Status: StatusInProgress, Attempts: 2}

	c := NewController(provider, "test-model")
	assessment, err := c.AssessRecording(context.Background(), []byte{0x01, 0x02}, "audio/webm", task)
	if err != nil {
		t.Fatalf("AssessRecording: %v", err)
	}

	if assessment.Utterance != "You did it! That R was perfect!" {
		t.Errorf("utterance = %q", assessment.Utterance)
	}
	if task.Status != StatusMastered {
		t.Errorf("status = %q, want mastered", task.Status)
	}
	if task.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", task.Attempts)
	}
	if len(task.History) != 1 || task.History[0] != "Crisp R sound!" {
		t.Errorf("history = %v", task.History)
	}
	if task.Report == nil || task.Report.Strengths != "Strong initial R" {
		t.Errorf("report = %+v", task.Report)
	}

	// Recording goes up as an audio block; webm is unsupported by the
	// transcoder so the original MIME type survives.
	blocks := provider.requests[0].Messages[0].ContentBlocks()
	var foundAudio bool
	for _, b := range blocks {
		if ab, ok := b.(types.AudioBlock); ok {
			foundAudio = true
			if ab.Source.MediaType != "audio/webm" {
				t.Errorf("audio mime = %q, want original audio/webm", ab.Source.MediaType)
			}
		}
	}
	if !foundAudio {
		t.Error("no audio block in assessment request")
	}
}

func TestAssessRecordingNoToolCallLeavesTaskUnchanged(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{textResponse("Good try! Let's go again.")},
	}

	task := &Task{ID: "t-1", Word: "Sun", TargetPhoneme: "S", Status: StatusInProgress, Attempts: 1}

	c := NewController(provider, "test-model")
	assessment, err := c.AssessRecording(context.Background(), []byte{0x01, 0x02}, "audio/webm", task)
	if err != nil {
		t.Fatalf("AssessRecording: %v", err)
	}

	if task.Status != StatusInProgress {
		t.Errorf("status = %q, want unchanged in_progress", task.Status)
	}
	if task.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", task.Attempts)
	}
	if assessment.Utterance != "Good try! Let's go again." {
		t.Errorf("utterance = %q", assessment.Utterance)
	}
}

func TestAssessRecordingEmptyResponseRetryPrompt(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{
			{Role: "assistant", StopReason: types.StopReasonEndTurn},
		},
	}

	task := &Task{ID: "t-1", Word: "Sun", TargetPhoneme: "S", Status: StatusInProgress}

	c := NewController(provider, "test-model")
	assessment, err := c.AssessRecording(context.Background(), []byte{0x01, 0x02}, "audio/webm", task)
	if err != nil {
		t.Fatalf("AssessRecording: %v", err)
	}
	if assessment.Utterance != retryPrompt {
		t.Errorf("utterance = %q, want retry prompt", assessment.Utterance)
	}
}

func TestAssessRecordingPropagatesRemoteError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model overloaded, try later")}

	task := &Task{ID: "t-1", Word: "Sun", TargetPhoneme: "S"}

	c := NewController(provider, "test-model")
	_, err := c.AssessRecording(context.Background(), []byte{0x01}, "audio/webm", task)
	if err == nil {
		t.Fatal("expected error")
	}

	var remote *core.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error type = %T, want *core.RemoteError", err)
	}
	if remote.Type != core.ErrServiceUnavailable {
		t.Errorf("error class = %q, want service unavailable", remote.Type)
	}
	if task.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 on failed assessment", task.Attempts)
	}
}

func TestSkipAvailableAfterThreeAttempts(t *testing.T) {
	task := &Task{Word: "Sun", TargetPhoneme: "S", Status: StatusInProgress}

	for i := 0; i < 3; i++ {
		if task.SkipAvailable() {
			t.Fatalf("skip available at %d attempts", task.Attempts)
		}
		task.Attempts++
	}

	if !task.SkipAvailable() {
		t.Error("skip not available after 3 attempts")
	}
	if task.Status != StatusInProgress {
		t.Errorf("status = %q, want still in_progress", task.Status)
	}

	// Mastery removes the affordance.
	task.Status = StatusMastered
	if task.SkipAvailable() {
		t.Error("skip available on mastered task")
	}
}

func TestApplyTaskUpdateMasteredIsTerminal(t *testing.T) {
	task := &Task{Word: "Sun", TargetPhoneme: "S", Status: StatusMastered}

	ApplyTaskUpdate(task, map[string]any{"status": "review_needed", "feedback": "hmm"})

	if task.Status != StatusMastered {
		t.Errorf("status = %q, mastered must be terminal", task.Status)
	}
	if len(task.History) != 1 {
		t.Errorf("feedback should still append, history = %v", task.History)
	}
}

func TestApplyTaskUpdateIgnoresUnknownValues(t *testing.T) {
	task := &Task{Word: "Sun", TargetPhoneme: "S", Status: StatusInProgress}

	ApplyTaskUpdate(task, map[string]any{"status": "finished", "urgency": "critical"})

	if task.Status != StatusInProgress {
		t.Errorf("status = %q, unknown status must be ignored", task.Status)
	}
	if task.Urgency != "" {
		t.Errorf("urgency = %q, unknown urgency must be ignored", task.Urgency)
	}
}

func TestAnalyzeBaseline(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{
			textResponse(`{
				"results": [
					{"word": "Sun", "phoneme": "S", "accurate": true},
					{"word": "Rabbit", "phoneme": "R", "accurate": false, "notes": "gliding"}
				],
				"summary": "Strong S, emerging R.",
				"recommendedStartingPoint": "R words in initial position"
			}`),
		},
	}

	recordings := []BaselineRecording{
		{Word: "Sun", Phoneme: "S", AudioBase64: "AAA=", MIMEType: "audio/wav"},
		{Word: "Rabbit", Phoneme: "R", AudioBase64: "AAA=", MIMEType: "audio/wav"},
	}

	c := NewController(provider, "test-model")
	result, err := c.AnalyzeBaseline(context.Background(), recordings)
	if err != nil {
		t.Fatalf("AnalyzeBaseline: %v", err)
	}

	if len(result.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(result.Results))
	}
	if result.Results[1].Accurate {
		t.Error("second recording should be inaccurate")
	}
	if result.RecommendedStartingPoint == "" {
		t.Error("recommended starting point missing")
	}

	// One bundled call, all recordings inline.
	if len(provider.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(provider.requests))
	}
	blocks := provider.requests[0].Messages[0].ContentBlocks()
	var audioCount int
	for _, b := range blocks {
		if _, ok := b.(types.AudioBlock); ok {
			audioCount++
		}
	}
	if audioCount != 2 {
		t.Errorf("audio blocks = %d, want 2", audioCount)
	}
}

func TestAnalyzeBaselineParseFailurePropagates(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.MessageResponse{textResponse("sorry, I can't do JSON today")},
	}

	c := NewController(provider, "test-model")
	_, err := c.AnalyzeBaseline(context.Background(), []BaselineRecording{
		{Word: "Sun", Phoneme: "S", AudioBase64: "AAA=", MIMEType: "audio/wav"},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var remote *core.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error type = %T, want *core.RemoteError", err)
	}
}

