package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lumikids/pip/pkg/core/types"
	"github.com/lumikids/pip/pkg/engine"
	"github.com/lumikids/pip/pkg/session"
	"github.com/lumikids/pip/pkg/story"
	"github.com/lumikids/pip/pkg/therapy"
)

const chatSystemTemplate = `You are %s, a small, warm, endlessly curious
companion for a young child. Speak simply and kindly, in one or two short
sentences. Use your tools to remember what the child tells you, to change
your mood, and to adopt a new name if the child gives you one.`

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Utterance     string `json:"utterance"`
	CharacterName string `json:"characterName"`
	Mood          string `json:"mood,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	const route = "chat"
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		s.writeBadRequest(w, route, "sessionId and message are required")
		return
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	start := time.Now()
	history := append(doc.HistoryMessages(), types.NewTextMessage("user", req.Message))
	result, err := s.engine.Run(r.Context(), engine.Request{
		History: history,
		System:  chatSystemPrompt(doc),
		Toolset: engine.ChatToolset(),
	})
	s.metrics.runDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	doc.ApplyEffects(result.Effects)
	doc.AppendTurn("user", req.Message)
	doc.AppendTurn("assistant", result.Utterance)
	if err := s.deps.Store.Save(r.Context(), req.SessionID, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Utterance:     result.Utterance,
		CharacterName: doc.Character.Name,
		Mood:          doc.Character.Mood,
	})
	s.countRequest(route, http.StatusOK)
}

// chatSystemPrompt folds the companion's identity and remembered facts
// into the system instruction.
func chatSystemPrompt(doc *session.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, chatSystemTemplate, doc.Character.Name)
	if len(doc.Memory) > 0 {
		b.WriteString("\n\nThings you remember about the child:\n")
		keys := make([]string, 0, len(doc.Memory))
		for k := range doc.Memory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, doc.Memory[k])
		}
	}
	return b.String()
}

type taskRequest struct {
	SessionID     string `json:"sessionId"`
	ExcludeWord   string `json:"excludeWord,omitempty"`
	ForcedPhoneme string `json:"forcedPhoneme,omitempty"`
}

func (s *Server) handlePracticeTask(w http.ResponseWriter, r *http.Request) {
	const route = "practice_task"
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		s.writeBadRequest(w, route, "sessionId is required")
		return
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	opts := therapy.GenerateOptions{
		ExcludeWord:   req.ExcludeWord,
		ForcedPhoneme: req.ForcedPhoneme,
		TargetWords:   doc.TargetWords,
		MasteredWords: doc.MasteredWords,
	}
	if doc.Baseline != nil {
		opts.BaselineStart = doc.Baseline.RecommendedStartingPoint
	}

	// Generation never fails; it degrades to the default word.
	task := s.therapy.GenerateTask(r.Context(), doc.Tasks, opts)
	doc.Tasks = append(doc.Tasks, task)
	if err := s.deps.Store.Save(r.Context(), req.SessionID, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
	s.countRequest(route, http.StatusOK)
}

type assessRequest struct {
	SessionID   string `json:"sessionId"`
	TaskID      string `json:"taskId,omitempty"`
	AudioBase64 string `json:"audioBase64"`
	MIMEType    string `json:"mimeType"`
}

type assessResponse struct {
	Utterance     string        `json:"utterance"`
	Mood          string        `json:"mood,omitempty"`
	Task          *therapy.Task `json:"task"`
	SkipAvailable bool          `json:"skipAvailable"`
}

func (s *Server) handlePracticeAssess(w http.ResponseWriter, r *http.Request) {
	const route = "practice_assess"
	var req assessRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || req.AudioBase64 == "" {
		s.writeBadRequest(w, route, "sessionId and audioBase64 are required")
		return
	}

	recording, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		s.writeBadRequest(w, route, "audioBase64 is not valid base64")
		return
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	task := doc.CurrentTask()
	if req.TaskID != "" {
		task = nil
		for _, t := range doc.Tasks {
			if t.ID == req.TaskID {
				task = t
				break
			}
		}
	}
	if task == nil {
		s.writeBadRequest(w, route, "no practice task to assess")
		return
	}

	start := time.Now()
	assessment, err := s.therapy.AssessRecording(r.Context(), recording, req.MIMEType, task)
	s.metrics.runDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	doc.PhonemeStats.RecordAttempt(task.TargetPhoneme, task.Status == therapy.StatusMastered)
	if assessment.Mood != "" {
		doc.Character.Mood = assessment.Mood
	}
	if err := s.deps.Store.Save(r.Context(), req.SessionID, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, assessResponse{
		Utterance:     assessment.Utterance,
		Mood:          assessment.Mood,
		Task:          task,
		SkipAvailable: task.SkipAvailable(),
	})
	s.countRequest(route, http.StatusOK)
}

type baselineRequest struct {
	SessionID  string                     `json:"sessionId"`
	Recordings []baselineRecordingRequest `json:"recordings"`
}

type baselineRecordingRequest struct {
	Word        string `json:"word"`
	Phoneme     string `json:"phoneme"`
	AudioBase64 string `json:"audioBase64"`
	MIMEType    string `json:"mimeType"`
}

func (s *Server) handlePracticeBaseline(w http.ResponseWriter, r *http.Request) {
	const route = "practice_baseline"
	var req baselineRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || len(req.Recordings) == 0 {
		s.writeBadRequest(w, route, "sessionId and recordings are required")
		return
	}

	recordings := make([]therapy.BaselineRecording, len(req.Recordings))
	for i, rec := range req.Recordings {
		recordings[i] = therapy.BaselineRecording{
			Word:        rec.Word,
			Phoneme:     rec.Phoneme,
			AudioBase64: rec.AudioBase64,
			MIMEType:    rec.MIMEType,
		}
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	result, err := s.therapy.AnalyzeBaseline(r.Context(), recordings)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	doc.Baseline = result
	if err := s.deps.Store.Save(r.Context(), req.SessionID, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
	s.countRequest(route, http.StatusOK)
}

type storyStartRequest struct {
	SessionID string    `json:"sessionId"`
	Theme     string    `json:"theme"`
	Hero      string    `json:"hero"`
	Animal    string    `json:"animal"`
	Items     [3]string `json:"items"`
}

type storyResponse struct {
	Segment        string      `json:"segment"`
	RemainingItems []string    `json:"remainingItems"`
	State          story.State `json:"state"`
}

func (s *Server) handleStoryStart(w http.ResponseWriter, r *http.Request) {
	const route = "story_start"
	var req storyStartRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || req.Theme == "" {
		s.writeBadRequest(w, route, "sessionId and theme are required")
		return
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item) == "" {
			s.writeBadRequest(w, route, "three items are required")
			return
		}
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	// A new story always starts from a clean slate.
	doc.Story.Reset()
	segment, err := s.story.Start(r.Context(), &doc.Story, req.Theme, req.Hero, req.Animal, req.Items)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	if err := s.deps.Store.Save(r.Context(), req.SessionID, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, storyResponse{
		Segment:        segment,
		RemainingItems: doc.Story.RemainingItems,
		State:          doc.Story.State(),
	})
	s.countRequest(route, http.StatusOK)
}

type storyContinueRequest struct {
	SessionID  string `json:"sessionId"`
	ChosenItem string `json:"chosenItem"`
}

func (s *Server) handleStoryContinue(w http.ResponseWriter, r *http.Request) {
	const route = "story_continue"
	var req storyContinueRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" || req.ChosenItem == "" {
		s.writeBadRequest(w, route, "sessionId and chosenItem are required")
		return
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	segment, err := s.story.Continue(r.Context(), &doc.Story, req.ChosenItem)
	if err != nil {
		switch {
		case errors.Is(err, story.ErrNotStarted), errors.Is(err, story.ErrComplete), errors.Is(err, story.ErrUnknownItem):
			s.writeBadRequest(w, route, err.Error())
		default:
			s.writeError(w, route, err)
		}
		return
	}

	if err := s.deps.Store.Save(r.Context(), req.SessionID, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, storyResponse{
		Segment:        segment,
		RemainingItems: doc.Story.RemainingItems,
		State:          doc.Story.State(),
	})
	s.countRequest(route, http.StatusOK)
}

type audiobookRequest struct {
	SessionID string `json:"sessionId"`
	Voice     string `json:"voice,omitempty"`
}

func (s *Server) handleStoryAudiobook(w http.ResponseWriter, r *http.Request) {
	const route = "story_audiobook"
	var req audiobookRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		s.writeBadRequest(w, route, "sessionId is required")
		return
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, route, err)
		return
	}
	if len(doc.Story.Segments) == 0 {
		s.writeBadRequest(w, route, "no story to narrate")
		return
	}

	narrator, err := s.narrator(doc.TTSEngine)
	if err != nil {
		s.writeError(w, route, err)
		return
	}
	narrating := story.NewController(s.deps.Provider, s.cfg.ChatModel,
		story.WithNarrator(narrator), story.WithLogger(s.logger))

	start := time.Now()
	wavData, err := narrating.AssembleAudiobook(r.Context(), doc.Story.Segments, req.Voice)
	s.metrics.runDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="story.wav"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wavData)
	s.countRequest(route, http.StatusOK)
}

func (s *Server) handleStateExport(w http.ResponseWriter, r *http.Request) {
	const route = "state_export"
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		s.writeBadRequest(w, route, "sessionId is required")
		return
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.deps.Store.LoadOrCreate(r.Context(), id)
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	data, err := doc.Export()
	if err != nil {
		s.writeError(w, route, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	s.countRequest(route, http.StatusOK)
}

func (s *Server) handleStateImport(w http.ResponseWriter, r *http.Request) {
	const route = "state_import"
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		s.writeBadRequest(w, route, "sessionId is required")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeBadRequest(w, route, "unreadable body")
		return
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	doc := session.NewDocument()
	if err := doc.Import(data); err != nil {
		s.writeBadRequest(w, route, "invalid session document")
		return
	}
	if err := s.deps.Store.Save(r.Context(), id, doc); err != nil {
		s.writeError(w, route, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
	s.countRequest(route, http.StatusOK)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
