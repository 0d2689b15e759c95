// Package therapy drives speech practice: picking practice words, assessing
// the child's recorded attempts, and running the one-time baseline pass.
package therapy

import (
	"github.com/google/uuid"
)

// Status is a practice task's lifecycle state. Mastered is terminal: no
// assessment forces a transition out of it.
type Status string

const (
	StatusNew          Status = "new"
	StatusInProgress   Status = "in_progress"
	StatusMastered     Status = "mastered"
	StatusReviewNeeded Status = "review_needed"
)

// Urgency is the model's priority signal for the caregiver view.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Report is the structured parent-facing assessment summary.
type Report struct {
	Strengths string `json:"strengths"`
	NeedsWork string `json:"needsWork"`
	HowToHelp string `json:"howToHelp"`
}

// Task is one practice word and its attempt record.
type Task struct {
	ID            string   `json:"id"`
	Word          string   `json:"word"`
	TargetPhoneme string   `json:"targetPhoneme"`
	Status        Status   `json:"status"`
	Urgency       Urgency  `json:"urgency,omitempty"`
	Attempts      int      `json:"attempts"`
	History       []string `json:"history,omitempty"`
	Report        *Report  `json:"report,omitempty"`
	Favorite      bool     `json:"isFavorite"`
}

// SkipAvailable reports whether the UI should offer "skip to next word".
// Three attempts without mastery earns the affordance; the task itself
// stays in_progress.
func (t *Task) SkipAvailable() bool {
	return t.Attempts >= 3 && t.Status != StatusMastered
}

// NewTask creates a fresh task for a word.
func NewTask(word, phoneme string) *Task {
	return &Task{
		ID:            uuid.NewString(),
		Word:          word,
		TargetPhoneme: phoneme,
		Status:        StatusNew,
	}
}

// DefaultWord backs task generation when the remote call fails or returns
// an unusable result.
const (
	DefaultWord    = "Sunshine"
	DefaultPhoneme = "S"
)

// DefaultTask is the graceful-degradation task. Task generation never
// returns an error; a missing practice word is harmless.
func DefaultTask() *Task {
	return NewTask(DefaultWord, DefaultPhoneme)
}

// Stat accumulates one phoneme's attempt record. Counters only grow.
type Stat struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// PhonemeStats maps phoneme → accumulated attempt record.
type PhonemeStats map[string]Stat

// RecordAttempt bumps the phoneme's counters.
func (ps PhonemeStats) RecordAttempt(phoneme string, success bool) {
	s := ps[phoneme]
	s.Attempts++
	if success {
		s.Successes++
	}
	ps[phoneme] = s
}

// Struggling returns phonemes with at least 3 attempts and a mastery ratio
// below 0.4.
func (ps PhonemeStats) Struggling() []string {
	var out []string
	for phoneme, s := range ps {
		if s.Attempts >= 3 && float64(s.Successes)/float64(s.Attempts) < 0.4 {
			out = append(out, phoneme)
		}
	}
	return out
}

// Confident returns phonemes with at least 3 successes.
func (ps PhonemeStats) Confident() []string {
	var out []string
	for phoneme, s := range ps {
		if s.Successes >= 3 {
			out = append(out, phoneme)
		}
	}
	return out
}

// ApplyTaskUpdate folds a manage_task tool update into the task. Unknown
// fields are ignored. Mastered tasks accept report and feedback updates
// but never leave mastered.
func ApplyTaskUpdate(task *Task, updates map[string]any) {
	if task == nil || updates == nil {
		return
	}

	if s, ok := updates["status"].(string); ok {
		next := Status(s)
		switch next {
		case StatusNew, StatusInProgress, StatusMastered, StatusReviewNeeded:
			if task.Status != StatusMastered {
				task.Status = next
			}
		}
	}

	if u, ok := updates["urgency"].(string); ok {
		switch Urgency(u) {
		case UrgencyHigh, UrgencyMedium, UrgencyLow:
			task.Urgency = Urgency(u)
		}
	}

	if fb, ok := updates["feedback"].(string); ok && fb != "" {
		task.History = append(task.History, fb)
	}

	if r, ok := updates["report"].(map[string]any); ok {
		report := &Report{}
		if v, ok := r["strengths"].(string); ok {
			report.Strengths = v
		}
		if v, ok := r["needsWork"].(string); ok {
			report.NeedsWork = v
		}
		if v, ok := r["howToHelp"].(string); ok {
			report.HowToHelp = v
		}
		task.Report = report
	}
}
