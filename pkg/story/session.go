// Package story generates branching bedtime stories and assembles narrated
// audiobooks from them.
package story

// State is a story session's lifecycle position.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateComplete   State = "complete"
)

// Session is one story-in-progress. The child picks from a pool of three
// magic items; each continuation consumes one, and the story concludes
// when the pool is empty.
type Session struct {
	Theme          string   `json:"theme,omitempty"`
	Hero           string   `json:"hero,omitempty"`
	Animal         string   `json:"animal,omitempty"`
	Items          []string `json:"items,omitempty"`
	RemainingItems []string `json:"remainingItems,omitempty"`
	Segments       []string `json:"segments,omitempty"`
}

// State derives the lifecycle position from the segment and item record.
func (s *Session) State() State {
	if len(s.Segments) == 0 {
		return StateNotStarted
	}
	if len(s.RemainingItems) == 0 {
		return StateComplete
	}
	return StateInProgress
}

// Reset clears every field. The only way back to NotStarted.
func (s *Session) Reset() {
	*s = Session{}
}

// consumeItem removes the chosen item from the remaining pool and reports
// whether it was there.
func (s *Session) consumeItem(item string) bool {
	for i, it := range s.RemainingItems {
		if it == item {
			s.RemainingItems = append(s.RemainingItems[:i], s.RemainingItems[i+1:]...)
			return true
		}
	}
	return false
}
