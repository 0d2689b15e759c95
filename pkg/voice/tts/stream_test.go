package tts

import (
	"errors"
	"sync"
	"testing"
)

func TestStreamCloseConcurrentWithFinish(t *testing.T) {
	// Close from the consumer can race the producer finishing; neither
	// side may panic on a double close.
	for i := 0; i < 200; i++ {
		s := newStream()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Close()
		}()
		go func() {
			defer wg.Done()
			s.finish(nil)
		}()
		wg.Wait()

		if err := s.Close(); err != nil {
			t.Fatalf("repeated Close: %v", err)
		}
	}
}

func TestStreamErrAfterFinish(t *testing.T) {
	s := newStream()
	want := errors.New("synthesis failed")

	go s.finish(want)

	for range s.Chunks() {
	}
	if err := s.Err(); !errors.Is(err, want) {
		t.Errorf("Err = %v, want %v", err, want)
	}
	s.Close()
	if err := s.Err(); !errors.Is(err, want) {
		t.Errorf("Err after Close = %v, want %v", err, want)
	}
}
