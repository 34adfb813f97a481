package main

import (
	"strings"
	"sync"
)

// captureSink collects echoed engine output between Reset and Lines
// calls. It is written from the eval goroutine and read from the
// Bubble Tea update loop, hence the mutex.
type captureSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (s *captureSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// Reset discards captured output.
func (s *captureSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}

// Lines returns captured output split into lines, without a trailing
// empty line.
func (s *captureSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := strings.TrimSuffix(s.buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
