package progressbar

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent use
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgressBar(t *testing.T) {
	out := &syncBuffer{}
	bar := NewProgressBar(out, 10, 4, time.Hour)
	bar.Display()

	for i := 0; i < 6; i++ {
		bar.Increment()
	}
	bar.Describe("episode 4 of 4")
	bar.Close()
	bar.Close()

	if s := out.String(); !strings.Contains(s, "100.00%") {
		t.Errorf("final draw: want(100.00%%) have(%q)", s)
	}
	if s := out.String(); !strings.Contains(s, "episode 4 of 4") {
		t.Errorf("description: want(episode 4 of 4) have(%q)", s)
	}
}
