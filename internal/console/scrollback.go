package console

import (
	"regexp"
	"strings"
	"sync"
)

// RingBuffer implements a circular buffer for console output
type RingBuffer struct {
	lines    []string
	maxLines int
	next     int
	size     int
}

// NewRingBuffer creates a new ring buffer
func NewRingBuffer(maxLines int) *RingBuffer {
	return &RingBuffer{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
	}
}

// Add adds a line to the buffer
func (rb *RingBuffer) Add(line string) {
	rb.lines[rb.next] = line
	rb.next = (rb.next + 1) % rb.maxLines
	if rb.size < rb.maxLines {
		rb.size++
	}
}

// Lines returns the buffered lines in arrival order
func (rb *RingBuffer) Lines() []string {
	result := make([]string, 0, rb.size)
	start := rb.next - rb.size
	if start < 0 {
		start += rb.maxLines
	}
	for i := 0; i < rb.size; i++ {
		result = append(result, rb.lines[(start+i)%rb.maxLines])
	}
	return result
}

// Last returns the newest n lines, oldest first
func (rb *RingBuffer) Last(n int) []string {
	all := rb.Lines()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Store keeps a scrollback buffer per instance so new console viewers can
// catch up on recent output.
type Store struct {
	capacity int

	mu      sync.RWMutex
	buffers map[string]*RingBuffer
}

// NewStore creates a store whose per-instance buffers hold capacity lines.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{
		capacity: capacity,
		buffers:  make(map[string]*RingBuffer),
	}
}

// Append records one output line for an instance. Control sequences are
// stripped so stored lines are plain text.
func (s *Store) Append(instanceID, line string) {
	clean := StripControlSequences(line)

	s.mu.Lock()
	defer s.mu.Unlock()

	rb, ok := s.buffers[instanceID]
	if !ok {
		rb = NewRingBuffer(s.capacity)
		s.buffers[instanceID] = rb
	}
	rb.Add(clean)
}

// Tail returns the newest n lines for an instance, oldest first. Zero or
// negative n returns the whole buffer.
func (s *Store) Tail(instanceID string, n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rb, ok := s.buffers[instanceID]
	if !ok {
		return nil
	}
	return rb.Last(n)
}

// Drop discards the buffer for an instance (instance removed).
func (s *Store) Drop(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, instanceID)
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[()][A-Z0-9]`)

// StripControlSequences removes ANSI escape codes and non-printable control
// characters from a console line.
func StripControlSequences(line string) string {
	line = ansiEscape.ReplaceAllString(line, "")
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, line)
}
