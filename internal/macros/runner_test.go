package macros

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/events"
)

type lineSink struct {
	lines []string
}

func (s *lineSink) send(line string) error {
	s.lines = append(s.lines, line)
	return nil
}

func writeMacro(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".macro"), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write macro: %v", err)
	}
}

func TestRunSendWithSubstitution(t *testing.T) {
	dir := t.TempDir()
	writeMacro(t, dir, "greet", `
# greeting macro
send say Welcome ${arg1}, courtesy of ${invoker}!
send say ${missing} stays as-is
`)

	sink := &lineSink{}
	r := NewRunner(dir, sink.send, events.NewDispatcher())

	if err := r.Run("greet", []string{"Steve"}, "Alex"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(sink.lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", sink.lines)
	}
	if sink.lines[0] != "say Welcome Steve, courtesy of Alex!" {
		t.Fatalf("unexpected line: %q", sink.lines[0])
	}
	if sink.lines[1] != "say ${missing} stays as-is" {
		t.Fatalf("unexpected line: %q", sink.lines[1])
	}
}

func TestRunMissingMacro(t *testing.T) {
	r := NewRunner(t.TempDir(), (&lineSink{}).send, events.NewDispatcher())

	if err := r.Run("nope", nil, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.Run("../escape", nil, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for path traversal, got %v", err)
	}
}

func TestRunBadDirective(t *testing.T) {
	dir := t.TempDir()
	writeMacro(t, dir, "bad", "explode everything\n")

	r := NewRunner(dir, (&lineSink{}).send, events.NewDispatcher())
	err := r.Run("bad", nil, "")

	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Line != 1 {
		t.Fatalf("expected line 1, got %d", scriptErr.Line)
	}
}

func TestAwaitChatBindsVariables(t *testing.T) {
	dir := t.TempDir()
	writeMacro(t, dir, "echo", `
await_chat
send say ${chat_player} said: ${chat_message}
`)

	dispatcher := events.NewDispatcher()
	sink := &lineSink{}
	r := NewRunner(dir, sink.send, dispatcher)

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- r.Run("echo", nil, "Alex")
	}()

	// Let the script reach await_chat, then fire the chat event.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dispatcher.Dispatch(events.Chat("Steve", "hello"))
		select {
		case err := <-doneCh:
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if len(sink.lines) != 1 || sink.lines[0] != "say Steve said: hello" {
				t.Fatalf("unexpected output: %v", sink.lines)
			}
			return
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("script did not finish")
}

func TestDelayDirective(t *testing.T) {
	dir := t.TempDir()
	writeMacro(t, dir, "slow", "delay 30ms\nsend done\n")

	sink := &lineSink{}
	r := NewRunner(dir, sink.send, events.NewDispatcher())

	start := time.Now()
	if err := r.Run("slow", nil, ""); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("delay did not block")
	}
	if len(sink.lines) != 1 || sink.lines[0] != "done" {
		t.Fatalf("unexpected output: %v", sink.lines)
	}
}
