package macros

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/events"
)

// ErrNotFound is returned when no script file exists for the requested name.
var ErrNotFound = errors.New("macro not found")

// awaitChatTimeout bounds the await_chat directive so an abandoned script
// does not hold its goroutine forever.
const awaitChatTimeout = 5 * time.Minute

// ScriptError reports a failure inside a running script. Script errors never
// affect instance state.
type ScriptError struct {
	Macro  string
	Line   int
	Detail string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("macro %s line %d: %s", e.Macro, e.Line, e.Detail)
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Runner executes line-based macro scripts from a directory. Scripts are
// files named <name>.macro with one directive per line:
//
//	# comment
//	send say Welcome ${arg1}!
//	delay 2s
//	await_chat
//	send say ${chat_player} said ${chat_message}
//
// ${argN} expands to the Nth positional argument and ${invoker} to the
// player who triggered the run.
type Runner struct {
	dir        string
	sendLine   func(string) error
	dispatcher *events.Dispatcher
}

func NewRunner(dir string, sendLine func(string) error, dispatcher *events.Dispatcher) *Runner {
	return &Runner{dir: dir, sendLine: sendLine, dispatcher: dispatcher}
}

// Run executes a named script with positional arguments. It blocks until the
// script finishes, so callers run it on its own goroutine.
func (r *Runner) Run(name string, args []string, invokedBy string) error {
	if strings.ContainsAny(name, "/\\") {
		return ErrNotFound
	}

	path := filepath.Join(r.dir, name+".macro")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return &ScriptError{Macro: name, Detail: err.Error()}
	}

	vars := map[string]string{"invoker": invokedBy}
	for i, arg := range args {
		vars[fmt.Sprintf("arg%d", i+1)] = arg
	}

	log.Printf("[Macro %s] started by %q with %d args", name, invokedBy, len(args))
	lines := strings.Split(string(data), "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		directive, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch directive {
		case "send":
			if rest == "" {
				return &ScriptError{Macro: name, Line: lineNo, Detail: "send requires text"}
			}
			if err := r.sendLine(substitute(rest, vars)); err != nil {
				return &ScriptError{Macro: name, Line: lineNo, Detail: err.Error()}
			}

		case "delay":
			d, err := time.ParseDuration(rest)
			if err != nil {
				return &ScriptError{Macro: name, Line: lineNo, Detail: fmt.Sprintf("bad duration %q", rest)}
			}
			time.Sleep(d)

		case "await_chat":
			player, message, err := r.awaitChat()
			if err != nil {
				return &ScriptError{Macro: name, Line: lineNo, Detail: err.Error()}
			}
			vars["chat_player"] = player
			vars["chat_message"] = message

		default:
			return &ScriptError{Macro: name, Line: lineNo, Detail: fmt.Sprintf("unknown directive %q", directive)}
		}
	}

	log.Printf("[Macro %s] finished", name)
	return nil
}

// awaitChat blocks until the next chat message arrives. A one-shot channel
// backs a transient dispatcher registration which is removed once fired.
func (r *Runner) awaitChat() (string, string, error) {
	ch := make(chan events.Event, 1)
	var once sync.Once
	handle := r.dispatcher.Register(events.CategoryChat, func(e events.Event) {
		once.Do(func() { ch <- e })
	})
	defer r.dispatcher.Remove(events.CategoryChat, handle)

	select {
	case e := <-ch:
		return e.Player, e.Message, nil
	case <-time.After(awaitChatTimeout):
		return "", "", fmt.Errorf("timed out waiting for chat message")
	}
}

func substitute(text string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := varPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}
