package events

import (
	"regexp"
	"strings"
)

// Vanilla server log lines look like:
//
//	[12:34:56] [Server thread/INFO]: Steve joined the game
//
// The prefix varies across flavours (Paper adds its own thread names), so
// matching anchors on the body after the last "]: " marker.
var (
	logPrefixRe = regexp.MustCompile(`^\[[^\]]*\] \[[^\]]*\]: `)
	chatRe      = regexp.MustCompile(`^<([^>]+)> (.*)$`)
	joinedRe    = regexp.MustCompile(`^(\S+) joined the game$`)
	leftRe      = regexp.MustCompile(`^(\S+) left the game$`)
)

// ParseLine maps one raw output line to a typed event. Lines that match no
// known pattern come back as a raw message so downstream consumers (console
// stream, event history) still see them.
func ParseLine(line string) Event {
	body := logPrefixRe.ReplaceAllString(line, "")

	if m := chatRe.FindStringSubmatch(body); m != nil {
		return Chat(m[1], m[2])
	}
	if m := joinedRe.FindStringSubmatch(body); m != nil {
		return PlayerJoined(m[1])
	}
	if m := leftRe.FindStringSubmatch(body); m != nil {
		return PlayerLeft(m[1])
	}
	if strings.HasPrefix(body, "Done (") && strings.Contains(body, "For help") {
		return StartupComplete()
	}
	if strings.HasPrefix(body, "Stopping server") || strings.HasPrefix(body, "Stopping the server") {
		return StoppingDetected()
	}

	return RawMessage(line)
}
