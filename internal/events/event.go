package events

// Category identifies which reaction slot an event is delivered to.
type Category int

const (
	CategoryPlayerJoined Category = iota
	CategoryPlayerLeft
	CategoryChat
	CategoryStartupComplete
	CategoryStoppingDetected
	CategoryShutdownComplete
	CategoryRawMessage

	categoryCount
)

func (c Category) String() string {
	switch c {
	case CategoryPlayerJoined:
		return "player_joined"
	case CategoryPlayerLeft:
		return "player_left"
	case CategoryChat:
		return "chat"
	case CategoryStartupComplete:
		return "startup_complete"
	case CategoryStoppingDetected:
		return "stopping_detected"
	case CategoryShutdownComplete:
		return "shutdown_complete"
	case CategoryRawMessage:
		return "raw_message"
	default:
		return "unknown"
	}
}

// Categories returns every event category, in dispatch slot order.
func Categories() []Category {
	out := make([]Category, 0, categoryCount)
	for c := Category(0); c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// Event is one typed domain event produced from a server output line, or
// synthesized by the supervisor (shutdown complete).
type Event struct {
	Category Category

	// Player is set for player_joined, player_left and chat events.
	Player string
	// Message is the chat message for chat events, the raw line for
	// raw_message events, and empty otherwise.
	Message string
}

func PlayerJoined(name string) Event {
	return Event{Category: CategoryPlayerJoined, Player: name}
}

func PlayerLeft(name string) Event {
	return Event{Category: CategoryPlayerLeft, Player: name}
}

func Chat(player, message string) Event {
	return Event{Category: CategoryChat, Player: player, Message: message}
}

func StartupComplete() Event {
	return Event{Category: CategoryStartupComplete}
}

func StoppingDetected() Event {
	return Event{Category: CategoryStoppingDetected}
}

func ShutdownComplete() Event {
	return Event{Category: CategoryShutdownComplete}
}

func RawMessage(text string) Event {
	return Event{Category: CategoryRawMessage, Message: text}
}
