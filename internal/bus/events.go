package bus

import "time"

// OutboundMessage is a rendered item on its way to one chat channel.
type OutboundMessage struct {
	Channel string // empty means every enabled channel
	ChatID  string
	Content string
}

// Command intents raised by chat-side interactions.
const (
	CommandPing     = "ping"
	CommandRegister = "register"
	CommandFetch    = "fetch"
)

// Command is a control intent parsed out of an inbound chat message.
type Command struct {
	Name      string
	Channel   string
	ChatID    string
	Arg       string
	Timestamp time.Time
}

// Event kinds emitted by the pipeline for observability.
const (
	EventFetched = "fetched"
	EventSent    = "sent"
	EventError   = "error"
)

// Event is a pipeline side-channel notification. Events carry no decision
// logic; subscribers log or display them.
type Event struct {
	Kind      string
	Source    string
	Detail    string
	Timestamp time.Time
}
