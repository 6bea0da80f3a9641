// Package deliver renders accepted candidates and hands them to the
// messaging transport.
package deliver

import (
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rnovak/newswatch/internal/bus"
	"github.com/rnovak/newswatch/internal/source"
)

// Transport is the messaging collaborator. Broadcast reports true iff at
// least one target accepted the message.
type Transport interface {
	Broadcast(text string) bool
	IsReady() bool
}

// Gate formats one accepted candidate into a message and forwards it. The
// candidate is already committed (seen + similarity) by the adapter that
// accepted it; the gate only renders, sends, and emits events.
type Gate struct {
	transport Transport
	bus       *bus.MessageBus
}

func NewGate(transport Transport, b *bus.MessageBus) *Gate {
	return &Gate{transport: transport, bus: b}
}

// Deliver sends the candidate to all targets. Returns true on accepted
// delivery.
func (g *Gate) Deliver(sourceName string, c *source.Candidate) bool {
	g.emit(bus.EventFetched, sourceName, c.Title)

	if !g.transport.IsReady() {
		log.Printf("[deliver] no channel ready, dropping %q from %s", c.Title, sourceName)
		g.emit(bus.EventError, sourceName, "no delivery channel is ready")
		return false
	}

	text := Render(c)
	if !g.transport.Broadcast(text) {
		log.Printf("[deliver] no channel accepted %q from %s", c.Title, sourceName)
		g.emit(bus.EventError, sourceName, "no channel accepted the message")
		return false
	}

	g.emit(bus.EventSent, sourceName, c.Title)
	return true
}

func (g *Gate) emit(kind, sourceName, detail string) {
	if g.bus == nil {
		return
	}
	g.bus.PublishEvent(bus.Event{
		Kind:      kind,
		Source:    sourceName,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// Render builds the message body: title, optional description and details,
// and always the URL last.
func Render(c *source.Candidate) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.Title))

	if desc := strings.TrimSpace(c.Description); desc != "" {
		sb.WriteString("\n\n")
		sb.WriteString(truncate(desc, 400))
	}
	if details := strings.TrimSpace(c.Details); details != "" {
		sb.WriteString("\n")
		sb.WriteString(details)
	}

	sb.WriteString("\n\n")
	sb.WriteString(c.URL)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return cut[:idx] + "..."
	}
	// No space to break on: back off to a rune boundary.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
