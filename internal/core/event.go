package core

// Event is a chat delivery fanned out to session write loops.
type Event struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Sender   string `json:"sender"`
	Verified bool   `json:"verified,omitempty"`
}

// EventTypeMessage tags ordinary chat deliveries.
const EventTypeMessage = "message"

// systemSender labels server-generated notices such as whisper misses.
const systemSender = "System"
