// Package proto defines the streaming surface envelopes. Inbound payloads
// are a small closed set of tagged variants; anything that does not parse
// into one of them is rejected at the boundary.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	InboundTypeJoin    = "join"
	InboundTypeMessage = "message"
	InboundTypeWhisper = "whisper"
)

// Inbound is the envelope for payloads coming from the client.
type Inbound struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId,omitempty"`
	HWID      string `json:"hwid,omitempty"`
	Text      string `json:"text,omitempty"`
	Target    string `json:"target,omitempty"`
}

// Join subscribes the connection to a channel, optionally carrying a
// hardware id for verified identity resolution.
type Join struct {
	ChannelID string
	HWID      string
}

// Chat broadcasts text to the connection's current channel.
type Chat struct {
	Text string
}

// Whisper delivers text to a single named member of the current channel.
type Whisper struct {
	Target string
	Text   string
}

// Parse validates raw bytes into one of the tagged variants. The returned
// value is *Join, *Chat, or *Whisper.
func Parse(data []byte) (any, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	switch in.Type {
	case InboundTypeJoin:
		if strings.TrimSpace(in.ChannelID) == "" {
			return nil, fmt.Errorf("join requires channelId")
		}
		return &Join{ChannelID: in.ChannelID, HWID: in.HWID}, nil
	case InboundTypeMessage:
		if strings.TrimSpace(in.Text) == "" {
			return nil, fmt.Errorf("message requires text")
		}
		return &Chat{Text: in.Text}, nil
	case InboundTypeWhisper:
		if strings.TrimSpace(in.Target) == "" || strings.TrimSpace(in.Text) == "" {
			return nil, fmt.Errorf("whisper requires target and text")
		}
		return &Whisper{Target: in.Target, Text: in.Text}, nil
	default:
		return nil, fmt.Errorf("unknown payload type %q", in.Type)
	}
}

// Rejection is the sender-only reply for a message that was not relayed.
type Rejection struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// RejectionMessage is the user-facing explanation attached to every denial.
const RejectionMessage = "Message not sent due to community guidelines or server limits."

// NewRejection builds a rejection reply for the given reason.
func NewRejection(reason string) Rejection {
	return Rejection{
		Status:  "rejected",
		Reason:  reason,
		Message: RejectionMessage,
	}
}
