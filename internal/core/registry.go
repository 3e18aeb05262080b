// Package core owns channel membership and message fan-out. Channels are
// created lazily on first join and destroyed when their last member leaves.
package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps channel ids to member sessions and anonymous keys to their
// current channel. All mutations run under a single mutex; a session is a
// member of at most one channel at any instant.
type Registry struct {
	mu       sync.Mutex
	channels map[string]map[*Session]struct{}
	current  map[string]string // anonymous key -> channel id
	log      *zerolog.Logger
}

// NewRegistry creates an empty channel registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		channels: make(map[string]map[*Session]struct{}),
		current:  make(map[string]string),
		log:      logger,
	}
}

// Join adds the session to channelID, atomically removing it from any
// previous channel first. Rejoining the current channel is a cheap re-add.
func (r *Registry) Join(s *Session, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.current[s.Key]; ok && prev != channelID {
		r.removeLocked(s, prev)
	}

	members, ok := r.channels[channelID]
	if !ok {
		members = make(map[*Session]struct{})
		r.channels[channelID] = members
	}
	members[s] = struct{}{}
	r.current[s.Key] = channelID

	r.log.Debug().Str("session", s.ID).Str("channel", channelID).Msg("session joined channel")
}

// Leave removes the session from whichever channel it belongs to. Idempotent.
func (r *Registry) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channelID, ok := r.current[s.Key]
	if !ok {
		return
	}
	r.removeLocked(s, channelID)
	delete(r.current, s.Key)
}

func (r *Registry) removeLocked(s *Session, channelID string) {
	members, ok := r.channels[channelID]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.channels, channelID)
	}
}

// Broadcast delivers an event to every open member of the channel. Closed
// sessions are silently skipped; the liveness check reaps them shortly.
func (r *Registry) Broadcast(channelID string, ev Event) {
	for _, member := range r.members(channelID) {
		member.deliver(ev)
	}
}

// Whisper delivers text to the first member of the channel whose display
// name matches target, plus a confirmation copy back to the sender. When no
// member matches, only the sender receives a notice. Guest labels can
// collide after port reuse; first match wins and that is accepted behavior.
func (r *Registry) Whisper(channelID string, from *Session, target, text string) {
	senderName, _ := from.Identity()

	var match *Session
	for _, member := range r.members(channelID) {
		name, _ := member.Identity()
		if name == target {
			match = member
			break
		}
	}

	if match == nil {
		from.deliver(Event{
			Type:   EventTypeMessage,
			Sender: systemSender,
			Text:   fmt.Sprintf("User %s not found in this channel.", target),
		})
		return
	}

	match.deliver(Event{
		Type:   EventTypeMessage,
		Text:   text,
		Sender: fmt.Sprintf("From %s", senderName),
	})
	from.deliver(Event{
		Type:   EventTypeMessage,
		Text:   text,
		Sender: fmt.Sprintf("To %s", target),
	})
}

// members snapshots the channel membership under the lock so delivery does
// not hold it.
func (r *Registry) members(channelID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out
}

// ChannelOf returns the channel the session currently belongs to.
func (r *Registry) ChannelOf(s *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.current[s.Key]
	return id, ok
}

// Exists reports whether a channel currently has members.
func (r *Registry) Exists(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[channelID]
	return ok
}

// MemberCount returns the current size of a channel.
func (r *Registry) MemberCount(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channelID])
}
