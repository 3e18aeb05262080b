package http

import (
	"context"
	"errors"
	"io"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/overchat/relay-server/internal/core"
	"github.com/overchat/relay-server/internal/identity"
	"github.com/overchat/relay-server/internal/moderation"
	"github.com/overchat/relay-server/internal/proto"
	"github.com/overchat/relay-server/internal/verify"
)

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	channels  *core.Registry
	queue     *moderation.Queue
	verifier  *verify.Service
	hasher    *identity.Hasher
	readLimit int64
	heartbeat time.Duration
	log       *zerolog.Logger
}

// NewWSHandler builds the streaming surface handler.
func NewWSHandler(channels *core.Registry, queue *moderation.Queue, verifier *verify.Service,
	hasher *identity.Hasher, readLimit int64, heartbeat time.Duration, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		channels:  channels,
		queue:     queue,
		verifier:  verifier,
		hasher:    hasher,
		readLimit: readLimit,
		heartbeat: heartbeat,
		log:       logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	conn.SetReadLimit(h.readLimit)

	// The trusted address is the proxy hop plus the per-connection remote
	// port, never the client's origin address.
	trustedAddr := r.RemoteAddr
	sess := core.NewSession(uuid.NewString(), h.hasher.AnonymousKey(trustedAddr), remotePort(trustedAddr))
	defer func() {
		sess.Close()
		h.channels.Leave(sess)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Sender-only replies (rejections, validation errors) bypass the
	// channel fan-out but share the single connection writer.
	replies := make(chan any, 8)

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, replies)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess, replies)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	sess.Close()
	cancel()
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Debug().Err(err).Str("session", sess.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, replies chan<- any) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		parsed, err := proto.Parse(data)
		if err != nil {
			h.log.Debug().Err(err).Str("session", sess.ID).Msg("invalid inbound payload")
			replies <- proto.NewRejection("validation")
			continue
		}

		switch p := parsed.(type) {
		case *proto.Join:
			h.handleJoin(ctx, sess, p)
		case *proto.Chat:
			h.handleChat(ctx, sess, p.Text, replies)
		case *proto.Whisper:
			h.handleWhisper(ctx, sess, p, replies)
		}
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, sess *core.Session, join *proto.Join) {
	// Identity is re-resolved on every join. A join without a usable
	// hardware id demotes the session back to its guest label.
	resolved := false
	if join.HWID != "" {
		if name, verified := h.verifier.ResolveDisplayName(ctx, join.HWID); verified {
			sess.SetIdentity(name, true)
			resolved = true
		}
	}
	if !resolved {
		sess.ResetIdentity()
	}
	h.channels.Join(sess, join.ChannelID)
}

func (h *WSHandler) handleChat(ctx context.Context, sess *core.Session, text string, replies chan<- any) {
	channelID, ok := h.channels.ChannelOf(sess)
	if !ok {
		// Chatting before joining a channel goes nowhere.
		h.log.Debug().Str("session", sess.ID).Msg("chat without channel dropped")
		return
	}

	h.resolveVerdict(ctx, sess, text, replies, func(verdict moderation.Verdict) {
		if !verdict.Allowed {
			// The rejected text is deliberately not logged.
			h.log.Info().
				Str("sender_key", sess.Key).
				Str("channel", channelID).
				Str("reason", string(verdict.Reason)).
				Msg("message rejected")
			return
		}

		name, verified := sess.Identity()
		h.log.Info().Str("sender_key", sess.Key).Str("channel", channelID).Msg("message relayed")
		h.channels.Broadcast(channelID, core.Event{
			Type:     core.EventTypeMessage,
			Text:     text,
			Sender:   name,
			Verified: verified,
		})
	})
}

func (h *WSHandler) handleWhisper(ctx context.Context, sess *core.Session, w *proto.Whisper, replies chan<- any) {
	channelID, ok := h.channels.ChannelOf(sess)
	if !ok {
		h.log.Debug().Str("session", sess.ID).Msg("whisper without channel dropped")
		return
	}

	h.resolveVerdict(ctx, sess, w.Text, replies, func(verdict moderation.Verdict) {
		if !verdict.Allowed {
			h.log.Info().
				Str("sender_key", sess.Key).
				Str("channel", channelID).
				Str("reason", string(verdict.Reason)).
				Msg("whisper rejected")
			return
		}
		h.channels.Whisper(channelID, sess, w.Target, w.Text)
	})
}

// resolveVerdict waits for the moderation future off the read loop, so the
// reader keeps pumping control frames while a message sits in the queue.
// A denial is replied to the sender; a verdict arriving after the session
// closed is discarded.
func (h *WSHandler) resolveVerdict(ctx context.Context, sess *core.Session, text string,
	replies chan<- any, deliver func(moderation.Verdict)) {
	verdicts := h.queue.Submit(text)
	go func() {
		select {
		case verdict := <-verdicts:
			if !sess.Open() {
				return
			}
			deliver(verdict)
			if !verdict.Allowed {
				select {
				case replies <- proto.NewRejection(string(verdict.Reason)):
				case <-ctx.Done():
				}
			}
		case <-ctx.Done():
		}
	}()
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, replies <-chan any) error {
	for {
		select {
		case ev := <-sess.Events:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return err
			}
		case reply := <-replies:
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop enforces liveness. A connection that does not acknowledge a ping
// within one heartbeat interval is terminated; transport-level close events
// are unreliable behind some reverse proxies, so this is the only mechanism
// that reclaims dead sockets.
func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.heartbeat)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func remotePort(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return "0"
	}
	return port
}
