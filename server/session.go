// Package server owns the TCP surface of the broker: the listener worker
// and the per-connection session state machine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-broker/contract"
	"chat-broker/domain"
	brokererrors "chat-broker/errors"
	"chat-broker/moderation"
	"chat-broker/protocol"
	"chat-broker/services"

	"github.com/google/uuid"
)

// Session is the server-side state for one connected client from accept to
// close. It owns its framed connection exclusively; the dispatcher reaches
// the socket only through Deliver/Notify, which serialize on the framed
// connection's write lock.
type Session struct {
	id          uuid.UUID
	conn        *protocol.FramedConn
	log         *slog.Logger
	authService services.IAuthService
	registry    contract.IRegistry
	dispatcher  contract.IDispatcher
	moderator   *moderation.Moderator

	mu       sync.Mutex
	state    domain.SessionState
	username string

	closeOnce sync.Once
}

func NewSession(log *slog.Logger, conn *protocol.FramedConn,
	authService services.IAuthService, registry contract.IRegistry,
	dispatcher contract.IDispatcher, moderator *moderation.Moderator) *Session {
	id := uuid.New()
	return &Session{
		id:          id,
		conn:        conn,
		log:         log.With("session_id", id),
		authService: authService,
		registry:    registry,
		dispatcher:  dispatcher,
		moderator:   moderator,
	}
}

func (s *Session) SessionID() uuid.UUID {
	return s.id
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deliver pushes a broadcast chat message to this session's client.
// Called from the dispatcher goroutine.
func (s *Session) Deliver(msg domain.OutboundMessage) error {
	return s.send(protocol.NewChatDelivery(msg.SenderUsername, msg.Body, msg.SentAt))
}

// Notify pushes a system notice to this session's client.
func (s *Session) Notify(text string) error {
	return s.send(protocol.NewSystemNotice(text))
}

// Run is the session's blocking receive loop. Messages are processed in
// arrival order; the loop ends on peer disconnect, frame error or when the
// listener closes the connection during shutdown.
func (s *Session) Run(ctx context.Context) {
	defer s.close(ctx)

	for {
		payload, err := s.conn.Receive()
		if err != nil {
			if errors.Is(err, brokererrors.ErrConnClosed) {
				s.log.Info("Peer disconnected")
			} else if errors.Is(err, brokererrors.ErrFrameTooLarge) {
				// The stream is desynchronized past this point; tell the
				// client why before dropping it.
				_ = s.send(protocol.NewError(protocol.CodeProtocolError, "frame too large"))
				s.log.Warn("Oversize frame, closing session", "error", err)
			} else {
				s.log.Warn("Receive failed, closing session", "error", err)
			}
			return
		}

		env, err := protocol.Decode(payload)
		if err != nil {
			// Malformed payloads are reported, the connection stays open.
			s.log.Debug("Malformed envelope", "error", err)
			if err := s.send(protocol.NewError(protocol.CodeProtocolError, "malformed message")); err != nil {
				return
			}
			continue
		}

		if err := s.handle(ctx, env); err != nil {
			s.log.Warn("Reply failed, closing session", "error", err)
			return
		}
	}
}

// handle applies one inbound envelope to the state machine. The returned
// error is connection-level only; protocol and auth failures are answered
// on the wire and leave the session open.
func (s *Session) handle(ctx context.Context, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeRegister:
		return s.handleRegister(env)
	case protocol.TypeLogin:
		return s.handleLogin(ctx, env)
	case protocol.TypeChat:
		return s.handleChat(ctx, env)
	default:
		return s.send(protocol.NewError(protocol.CodeProtocolError,
			fmt.Sprintf("unsupported message type %q", env.Type)))
	}
}

func (s *Session) handleRegister(env protocol.Envelope) error {
	if s.State() != domain.Unauthenticated {
		return s.send(protocol.NewError(protocol.CodeProtocolError, "already logged in"))
	}

	identity, err := s.authService.Register(env.Username, env.Password)
	if err != nil {
		s.log.Info("Registration refused", "username", env.Username, "error", err)
		return s.send(protocol.Envelope{Type: protocol.TypeRegisterFailed, Reason: "registration failed"})
	}

	s.log.Info("User registered", "username", identity.Username)
	return s.send(protocol.Envelope{Type: protocol.TypeRegistered, Token: identity.Token})
}

func (s *Session) handleLogin(ctx context.Context, env protocol.Envelope) error {
	if s.State() != domain.Unauthenticated {
		return s.send(protocol.NewError(protocol.CodeProtocolError, "already logged in"))
	}

	identity, err := s.authService.Login(env.Username, env.Password)
	if err != nil {
		// Uniform reply: the client never learns whether the username
		// exists.
		s.log.Info("Login refused", "username", env.Username)
		return s.send(protocol.Envelope{Type: protocol.TypeLoginFailed, Reason: "invalid credentials"})
	}

	s.mu.Lock()
	s.state = domain.Authenticated
	s.username = identity.Username
	s.mu.Unlock()
	s.log.Info("User logged in", "username", identity.Username)

	// The reply must be on the wire before the session joins the broadcast
	// set, or a fan-out racing the handshake reaches the client first.
	if err := s.send(protocol.Envelope{Type: protocol.TypeLoggedIn, Token: identity.Token}); err != nil {
		return err
	}

	s.registry.Add(s)
	if err := s.dispatcher.NotifyAll(ctx, fmt.Sprintf("%s joined the chat", identity.Username)); err != nil {
		s.log.Debug("Join notice not published", "error", err)
	}
	return nil
}

func (s *Session) handleChat(ctx context.Context, env protocol.Envelope) error {
	s.mu.Lock()
	state, username := s.state, s.username
	s.mu.Unlock()

	if state != domain.Authenticated {
		return s.send(protocol.NewError(protocol.CodeNotLoggedIn, brokererrors.ErrNotLoggedIn.Error()))
	}

	body, censoredWords := s.moderator.Censor(env.Body)
	if len(censoredWords) > 0 {
		s.log.Info("Message censored", "username", username, "words", censoredWords)
	}

	msg := domain.OutboundMessage{
		ID:             uuid.New(),
		SenderID:       s.id,
		SenderUsername: username,
		Body:           body,
		SentAt:         time.Now().UTC(),
	}

	// Blocks when the dispatcher queue is at capacity: backpressure on
	// this sender only.
	if err := s.dispatcher.Publish(ctx, msg); err != nil {
		s.log.Debug("Publish aborted", "error", err)
	}
	return nil
}

func (s *Session) send(env protocol.Envelope) error {
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return s.conn.Send(payload)
}

// close is the single transition into the terminal state: deregister,
// release the connection, announce the departure. Safe to call more than
// once.
func (s *Session) close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasAuthenticated := s.state == domain.Authenticated
		username := s.username
		s.state = domain.Closed
		s.mu.Unlock()

		s.registry.Remove(s.id)
		_ = s.conn.Close()

		if wasAuthenticated {
			if err := s.dispatcher.NotifyAll(ctx, fmt.Sprintf("%s left the chat", username)); err != nil {
				s.log.Debug("Leave notice not published", "error", err)
			}
		}
		s.log.Info("Session closed")
	})
}

// Close terminates the session from outside its receive loop (dispatcher
// delivery failure or listener shutdown). Closing the connection unblocks
// a pending Receive, which lets Run finish its own cleanup.
func (s *Session) Close() error {
	return s.conn.Close()
}
