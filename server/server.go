package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"chat-broker/contract"
	"chat-broker/moderation"
	"chat-broker/protocol"
	"chat-broker/services"

	"github.com/google/uuid"
)

// Listener is the accept-loop worker. Each accepted connection gets its
// own session goroutine; the listener only tracks them so shutdown can
// close every connection and wait for the loops to unwind.
type Listener struct {
	log             *slog.Logger
	address         string
	maxFrameSize    int
	shutdownTimeout time.Duration

	authService services.IAuthService
	registry    contract.IRegistry
	dispatcher  contract.IDispatcher
	moderator   *moderation.Moderator

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	wg       sync.WaitGroup

	addrCh chan string
}

func NewListener(log *slog.Logger, address string, maxFrameSize int,
	shutdownTimeout time.Duration, authService services.IAuthService,
	registry contract.IRegistry, dispatcher contract.IDispatcher,
	moderator *moderation.Moderator) *Listener {
	return &Listener{
		log:             log,
		address:         address,
		maxFrameSize:    maxFrameSize,
		shutdownTimeout: shutdownTimeout,
		authService:     authService,
		registry:        registry,
		dispatcher:      dispatcher,
		moderator:       moderator,
		sessions:        make(map[uuid.UUID]*Session),
		addrCh:          make(chan string, 1),
	}
}

// Addr yields the bound address once Run has opened the socket.
// Useful when configured with port 0.
func (l *Listener) Addr() <-chan string {
	return l.addrCh
}

// Run accepts connections until the context is canceled, then closes every
// live connection and waits (bounded) for the session loops to finish.
func (l *Listener) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.address, err)
	}

	// Closing the listener is what unblocks Accept below.
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	l.log.Info("Broker listening", "address", ln.Addr().String())
	select {
	case l.addrCh <- ln.Addr().String():
	default:
	}

	l.acceptLoop(ctx, ln)

	l.closeAll()
	l.waitSessions()
	l.log.Info("Listener stopped")
	return nil
}

// acceptRetryDelay keeps a persistent accept error (file descriptor
// exhaustion, for one) from spinning the loop hot.
const acceptRetryDelay = 100 * time.Millisecond

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("Accept failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		framed := protocol.NewFramedConn(conn, l.maxFrameSize)
		session := NewSession(l.log, framed, l.authService, l.registry, l.dispatcher, l.moderator)
		l.log.Info("Client connected", "remote_addr", conn.RemoteAddr().String(),
			"session_id", session.SessionID())

		l.track(session)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.untrack(session)
			session.Run(ctx)
		}()
	}
}

func (l *Listener) track(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[s.SessionID()] = s
}

func (l *Listener) untrack(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, s.SessionID())
}

// closeAll closes every tracked connection, unblocking the receive loops.
func (l *Listener) closeAll() {
	l.mu.Lock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

// waitSessions waits for all session goroutines, giving up after the
// configured shutdown timeout so a stuck peer cannot hold the process.
func (l *Listener) waitSessions() {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(l.shutdownTimeout):
		l.log.Warn("Shutdown timeout reached with sessions still open")
	}
}
