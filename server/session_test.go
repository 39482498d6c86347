package server

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"chat-broker/contract"
	"chat-broker/domain"
	"chat-broker/errors"
	"chat-broker/mocks"
	"chat-broker/moderation"
	"chat-broker/protocol"
	"chat-broker/runtime"
	"chat-broker/services"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// stubAuthService accepts one hardcoded credential pair.
type stubAuthService struct{}

func (s stubAuthService) Register(username, password string) (services.Identity, error) {
	if username == "taken" {
		return services.Identity{}, errors.ErrUserAlreadyExists
	}
	return services.Identity{UserID: "id-" + username, Username: username, Token: "token"}, nil
}

func (s stubAuthService) Login(username, password string) (services.Identity, error) {
	if username != "alice" || password != "secret123" {
		return services.Identity{}, errors.ErrInvalidCredentials
	}
	return services.Identity{UserID: "id-alice", Username: "alice", Token: "token"}, nil
}

func testModerator(t *testing.T) *moderation.Moderator {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := moderation.NewModerator([]string{"badger"}, '*', log)
	require.NoError(t, err)
	return &mod
}

// startSession wires a session over one end of a pipe and returns the
// peer's framed connection.
func startSession(t *testing.T, registry contract.IRegistry,
	dispatcher *mocks.MockIDispatcher) (*Session, *protocol.FramedConn) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	serverSide, clientSide := net.Pipe()
	session := NewSession(log, protocol.NewFramedConn(serverSide, 0),
		stubAuthService{}, registry, dispatcher, testModerator(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		_ = clientSide.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("session loop did not stop")
		}
	})

	return session, protocol.NewFramedConn(clientSide, 0)
}

func sendEnvelope(t *testing.T, conn *protocol.FramedConn, env protocol.Envelope) {
	t.Helper()
	payload, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.Send(payload))
}

func receiveEnvelope(t *testing.T, conn *protocol.FramedConn) protocol.Envelope {
	t.Helper()
	payload, err := conn.Receive()
	require.NoError(t, err)
	env, err := protocol.Decode(payload)
	require.NoError(t, err)
	return env
}

func TestSession_Chat_Before_Login_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	registry := runtime.NewRegistry()
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	// The dispatcher must never see the message
	dispatcher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, client := startSession(t, registry, dispatcher)

	// When an unauthenticated client chats
	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeChat, Body: "hello"})

	// Then it gets a not_logged_in error and the connection stays open
	reply := receiveEnvelope(t, client)
	req.Equal(protocol.TypeError, reply.Type)
	req.Equal(protocol.CodeNotLoggedIn, reply.Code)

	// Still open: a login on the same connection works
	dispatcher.EXPECT().NotifyAll(gomock.Any(), "alice joined the chat").Return(nil).Times(1)
	dispatcher.EXPECT().NotifyAll(gomock.Any(), "alice left the chat").Return(nil).MaxTimes(1)
	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeLogin, Username: "alice", Password: "secret123"})
	reply = receiveEnvelope(t, client)
	req.Equal(protocol.TypeLoggedIn, reply.Type)
}

func TestSession_Malformed_Payload_Keeps_Connection_Open(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	registry := runtime.NewRegistry()
	dispatcher := mocks.NewMockIDispatcher(ctrl)

	_, client := startSession(t, registry, dispatcher)

	// When the client sends a frame that is not a JSON envelope
	req.NoError(client.Send([]byte("LOGIN alice secret123")))

	reply := receiveEnvelope(t, client)
	req.Equal(protocol.TypeError, reply.Type)
	req.Equal(protocol.CodeProtocolError, reply.Code)

	// And an unknown message type gets the same treatment
	sendEnvelope(t, client, protocol.Envelope{Type: "dance"})
	reply = receiveEnvelope(t, client)
	req.Equal(protocol.TypeError, reply.Type)
	req.Equal(protocol.CodeProtocolError, reply.Code)
}

func TestSession_Login_Adds_To_Registry_And_Close_Removes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	registry := runtime.NewRegistry()
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	dispatcher.EXPECT().NotifyAll(gomock.Any(), "alice joined the chat").Return(nil).Times(1)
	dispatcher.EXPECT().NotifyAll(gomock.Any(), "alice left the chat").Return(nil).Times(1)

	session, client := startSession(t, registry, dispatcher)

	// Given a failed login first: uniform reply, no registry change
	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeLogin, Username: "alice", Password: "wrong"})
	reply := receiveEnvelope(t, client)
	req.Equal(protocol.TypeLoginFailed, reply.Type)
	req.Zero(registry.Len())

	// When the login succeeds
	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeLogin, Username: "alice", Password: "secret123"})
	reply = receiveEnvelope(t, client)
	req.Equal(protocol.TypeLoggedIn, reply.Type)
	req.NotEmpty(reply.Token)

	// Then the session joins the broadcast set right after the reply
	req.Eventually(func() bool { return registry.Len() == 1 }, time.Second, 10*time.Millisecond)
	req.Equal(domain.Authenticated, session.State())
	req.Equal("alice", session.Username())

	// When the peer disconnects
	req.NoError(client.Close())

	// Then the session leaves the registry
	req.Eventually(func() bool { return registry.Len() == 0 }, time.Second, 10*time.Millisecond)
	req.Eventually(func() bool { return session.State() == domain.Closed }, time.Second, 10*time.Millisecond)
}

// deliveringRegistry pushes one pending broadcast to a recipient the
// moment it is added, modeling a fan-out snapshot taken while the login
// handshake is still in flight.
type deliveringRegistry struct {
	msg domain.OutboundMessage
}

func (r *deliveringRegistry) Add(recipient contract.Recipient) {
	_ = recipient.Deliver(r.msg)
}
func (r *deliveringRegistry) Remove(_ uuid.UUID)             {}
func (r *deliveringRegistry) Snapshot() []contract.Recipient { return nil }

func TestSession_Login_Reply_Precedes_Broadcast_Deliveries(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	registry := &deliveringRegistry{msg: domain.OutboundMessage{
		ID:             uuid.New(),
		SenderID:       uuid.New(),
		SenderUsername: "bob",
		Body:           "early bird",
		SentAt:         time.Now().UTC(),
	}}
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	dispatcher.EXPECT().NotifyAll(gomock.Any(), "alice joined the chat").Return(nil).Times(1)
	dispatcher.EXPECT().NotifyAll(gomock.Any(), "alice left the chat").Return(nil).MaxTimes(1)

	_, client := startSession(t, registry, dispatcher)

	// When a broadcast races the login handshake
	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeLogin, Username: "alice", Password: "secret123"})

	// Then the login reply still comes first
	first := receiveEnvelope(t, client)
	req.Equal(protocol.TypeLoggedIn, first.Type)

	second := receiveEnvelope(t, client)
	req.Equal(protocol.TypeChatDelivery, second.Type)
	req.Equal("bob", second.Sender)
	req.Equal("early bird", second.Body)
}

func TestSession_Oversize_Frame_Gets_Error_Reply_Then_Close(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	registry := runtime.NewRegistry()
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a session capping frames at 16 bytes
	serverSide, clientSide := net.Pipe()
	session := NewSession(log, protocol.NewFramedConn(serverSide, 16),
		stubAuthService{}, registry, dispatcher, testModerator(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() { _ = clientSide.Close() })

	// When the client sends a frame over the cap
	client := protocol.NewFramedConn(clientSide, 1024)
	go func() {
		_ = client.Send(bytes.Repeat([]byte{'a'}, 17))
	}()

	// Then it is told why before the connection drops
	reply := receiveEnvelope(t, client)
	req.Equal(protocol.TypeError, reply.Type)
	req.Equal(protocol.CodeProtocolError, reply.Code)

	_, err := client.Receive()
	req.Error(err)

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("session loop did not stop")
	}
}

func TestSession_Chat_Is_Censored_And_Published(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	registry := runtime.NewRegistry()
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	dispatcher.EXPECT().NotifyAll(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	_, client := startSession(t, registry, dispatcher)

	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeLogin, Username: "alice", Password: "secret123"})
	reply := receiveEnvelope(t, client)
	req.Equal(protocol.TypeLoggedIn, reply.Type)

	published := make(chan domain.OutboundMessage, 1)
	dispatcher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg domain.OutboundMessage) error {
			published <- msg
			return nil
		}).
		Times(1)

	// When a chat containing a censored word is sent
	sendEnvelope(t, client, protocol.Envelope{Type: protocol.TypeChat, Body: "the badger strikes"})

	select {
	case msg := <-published:
		req.Equal("alice", msg.SenderUsername)
		req.Equal("the ****** strikes", msg.Body)
		req.False(msg.SentAt.IsZero())
	case <-time.After(time.Second):
		req.Fail("message was never published")
	}
}
