// Package client is a Go client for the broker's wire protocol. GUI
// front-ends and the integration tests talk to the server through it.
package client

import (
	"context"
	"fmt"
	"net"

	"chat-broker/protocol"
)

// Client wraps one framed connection to the broker.
// Receive must be driven from a single goroutine; Register, Login and
// SendChat may be called from another.
type Client struct {
	conn *protocol.FramedConn
}

// Dial connects to the broker at address.
func Dial(ctx context.Context, address string, maxFrameSize int) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Client{conn: protocol.NewFramedConn(conn, maxFrameSize)}, nil
}

// Register sends a registration request and returns the server's reply,
// which is either TypeRegistered or TypeRegisterFailed.
func (c *Client) Register(username, password string) (protocol.Envelope, error) {
	return c.roundTrip(protocol.Envelope{
		Type:     protocol.TypeRegister,
		Username: username,
		Password: password,
	})
}

// Login sends a login request and returns the server's reply, either
// TypeLoggedIn or TypeLoginFailed.
func (c *Client) Login(username, password string) (protocol.Envelope, error) {
	return c.roundTrip(protocol.Envelope{
		Type:     protocol.TypeLogin,
		Username: username,
		Password: password,
	})
}

// SendChat publishes a chat message. There is no reply: delivery to the
// other participants is fire-and-forget.
func (c *Client) SendChat(body string) error {
	return c.Send(protocol.Envelope{Type: protocol.TypeChat, Body: body})
}

// Send writes one envelope as a single frame.
func (c *Client) Send(env protocol.Envelope) error {
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.conn.Send(payload)
}

// Receive blocks until the next server envelope arrives.
func (c *Client) Receive() (protocol.Envelope, error) {
	payload, err := c.conn.Receive()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Decode(payload)
}

func (c *Client) roundTrip(env protocol.Envelope) (protocol.Envelope, error) {
	if err := c.Send(env); err != nil {
		return protocol.Envelope{}, err
	}
	return c.Receive()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
