// chatcli is a terminal client for the broker: it registers or logs in,
// then prints every broadcast it receives while relaying stdin lines as
// chat messages. GUI front-ends follow the same sequence through the
// client package.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-broker/client"
	"chat-broker/protocol"

	"github.com/Netflix/go-env"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8000"`
	Username      string `env:"CHAT_USERNAME,required=true"`
	Password      string `env:"CHAT_PASSWORD,required=true"`
	Register      bool   `env:"CHAT_REGISTER,default=false"`
	MaxFrameSize  int    `env:"MAX_FRAME_SIZE,default=65536"`
	LogLevel      string `env:"LOG_LEVEL,required=true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the client lifecycle: configuration loading, the auth
// handshake, and the send/receive loops.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect and authenticate.
	c, err := client.Dial(ctx, config.ServerAddress, config.MaxFrameSize)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = c.Close()
	}()

	if config.Register {
		reply, err := c.Register(config.Username, config.Password)
		if err != nil {
			return exitRuntime, fmt.Errorf("register: %w", err)
		}
		if reply.Type != protocol.TypeRegistered {
			return exitRuntime, fmt.Errorf("registration refused: %s", reply.Reason)
		}
		log.Info("Registered", "username", config.Username)
	}

	reply, err := c.Login(config.Username, config.Password)
	if err != nil {
		return exitRuntime, fmt.Errorf("login: %w", err)
	}
	if reply.Type != protocol.TypeLoggedIn {
		return exitRuntime, fmt.Errorf("login refused: %s", reply.Reason)
	}

	log.Info(fmt.Sprintf(">>> Connected to %s as %s (Ctrl+C to quit)...",
		config.ServerAddress, config.Username))

	// 4. Relay stdin lines as chat messages.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := c.SendChat(scanner.Text()); err != nil {
				log.Warn("Send failed", "error", err)
				return
			}
		}
	}()

	// Closing the connection is what unblocks Receive on Ctrl+C.
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	// 5. Message reception loop.
	// Runs until the context is canceled or the server closes the connection.
	for {
		env, err := c.Receive()
		if err != nil {
			// Normal exit if the user triggered a shutdown.
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("receive error: %w", err)
		}

		switch env.Type {
		case protocol.TypeChatDelivery:
			at := time.Now()
			if env.SentAt != nil {
				at = *env.SentAt
			}
			log.Info(fmt.Sprintf("[%s] %s: %s",
				at.Format(time.TimeOnly), env.Sender, env.Body))
		case protocol.TypeSystemNotice:
			log.Info(fmt.Sprintf("*** %s", env.Text))
		case protocol.TypeError:
			log.Warn("Server error", "code", env.Code, "reason", env.Reason)
		}
	}
}
