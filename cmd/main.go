package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-broker/auth"
	"chat-broker/moderation"
	"chat-broker/repositories"
	"chat-broker/runtime"
	"chat-broker/runtime/workers"
	"chat-broker/server"
	"chat-broker/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the broker lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the listener and background workers.
func run() error {
	// 1. Configuration & Logger
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	charReplacement, err := CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return err
	}

	// 2. Database (BadgerDB) backing the credential store
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Services
	tokens := auth.NewTokenIssuer(config.AuthTokenSecret, config.AuthTokenDuration)
	userRepository := repositories.NewUserRepository(db)
	authService := services.NewAuthService(userRepository, tokens)

	wordList, err := moderation.LoadWordLists()
	if err != nil {
		return fmt.Errorf("loading censored words: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored words loaded [%s]",
		len(wordList.Words), strings.Join(wordList.Languages, ",")))

	moderator, err := moderation.NewModerator(wordList.Words, charReplacement, log)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}

	// 4. Runtime: registry, dispatcher and listener under one supervisor
	registry := runtime.NewRegistry()
	dispatcher := workers.NewBroadcastDispatcher(log, registry, config.QueueCapacity)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener := server.NewListener(log, address, config.MaxFrameSize,
		config.ShutdownTimeout, authService, registry, dispatcher, &moderator)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(dispatcher, listener)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Run until SIGINT/SIGTERM. The supervisor stops the listener
	// (which closes every session) and lets the dispatcher drain its
	// queue before Run returns.
	log.Info("Starting broker", "address", address)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
