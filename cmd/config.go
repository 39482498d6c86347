package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8000"`
	QueueCapacity             int           `env:"QUEUE_CAPACITY,required=true"`
	MaxFrameSize              int           `env:"MAX_FRAME_SIZE,required=true"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,required=true"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,required=true"`
	ShutdownTimeout           time.Duration `env:"SHUTDOWN_TIMEOUT,required=true"`
	AuthTokenDuration         time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AuthTokenSecret           string        `env:"AUTH_TOKEN_SECRET,required=true"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
}

// CharacterRune validates that the configured replacement is one rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
