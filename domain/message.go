// Package domain contains core concepts of the chat broker.
// This file defines outbound message events and related rules.
// Messages are immutable once published and consumed exactly once.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboundMessage represents an immutable chat event waiting for fan-out.
type OutboundMessage struct {
	ID             uuid.UUID // unique identifier
	SenderID       uuid.UUID // session that produced the message
	SenderUsername string
	Body           string
	SentAt         time.Time
}
