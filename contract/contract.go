//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-broker/domain"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Recipient is the delivery end of an authenticated session.
// Deliver must be safe to call from the dispatcher goroutine and must
// fail fast once the underlying connection is gone.
type Recipient interface {
	SessionID() uuid.UUID
	Username() string
	Deliver(msg domain.OutboundMessage) error
	Notify(text string) error
	Close() error
}

type IRegistry interface {
	Add(recipient Recipient)
	Remove(sessionID uuid.UUID)
	Snapshot() []Recipient
}

// IDispatcher serializes all chat fan-out through a single consumer.
type IDispatcher interface {
	Publish(ctx context.Context, msg domain.OutboundMessage) error
	NotifyAll(ctx context.Context, text string) error
}
