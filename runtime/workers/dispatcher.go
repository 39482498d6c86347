package workers

import (
	"context"
	"log/slog"

	"chat-broker/contract"
	"chat-broker/domain"
)

// outbound is one unit of fan-out work: either a chat message or a
// broker-wide system notice. Notices go through the same queue so they
// keep their place in the delivery order.
type outbound struct {
	msg      domain.OutboundMessage
	notice   string
	isNotice bool
}

// BroadcastDispatcher is the single sequencer for all chat fan-out.
// Every published message crosses one bounded queue consumed by one
// goroutine, so deliveries to any recipient never interleave and the
// broadcast order matches the publish order.
//
// When the queue is full, Publish blocks the sending session's goroutine.
// That is the broker's backpressure point: a flood of senders slows down
// instead of growing an unbounded buffer.
type BroadcastDispatcher struct {
	log      *slog.Logger
	registry contract.IRegistry
	queue    chan outbound
}

func NewBroadcastDispatcher(log *slog.Logger, registry contract.IRegistry, queueCapacity int) *BroadcastDispatcher {
	return &BroadcastDispatcher{
		log:      log,
		registry: registry,
		queue:    make(chan outbound, queueCapacity),
	}
}

// Publish enqueues a message for delivery to every other session.
// Blocks while the queue is at capacity; returns the context error if the
// caller is canceled while waiting.
func (d *BroadcastDispatcher) Publish(ctx context.Context, msg domain.OutboundMessage) error {
	select {
	case d.queue <- outbound{msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyAll enqueues a system notice for every authenticated session.
func (d *BroadcastDispatcher) NotifyAll(ctx context.Context, text string) error {
	select {
	case d.queue <- outbound{notice: text, isNotice: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until the context is canceled, then drains what
// was already accepted before returning. One message at a time, in FIFO
// order.
func (d *BroadcastDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case out := <-d.queue:
			d.fanout(out)
		case <-ctx.Done():
			d.drain()
			d.log.Debug("Dispatcher queue drained, stopping")
			return nil
		}
	}
}

func (d *BroadcastDispatcher) drain() {
	for {
		select {
		case out := <-d.queue:
			d.fanout(out)
		default:
			return
		}
	}
}

// fanout delivers one unit to every recipient in a point-in-time snapshot
// of the registry, skipping the sender. A failed recipient is logged,
// removed from the registry and closed; delivery continues to the rest.
// The snapshot means no registry lock is held across socket writes and a
// session closing mid-broadcast cannot disturb the iteration.
func (d *BroadcastDispatcher) fanout(out outbound) {
	for _, recipient := range d.registry.Snapshot() {
		var err error
		if out.isNotice {
			err = recipient.Notify(out.notice)
		} else {
			if recipient.SessionID() == out.msg.SenderID {
				continue
			}
			err = recipient.Deliver(out.msg)
		}

		if err != nil {
			d.log.Warn("Dropping unreachable recipient",
				"session_id", recipient.SessionID(),
				"username", recipient.Username(),
				"error", err)
			d.registry.Remove(recipient.SessionID())
			_ = recipient.Close()
		}
	}
}
