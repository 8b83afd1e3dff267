package vision

import (
	"sync"

	"github.com/MrWong99/oceanwave/internal/capture"
	"github.com/MrWong99/oceanwave/pkg/provider/live"
)

// Drop reasons reported to [OutboxHooks.Dropped].
const (
	DropFull   = "full"
	DropClosed = "closed"
	DropSend   = "send_error"
)

var _ capture.Sink = (*Outbox)(nil)

// OutboxHooks observe an [Outbox]. Nil hooks are skipped. Hooks run on the
// offering goroutine or the sender goroutine and must not block.
type OutboxHooks struct {
	Sent    func(m live.Media)
	Dropped func(m live.Media, reason string, err error)
}

// Outbox is a bounded queue between capture producers and one sender
// goroutine. Offer never blocks: payloads are dropped when the queue is
// full or the outbox is closed.
type Outbox struct {
	ch    chan live.Media
	quit  chan struct{}
	done  chan struct{}
	send  func(live.Media) error
	hooks OutboxHooks

	startOnce sync.Once
	closeOnce sync.Once
}

// NewOutbox returns a stopped outbox holding at most size payloads.
func NewOutbox(size int, send func(live.Media) error, hooks OutboxHooks) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		ch:    make(chan live.Media, size),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		send:  send,
		hooks: hooks,
	}
}

// Start launches the sender goroutine. Subsequent calls are no-ops.
func (o *Outbox) Start() {
	o.startOnce.Do(func() { go o.run() })
}

// Offer queues m without blocking and reports whether it was accepted.
func (o *Outbox) Offer(m live.Media) bool {
	select {
	case <-o.quit:
		o.dropped(m, DropClosed, nil)
		return false
	default:
	}
	select {
	case o.ch <- m:
		return true
	default:
		o.dropped(m, DropFull, nil)
		return false
	}
}

// Close stops accepting payloads and tells the sender to exit. Payloads
// still queued are discarded. Idempotent.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.quit) })
}

// Wait blocks until the sender goroutine has exited. It returns immediately
// if Start was never called.
func (o *Outbox) Wait() {
	started := true
	o.startOnce.Do(func() {
		started = false
		close(o.done)
	})
	if started {
		<-o.done
	}
}

// Len reports the number of queued payloads.
func (o *Outbox) Len() int { return len(o.ch) }

func (o *Outbox) run() {
	defer close(o.done)
	for {
		select {
		case <-o.quit:
			o.discard()
			return
		case m := <-o.ch:
			// Close may race with a ready payload; quit wins.
			select {
			case <-o.quit:
				o.dropped(m, DropClosed, nil)
				o.discard()
				return
			default:
			}
			if err := o.send(m); err != nil {
				o.dropped(m, DropSend, err)
				continue
			}
			if o.hooks.Sent != nil {
				o.hooks.Sent(m)
			}
		}
	}
}

func (o *Outbox) discard() {
	for {
		select {
		case m := <-o.ch:
			o.dropped(m, DropClosed, nil)
		default:
			return
		}
	}
}

func (o *Outbox) dropped(m live.Media, reason string, err error) {
	if o.hooks.Dropped != nil {
		o.hooks.Dropped(m, reason, err)
	}
}
