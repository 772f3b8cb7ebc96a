// Package logs provides the per-build fan-out channel that distributes
// build output to live streaming subscribers.
package logs

import (
	"sync"

	"github.com/xscape-dev/agent/internal/models"
)

// Subscriber receives messages published after its subscription point.
// Late subscribers never see earlier messages; that is the contract,
// not a defect. C is closed when the writer side closes the channel.
type Subscriber struct {
	C <-chan *models.StreamMessage

	ch      chan *models.StreamMessage
	dropped int
}

// Channel is a single-writer, many-reader broadcast for one build's
// log stream. Each subscriber has a bounded buffer; a subscriber that
// cannot keep up loses messages rather than blocking the writer.
type Channel struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool
}

// NewChannel creates a channel whose subscribers buffer up to buffer
// messages each.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 1000
	}
	return &Channel{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new reader. On a closed channel the returned
// subscriber observes immediate end-of-stream, which is how late
// requests for finished builds terminate instead of hanging.
func (c *Channel) Subscribe() *Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := &Subscriber{ch: make(chan *models.StreamMessage, c.buffer)}
	sub.C = sub.ch
	if c.closed {
		close(sub.ch)
		return sub
	}
	c.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a reader. Safe to call more than once.
func (c *Channel) Unsubscribe(sub *Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers a message to every current subscriber. The send is
// non-blocking: a full subscriber buffer drops the message for that
// subscriber only. Publishing on a closed channel is a no-op.
func (c *Channel) Publish(msg *models.StreamMessage) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for sub := range c.subs {
		select {
		case sub.ch <- msg:
		default:
			sub.dropped++
		}
	}
}

// Close ends the stream: every subscriber's channel is closed so
// readers observe end-of-stream. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		delete(c.subs, sub)
		close(sub.ch)
	}
}

// Closed reports whether the writer side has finished.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SubscriberCount returns the number of live subscribers.
func (c *Channel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
