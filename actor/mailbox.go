package actor

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

type result struct {
	response *Response
	err      error
}

// envelope carries one request through the mailbox. reply
// is buffered so the actor never blocks on a caller that
// has stopped waiting.
type envelope struct {
	ctx     context.Context
	request *Request
	reply   chan result
}

func newEnvelope(ctx context.Context, request *Request) *envelope {
	return &envelope{ctx: ctx, request: request, reply: make(chan result, 1)}
}

// mailbox is an unbounded FIFO queue of envelopes. It's a
// wrapper around a linked list queue with a signal channel
// that wakes the consumer when the queue goes from empty
// to non-empty.
type mailbox struct {
	mu     sync.Mutex
	queue  *linkedlistqueue.Queue
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{
		queue:  linkedlistqueue.New(),
		signal: make(chan struct{}, 1),
	}
}

func (mailbox *mailbox) push(envelope *envelope) error {
	mailbox.mu.Lock()

	if mailbox.closed {
		mailbox.mu.Unlock()

		return ErrClosed
	}

	mailbox.queue.Enqueue(envelope)
	mailbox.mu.Unlock()

	select {
	case mailbox.signal <- struct{}{}:
	default:
	}

	return nil
}

func (mailbox *mailbox) pop() (*envelope, bool) {
	mailbox.mu.Lock()
	defer mailbox.mu.Unlock()

	value, ok := mailbox.queue.Dequeue()

	if !ok {
		return nil, false
	}

	return value.(*envelope), true
}

// close stops the mailbox from accepting envelopes and
// returns the ones still queued
func (mailbox *mailbox) close() []*envelope {
	mailbox.mu.Lock()
	defer mailbox.mu.Unlock()

	mailbox.closed = true
	remaining := make([]*envelope, 0, mailbox.queue.Size())

	for value, ok := mailbox.queue.Dequeue(); ok; value, ok = mailbox.queue.Dequeue() {
		remaining = append(remaining, value.(*envelope))
	}

	return remaining
}

func (mailbox *mailbox) len() int {
	mailbox.mu.Lock()
	defer mailbox.mu.Unlock()

	return mailbox.queue.Size()
}
