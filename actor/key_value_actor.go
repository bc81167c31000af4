package actor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrife/overworked/storage/kv"
	"github.com/jrife/overworked/utils/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// KeyCount is the number of keys init writes
	KeyCount = 8
	// ValueSize is the size in bytes of each value init writes
	ValueSize = 4096

	tracerName = "github.com/jrife/overworked/actor"
)

// Options configures an actor
type Options struct {
	// CallTimeout bounds each call to Fetch, including the time it
	// spends queued in the mailbox. Zero means no timeout.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// KeyValueActor owns one kv store and serializes all access to it.
type KeyValueActor struct {
	identity  string
	store     kv.Store
	options   Options
	logger    *zap.Logger
	tracer    trace.Tracer
	mailbox   *mailbox
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	processed uint64
	skipped   uint64
}

// NewKeyValueActor creates an actor for identity that owns store and
// starts its mailbox loop. The caller must not use store afterwards.
func NewKeyValueActor(identity string, store kv.Store, options Options) *KeyValueActor {
	actor := &KeyValueActor{
		identity: identity,
		store:    store,
		options:  options,
		logger:   log.OrNop(options.Logger).With(zap.String("actor", identity)),
		tracer:   otel.Tracer(tracerName),
		mailbox:  newMailbox(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go actor.run()

	return actor
}

// Identity returns the identity this actor is addressed by
func (actor *KeyValueActor) Identity() string {
	return actor.identity
}

// QueueDepth returns the number of requests waiting in the mailbox
func (actor *KeyValueActor) QueueDepth() int {
	return actor.mailbox.len()
}

// Processed returns the number of requests the actor has run
func (actor *KeyValueActor) Processed() uint64 {
	return atomic.LoadUint64(&actor.processed)
}

// Skipped returns the number of queued requests the actor dropped
// because their caller had already given up
func (actor *KeyValueActor) Skipped() uint64 {
	return atomic.LoadUint64(&actor.skipped)
}

// Fetch queues request on the actor and waits for its reply.
// "/init" writes KeyCount zero-filled values of ValueSize bytes in
// one atomic write then returns a dump; "/dump" returns a dump;
// any other path fails with ErrInvalidPath. Fetch may be called
// concurrently: requests run one at a time in arrival order.
func (actor *KeyValueActor) Fetch(ctx context.Context, request *Request) (*Response, error) {
	ctx, span := actor.tracer.Start(ctx, "actor.fetch", trace.WithAttributes(
		attribute.String("actor.identity", actor.identity),
		attribute.String("actor.path", request.Path),
	))
	defer span.End()

	if actor.options.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, actor.options.CallTimeout)
		defer cancel()
	}

	envelope := newEnvelope(ctx, request)

	if err := actor.mailbox.push(envelope); err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("actor.queue_depth", actor.mailbox.len()))

	select {
	case result := <-envelope.reply:
		if result.err != nil {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}

		return result.response, result.err
	case <-ctx.Done():
		err := contextError(ctx)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}
}

// Close stops the mailbox loop once the request in progress, if any,
// completes. Requests still queued fail with ErrClosed. It does not
// close the store.
func (actor *KeyValueActor) Close() {
	actor.stopOnce.Do(func() {
		close(actor.stop)
	})

	<-actor.done
}

func (actor *KeyValueActor) run() {
	defer close(actor.done)

	for {
		select {
		case <-actor.stop:
			for _, envelope := range actor.mailbox.close() {
				envelope.reply <- result{err: ErrClosed}
			}

			return
		case <-actor.mailbox.signal:
		}

		for !actor.stopping() {
			envelope, ok := actor.mailbox.pop()

			if !ok {
				break
			}

			actor.process(envelope)
		}
	}
}

func (actor *KeyValueActor) stopping() bool {
	select {
	case <-actor.stop:
		return true
	default:
		return false
	}
}

func (actor *KeyValueActor) process(envelope *envelope) {
	if err := envelope.ctx.Err(); err != nil {
		// The caller is gone. Running the request would only
		// lengthen the queue for everybody behind it.
		atomic.AddUint64(&actor.skipped, 1)
		envelope.reply <- result{err: contextError(envelope.ctx)}

		return
	}

	logger := log.WithContext(envelope.ctx, actor.logger)
	logger.Debug("processing request", zap.String("path", envelope.request.Path), zap.Int("queued", actor.mailbox.len()))

	response, err := actor.handle(envelope.request)
	atomic.AddUint64(&actor.processed, 1)

	if err != nil && !errors.Is(err, ErrInvalidPath) {
		logger.Warn("request failed", zap.String("path", envelope.request.Path), zap.Error(err))
	}

	envelope.reply <- result{response: response, err: err}
}

func (actor *KeyValueActor) handle(request *Request) (*Response, error) {
	switch request.Path {
	case PathInit:
		if err := actor.initialize(); err != nil {
			return nil, err
		}

		fallthrough
	case PathDump:
		values, err := actor.dump()

		if err != nil {
			return nil, err
		}

		return newDumpResponse(values), nil
	}

	return nil, ErrInvalidPath
}

// initialize writes every key as a single batch. The transaction either
// commits all of them or none of them.
func (actor *KeyValueActor) initialize() error {
	transaction, err := actor.store.Begin(true)

	if err != nil {
		return fmt.Errorf("%w: could not begin transaction: %w", ErrStorageWrite, err)
	}

	defer transaction.Rollback()

	for i := 0; i < KeyCount; i++ {
		if err := transaction.Put(storageKey(i), make([]byte, ValueSize)); err != nil {
			return fmt.Errorf("%w: could not put key %d: %w", ErrStorageWrite, i, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("%w: could not commit: %w", ErrStorageWrite, err)
	}

	return nil
}

// dump reads the keys in ascending order. It returns all of them or an error.
func (actor *KeyValueActor) dump() ([][]byte, error) {
	transaction, err := actor.store.Begin(false)

	if err != nil {
		return nil, fmt.Errorf("%w: could not begin transaction: %w", ErrStorageRead, err)
	}

	defer transaction.Rollback()

	values := make([][]byte, 0, KeyCount)

	for i := 0; i < KeyCount; i++ {
		value, err := transaction.Get(storageKey(i))

		if err != nil {
			return nil, fmt.Errorf("%w: could not get key %d: %w", ErrStorageRead, i, err)
		}

		if value == nil {
			return nil, fmt.Errorf("%w: %d", ErrKeyNotFound, i)
		}

		values = append(values, value)
	}

	return values, nil
}

func storageKey(i int) []byte {
	return []byte(strconv.Itoa(i))
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	return ctx.Err()
}
