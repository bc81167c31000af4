// Package dispatcher runs N copies of an operation concurrently
// and aggregates their outcome. It exists to put queueing pressure
// on a single target, so by default it places no cap on the number
// of operations in flight.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrife/overworked/utils/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Policy decides what the dispatcher does when an operation fails
type Policy string

const (
	// PolicyFailFast stops waiting at the first failure and
	// reports it. Operations still in flight are abandoned.
	PolicyFailFast Policy = "fail-fast"
	// PolicyWaitForAll waits for every operation and reports
	// every failure.
	PolicyWaitForAll Policy = "wait-for-all"
)

// ParsePolicy parses a policy name. The empty string is PolicyFailFast.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicyWaitForAll:
		return PolicyWaitForAll, nil
	}

	return "", fmt.Errorf("unknown dispatch policy %q", name)
}

// Operation is one unit of work in a fan-out. The context it is given
// is cancelled when the dispatcher stops waiting for it.
type Operation func(ctx context.Context) error

// Options configures a ConcurrentDispatcher
type Options struct {
	// Limit caps the number of operations in flight. Zero or
	// less means no cap: all N operations start at once.
	Limit  int
	Policy Policy
	Logger *zap.Logger
}

// ConcurrentDispatcher fans an operation out N ways
type ConcurrentDispatcher struct {
	options Options
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates a ConcurrentDispatcher
func New(options Options) *ConcurrentDispatcher {
	if options.Policy == "" {
		options.Policy = PolicyFailFast
	}

	return &ConcurrentDispatcher{
		options: options,
		logger:  log.OrNop(options.Logger),
		tracer:  otel.Tracer("github.com/jrife/overworked/dispatcher"),
	}
}

// Options returns the options the dispatcher runs with
func (dispatcher *ConcurrentDispatcher) Options() Options {
	return dispatcher.options
}

// Dispatch runs operation n times concurrently and returns n if every
// run succeeds. Completions are observed in the order they finish.
// Otherwise it returns a *FanOutError. Under PolicyFailFast Dispatch
// returns as soon as the first failure is observed and cancels the
// context handed to the operations. Cancellation is the only signal
// abandoned operations get: ones that ignore it keep running after
// Dispatch returns.
func (dispatcher *ConcurrentDispatcher) Dispatch(ctx context.Context, n int, operation Operation) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("fan-out count must not be negative: %d", n)
	}

	if n == 0 {
		return 0, nil
	}

	ctx, span := dispatcher.tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(
		attribute.Int("dispatcher.n", n),
		attribute.Int("dispatcher.limit", dispatcher.options.Limit),
		attribute.String("dispatcher.policy", string(dispatcher.options.Policy)),
	))
	defer span.End()

	logger := log.WithContext(ctx, dispatcher.logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so that abandoned operations can always report
	// and exit after Dispatch has returned
	results := make(chan error, n)

	if dispatcher.options.Limit > 0 {
		go dispatcher.launchLimited(ctx, n, operation, results)
	} else {
		for i := 0; i < n; i++ {
			go func() {
				results <- operation(ctx)
			}()
		}
	}

	logger.Debug("dispatched fan-out", zap.Int("n", n), zap.Int("limit", dispatcher.options.Limit))

	var errs error
	succeeded := 0
	failed := 0

	for i := 0; i < n; i++ {
		var err error

		select {
		case err = <-results:
		case <-ctx.Done():
			return 0, dispatcher.cancelled(ctx, span, logger, n, succeeded, failed, errs)
		}

		// An operation that stopped because the caller gave up did not fail
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return 0, dispatcher.cancelled(ctx, span, logger, n, succeeded, failed, errs)
		}

		if err == nil {
			succeeded++

			continue
		}

		failed++

		if dispatcher.options.Policy == PolicyFailFast {
			fanOutErr := &FanOutError{N: n, Succeeded: succeeded, Failed: failed, Err: err}
			dispatcher.fail(span, logger, fanOutErr)

			return 0, fanOutErr
		}

		errs = multierr.Append(errs, err)
	}

	if errs != nil {
		fanOutErr := &FanOutError{N: n, Succeeded: succeeded, Failed: failed, Err: errs}
		dispatcher.fail(span, logger, fanOutErr)

		return 0, fanOutErr
	}

	return n, nil
}

// launchLimited starts operations as slots free up. Operations
// that never get a slot report the reason they didn't.
func (dispatcher *ConcurrentDispatcher) launchLimited(ctx context.Context, n int, operation Operation, results chan<- error) {
	slots := semaphore.NewWeighted(int64(dispatcher.options.Limit))

	for i := 0; i < n; i++ {
		if err := slots.Acquire(ctx, 1); err != nil {
			for ; i < n; i++ {
				results <- err
			}

			return
		}

		go func() {
			defer slots.Release(1)

			results <- operation(ctx)
		}()
	}
}

// cancelled reports a fan-out abandoned because ctx is done. Operations
// that had not reported count as neither succeeded nor failed.
func (dispatcher *ConcurrentDispatcher) cancelled(ctx context.Context, span trace.Span, logger *zap.Logger, n int, succeeded int, failed int, errs error) *FanOutError {
	fanOutErr := &FanOutError{N: n, Succeeded: succeeded, Failed: failed, Err: multierr.Append(errs, ctx.Err())}
	dispatcher.fail(span, logger, fanOutErr)

	return fanOutErr
}

func (dispatcher *ConcurrentDispatcher) fail(span trace.Span, logger *zap.Logger, err *FanOutError) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("fan-out failed",
		zap.Int("n", err.N),
		zap.Int("succeeded", err.Succeeded),
		zap.Int("failed", err.Failed),
		zap.Error(err.Err),
	)
}
