package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/overworked/dispatcher"
	"go.uber.org/multierr"
)

var errBoom = errors.New("boom")

func TestDispatch(t *testing.T) {
	testCases := []struct {
		name      string
		n         int
		failAt    map[int64]bool
		policy    dispatcher.Policy
		result    int
		failed    int
		expectErr bool
	}{
		{name: "zero", n: 0, result: 0},
		{name: "three", n: 3, result: 3},
		{name: "fifty", n: 50, result: 50},
		{name: "one-of-five-fails", n: 5, failAt: map[int64]bool{3: true}, failed: 1, expectErr: true},
		{name: "wait-for-all-two-of-five-fail", n: 5, failAt: map[int64]bool{2: true, 4: true}, policy: dispatcher.PolicyWaitForAll, failed: 2, expectErr: true},
		{name: "wait-for-all-success", n: 5, policy: dispatcher.PolicyWaitForAll, result: 5},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var calls int64

			d := dispatcher.New(dispatcher.Options{Policy: testCase.policy})
			result, err := d.Dispatch(context.Background(), testCase.n, func(ctx context.Context) error {
				if testCase.failAt[atomic.AddInt64(&calls, 1)] {
					return errBoom
				}

				return nil
			})

			if diff := cmp.Diff(testCase.result, result); diff != "" {
				t.Fatal(diff)
			}

			if !testCase.expectErr {
				if err != nil {
					t.Fatalf("expected err to be nil, got %#v", err)
				}

				if diff := cmp.Diff(int64(testCase.n), atomic.LoadInt64(&calls)); diff != "" {
					t.Fatal(diff)
				}

				return
			}

			if !errors.Is(err, dispatcher.ErrFanOut) || !errors.Is(err, errBoom) {
				t.Fatalf("expected a fan-out failure wrapping errBoom, got %#v", err)
			}

			var fanOutErr *dispatcher.FanOutError

			if !errors.As(err, &fanOutErr) {
				t.Fatalf("expected a *FanOutError, got %#v", err)
			}

			if diff := cmp.Diff(testCase.failed, fanOutErr.Failed); diff != "" {
				t.Fatal(diff)
			}

			if diff := cmp.Diff(testCase.failed, len(multierr.Errors(fanOutErr.Err))); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestDispatchNegative(t *testing.T) {
	if _, err := dispatcher.New(dispatcher.Options{}).Dispatch(context.Background(), -1, nil); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestFailFastDoesNotWaitForStragglers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var calls int64
	var cancelled int64

	d := dispatcher.New(dispatcher.Options{Policy: dispatcher.PolicyFailFast})
	done := make(chan error, 1)

	go func() {
		_, err := d.Dispatch(context.Background(), 10, func(ctx context.Context) error {
			if atomic.AddInt64(&calls, 1) == 1 {
				return errBoom
			}

			select {
			case <-release:
			case <-ctx.Done():
				atomic.AddInt64(&cancelled, 1)
			}

			return nil
		})

		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %#v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("fail-fast dispatch waited for operations that never finish")
	}
}

func TestWaitForAllWaitsForStragglers(t *testing.T) {
	var finished int64

	d := dispatcher.New(dispatcher.Options{Policy: dispatcher.PolicyWaitForAll})
	_, err := d.Dispatch(context.Background(), 4, func(ctx context.Context) error {
		defer atomic.AddInt64(&finished, 1)

		if atomic.LoadInt64(&finished) == 0 {
			return errBoom
		}

		time.Sleep(10 * time.Millisecond)

		return nil
	})

	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %#v", err)
	}

	if diff := cmp.Diff(int64(4), atomic.LoadInt64(&finished)); diff != "" {
		t.Fatal(diff)
	}
}

func TestUnlimitedStartsEverythingAtOnce(t *testing.T) {
	const n = 20

	var started sync.WaitGroup
	started.Add(n)

	allStarted := make(chan struct{})

	go func() {
		started.Wait()
		close(allStarted)
	}()

	d := dispatcher.New(dispatcher.Options{})
	result, err := d.Dispatch(context.Background(), n, func(ctx context.Context) error {
		started.Done()

		select {
		case <-allStarted:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("operations were not all in flight together")
		}
	})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(n, result); diff != "" {
		t.Fatal(diff)
	}
}

func TestLimitBoundsInFlight(t *testing.T) {
	var inFlight int64
	var peak int64

	d := dispatcher.New(dispatcher.Options{Limit: 3})
	result, err := d.Dispatch(context.Background(), 20, func(ctx context.Context) error {
		current := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)

		for {
			p := atomic.LoadInt64(&peak)

			if current <= p || atomic.CompareAndSwapInt64(&peak, p, current) {
				break
			}
		}

		time.Sleep(2 * time.Millisecond)

		return nil
	})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(20, result); diff != "" {
		t.Fatal(diff)
	}

	if p := atomic.LoadInt64(&peak); p > 3 {
		t.Fatalf("expected at most 3 operations in flight, saw %d", p)
	}
}

func TestParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	d := dispatcher.New(dispatcher.Options{Limit: 1})
	_, err := d.Dispatch(ctx, 3, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()

		return ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %#v", err)
	}

	var fanOutErr *dispatcher.FanOutError

	if !errors.As(err, &fanOutErr) {
		t.Fatalf("expected a *FanOutError, got %#v", err)
	}

	// Giving up on the caller's behalf is not an operation failure
	if diff := cmp.Diff(0, fanOutErr.Failed); diff != "" {
		t.Fatal(diff)
	}
}

func TestWaitForAllParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	d := dispatcher.New(dispatcher.Options{Policy: dispatcher.PolicyWaitForAll})
	var calls int64

	_, err := d.Dispatch(ctx, 3, func(context.Context) error {
		if atomic.AddInt64(&calls, 1) == 1 {
			return errBoom
		}

		if atomic.LoadInt64(&calls) == 3 {
			cancel()
		}

		<-release

		return nil
	})

	var fanOutErr *dispatcher.FanOutError

	if !errors.As(err, &fanOutErr) {
		t.Fatalf("expected a *FanOutError, got %#v", err)
	}

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %#v", err)
	}

	if fanOutErr.Failed > 1 {
		t.Fatalf("expected at most the one real failure to be counted, got %d", fanOutErr.Failed)
	}
}

func TestDefaultOptions(t *testing.T) {
	options := dispatcher.New(dispatcher.Options{}).Options()

	if diff := cmp.Diff(dispatcher.Options{Policy: dispatcher.PolicyFailFast}, options); diff != "" {
		t.Fatal(diff)
	}
}

func TestParsePolicy(t *testing.T) {
	for name, expected := range map[string]dispatcher.Policy{
		"":             dispatcher.PolicyFailFast,
		"fail-fast":    dispatcher.PolicyFailFast,
		"wait-for-all": dispatcher.PolicyWaitForAll,
	} {
		policy, err := dispatcher.ParsePolicy(name)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(expected, policy); diff != "" {
			t.Fatal(diff)
		}
	}

	if _, err := dispatcher.ParsePolicy("best-effort"); err == nil {
		t.Fatalf("expected an error")
	}
}
