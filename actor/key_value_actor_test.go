package actor_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/overworked/actor"
	"github.com/jrife/overworked/storage/kv"
	"github.com/jrife/overworked/storage/kv/plugins"
)

func zeroValues() [][]byte {
	values := make([][]byte, actor.KeyCount)

	for i := range values {
		values[i] = make([]byte, actor.ValueSize)
	}

	return values
}

func tempRootStore(t *testing.T, driver string) kv.RootStore {
	rootStore, err := plugins.Plugin(driver).NewTempRootStore()

	if err != nil {
		t.Fatalf("Could not build a %s store: %s", driver, err.Error())
	}

	t.Cleanup(func() { rootStore.Delete() })

	return rootStore
}

func newActor(t *testing.T, store kv.Store, options actor.Options) *actor.KeyValueActor {
	a := actor.NewKeyValueActor("A", store, options)

	t.Cleanup(a.Close)

	return a
}

func TestFetch(t *testing.T) {
	for _, plugin := range plugins.Plugins() {
		t.Run(plugin.Name(), func(t *testing.T) {
			a := newActor(t, tempRootStore(t, plugin.Name()).Store([]byte("A")), actor.Options{})
			ctx := context.Background()

			t.Run("dump-before-init", func(t *testing.T) {
				_, err := a.Fetch(ctx, actor.NewRequest(actor.PathDump))

				if !errors.Is(err, actor.ErrKeyNotFound) {
					t.Fatalf("expected ErrKeyNotFound, got %#v", err)
				}
			})

			t.Run("unknown-path-when-empty", func(t *testing.T) {
				_, err := a.Fetch(ctx, actor.NewRequest("/unknown"))

				if !errors.Is(err, actor.ErrInvalidPath) {
					t.Fatalf("expected ErrInvalidPath, got %#v", err)
				}
			})

			t.Run("init", func(t *testing.T) {
				response, err := a.Fetch(ctx, actor.NewRequest(actor.PathInit))

				if err != nil {
					t.Fatalf("expected err to be nil, got %#v", err)
				}

				if response.Status != 200 {
					t.Fatalf("expected status 200, got %d", response.Status)
				}

				if diff := cmp.Diff(zeroValues(), response.Values); diff != "" {
					t.Fatal(diff)
				}
			})

			t.Run("dump-after-init", func(t *testing.T) {
				response, err := a.Fetch(ctx, actor.NewRequest(actor.PathDump))

				if err != nil {
					t.Fatalf("expected err to be nil, got %#v", err)
				}

				if diff := cmp.Diff(zeroValues(), response.Values); diff != "" {
					t.Fatal(diff)
				}

				if !bytes.HasPrefix(response.Body, []byte("[[0, 0, 0")) || !bytes.HasSuffix(response.Body, []byte("0, 0]]")) {
					t.Fatalf("unexpected body shape: %.40s...", response.Body)
				}
			})

			t.Run("unknown-path-when-populated", func(t *testing.T) {
				_, err := a.Fetch(ctx, actor.NewRequest("/unknown"))

				if !errors.Is(err, actor.ErrInvalidPath) {
					t.Fatalf("expected ErrInvalidPath, got %#v", err)
				}
			})
		})
	}
}

func TestRenderedBody(t *testing.T) {
	a := newActor(t, kv.NewMemoryRootStore().Store([]byte("A")), actor.Options{})
	response, err := a.Fetch(context.Background(), actor.NewRequest(actor.PathInit))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	row := "[" + strings.TrimSuffix(strings.Repeat("0, ", actor.ValueSize), ", ") + "]"
	expected := "[" + strings.TrimSuffix(strings.Repeat(row+", ", actor.KeyCount), ", ") + "]"

	if string(response.Body) != expected {
		t.Fatalf("body does not render %d lists of %d zeros", actor.KeyCount, actor.ValueSize)
	}
}

func TestFailedInitLeavesStoreEmpty(t *testing.T) {
	testCases := []struct {
		name   string
		faults kv.Faults
	}{
		{name: "first-put", faults: kv.Faults{FailPutAt: 1}},
		{name: "fourth-put", faults: kv.Faults{FailPutAt: 4}},
		{name: "last-put", faults: kv.Faults{FailPutAt: actor.KeyCount}},
		{name: "commit", faults: kv.Faults{FailCommits: 1}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			injector := kv.NewFaultInjector(testCase.faults)
			rootStore := kv.WithFaults(kv.NewMemoryRootStore(), injector)
			a := newActor(t, rootStore.Store([]byte("A")), actor.Options{})
			ctx := context.Background()

			_, err := a.Fetch(ctx, actor.NewRequest(actor.PathInit))

			if !errors.Is(err, actor.ErrStorageWrite) {
				t.Fatalf("expected ErrStorageWrite, got %#v", err)
			}

			if !errors.Is(err, kv.ErrInjected) {
				t.Fatalf("expected the injected cause to be preserved, got %#v", err)
			}

			injector.Set(kv.Faults{})

			_, err = a.Fetch(ctx, actor.NewRequest(actor.PathDump))

			if !errors.Is(err, actor.ErrKeyNotFound) {
				t.Fatalf("expected ErrKeyNotFound after a failed init, got %#v", err)
			}
		})
	}
}

func TestDumpReadFailure(t *testing.T) {
	injector := kv.NewFaultInjector(kv.Faults{})
	a := newActor(t, kv.WithFaults(kv.NewMemoryRootStore(), injector).Store([]byte("A")), actor.Options{})
	ctx := context.Background()

	if _, err := a.Fetch(ctx, actor.NewRequest(actor.PathInit)); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	injector.Set(kv.Faults{FailGets: 1})

	if _, err := a.Fetch(ctx, actor.NewRequest(actor.PathDump)); !errors.Is(err, actor.ErrStorageRead) {
		t.Fatalf("expected ErrStorageRead, got %#v", err)
	}
}

// concurrencyGauge records the largest number of
// transactions that were ever open at once
type concurrencyGauge struct {
	kv.Store
	active int64
	peak   int64
}

func (gauge *concurrencyGauge) Begin(writable bool) (kv.Transaction, error) {
	transaction, err := gauge.Store.Begin(writable)

	if err != nil {
		return nil, err
	}

	active := atomic.AddInt64(&gauge.active, 1)

	for {
		peak := atomic.LoadInt64(&gauge.peak)

		if active <= peak || atomic.CompareAndSwapInt64(&gauge.peak, peak, active) {
			break
		}
	}

	return &gaugedTransaction{Transaction: transaction, gauge: gauge}, nil
}

type gaugedTransaction struct {
	kv.Transaction
	gauge *concurrencyGauge
	once  sync.Once
}

func (transaction *gaugedTransaction) end() {
	transaction.once.Do(func() { atomic.AddInt64(&transaction.gauge.active, -1) })
}

func (transaction *gaugedTransaction) Commit() error {
	defer transaction.end()

	return transaction.Transaction.Commit()
}

func (transaction *gaugedTransaction) Rollback() error {
	defer transaction.end()

	return transaction.Transaction.Rollback()
}

func TestConcurrentInitAndDumpAreSerialized(t *testing.T) {
	injector := kv.NewFaultInjector(kv.Faults{Latency: 100 * time.Microsecond})
	gauge := &concurrencyGauge{Store: kv.WithFaults(kv.NewMemoryRootStore(), injector).Store([]byte("A"))}
	a := newActor(t, gauge, actor.Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 64; i++ {
		path := actor.PathDump

		if rand.Intn(2) == 0 {
			path = actor.PathInit
		}

		wg.Add(1)

		go func(path string) {
			defer wg.Done()

			response, err := a.Fetch(context.Background(), actor.NewRequest(path))

			if err != nil {
				if path == actor.PathDump && errors.Is(err, actor.ErrKeyNotFound) {
					return
				}

				errs <- err

				return
			}

			if diff := cmp.Diff(zeroValues(), response.Values); diff != "" {
				errs <- errors.New("observed a partial store: " + diff)
			}
		}(path)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	if peak := atomic.LoadInt64(&gauge.peak); peak != 1 {
		t.Fatalf("expected at most one open transaction at a time, saw %d", peak)
	}

	if diff := cmp.Diff(uint64(64), a.Processed()); diff != "" {
		t.Fatal(diff)
	}
}

func TestCallTimeout(t *testing.T) {
	// Each init takes at least 8 puts + 8 gets worth of latency
	injector := kv.NewFaultInjector(kv.Faults{Latency: 5 * time.Millisecond})
	a := newActor(t, kv.WithFaults(kv.NewMemoryRootStore(), injector).Store([]byte("A")), actor.Options{
		CallTimeout: 30 * time.Millisecond,
	})

	var wg sync.WaitGroup
	var timeouts int64

	for i := 0; i < 5; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := a.Fetch(context.Background(), actor.NewRequest(actor.PathInit))

			if errors.Is(err, actor.ErrTimeout) {
				atomic.AddInt64(&timeouts, 1)
			} else if err != nil {
				t.Errorf("expected nil or ErrTimeout, got %#v", err)
			}
		}()
	}

	wg.Wait()

	if atomic.LoadInt64(&timeouts) == 0 {
		t.Fatalf("expected at least one call to time out")
	}
}

type commitCounter struct {
	kv.Store
	commits int64
}

func (store *commitCounter) Begin(writable bool) (kv.Transaction, error) {
	transaction, err := store.Store.Begin(writable)

	if err != nil {
		return nil, err
	}

	return &countedTransaction{Transaction: transaction, store: store}, nil
}

type countedTransaction struct {
	kv.Transaction
	store *commitCounter
}

func (transaction *countedTransaction) Commit() error {
	if err := transaction.Transaction.Commit(); err != nil {
		return err
	}

	atomic.AddInt64(&transaction.store.commits, 1)

	return nil
}

func TestExpiredCallsAreSkipped(t *testing.T) {
	// The first init holds the actor far longer than CallTimeout
	// so every call queued behind it expires before it is popped
	injector := kv.NewFaultInjector(kv.Faults{Latency: 20 * time.Millisecond})
	store := &commitCounter{Store: kv.WithFaults(kv.NewMemoryRootStore(), injector).Store([]byte("A"))}
	a := newActor(t, store, actor.Options{CallTimeout: 50 * time.Millisecond})

	const calls = 5

	var wg sync.WaitGroup

	for i := 0; i < calls; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := a.Fetch(context.Background(), actor.NewRequest(actor.PathInit)); !errors.Is(err, actor.ErrTimeout) {
				t.Errorf("expected ErrTimeout, got %#v", err)
			}
		}()
	}

	wg.Wait()

	deadline := time.Now().Add(10 * time.Second)

	for a.Processed()+a.Skipped() < calls {
		if time.Now().After(deadline) {
			t.Fatalf("actor did not drain its mailbox: processed=%d skipped=%d", a.Processed(), a.Skipped())
		}

		time.Sleep(10 * time.Millisecond)
	}

	if a.Skipped() == 0 {
		t.Fatalf("expected expired calls to be skipped, processed=%d", a.Processed())
	}

	if diff := cmp.Diff(uint64(calls), a.Processed()+a.Skipped()); diff != "" {
		t.Fatal(diff)
	}

	if diff := cmp.Diff(int64(a.Processed()), atomic.LoadInt64(&store.commits)); diff != "" {
		t.Fatalf("skipped calls must not write: %s", diff)
	}

	if diff := cmp.Diff(0, a.QueueDepth()); diff != "" {
		t.Fatal(diff)
	}
}

func TestCallerCancellation(t *testing.T) {
	a := newActor(t, kv.NewMemoryRootStore().Store([]byte("A")), actor.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Fetch(ctx, actor.NewRequest(actor.PathInit))

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %#v", err)
	}
}

func TestClose(t *testing.T) {
	a := actor.NewKeyValueActor("A", kv.NewMemoryRootStore().Store([]byte("A")), actor.Options{})
	a.Close()
	a.Close()

	if _, err := a.Fetch(context.Background(), actor.NewRequest(actor.PathDump)); !errors.Is(err, actor.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %#v", err)
	}
}
