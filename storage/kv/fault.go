package kv

import (
	"sync"
	"time"
)

// Faults describes the faults a FaultInjector injects
// into the stores it wraps.
type Faults struct {
	// Latency is added before every Get and Put
	Latency time.Duration
	// FailPutAt fails the k-th Put (1-based) of every writable
	// transaction. Zero disables it.
	FailPutAt int
	// FailCommits fails this many upcoming commits of writable transactions
	FailCommits int
	// FailGets fails this many upcoming Gets
	FailGets int
}

// FaultInjector holds the faults shared by every store
// descended from a FaultyRootStore. It is safe for
// concurrent use.
type FaultInjector struct {
	mu     sync.Mutex
	faults Faults
}

// NewFaultInjector creates a FaultInjector that starts
// out injecting faults
func NewFaultInjector(faults Faults) *FaultInjector {
	return &FaultInjector{faults: faults}
}

// Set replaces the faults being injected
func (injector *FaultInjector) Set(faults Faults) {
	injector.mu.Lock()
	defer injector.mu.Unlock()

	injector.faults = faults
}

// Faults returns the faults currently being injected
func (injector *FaultInjector) Faults() Faults {
	injector.mu.Lock()
	defer injector.mu.Unlock()

	return injector.faults
}

func (injector *FaultInjector) latency() time.Duration {
	injector.mu.Lock()
	defer injector.mu.Unlock()

	return injector.faults.Latency
}

func (injector *FaultInjector) failPutAt() int {
	injector.mu.Lock()
	defer injector.mu.Unlock()

	return injector.faults.FailPutAt
}

func (injector *FaultInjector) takeCommitFailure() bool {
	injector.mu.Lock()
	defer injector.mu.Unlock()

	if injector.faults.FailCommits <= 0 {
		return false
	}

	injector.faults.FailCommits--

	return true
}

func (injector *FaultInjector) takeGetFailure() bool {
	injector.mu.Lock()
	defer injector.mu.Unlock()

	if injector.faults.FailGets <= 0 {
		return false
	}

	injector.faults.FailGets--

	return true
}

var _ RootStore = (*FaultyRootStore)(nil)

// FaultyRootStore wraps a RootStore and injects faults into every
// transaction of every store it hands out. Injected failures never
// break the atomicity contract: a failed Put or Commit rolls the
// underlying transaction back.
type FaultyRootStore struct {
	RootStore
	injector *FaultInjector
}

// WithFaults wraps rootStore so that its stores are subject to injector
func WithFaults(rootStore RootStore, injector *FaultInjector) *FaultyRootStore {
	return &FaultyRootStore{RootStore: rootStore, injector: injector}
}

// Injector returns the FaultInjector driving this root store
func (rootStore *FaultyRootStore) Injector() *FaultInjector {
	return rootStore.injector
}

// Store implements RootStore.Store
func (rootStore *FaultyRootStore) Store(name []byte) Store {
	return &FaultyStore{Store: rootStore.RootStore.Store(name), injector: rootStore.injector}
}

var _ Store = (*FaultyStore)(nil)

// FaultyStore is a Store whose transactions are subject to a FaultInjector
type FaultyStore struct {
	Store
	injector *FaultInjector
}

// Begin implements Store.Begin
func (store *FaultyStore) Begin(writable bool) (Transaction, error) {
	transaction, err := store.Store.Begin(writable)

	if err != nil {
		return nil, err
	}

	return &faultyTransaction{Transaction: transaction, injector: store.injector, writable: writable}, nil
}

type faultyTransaction struct {
	Transaction
	injector *FaultInjector
	writable bool
	puts     int
	failed   bool
}

func (transaction *faultyTransaction) Get(key []byte) ([]byte, error) {
	sleep(transaction.injector.latency())

	if transaction.injector.takeGetFailure() {
		return nil, wrapError("could not get key", ErrInjected)
	}

	return transaction.Transaction.Get(key)
}

func (transaction *faultyTransaction) Put(key, value []byte) error {
	sleep(transaction.injector.latency())

	transaction.puts++

	if at := transaction.injector.failPutAt(); at > 0 && transaction.puts == at {
		transaction.failed = true

		return wrapError("could not put key", ErrInjected)
	}

	return transaction.Transaction.Put(key, value)
}

func (transaction *faultyTransaction) Commit() error {
	if transaction.writable && (transaction.failed || transaction.injector.takeCommitFailure()) {
		if err := transaction.Transaction.Rollback(); err != nil {
			return wrapError("could not roll back after injected commit failure", err)
		}

		return wrapError("could not commit transaction", ErrInjected)
	}

	return transaction.Transaction.Commit()
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
