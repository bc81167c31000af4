package kv

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

const (
	// MemoryDriverName is the name of the in-memory plugin
	MemoryDriverName = "memory"
)

var _ Plugin = (*MemoryPlugin)(nil)

// MemoryPlugin creates root stores that live only
// as long as the process.
type MemoryPlugin struct {
}

// Name implements Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return MemoryDriverName
}

// NewRootStore implements Plugin.NewRootStore. The memory
// driver takes no options.
func (plugin *MemoryPlugin) NewRootStore(options PluginOptions) (RootStore, error) {
	return NewMemoryRootStore(), nil
}

// NewTempRootStore implements Plugin.NewTempRootStore
func (plugin *MemoryPlugin) NewTempRootStore() (RootStore, error) {
	return NewMemoryRootStore(), nil
}

var _ RootStore = (*MemoryRootStore)(nil)

// MemoryRootStore keeps every store as an immutable treemap
// that is swapped out wholesale when a writable transaction
// commits. Read-only transactions hold on to the treemap that
// was current when they began, so they see a consistent snapshot.
// Writable transactions are serialized, one at a time per store.
type MemoryRootStore struct {
	mu     sync.Mutex
	closed bool
	stores map[string]*memoryStoreState
	txns   sync.WaitGroup
}

type memoryStoreState struct {
	writer    sync.Mutex
	committed *treemap.Map
}

// NewMemoryRootStore creates an empty MemoryRootStore
func NewMemoryRootStore() *MemoryRootStore {
	return &MemoryRootStore{stores: map[string]*memoryStoreState{}}
}

// Close implements RootStore.Close
func (rootStore *MemoryRootStore) Close() error {
	rootStore.mu.Lock()
	rootStore.closed = true
	rootStore.mu.Unlock()

	rootStore.txns.Wait()

	return nil
}

// Delete implements RootStore.Delete
func (rootStore *MemoryRootStore) Delete() error {
	if err := rootStore.Close(); err != nil {
		return err
	}

	rootStore.mu.Lock()
	rootStore.stores = map[string]*memoryStoreState{}
	rootStore.mu.Unlock()

	return nil
}

// Store implements RootStore.Store
func (rootStore *MemoryRootStore) Store(name []byte) Store {
	return &MemoryStore{root: rootStore, name: name}
}

func (rootStore *MemoryRootStore) state(name string) *memoryStoreState {
	state, ok := rootStore.stores[name]

	if !ok {
		state = &memoryStoreState{committed: treemap.NewWithStringComparator()}
		rootStore.stores[name] = state
	}

	return state
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a handle to a named store inside a MemoryRootStore
type MemoryStore struct {
	root *MemoryRootStore
	name []byte
}

// Name implements Store.Name
func (store *MemoryStore) Name() []byte {
	return store.name
}

// Begin implements Store.Begin
func (store *MemoryStore) Begin(writable bool) (Transaction, error) {
	store.root.mu.Lock()

	if store.root.closed {
		store.root.mu.Unlock()

		return nil, ErrClosed
	}

	state := store.root.state(string(store.name))
	store.root.txns.Add(1)
	store.root.mu.Unlock()

	if writable {
		state.writer.Lock()
	}

	store.root.mu.Lock()
	snapshot := state.committed
	store.root.mu.Unlock()

	txn := &MemoryTransaction{
		root:     store.root,
		state:    state,
		snapshot: snapshot,
		writable: writable,
	}

	if writable {
		txn.pending = treemap.NewWithStringComparator()
	}

	return txn, nil
}

var _ Transaction = (*MemoryTransaction)(nil)

// MemoryTransaction buffers its updates in a pending treemap and
// merges them into a copy of the committed treemap on Commit.
// A nil value in the pending treemap marks a deleted key.
type MemoryTransaction struct {
	root     *MemoryRootStore
	state    *memoryStoreState
	snapshot *treemap.Map
	pending  *treemap.Map
	writable bool
	done     bool
}

// Get implements Transaction.Get
func (transaction *MemoryTransaction) Get(key []byte) ([]byte, error) {
	if transaction.done {
		return nil, ErrTxnDone
	}

	if transaction.pending != nil {
		if v, ok := transaction.pending.Get(string(key)); ok {
			return copyValue(v), nil
		}
	}

	v, ok := transaction.snapshot.Get(string(key))

	if !ok {
		return nil, nil
	}

	return copyValue(v), nil
}

// Put implements Transaction.Put
func (transaction *MemoryTransaction) Put(key, value []byte) error {
	if transaction.done {
		return ErrTxnDone
	}

	if err := checkPut(key, value); err != nil {
		return err
	}

	if !transaction.writable {
		return ErrReadOnly
	}

	transaction.pending.Put(string(key), append([]byte(nil), value...))

	return nil
}

// Delete implements Transaction.Delete
func (transaction *MemoryTransaction) Delete(key []byte) error {
	if transaction.done {
		return ErrTxnDone
	}

	if !transaction.writable {
		return ErrReadOnly
	}

	transaction.pending.Put(string(key), []byte(nil))

	return nil
}

// Commit implements Transaction.Commit
func (transaction *MemoryTransaction) Commit() error {
	if transaction.done {
		return ErrTxnDone
	}

	if !transaction.writable || transaction.pending.Empty() {
		transaction.finish()

		return nil
	}

	next := treemap.NewWithStringComparator()
	it := transaction.snapshot.Iterator()

	for it.Next() {
		next.Put(it.Key(), it.Value())
	}

	it = transaction.pending.Iterator()

	for it.Next() {
		if it.Value().([]byte) == nil {
			next.Remove(it.Key())
		} else {
			next.Put(it.Key(), it.Value())
		}
	}

	transaction.root.mu.Lock()
	transaction.state.committed = next
	transaction.root.mu.Unlock()

	transaction.finish()

	return nil
}

// Rollback implements Transaction.Rollback
func (transaction *MemoryTransaction) Rollback() error {
	if transaction.done {
		return nil
	}

	transaction.finish()

	return nil
}

func (transaction *MemoryTransaction) finish() {
	transaction.done = true
	transaction.pending = nil

	if transaction.writable {
		transaction.state.writer.Unlock()
	}

	transaction.root.txns.Done()
}

func copyValue(v interface{}) []byte {
	value := v.([]byte)

	if value == nil {
		return nil
	}

	return append([]byte(nil), value...)
}
