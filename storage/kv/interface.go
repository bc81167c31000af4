package kv

// PluginOptions are driver-specific options passed
// to a plugin when it opens a root store
type PluginOptions map[string]interface{}

// Plugin represents a kv storage plugin
type Plugin interface {
	// Name returns the name of the storage plugin
	Name() string
	// NewRootStore returns an instance of the plugin's root store
	NewRootStore(options PluginOptions) (RootStore, error)
	// NewTempRootStore returns an instance of the plugin's root store
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized instance of the plugin's
	// store without knowing how to initialize it
	NewTempRootStore() (RootStore, error)
}

// RootStore is the parent store from which all stores are descended
type RootStore interface {
	// Close closes the root store. Calls to any I/O objects descended
	// from this store that start after Close returns must have no
	// effect and return ErrClosed. Close must not return until all
	// transactions have either rolled back or committed.
	Close() error
	// Delete closes then deletes this root store and all its contents.
	Delete() error
	// Store returns a handle for the store with this name. It does not
	// create the store. A store is created implicitly by the first
	// writable transaction that commits against it. It must not return nil.
	Store(name []byte) Store
}

// Store is a named, independent keyspace inside a root store.
// Transactions against a store are strictly serializable: a transaction
// that begins after another one commits observes all of its writes.
type Store interface {
	// Name returns the name of this store
	Name() []byte
	// Begin starts a transaction for this store. writable should be
	// true for read-write transactions and false for read-only transactions.
	// If Begin is called after Close on the root store returns it must
	// return ErrClosed. Begin may block while another writable
	// transaction is open.
	Begin(writable bool) (Transaction, error)
}

// MapUpdater is an interface for updating a sorted
// key-value map
type MapUpdater interface {
	// Put puts a key. Put must return ErrEmptyKey or ErrEmptyValue
	// if either key or value is nil or empty.
	Put(key, value []byte) error
	// Delete deletes a key. If the key doesn't exist
	// it has no effect and returns nil.
	Delete(key []byte) error
}

// MapReader is an interface for reading a sorted
// key-value map
type MapReader interface {
	// Get gets a key. It must observe updates to that key made
	// previously by this transaction. It must return nil if the
	// requested key does not exist.
	Get(key []byte) ([]byte, error)
}

// Transaction is a transaction for a store. It must only be
// used by one goroutine at a time.
//
// Atomicity: none of the updates made inside a writable transaction
// are visible outside of it until Commit returns nil. If Commit returns
// an error, or the transaction is rolled back, the store is left exactly
// as it was before Begin. There is no outcome in which only some of the
// transaction's updates land.
type Transaction interface {
	MapUpdater
	MapReader
	// Commit commits the transaction
	Commit() error
	// Rollback rolls back the transaction. Calling Rollback after
	// Commit has no effect and returns nil.
	Rollback() error
}
