package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrife/overworked/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// BBoltDriverName is the name of the bbolt plugin
	BBoltDriverName = "bbolt"
)

var _ Plugin = (*BBoltPlugin)(nil)

// BBoltPlugin opens durable root stores backed by a
// single bbolt file. Each store is a top-level bucket.
type BBoltPlugin struct {
}

// Name implements Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return BBoltDriverName
}

// NewRootStore implements Plugin.NewRootStore. It requires
// a "path" option naming the database file.
func (plugin *BBoltPlugin) NewRootStore(options PluginOptions) (RootStore, error) {
	var config BBoltRootStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	if timeout, ok := options["timeout"]; ok {
		timeoutDuration, ok := timeout.(time.Duration)

		if !ok {
			return nil, fmt.Errorf("\"timeout\" must be a time.Duration")
		}

		config.Timeout = timeoutDuration
	}

	return NewBBoltRootStore(config)
}

// NewTempRootStore implements Plugin.NewTempRootStore
func (plugin *BBoltPlugin) NewTempRootStore() (RootStore, error) {
	return plugin.NewRootStore(PluginOptions{
		"path": filepath.Join(os.TempDir(), fmt.Sprintf("bbolt-%s", uuid.MustUUID())),
	})
}

// BBoltRootStoreConfig configures a bbolt root store
type BBoltRootStoreConfig struct {
	Path string
	// Timeout bounds how long opening the file waits for
	// the file lock. Zero waits forever.
	Timeout time.Duration
}

var _ RootStore = (*BBoltRootStore)(nil)

// BBoltRootStore is a RootStore backed by bbolt
type BBoltRootStore struct {
	db *bolt.DB
}

// NewBBoltRootStore opens or creates the bbolt file described by config
func NewBBoltRootStore(config BBoltRootStoreConfig) (*BBoltRootStore, error) {
	db, err := bolt.Open(config.Path, 0666, &bolt.Options{Timeout: config.Timeout})

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %w", config.Path, err)
	}

	return &BBoltRootStore{db: db}, nil
}

// Close implements RootStore.Close
func (rootStore *BBoltRootStore) Close() error {
	return rootStore.db.Close()
}

// Delete implements RootStore.Delete
func (rootStore *BBoltRootStore) Delete() error {
	path := rootStore.db.Path()

	if err := rootStore.Close(); err != nil {
		return fmt.Errorf("could not close store: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %w", path, err)
	}

	return nil
}

// Store implements RootStore.Store
func (rootStore *BBoltRootStore) Store(name []byte) Store {
	return &BBoltStore{db: rootStore.db, name: name}
}

var _ Store = (*BBoltStore)(nil)

// BBoltStore is a single bucket inside a bbolt root store
type BBoltStore struct {
	db   *bolt.DB
	name []byte
}

// Name implements Store.Name
func (store *BBoltStore) Name() []byte {
	return store.name
}

// Begin implements Store.Begin
func (store *BBoltStore) Begin(writable bool) (Transaction, error) {
	transaction, err := store.db.Begin(writable)

	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return nil, ErrClosed
		}

		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}

	return &BBoltTransaction{transaction: transaction, name: store.name}, nil
}

var _ Transaction = (*BBoltTransaction)(nil)

// BBoltTransaction wraps a bolt.Tx scoped to one bucket
type BBoltTransaction struct {
	transaction *bolt.Tx
	name        []byte
}

func (transaction *BBoltTransaction) bucket(create bool) (*bolt.Bucket, error) {
	if !create {
		return transaction.transaction.Bucket(transaction.name), nil
	}

	return transaction.transaction.CreateBucketIfNotExists(transaction.name)
}

// Get implements Transaction.Get
func (transaction *BBoltTransaction) Get(key []byte) ([]byte, error) {
	if transaction.transaction.DB() == nil {
		return nil, ErrTxnDone
	}

	bucket, err := transaction.bucket(false)

	if err != nil {
		return nil, wrapError("could not open bucket", err)
	}

	if bucket == nil {
		return nil, nil
	}

	value := bucket.Get(key)

	if value == nil {
		return nil, nil
	}

	// Values returned by bbolt are only valid for the life of the transaction
	return append([]byte(nil), value...), nil
}

// Put implements Transaction.Put
func (transaction *BBoltTransaction) Put(key, value []byte) error {
	if err := checkPut(key, value); err != nil {
		return err
	}

	if !transaction.transaction.Writable() {
		return ErrReadOnly
	}

	bucket, err := transaction.bucket(true)

	if err != nil {
		return wrapError("could not create bucket", translateBoltError(err))
	}

	return wrapError("could not put key", translateBoltError(bucket.Put(key, value)))
}

// Delete implements Transaction.Delete
func (transaction *BBoltTransaction) Delete(key []byte) error {
	if transaction.transaction.DB() == nil {
		return ErrTxnDone
	}

	if !transaction.transaction.Writable() {
		return ErrReadOnly
	}

	bucket, err := transaction.bucket(false)

	if err != nil {
		return wrapError("could not open bucket", translateBoltError(err))
	}

	if bucket == nil {
		return nil
	}

	return wrapError("could not delete key", translateBoltError(bucket.Delete(key)))
}

// Commit implements Transaction.Commit. Read-only
// transactions are rolled back since bbolt refuses
// to commit them.
func (transaction *BBoltTransaction) Commit() error {
	if !transaction.transaction.Writable() {
		return translateBoltError(transaction.transaction.Rollback())
	}

	return wrapError("could not commit transaction", translateBoltError(transaction.transaction.Commit()))
}

// Rollback implements Transaction.Rollback
func (transaction *BBoltTransaction) Rollback() error {
	err := transaction.transaction.Rollback()

	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}

	return err
}

func translateBoltError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrTxClosed):
		return ErrTxnDone
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return ErrClosed
	case errors.Is(err, bolt.ErrTxNotWritable):
		return ErrReadOnly
	}

	return err
}
