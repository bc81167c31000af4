package actor

import (
	"fmt"
	"sync"

	"github.com/jrife/overworked/storage/kv"
	"github.com/jrife/overworked/utils/log"
	"github.com/jrife/overworked/utils/observable_map"
	"go.uber.org/zap"
)

// Directory resolves identities to actors. Each identity maps to
// exactly one actor for the life of the directory; the actor and
// its store are created the first time the identity is resolved.
// Every actor's store is the store of the same name in the
// directory's root store.
type Directory struct {
	mu        sync.RWMutex
	rootStore kv.RootStore
	options   Options
	logger    *zap.Logger
	actors    *observable_map.ObservableMap[string, *KeyValueActor]
	closed    bool
}

// NewDirectory creates a directory whose actors keep their
// state in rootStore. The directory takes ownership of rootStore.
func NewDirectory(rootStore kv.RootStore, options Options) *Directory {
	directory := &Directory{
		rootStore: rootStore,
		options:   options,
		logger:    log.OrNop(options.Logger),
		actors:    observable_map.New[string, *KeyValueActor](),
	}

	directory.actors.OnAdd(func(identity string, actor *KeyValueActor) {
		directory.logger.Info("created actor", zap.String("actor", identity))
	})
	directory.actors.OnDelete(func(identity string, actor *KeyValueActor) {
		directory.logger.Debug("removed actor", zap.String("actor", identity), zap.Uint64("processed", actor.Processed()))
	})

	return directory
}

// Resolve returns the actor for identity, creating it if needed
func (directory *Directory) Resolve(identity string) (*KeyValueActor, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}

	directory.mu.RLock()
	defer directory.mu.RUnlock()

	if directory.closed {
		return nil, ErrClosed
	}

	actor, _, err := directory.actors.GetOrCreate(identity, func() (*KeyValueActor, error) {
		return NewKeyValueActor(identity, directory.rootStore.Store([]byte(identity)), directory.options), nil
	})

	return actor, err
}

// Len returns the number of live actors
func (directory *Directory) Len() int {
	return directory.actors.Len()
}

// Close stops every actor then closes the root store. Resolve
// fails with ErrClosed afterwards.
func (directory *Directory) Close() error {
	directory.mu.Lock()

	if directory.closed {
		directory.mu.Unlock()

		return nil
	}

	directory.closed = true
	directory.mu.Unlock()

	actors := directory.actors.Drain()

	var wg sync.WaitGroup

	for _, actor := range actors {
		wg.Add(1)

		go func(actor *KeyValueActor) {
			defer wg.Done()

			actor.Close()
		}(actor)
	}

	wg.Wait()

	if err := directory.rootStore.Close(); err != nil {
		return fmt.Errorf("could not close root store: %w", err)
	}

	return nil
}
