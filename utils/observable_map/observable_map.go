package observable_map

import "sync"

// MapObserver is a callback through which observers
// can be notified of map changes. Observers run with
// the map locked and must not call back into it.
type MapObserver[K comparable, V any] func(key K, value V)

// ObservableMap is a thread-safe wrapper for go's
// map that allows observers to be notified when
// things are added or deleted
type ObservableMap[K comparable, V any] struct {
	mu              sync.Mutex
	internalMap     map[K]V
	addObservers    []MapObserver[K, V]
	deleteObservers []MapObserver[K, V]
}

// New creates an empty ObservableMap
func New[K comparable, V any]() *ObservableMap[K, V] {
	return &ObservableMap[K, V]{
		internalMap: make(map[K]V),
	}
}

// GetOrCreate returns the value for key. If the key does not
// exist create is called to build its value, which is added
// to the map before any other caller can observe the key.
// loaded is true if the value already existed.
func (observableMap *ObservableMap[K, V]) GetOrCreate(key K, create func() (V, error)) (value V, loaded bool, err error) {
	observableMap.mu.Lock()
	defer observableMap.mu.Unlock()

	if value, ok := observableMap.internalMap[key]; ok {
		return value, true, nil
	}

	value, err = create()

	if err != nil {
		return value, false, err
	}

	observableMap.internalMap[key] = value
	observableMap.notifyObservers(observableMap.addObservers, key, value)

	return value, false, nil
}

// Get reads a key from the map. If the key exists
// its value will be returned and ok will be true
// If the value doesn't exist the zero value will be
// returned and ok will be false.
func (observableMap *ObservableMap[K, V]) Get(key K) (V, bool) {
	observableMap.mu.Lock()
	defer observableMap.mu.Unlock()

	value, ok := observableMap.internalMap[key]

	return value, ok
}

// Len returns the number of keys in the map
func (observableMap *ObservableMap[K, V]) Len() int {
	observableMap.mu.Lock()
	defer observableMap.mu.Unlock()

	return len(observableMap.internalMap)
}

// Drain removes every key from the map and returns
// what it held. Delete observers are notified for
// each key.
func (observableMap *ObservableMap[K, V]) Drain() map[K]V {
	observableMap.mu.Lock()
	defer observableMap.mu.Unlock()

	drained := observableMap.internalMap
	observableMap.internalMap = make(map[K]V)

	for key, value := range drained {
		observableMap.notifyObservers(observableMap.deleteObservers, key, value)
	}

	return drained
}

func (observableMap *ObservableMap[K, V]) notifyObservers(observers []MapObserver[K, V], key K, value V) {
	for _, observer := range observers {
		observer(key, value)
	}
}

// OnAdd registers an observer for when a new key is
// added to the map.
func (observableMap *ObservableMap[K, V]) OnAdd(cb MapObserver[K, V]) {
	observableMap.mu.Lock()
	defer observableMap.mu.Unlock()

	observableMap.addObservers = append(observableMap.addObservers, cb)
}

// OnDelete registers an observer for map deletes.
func (observableMap *ObservableMap[K, V]) OnDelete(cb MapObserver[K, V]) {
	observableMap.mu.Lock()
	defer observableMap.mu.Unlock()

	observableMap.deleteObservers = append(observableMap.deleteObservers, cb)
}
