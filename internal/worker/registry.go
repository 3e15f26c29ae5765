package worker

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownWorker marks a dispatch to a kind nothing registered. This
// is a configuration error, distinct from a worker failing at runtime.
var ErrUnknownWorker = errors.New("no worker registered for kind")

// Registry maps worker kinds to constructors. It is populated at
// startup and read-only afterwards; Validate catches gaps before the
// first message arrives.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Kind]func() Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[Kind]func() Worker)}
}

// Register binds a kind to a worker constructor. A fresh worker is
// built per dispatch, so workers need no internal locking.
func (r *Registry) Register(kind Kind, ctor func() Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[kind] = ctor
}

// Resolve builds a worker for the kind.
func (r *Registry) Resolve(kind Kind) (Worker, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, kind)
	}
	return ctor(), nil
}

// Registered returns the kinds with a constructor, in declaration
// order.
func (r *Registry) Registered() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var kinds []Kind
	for _, k := range Kinds() {
		if _, ok := r.ctors[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Validate fails when any required kind has no constructor. Called at
// startup so misconfiguration is fatal before serving.
func (r *Registry) Validate(required ...Kind) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range required {
		if _, ok := r.ctors[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownWorker, k)
		}
	}
	return nil
}
