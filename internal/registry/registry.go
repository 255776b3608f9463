// Package registry maps buffer names to stores.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Geun-Oh/lxring/internal/buffer"
)

var (
	ErrAlreadyExists   = errors.New("registry: store already exists")
	ErrInvalidCapacity = buffer.ErrInvalidCapacity
	ErrTooManyStores   = errors.New("registry: too many stores")
	ErrInvalidName     = errors.New("registry: invalid store name")
	ErrNotFound        = errors.New("registry: store not found")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Limits bounds what a registry will create.
type Limits struct {
	MinCapacity int
	MaxCapacity int
	MaxStores   int
}

// DefaultLimits returns 16 KiB to 1 MiB stores, at most 16 of them.
func DefaultLimits() Limits {
	return Limits{
		MinCapacity: 16 << 10,
		MaxCapacity: 1 << 20,
		MaxStores:   16,
	}
}

// Registry holds named stores for its whole lifetime. Its lock only guards
// the name table; each store has its own.
type Registry struct {
	limits Limits
	log    *slog.Logger
	clock  func() time.Time

	mu     sync.RWMutex
	stores map[string]*buffer.Store
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to the registry and its stores.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithClock sets the clock stores use to stamp drop summaries.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.clock = now }
}

// New creates an empty registry. Zero fields of limits take their defaults.
func New(limits Limits, opts ...Option) *Registry {
	def := DefaultLimits()
	if limits.MinCapacity <= 0 {
		limits.MinCapacity = def.MinCapacity
	}
	if limits.MaxCapacity <= 0 {
		limits.MaxCapacity = def.MaxCapacity
	}
	if limits.MaxStores <= 0 {
		limits.MaxStores = def.MaxStores
	}
	r := &Registry{
		limits: limits,
		log:    slog.Default(),
		stores: make(map[string]*buffer.Store),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limits returns the limits the registry enforces.
func (r *Registry) Limits() Limits { return r.limits }

// Create makes a new store. The capacity must be a power of two within the
// registry limits.
func (r *Registry) Create(name string, capacity int) (*buffer.Store, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if capacity < r.limits.MinCapacity || capacity > r.limits.MaxCapacity || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d (need a power of two in [%d, %d])",
			ErrInvalidCapacity, capacity, r.limits.MinCapacity, r.limits.MaxCapacity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(name, capacity)
}

func (r *Registry) createLocked(name string, capacity int) (*buffer.Store, error) {
	if _, ok := r.stores[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}
	if len(r.stores) >= r.limits.MaxStores {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyStores, r.limits.MaxStores)
	}
	s, err := buffer.NewStore(name, capacity, buffer.Options{Logger: r.log, Clock: r.clock})
	if err != nil {
		return nil, err
	}
	r.stores[name] = s
	r.log.Info("store registered", "store", name, "capacity", capacity)
	return s, nil
}

// Lookup returns the named store.
func (r *Registry) Lookup(name string) (*buffer.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s, nil
}

// Ensure returns the named store, creating it with capacity on first use.
// The capacity of an existing store is not checked.
func (r *Registry) Ensure(name string, capacity int) (*buffer.Store, error) {
	if s, err := r.Lookup(name); err == nil {
		return s, nil
	}
	s, err := r.Create(name, capacity)
	if errors.Is(err, ErrAlreadyExists) {
		return r.Lookup(name)
	}
	return s, err
}

// Len returns the number of stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// List yields (name, capacity) pairs in name order. Each iteration works on
// a snapshot taken when it starts, so the registry lock is not held while
// the caller consumes it.
func (r *Registry) List() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		type item struct {
			name     string
			capacity int
		}
		r.mu.RLock()
		items := make([]item, 0, len(r.stores))
		for name, s := range r.stores {
			items = append(items, item{name, s.Capacity()})
		}
		r.mu.RUnlock()

		slices.SortFunc(items, func(a, b item) int { return strings.Compare(a.name, b.name) })
		for _, it := range items {
			if !yield(it.name, it.capacity) {
				return
			}
		}
	}
}

// Stats returns counters for every store in name order.
func (r *Registry) Stats() []buffer.Snapshot {
	var out []buffer.Snapshot
	for name := range r.List() {
		s, err := r.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, s.Stats())
	}
	return out
}
