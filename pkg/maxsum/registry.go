package maxsum

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// VarID is an opaque identifier for a discrete variable.
type VarID int

// ValIndex is a non-negative index into a variable's domain, or a
// linear/subindex coordinate derived from one or more domains.
type ValIndex int

// registryEntry records a registered variable's fixed domain size.
type registryEntry struct {
	size ValIndex
}

// Registry is a process-wide mapping from VarID to domain size. Every
// DiscreteFunction consults it to cache strides at construction time.
// Reads are cheap and far more common than writes, so a RWMutex guards
// the map, mirroring the read-mostly locking the teacher uses around its
// domain pools.
type Registry struct {
	mu      sync.RWMutex
	entries map[VarID]registryEntry
}

// defaultRegistry is the process-wide registry used by package-level
// convenience functions. A single mutable instance is idiomatic for this
// library: the same VarID must mean the same domain size everywhere a
// DiscreteFunction is built, so threading an explicit registry through
// every constructor would only add friction without changing behavior.
var defaultRegistry = NewRegistry()

// NewRegistry creates an empty, independent variable registry. Most
// callers want the process-wide default (see Register, DomainSize,
// IsRegistered, RegisteredCount); NewRegistry exists for tests and for
// callers that need isolated variable namespaces.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[VarID]registryEntry)}
}

// Register inserts (id, size) if id is absent. If id is already present
// with the same size, Register succeeds without mutation. If id is
// present with a different size, Register fails and the registry is left
// unchanged.
func (r *Registry) Register(id VarID, size ValIndex) error {
	if size <= 0 {
		return errors.Wrapf(ErrOutOfRange, "variable %d: domain size %d must be positive", id, size)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id]
	if !ok {
		r.entries[id] = registryEntry{size: size}
		return nil
	}
	if existing.size == size {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"variable":      id,
		"existing_size": existing.size,
		"requested_size": size,
	}).Warn("maxsum: duplicate variable registration with conflicting domain size")

	return errors.Wrapf(ErrUnknownVariable, "variable %d already registered with size %d, cannot re-register with size %d", id, existing.size, size)
}

// DomainSize returns the registered domain size for id, or
// ErrUnknownVariable if id has not been registered.
func (r *Registry) DomainSize(id VarID) (ValIndex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownVariable, "variable %d is not registered", id)
	}
	return entry.size, nil
}

// IsRegistered reports whether id has been registered.
func (r *Registry) IsRegistered(id VarID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// RegisteredCount returns the number of distinct registered variables.
func (r *Registry) RegisteredCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Register inserts (id, size) into the process-wide default registry.
// See Registry.Register.
func Register(id VarID, size ValIndex) error {
	return defaultRegistry.Register(id, size)
}

// DomainSize returns the domain size of id from the process-wide default
// registry. See Registry.DomainSize.
func DomainSize(id VarID) (ValIndex, error) {
	return defaultRegistry.DomainSize(id)
}

// IsRegistered reports whether id is registered in the process-wide
// default registry.
func IsRegistered(id VarID) bool {
	return defaultRegistry.IsRegistered(id)
}

// RegisteredCount returns the number of variables registered in the
// process-wide default registry.
func RegisteredCount() int {
	return defaultRegistry.RegisteredCount()
}
