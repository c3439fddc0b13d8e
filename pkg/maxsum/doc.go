// Package maxsum implements the max-sum algorithm for decentralized
// optimization over factor graphs. See DiscreteFunction for the dense
// tabular function representation, Registry for the process-wide
// variable-domain mapping, DomainIterator for domain enumeration, and
// Controller for the message-passing engine itself.
//
// Concurrency: the library's reference contract is single-threaded.
// Operations on a Registry, a DiscreteFunction, or a Controller are
// expected to be externally serialized by the caller; nothing here
// suspends, blocks, or launches background work. Registry is the one
// exception — its read path is safe for concurrent use by multiple
// goroutines, guarded internally by a sync.RWMutex, because the same
// VarID must mean the same domain size everywhere a DiscreteFunction is
// built regardless of which goroutine built it. Concurrent mutation of a
// single DiscreteFunction or Controller is undefined; concurrent reads
// of distinct instances are safe.
package maxsum
