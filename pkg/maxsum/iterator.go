package maxsum

import "github.com/bits-and-blooms/bitset"

// DomainIterator enumerates index tuples over a domain (an ordered list
// of variables with their sizes), optionally with a subset of the
// variables pinned ("fixed") to constant values. It is the engine behind
// expand, condition, and marginal: all three walk a DomainIterator
// instead of hand-rolling nested loops over a variable-length domain.
//
// Iteration order matches DiscreteFunction's column-major storage: the
// first (lowest-indexed) free variable varies fastest, so GetInd()
// doubles as a direct slot into a function's values array whenever the
// iterator's vars/sizes match that function's domain exactly.
type DomainIterator struct {
	vars    []VarID
	sizes   []ValIndex
	strides []ValIndex

	sub []ValIndex
	ind ValIndex

	fixed     *bitset.BitSet
	exhausted bool
}

// NewDomainIterator constructs an iterator over f's domain, with no
// variables fixed, positioned at the first tuple (all coordinates zero).
func NewDomainIterator(f *DiscreteFunction) *DomainIterator {
	return newDomainIteratorShape(f.vars, f.sizes)
}

// newDomainIteratorShape builds an iterator directly from a domain shape,
// without requiring a backing DiscreteFunction. Used internally wherever
// a computation needs to walk a domain (e.g. a union domain) that no
// single function owns storage for.
func newDomainIteratorShape(vars []VarID, sizes []ValIndex) *DomainIterator {
	strides := make([]ValIndex, len(sizes))
	stride := ValIndex(1)
	for k, s := range sizes {
		strides[k] = stride
		stride *= s
	}
	return &DomainIterator{
		vars:    vars,
		sizes:   sizes,
		strides: strides,
		sub:     make([]ValIndex, len(vars)),
		ind:     0,
		fixed:   bitset.New(uint(len(vars))),
	}
}

// HasNext reports whether the iterator has not yet exhausted its free
// coordinates. The current tuple (GetInd/GetSubInd) is always valid to
// read while HasNext is true.
func (it *DomainIterator) HasNext() bool {
	return !it.exhausted
}

// Advance moves to the next tuple, incrementing the free coordinates
// only, treated as a mixed-radix counter with radices sizes. Fixed
// coordinates never change. The linear index is updated incrementally.
func (it *DomainIterator) Advance() {
	if it.exhausted {
		return
	}
	for k := 0; k < len(it.vars); k++ {
		if it.fixed.Test(uint(k)) {
			continue
		}
		it.sub[k]++
		it.ind += it.strides[k]
		if it.sub[k] < it.sizes[k] {
			return
		}
		it.ind -= it.sub[k] * it.strides[k]
		it.sub[k] = 0
	}
	it.exhausted = true
}

// GetInd returns the current linear index into a function's value array
// sharing this iterator's (vars, sizes) shape.
func (it *DomainIterator) GetInd() ValIndex {
	return it.ind
}

// GetSubInd returns a copy of the current coordinate tuple.
func (it *DomainIterator) GetSubInd() []ValIndex {
	return append([]ValIndex(nil), it.sub...)
}

// GetVars returns a copy of the domain's variable list.
func (it *DomainIterator) GetVars() []VarID {
	return append([]VarID(nil), it.vars...)
}

// Condition pins the given variables to the given values. vars and vals
// must be parallel slices of equal length. Any variable not present in
// the iterator's own domain is silently ignored, per spec: conditioning
// is routinely called with a superset of variables (e.g. an outer
// function's full domain) when only some of them are relevant here.
func (it *DomainIterator) Condition(vars []VarID, vals []ValIndex) {
	for i, v := range vars {
		k := it.indexOf(v)
		if k < 0 {
			continue
		}
		it.sub[k] = vals[i]
		it.fixed.Set(uint(k))
	}
	it.recomputeInd()
}

// ConditionFrom pins variables using another iterator's current tuple,
// restricted to whatever overlap exists between the two domains.
func (it *DomainIterator) ConditionFrom(other *DomainIterator) {
	it.Condition(other.vars, other.sub)
}

// IsFixed reports whether v has been pinned via Condition. Variables
// outside the iterator's own domain are reported as not fixed.
func (it *DomainIterator) IsFixed(v VarID) bool {
	k := it.indexOf(v)
	if k < 0 {
		return false
	}
	return it.fixed.Test(uint(k))
}

// FixedCount returns the number of variables currently pinned.
func (it *DomainIterator) FixedCount() int {
	return int(it.fixed.Count())
}

// Reset zeroes every free coordinate, leaving fixed coordinates and the
// exhausted flag's dependency on them unchanged, then recomputes the
// linear index and clears the exhausted flag.
func (it *DomainIterator) Reset() {
	for k := range it.sub {
		if !it.fixed.Test(uint(k)) {
			it.sub[k] = 0
		}
	}
	it.exhausted = false
	it.recomputeInd()
}

func (it *DomainIterator) indexOf(v VarID) int {
	lo, hi := 0, len(it.vars)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case it.vars[mid] == v:
			return mid
		case it.vars[mid] < v:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}

func (it *DomainIterator) recomputeInd() {
	it.ind = sub2ind(it.sizes, it.sub)
}
