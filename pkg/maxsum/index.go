package maxsum

// sub2ind converts a coordinate tuple sub over the given sizes into a
// linear index, using column-major strides (the first variable varies
// fastest): idx = Σ_k sub[k] · ∏_{j<k} sizes[j].
//
// Precondition: len(sub) == len(sizes) and 0 <= sub[k] < sizes[k] for
// all k. Violating it is a programmer error; callers on the hot path
// (DiscreteFunction element access) are expected to have validated
// shapes already, so this function does not re-check them.
func sub2ind(sizes, sub []ValIndex) ValIndex {
	var idx, stride ValIndex = 0, 1
	for k := range sizes {
		idx += sub[k] * stride
		stride *= sizes[k]
	}
	return idx
}

// ind2sub is the inverse of sub2ind: given a linear index into a domain
// of the given sizes, it recovers the coordinate tuple.
//
// Precondition: 0 <= idx < ∏ sizes.
func ind2sub(sizes []ValIndex, idx ValIndex) []ValIndex {
	sub := make([]ValIndex, len(sizes))
	for k, s := range sizes {
		sub[k] = idx % s
		idx /= s
	}
	return sub
}

// domainSize returns ∏ sizes, the number of cells in a domain with the
// given per-variable sizes. An empty domain (no variables) has exactly
// one cell, matching a constant function's convention.
func domainSize(sizes []ValIndex) ValIndex {
	size := ValIndex(1)
	for _, s := range sizes {
		size *= s
	}
	return size
}
