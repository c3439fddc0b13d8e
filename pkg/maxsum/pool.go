package maxsum

import "sync"

// Pooled value-slice allocation for DiscreteFunction storage. Expand,
// Condition, and function arithmetic all allocate a fresh values slice
// for an intermediate or result function; message passing in the
// controller does this on every round for every edge, so reusing
// backing arrays materially cuts GC pressure on larger factor graphs.
//
// Buckets mirror the teacher's domain pools (domain.go's
// small/medium/large BitSetDomain pools, keyed by word count): rather
// than one pool per exact length, a handful of size classes are pooled
// and slices are trimmed to the requested length after retrieval.
const (
	smallValuesBucket  = 16
	mediumValuesBucket = 256
	largeValuesBucket  = 4096
)

var (
	smallValuesPool = sync.Pool{
		New: func() interface{} {
			s := make([]float64, smallValuesBucket)
			return &s
		},
	}
	mediumValuesPool = sync.Pool{
		New: func() interface{} {
			s := make([]float64, mediumValuesBucket)
			return &s
		},
	}
	largeValuesPool = sync.Pool{
		New: func() interface{} {
			s := make([]float64, largeValuesBucket)
			return &s
		},
	}
)

// getValues returns a zeroed []float64 of length n. Slices up to
// largeValuesBucket come from a pool; anything larger is allocated
// directly, matching the teacher's "too large for pool, allocate
// directly" fallback.
func getValues(n int) []float64 {
	var p *sync.Pool
	switch {
	case n <= smallValuesBucket:
		p = &smallValuesPool
	case n <= mediumValuesBucket:
		p = &mediumValuesPool
	case n <= largeValuesBucket:
		p = &largeValuesPool
	default:
		return make([]float64, n)
	}

	s := p.Get().(*[]float64)
	out := (*s)[:n]
	for i := range out {
		out[i] = 0
	}
	return out
}

// putValues returns a values slice obtained from getValues to its pool.
// Slices that did not come from a pooled bucket (len beyond
// largeValuesBucket, or a capacity too small for any bucket) are simply
// dropped for the garbage collector, mirroring releaseDomainToPool's
// "not pooled" branch.
func putValues(s []float64) {
	switch cap(s) {
	case smallValuesBucket:
		full := s[:smallValuesBucket]
		smallValuesPool.Put(&full)
	case mediumValuesBucket:
		full := s[:mediumValuesBucket]
		mediumValuesPool.Put(&full)
	case largeValuesBucket:
		full := s[:largeValuesBucket]
		largeValuesPool.Put(&full)
	}
}
