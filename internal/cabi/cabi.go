// Package cabi is the thin adapter layer described in spec §4.6 and §6:
// the same index-math helpers and controller operations as
// github.com/gitrdm/gomaxsum/pkg/maxsum, reshaped to the C-ABI's integer
// array and -1/NULL error conventions.
//
// The actual cgo build glue (maxsum_c.h, cgo preambles, header
// generation) is out of scope per spec §1 — this package is the pure-Go
// adapter a cgo export layer would sit on top of, kept separate from
// pkg/maxsum so that package keeps its Go error returns and panicking
// index accessors without the C surface's int/-1 conventions leaking
// into it.
package cabi

import "github.com/gitrdm/gomaxsum/pkg/maxsum"

// Sub2Ind mirrors maxsum's sub2ind over plain int slices, returning -1
// instead of panicking when sub is malformed: wrong length, or any
// coordinate out of its variable's range.
func Sub2Ind(sizes, sub []int) int {
	if len(sizes) != len(sub) {
		return -1
	}
	idx, stride := 0, 1
	for k := range sizes {
		if sizes[k] <= 0 || sub[k] < 0 || sub[k] >= sizes[k] {
			return -1
		}
		idx += sub[k] * stride
		stride *= sizes[k]
	}
	return idx
}

// Ind2Sub mirrors maxsum's ind2sub over plain int slices, returning nil
// instead of panicking when idx is out of range for the given sizes.
func Ind2Sub(sizes []int, idx int) []int {
	total := 1
	for _, s := range sizes {
		if s <= 0 {
			return nil
		}
		total *= s
	}
	if idx < 0 || idx >= total {
		return nil
	}
	sub := make([]int, len(sizes))
	for k, s := range sizes {
		sub[k] = idx % s
		idx /= s
	}
	return sub
}

// Controller is the C-surface's opaque controller handle: a thin
// wrapper translating maxsum.Controller's Go-error returns into the
// -1/bool conventions a C caller expects.
type Controller struct {
	inner *maxsum.Controller
}

// NewController mirrors the C surface's constructor, which returns NULL
// (here, nil) on failure. maxsum.NewController cannot itself fail, so
// this always succeeds, but the nil-on-failure shape is kept for
// parity with the other constructors a real C-ABI build would export.
func NewController(maxIterations int, tolerance float64) *Controller {
	return &Controller{inner: maxsum.NewController(maxIterations, tolerance)}
}

// SetFactor returns -1 on failure, 0 on success, matching the C
// surface's integer-returning-function convention.
func (c *Controller) SetFactor(id int, vars []int, sizes []int, values []float64) int {
	if len(vars) != len(sizes) {
		return -1
	}

	varIDs := make([]maxsum.VarID, len(vars))
	for i, v := range vars {
		varIDs[i] = maxsum.VarID(v)
		if err := maxsum.Register(maxsum.VarID(v), maxsum.ValIndex(sizes[i])); err != nil {
			return -1
		}
	}

	fn, err := maxsum.New(varIDs, 0)
	if err != nil {
		return -1
	}
	if len(values) != int(fn.DomainSize()) {
		return -1
	}
	for i, v := range values {
		fn.SetAt(maxsum.ValIndex(i), v)
	}

	if err := c.inner.SetFactor(maxsum.FactorID(id), fn); err != nil {
		return -1
	}
	return 0
}

// RemoveFactor always succeeds; mirrors the C surface's signature.
func (c *Controller) RemoveFactor(id int) int {
	c.inner.RemoveFactor(maxsum.FactorID(id))
	return 0
}

// ClearAll drops every factor, edge, and message.
func (c *Controller) ClearAll() {
	c.inner.ClearAll()
}

// NoFactors returns the number of factors in the graph.
func (c *Controller) NoFactors() int { return c.inner.NoFactors() }

// NoVars returns the number of variables with at least one incident
// factor.
func (c *Controller) NoVars() int { return c.inner.NoVars() }

// Optimise returns the number of rounds performed, or -1 if the
// controller has no factors (the C surface has no notion of an "empty"
// result, so it uses -1 where the Go API reports a single round that
// trivially converged).
func (c *Controller) Optimise() int {
	if c.inner.NoFactors() == 0 {
		return -1
	}
	return c.inner.Optimise()
}

// GetValues returns parallel var/value slices, or (nil, nil) when no
// variable has a defined assignment.
func (c *Controller) GetValues() (vars []int, values []int) {
	assignments := c.inner.GetValues()
	if len(assignments) == 0 {
		return nil, nil
	}
	vars = make([]int, len(assignments))
	values = make([]int, len(assignments))
	for i, a := range assignments {
		vars[i] = int(a.Var)
		values[i] = int(a.Value)
	}
	return vars, values
}
