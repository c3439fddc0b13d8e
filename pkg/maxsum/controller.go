package maxsum

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// mustCombine panics if a DiscreteFunction arithmetic call returns an
// error. Every call site in this file adds or subtracts a
// single-variable message over a variable the other operand already
// depends on, so Add/Sub never need to expand and can only fail if that
// invariant has been broken elsewhere — a bug in
// this package, not a caller error, so it panics rather than threading
// an error return through every message-update helper.
func mustCombine(err error) {
	if err != nil {
		panic(fmt.Sprintf("maxsum: internal invariant violated: %v", err))
	}
}

// FactorID is an opaque identifier for a factor node in the controller's
// bipartite factor graph.
type FactorID int

// edgeKey identifies one edge of the bipartite factor graph: a factor
// node and one of the variables in its domain.
type edgeKey struct {
	factor FactorID
	v      VarID
}

// Assignment pairs a variable with the value MaxSumController's
// extraction step assigned it.
type Assignment struct {
	Var   VarID
	Value ValIndex
}

// Controller is the max-sum message-passing engine. It owns a bipartite
// factor graph (factor nodes keyed by FactorID, variable nodes implied by
// the union of factor domains) and, for each edge, the current and
// previous round's factor->variable and variable->factor messages.
//
// Controller is not safe for concurrent use; see the package-level
// concurrency note in doc.go.
type Controller struct {
	reg *Registry

	maxIterations int
	tolerance     float64

	// Normalize shifts each outgoing message by its own maximum so the
	// message's peak is zero. This never changes the argmax extracted by
	// GetValues, only the magnitude of the raw messages. Off by default,
	// matching spec guidance that normalization is not mandated.
	Normalize bool

	factors    map[FactorID]*DiscreteFunction
	factorVars map[FactorID][]VarID
	varFactors map[VarID]map[FactorID]struct{}

	mFVCur  map[edgeKey]*DiscreteFunction
	mFVPrev map[edgeKey]*DiscreteFunction
	mVFCur  map[edgeKey]*DiscreteFunction
	mVFPrev map[edgeKey]*DiscreteFunction

	// edgeBit assigns each live edge a stable bit position in dirty.
	// Bits are never reused once an edge is removed, so dirty can only
	// grow; for the edge churn this library expects (factors set up
	// once, then optimised many times) that is cheaper than compacting
	// on every RemoveFactor.
	edgeBit     map[edgeKey]uint
	nextEdgeBit uint

	// dirty tracks, per edge, whether either message on that edge
	// changed by more than tolerance in the most recently completed
	// round. stepVarToFactor and stepFactorToVar consult it to skip
	// recomputing messages whose every input has already settled;
	// maxDelta is what keeps it up to date. A newly added edge starts
	// dirty, since its zero-initialized messages haven't been through a
	// round yet.
	dirty *bitset.BitSet
}

// NewController creates a controller with the given iteration cap and
// max-norm convergence tolerance, using the process-wide default
// registry.
func NewController(maxIterations int, tolerance float64) *Controller {
	return NewControllerWithRegistry(defaultRegistry, maxIterations, tolerance)
}

// NewControllerWithRegistry is NewController, but resolves variable
// domain sizes (for seeding per-edge messages) against an explicit
// registry instead of the process-wide default.
func NewControllerWithRegistry(reg *Registry, maxIterations int, tolerance float64) *Controller {
	return &Controller{
		reg:           reg,
		maxIterations: maxIterations,
		tolerance:     tolerance,
		factors:       make(map[FactorID]*DiscreteFunction),
		factorVars:    make(map[FactorID][]VarID),
		varFactors:    make(map[VarID]map[FactorID]struct{}),
		mFVCur:        make(map[edgeKey]*DiscreteFunction),
		mFVPrev:       make(map[edgeKey]*DiscreteFunction),
		mVFCur:        make(map[edgeKey]*DiscreteFunction),
		mVFPrev:       make(map[edgeKey]*DiscreteFunction),
		edgeBit:       make(map[edgeKey]uint),
		dirty:         bitset.New(0),
	}
}

// NoFactors returns the number of factors currently in the graph.
func (c *Controller) NoFactors() int { return len(c.factors) }

// NoVars returns the number of variables with at least one incident
// factor.
func (c *Controller) NoVars() int { return len(c.varFactors) }

// SetFactor inserts fn under id, or replaces whatever was previously
// stored there. Edges are created or destroyed to match fn's domain;
// messages on edges shared with the previous factor at id are preserved
// untouched, matching the spec's "preserve existing message storage for
// shared edges" requirement.
//
// SetFactor is all-or-nothing: every message a new edge would need is
// built and validated against the registry before any edge is added or
// removed, so a failure (e.g. fn depends on a variable c.reg doesn't
// know about) leaves the controller exactly as it was.
func (c *Controller) SetFactor(id FactorID, fn *DiscreteFunction) error {
	newVars := fn.Vars()
	oldVars := c.factorVars[id]

	oldSet := make(map[VarID]bool, len(oldVars))
	for _, v := range oldVars {
		oldSet[v] = true
	}
	newSet := make(map[VarID]bool, len(newVars))
	for _, v := range newVars {
		newSet[v] = true
	}

	type zeroPair struct{ fv, vf *DiscreteFunction }
	pending := make(map[VarID]zeroPair)
	for _, v := range newVars {
		if oldSet[v] {
			continue
		}
		fv, vf, err := c.buildZeroMessages(v)
		if err != nil {
			return errors.Wrapf(err, "maxsum: set factor %d", id)
		}
		pending[v] = zeroPair{fv, vf}
	}

	for _, v := range oldVars {
		if !newSet[v] {
			c.removeEdge(id, v)
		}
	}
	for v, zp := range pending {
		c.commitEdge(id, v, zp.fv, zp.vf)
	}
	// The factor's values may have changed, so its kept edges must be
	// recomputed on the next round rather than skipped as settled.
	for _, v := range newVars {
		if oldSet[v] {
			c.dirty.Set(c.edgeBit[edgeKey{id, v}])
		}
	}

	c.factors[id] = fn.Copy()
	c.factorVars[id] = newVars
	return nil
}

// RemoveFactor drops the factor at id along with every edge and message
// associated with it. Variables left with no remaining incident factor
// are implicitly removed from the graph.
func (c *Controller) RemoveFactor(id FactorID) {
	for _, v := range c.factorVars[id] {
		c.removeEdge(id, v)
	}
	delete(c.factors, id)
	delete(c.factorVars, id)
}

// ClearAll drops every factor, edge, and message. The variable registry
// itself (domain sizes) is untouched.
func (c *Controller) ClearAll() {
	c.factors = make(map[FactorID]*DiscreteFunction)
	c.factorVars = make(map[FactorID][]VarID)
	c.varFactors = make(map[VarID]map[FactorID]struct{})
	c.mFVCur = make(map[edgeKey]*DiscreteFunction)
	c.mFVPrev = make(map[edgeKey]*DiscreteFunction)
	c.mVFCur = make(map[edgeKey]*DiscreteFunction)
	c.mVFPrev = make(map[edgeKey]*DiscreteFunction)
	c.edgeBit = make(map[edgeKey]uint)
	c.nextEdgeBit = 0
	c.dirty = bitset.New(0)
}

// buildZeroMessages constructs the pair of zero-valued single-variable
// messages a new edge to v needs, without mutating the controller. Kept
// separate from commitEdge so SetFactor can validate every new edge
// before committing any of them.
func (c *Controller) buildZeroMessages(v VarID) (fv, vf *DiscreteFunction, err error) {
	fv, err = NewWithRegistry(c.reg, []VarID{v}, 0)
	if err != nil {
		return nil, nil, err
	}
	vf, err = NewWithRegistry(c.reg, []VarID{v}, 0)
	if err != nil {
		return nil, nil, err
	}
	return fv, vf, nil
}

// commitEdge installs a new edge's messages and bookkeeping. It cannot
// fail: callers build and validate the zero messages with
// buildZeroMessages first.
func (c *Controller) commitEdge(f FactorID, v VarID, zeroFV, zeroVF *DiscreteFunction) {
	key := edgeKey{f, v}
	c.mFVCur[key] = zeroFV.Copy()
	c.mFVPrev[key] = zeroFV
	c.mVFCur[key] = zeroVF.Copy()
	c.mVFPrev[key] = zeroVF

	if c.varFactors[v] == nil {
		c.varFactors[v] = make(map[FactorID]struct{})
	}
	c.varFactors[v][f] = struct{}{}

	bit := c.nextEdgeBit
	c.nextEdgeBit++
	c.edgeBit[key] = bit
	c.dirty.Set(bit)
}

func (c *Controller) removeEdge(f FactorID, v VarID) {
	key := edgeKey{f, v}
	delete(c.mFVCur, key)
	delete(c.mFVPrev, key)
	delete(c.mVFCur, key)
	delete(c.mVFPrev, key)

	if bit, ok := c.edgeBit[key]; ok {
		c.dirty.Clear(bit)
		delete(c.edgeBit, key)
	}

	if facs, ok := c.varFactors[v]; ok {
		delete(facs, f)
		if len(facs) == 0 {
			delete(c.varFactors, v)
		}
		// v's remaining edges lost an input, so they are no longer settled.
		for other := range facs {
			if bit, ok := c.edgeBit[edgeKey{other, v}]; ok {
				c.dirty.Set(bit)
			}
		}
	}
}

// Optimise runs synchronous message-passing rounds until the max-norm
// change between rounds falls to or below the configured tolerance, or
// the iteration cap is reached, and returns the number of rounds
// actually performed.
func (c *Controller) Optimise() int {
	performed := 0
	for performed < c.maxIterations {
		c.stepVarToFactor()
		c.stepFactorToVar()
		delta := c.maxDelta()
		c.swapRound()
		performed++

		logrus.WithFields(logrus.Fields{
			"iteration": performed,
			"delta":     delta,
			"factors":   len(c.factors),
			"variables": len(c.varFactors),
		}).Debug("maxsum: round complete")

		if delta <= c.tolerance {
			break
		}
	}
	return performed
}

// edgeSettled reports whether every edge in keys is clear in dirty
// (neither of its messages changed by more than tolerance last round).
func (c *Controller) edgeSettled(keys ...edgeKey) bool {
	for _, key := range keys {
		bit, ok := c.edgeBit[key]
		if !ok || c.dirty.Test(bit) {
			return false
		}
	}
	return true
}

// stepVarToFactor computes every m_{v->f}(v) = Σ_{f'∈N(v)\{f}} m_{f'→v}(v)
// from the previous round's factor->variable messages, writing the
// result into this round's variable->factor buffers. A variable whose
// every incident edge is settled (dirty says no message on them moved by
// more than tolerance last round) is skipped, and the previous round's
// values are carried forward unmodified.
func (c *Controller) stepVarToFactor() {
	for v, facs := range c.varFactors {
		keys := make([]edgeKey, 0, len(facs))
		for f := range facs {
			keys = append(keys, edgeKey{f, v})
		}
		if c.edgeSettled(keys...) {
			for _, key := range keys {
				c.mVFCur[key] = c.mVFPrev[key]
			}
			continue
		}

		total, err := NewWithRegistry(c.reg, []VarID{v}, 0)
		if err != nil {
			continue
		}
		for f := range facs {
			mustCombine(total.Add(c.mFVPrev[edgeKey{f, v}]))
		}
		for f := range facs {
			m := total.Copy()
			mustCombine(m.Sub(c.mFVPrev[edgeKey{f, v}]))
			c.normalize(m)
			c.mVFCur[edgeKey{f, v}] = m
		}
	}
}

// stepFactorToVar computes every m_{f->v}(v) = max over dom(f)\{v} of
// [f(dom(f)) + Σ_{v'∈N(f)\{v}} m_{v'→f}(v')], from the previous round's
// variable->factor messages, writing the result into this round's
// factor->variable buffers. A factor whose every edge is settled is
// skipped for the same reason as in stepVarToFactor.
func (c *Controller) stepFactorToVar() {
	for fid, fn := range c.factors {
		vars := fn.Vars()
		if len(vars) == 0 {
			// A constant factor contributes no messages.
			continue
		}

		keys := make([]edgeKey, len(vars))
		for i, v := range vars {
			keys[i] = edgeKey{fid, v}
		}
		if c.edgeSettled(keys...) {
			for _, key := range keys {
				c.mFVCur[key] = c.mFVPrev[key]
			}
			continue
		}

		for _, v := range vars {
			s := fn.Copy()
			for _, vp := range vars {
				if vp == v {
					continue
				}
				mustCombine(s.Add(c.mVFPrev[edgeKey{fid, vp}]))
			}
			out, err := NewWithRegistry(c.reg, []VarID{v}, 0)
			if err != nil {
				continue
			}
			s.MaxMarginal(out)
			c.normalize(out)
			c.mFVCur[edgeKey{fid, v}] = out
		}
	}
}

// normalize shifts m so its maximum cell is zero, when Normalize is
// enabled. A no-op otherwise.
func (c *Controller) normalize(m *DiscreteFunction) {
	if !c.Normalize {
		return
	}
	m.SubScalar(m.Max())
}

// maxDelta returns the largest maxnorm(cur-prev) over every message on
// every edge, the convergence metric for Optimise, and brings dirty up
// to date: an edge is marked dirty if either of its messages changed by
// more than tolerance this round, clear otherwise.
func (c *Controller) maxDelta() float64 {
	var maxD float64
	changed := make(map[edgeKey]bool, len(c.edgeBit))

	measure := func(m map[edgeKey]*DiscreteFunction, prev map[edgeKey]*DiscreteFunction) {
		for key, cur := range m {
			diff := cur.Copy()
			mustCombine(diff.Sub(prev[key]))
			d := diff.Maxnorm()
			if d > maxD {
				maxD = d
			}
			if d > c.tolerance {
				changed[key] = true
			}
		}
	}
	measure(c.mFVCur, c.mFVPrev)
	measure(c.mVFCur, c.mVFPrev)

	for key, bit := range c.edgeBit {
		if changed[key] {
			c.dirty.Set(bit)
		} else {
			c.dirty.Clear(bit)
		}
	}
	return maxD
}

func (c *Controller) swapRound() {
	c.mFVCur, c.mFVPrev = c.mFVPrev, c.mFVCur
	c.mVFCur, c.mVFPrev = c.mVFPrev, c.mVFCur
}

// GetValues computes, for every variable with at least one incident
// factor, its belief b(v) = Σ_{f∈N(v)} m_{f→v}(v) from the most recently
// completed round and emits argmax b(v), ties broken by the lowest
// index. Isolated variables (no incident factor) have no defined
// assignment and are excluded.
func (c *Controller) GetValues() []Assignment {
	vars := make([]VarID, 0, len(c.varFactors))
	for v := range c.varFactors {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })

	out := make([]Assignment, 0, len(vars))
	for _, v := range vars {
		belief, err := NewWithRegistry(c.reg, []VarID{v}, 0)
		if err != nil {
			continue
		}
		for f := range c.varFactors[v] {
			mustCombine(belief.Add(c.mFVPrev[edgeKey{f, v}]))
		}
		out = append(out, Assignment{Var: v, Value: belief.Argmax()})
	}
	return out
}
