package maxsum

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// DiscreteFunction is a dense tabular function over a subset of discrete
// variables. Storage is column-major over vars (the first variable
// varies fastest): linear index = Σ_k sub[k] · ∏_{j<k} sizes[j].
//
// The zero value is not usable; construct with New or NewConstant.
type DiscreteFunction struct {
	reg    *Registry
	vars   []VarID
	sizes  []ValIndex
	values []float64
}

// New constructs a DiscreteFunction over vars (deduplicated and sorted),
// with every cell initialized to init. Sizes are cached from the
// process-wide default registry; an unregistered variable fails with
// ErrUnknownVariable.
func New(vars []VarID, init float64) (*DiscreteFunction, error) {
	return NewWithRegistry(defaultRegistry, vars, init)
}

// NewWithRegistry is New, but caches sizes from an explicit registry
// instead of the process-wide default. Most callers want New; this
// exists for tests that need isolated variable namespaces.
func NewWithRegistry(reg *Registry, vars []VarID, init float64) (*DiscreteFunction, error) {
	uniq := sortUniqueVars(vars)
	sizes := make([]ValIndex, len(uniq))
	for i, v := range uniq {
		s, err := reg.DomainSize(v)
		if err != nil {
			return nil, errors.Wrap(err, "maxsum: construct discrete function")
		}
		sizes[i] = s
	}
	n := domainSize(sizes)
	values := getValues(int(n))
	if init != 0 {
		floats.AddConst(init, values)
	}
	return &DiscreteFunction{reg: reg, vars: uniq, sizes: sizes, values: values}, nil
}

// NewConstant returns a DiscreteFunction over the empty domain: a single
// cell holding value. Constant functions have DomainSize() == 1 and
// contribute uniformly wherever they are combined.
func NewConstant(value float64) *DiscreteFunction {
	return &DiscreteFunction{reg: defaultRegistry, vars: nil, sizes: nil, values: []float64{value}}
}

// Vars returns a copy of the function's (sorted, duplicate-free)
// variable list.
func (f *DiscreteFunction) Vars() []VarID {
	return append([]VarID(nil), f.vars...)
}

// Sizes returns a copy of the per-variable domain sizes, parallel to
// Vars().
func (f *DiscreteFunction) Sizes() []ValIndex {
	return append([]ValIndex(nil), f.sizes...)
}

// DomainSize returns ∏ sizes, the number of cells (len(values)).
func (f *DiscreteFunction) DomainSize() ValIndex {
	return ValIndex(len(f.values))
}

// Copy returns a deep copy: a new DiscreteFunction with its own values
// backing array.
func (f *DiscreteFunction) Copy() *DiscreteFunction {
	values := append([]float64(nil), f.values...)
	return &DiscreteFunction{
		reg:    f.reg,
		vars:   append([]VarID(nil), f.vars...),
		sizes:  append([]ValIndex(nil), f.sizes...),
		values: values,
	}
}

// Swap exchanges this function's storage with other's in O(1).
func (f *DiscreteFunction) Swap(other *DiscreteFunction) {
	f.vars, other.vars = other.vars, f.vars
	f.sizes, other.sizes = other.sizes, f.sizes
	f.values, other.values = other.values, f.values
}

// swapStorage exchanges storage with a throwaway r built solely to hold
// a computed result, then returns the displaced array to the value pool.
func (f *DiscreteFunction) swapStorage(r *DiscreteFunction) {
	old := f.values
	f.vars, f.sizes, f.values = r.vars, r.sizes, r.values
	putValues(old)
}

func (f *DiscreteFunction) checkLinear(i ValIndex) {
	if i < 0 || int(i) >= len(f.values) {
		panic(fmt.Sprintf("maxsum: linear index %d out of range [0,%d)", i, len(f.values)))
	}
}

// At returns the value at linear index i.
func (f *DiscreteFunction) At(i ValIndex) float64 {
	f.checkLinear(i)
	return f.values[i]
}

// SetAt sets the value at linear index i.
func (f *DiscreteFunction) SetAt(i ValIndex, v float64) {
	f.checkLinear(i)
	f.values[i] = v
}

// AtSub returns the value at the own-domain coordinate tuple sub, whose
// length must equal len(Vars()).
func (f *DiscreteFunction) AtSub(sub []ValIndex) float64 {
	return f.values[sub2ind(f.sizes, sub)]
}

// SetSub sets the value at the own-domain coordinate tuple sub.
func (f *DiscreteFunction) SetSub(sub []ValIndex, v float64) {
	f.values[sub2ind(f.sizes, sub)] = v
}

// AtSuper reads f's value given a coordinate tuple outerSub over a
// sorted superset outerVars of f's domain. It walks both sorted lists in
// lockstep, consuming a contribution from outerSub only when the outer
// variable matches the next variable f actually depends on, and skipping
// the rest — avoiding materializing a filtered subindex vector. This is
// the hot path for message computation.
func (f *DiscreteFunction) AtSuper(outerVars []VarID, outerSub []ValIndex) float64 {
	return f.values[f.superInd(outerVars, outerSub)]
}

func (f *DiscreteFunction) superInd(outerVars []VarID, outerSub []ValIndex) ValIndex {
	var idx, stride ValIndex = 0, 1
	j := 0
	for i := 0; i < len(outerVars) && j < len(f.vars); i++ {
		if outerVars[i] == f.vars[j] {
			idx += outerSub[i] * stride
			stride *= f.sizes[j]
			j++
		}
	}
	return idx
}

// AtMap reads f's value given a VarID -> ValIndex mapping that provides
// at least every variable in f's own domain. Extra keys are ignored.
func (f *DiscreteFunction) AtMap(m map[VarID]ValIndex) (float64, error) {
	sub := make([]ValIndex, len(f.vars))
	for k, v := range f.vars {
		val, ok := m[v]
		if !ok {
			return 0, errors.Wrapf(ErrUnknownVariable, "map-form access missing variable %d", v)
		}
		sub[k] = val
	}
	return f.AtSub(sub), nil
}

// AddScalar adds c to every cell, in place.
func (f *DiscreteFunction) AddScalar(c float64) { floats.AddConst(c, f.values) }

// SubScalar subtracts c from every cell, in place.
func (f *DiscreteFunction) SubScalar(c float64) { floats.AddConst(-c, f.values) }

// MulScalar multiplies every cell by c, in place.
func (f *DiscreteFunction) MulScalar(c float64) { floats.Scale(c, f.values) }

// DivScalar divides every cell by c, in place.
func (f *DiscreteFunction) DivScalar(c float64) { floats.Scale(1/c, f.values) }

// Negate returns a new function with every cell negated; the receiver is
// unchanged.
func (f *DiscreteFunction) Negate() *DiscreteFunction {
	r := f.Copy()
	floats.Scale(-1, r.values)
	return r
}

// Expand ensures f depends on at least every variable in vars, growing
// its domain to sort(unique(dom(f) ∪ vars)) if necessary. Existing
// values are broadcast over the new variables: for every tuple t of the
// expanded domain, the new cell equals f's value at t restricted to f's
// original domain. A no-op if f already depends on every variable in
// vars.
func (f *DiscreteFunction) Expand(vars []VarID) error {
	union := unionSorted(f.vars, vars)
	if len(union) == len(f.vars) {
		return nil
	}
	sizes := make([]ValIndex, len(union))
	for i, v := range union {
		s, err := f.reg.DomainSize(v)
		if err != nil {
			return errors.Wrap(err, "maxsum: expand")
		}
		sizes[i] = s
	}
	n := domainSize(sizes)
	values := getValues(int(n))
	it := newDomainIteratorShape(union, sizes)
	for it.HasNext() {
		values[it.GetInd()] = f.superInd2(union, it.sub)
		it.Advance()
	}
	f.swapStorage(&DiscreteFunction{vars: union, sizes: sizes, values: values})
	return nil
}

// superInd2 is superInd's value form, used internally where the caller
// already holds the coordinate slice (avoiding the AtSuper indirection).
func (f *DiscreteFunction) superInd2(outerVars []VarID, outerSub []ValIndex) float64 {
	return f.values[f.superInd(outerVars, outerSub)]
}

// Condition fixes fixedVars to fixedVals, both sorted and parallel,
// leaving f, in place, as a function over the remaining ("free")
// variables. A
// fixedVars entry not present in f's domain is ignored. A no-op (f is
// left unchanged) if none of fixedVars appear in f's domain.
func (f *DiscreteFunction) Condition(fixedVars []VarID, fixedVals []ValIndex) error {
	var freeVars, fixedPresentVars []VarID
	var fixedPresentVals []ValIndex

	i, k := 0, 0
	for i < len(f.vars) && k < len(fixedVars) {
		switch {
		case f.vars[i] == fixedVars[k]:
			fixedPresentVars = append(fixedPresentVars, f.vars[i])
			fixedPresentVals = append(fixedPresentVals, fixedVals[k])
			i++
			k++
		case f.vars[i] < fixedVars[k]:
			freeVars = append(freeVars, f.vars[i])
			i++
		default:
			k++
		}
	}
	freeVars = append(freeVars, f.vars[i:]...)

	if len(fixedPresentVars) == 0 {
		return nil
	}

	sizes := make([]ValIndex, len(freeVars))
	for idx, v := range freeVars {
		s, err := f.reg.DomainSize(v)
		if err != nil {
			return errors.Wrap(err, "maxsum: condition")
		}
		sizes[idx] = s
	}

	n := domainSize(sizes)
	values := getValues(int(n))

	it := NewDomainIterator(f)
	it.Condition(fixedPresentVars, fixedPresentVals)
	out := ValIndex(0)
	for it.HasNext() {
		values[out] = f.values[it.GetInd()]
		out++
		it.Advance()
	}

	f.swapStorage(&DiscreteFunction{vars: freeVars, sizes: sizes, values: values})
	return nil
}

// combine applies a binary scalar operation pointwise over the union of
// f's and g's domains, storing the result in f. scalarOp is used when
// the two domains differ (via the supervariable accessor); vectorOp is
// used as a fast path when the domains already match exactly, operating
// directly on the backing arrays.
func (f *DiscreteFunction) combine(g *DiscreteFunction, scalarOp func(a, b float64) float64, vectorOp func(dst, src []float64) []float64) error {
	if !isSubset(g.vars, f.vars) {
		if err := f.Expand(unionSorted(f.vars, g.vars)); err != nil {
			return err
		}
	}
	if sameVars(f.vars, g.vars) {
		vectorOp(f.values, g.values)
		return nil
	}
	it := NewDomainIterator(f)
	for it.HasNext() {
		idx := it.GetInd()
		f.values[idx] = scalarOp(f.values[idx], g.superInd2(f.vars, it.sub))
		it.Advance()
	}
	return nil
}

func vecAdd(dst, src []float64) []float64 { floats.Add(dst, src); return dst }
func vecSub(dst, src []float64) []float64 { floats.Sub(dst, src); return dst }
func vecMul(dst, src []float64) []float64 { floats.Mul(dst, src); return dst }
func vecDiv(dst, src []float64) []float64 { floats.Div(dst, src); return dst }

// Add adds g to f pointwise over the union of their domains, expanding f
// first if necessary.
func (f *DiscreteFunction) Add(g *DiscreteFunction) error {
	return f.combine(g, func(a, b float64) float64 { return a + b }, vecAdd)
}

// Sub subtracts g from f pointwise over the union of their domains.
func (f *DiscreteFunction) Sub(g *DiscreteFunction) error {
	return f.combine(g, func(a, b float64) float64 { return a - b }, vecSub)
}

// Mul multiplies f by g pointwise over the union of their domains.
func (f *DiscreteFunction) Mul(g *DiscreteFunction) error {
	return f.combine(g, func(a, b float64) float64 { return a * b }, vecMul)
}

// Div divides f by g pointwise over the union of their domains.
func (f *DiscreteFunction) Div(g *DiscreteFunction) error {
	return f.combine(g, func(a, b float64) float64 { return a / b }, vecDiv)
}

// Marginal reduces in (the receiver) onto out's (subset) domain, folding
// with aggregate over every coordinate in dom(f) \ dom(out). dom(out)
// must be a subset of dom(f), or ErrBadDomain is returned.
func (f *DiscreteFunction) Marginal(out *DiscreteFunction, aggregate func(acc, v float64) float64) error {
	if !isSubset(out.vars, f.vars) {
		return errors.Wrapf(ErrBadDomain, "marginal: dom(out)=%v is not a subset of dom(in)=%v", out.vars, f.vars)
	}

	itOut := NewDomainIterator(out)
	for itOut.HasNext() {
		itIn := NewDomainIterator(f)
		itIn.Condition(out.vars, itOut.sub)

		var acc float64
		first := true
		for itIn.HasNext() {
			v := f.values[itIn.GetInd()]
			if first {
				acc = v
				first = false
			} else {
				acc = aggregate(acc, v)
			}
			itIn.Advance()
		}
		out.values[itOut.GetInd()] = acc
		itOut.Advance()
	}
	return nil
}

// MaxMarginal is Marginal with a scalar-max aggregate.
func (f *DiscreteFunction) MaxMarginal(out *DiscreteFunction) error {
	return f.Marginal(out, math.Max)
}

// MinMarginal is Marginal with a scalar-min aggregate.
func (f *DiscreteFunction) MinMarginal(out *DiscreteFunction) error {
	return f.Marginal(out, math.Min)
}

// MeanMarginal sums out the eliminated variables, then divides by the
// ratio of domain sizes (the number of input cells folded into each
// output cell).
func (f *DiscreteFunction) MeanMarginal(out *DiscreteFunction) error {
	if err := f.Marginal(out, func(a, b float64) float64 { return a + b }); err != nil {
		return err
	}
	ratio := float64(len(f.values)) / float64(len(out.values))
	out.DivScalar(ratio)
	return nil
}

// Min returns the smallest cell value.
func (f *DiscreteFunction) Min() float64 { return floats.Min(f.values) }

// Max returns the largest cell value.
func (f *DiscreteFunction) Max() float64 { return floats.Max(f.values) }

// Argmax returns the linear index of the largest cell value, breaking
// ties by the smallest index.
func (f *DiscreteFunction) Argmax() ValIndex { return ValIndex(floats.MaxIdx(f.values)) }

// Argmax2 returns the linear index of the largest cell value other than
// exclude, breaking ties by the smallest index. On a one-cell function
// there is no second value; Argmax2 returns -1 in that case.
func (f *DiscreteFunction) Argmax2(exclude ValIndex) ValIndex {
	if len(f.values) <= 1 {
		return -1
	}
	best := ValIndex(-1)
	bestVal := math.Inf(-1)
	for i, v := range f.values {
		idx := ValIndex(i)
		if idx == exclude {
			continue
		}
		if v > bestVal {
			bestVal = v
			best = idx
		}
	}
	return best
}

// Maxnorm returns max |v| over every cell, the convergence metric used
// by MaxSumController.
func (f *DiscreteFunction) Maxnorm() float64 {
	return floats.Norm(f.values, math.Inf(1))
}

// Mean returns the arithmetic mean of every cell value.
func (f *DiscreteFunction) Mean() float64 {
	return floats.Sum(f.values) / float64(len(f.values))
}

// SameDomain reports whether f and g depend on exactly the same
// variables, in the same order (always true for two valid
// DiscreteFunctions with identical variable sets, since vars is always
// sorted).
func (f *DiscreteFunction) SameDomain(g *DiscreteFunction) bool {
	return sameVars(f.vars, g.vars)
}

// withinTolerance implements the relative comparison used by
// EqualWithinTolerance: exact equality when tol is zero, the documented
// absolute fallback |a-b|<=tol when b is zero (the spec leaves this case
// unspecified), and the relative test |1-a/b|<tol otherwise.
func withinTolerance(a, b, tol float64) bool {
	if tol == 0 {
		return a == b
	}
	if b == 0 {
		return scalar.EqualWithinAbs(a, b, tol)
	}
	return math.Abs(1-a/b) < tol
}

// EqualWithinTolerance reports whether f and g agree within tol at every
// coordinate of the union of their domains, broadcasting each function
// over variables it doesn't depend on.
func (f *DiscreteFunction) EqualWithinTolerance(g *DiscreteFunction, tol float64) bool {
	union := unionSorted(f.vars, g.vars)
	sizes := make([]ValIndex, len(union))
	for i, v := range union {
		s, err := f.reg.DomainSize(v)
		if err != nil {
			return false
		}
		sizes[i] = s
	}
	it := newDomainIteratorShape(union, sizes)
	for it.HasNext() {
		a := f.superInd2(union, it.sub)
		b := g.superInd2(union, it.sub)
		if !withinTolerance(a, b, tol) {
			return false
		}
		it.Advance()
	}
	return true
}

// StrictlyEqualWithinTolerance reports whether f and g have the same
// domain and agree within tol at every cell.
func (f *DiscreteFunction) StrictlyEqualWithinTolerance(g *DiscreteFunction, tol float64) bool {
	return f.SameDomain(g) && f.EqualWithinTolerance(g, tol)
}

func forAll(values []float64, pred func(float64) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

// Less reports whether every cell is strictly less than c.
func (f *DiscreteFunction) Less(c float64) bool { return forAll(f.values, func(v float64) bool { return v < c }) }

// LessEqual reports whether every cell is less than or equal to c.
func (f *DiscreteFunction) LessEqual(c float64) bool {
	return forAll(f.values, func(v float64) bool { return v <= c })
}

// Greater reports whether every cell is strictly greater than c.
func (f *DiscreteFunction) Greater(c float64) bool {
	return forAll(f.values, func(v float64) bool { return v > c })
}

// GreaterEqual reports whether every cell is greater than or equal to c.
func (f *DiscreteFunction) GreaterEqual(c float64) bool {
	return forAll(f.values, func(v float64) bool { return v >= c })
}

// applyUnary returns a new function over the same domain with every cell
// transformed by op. gonum/floats has no generic unary-map primitive
// (only the fixed named elementwise ops used by combine's vectorOp fast
// path), so this is a direct loop — the one place in this file that
// falls back to the standard library instead of the domain stack.
func (f *DiscreteFunction) applyUnary(op func(float64) float64) *DiscreteFunction {
	r := f.Copy()
	for i, v := range r.values {
		r.values[i] = op(v)
	}
	return r
}

func (f *DiscreteFunction) Log() *DiscreteFunction   { return f.applyUnary(math.Log) }
func (f *DiscreteFunction) Exp() *DiscreteFunction   { return f.applyUnary(math.Exp) }
func (f *DiscreteFunction) Sqrt() *DiscreteFunction  { return f.applyUnary(math.Sqrt) }
func (f *DiscreteFunction) Sin() *DiscreteFunction   { return f.applyUnary(math.Sin) }
func (f *DiscreteFunction) Cos() *DiscreteFunction   { return f.applyUnary(math.Cos) }
func (f *DiscreteFunction) Tan() *DiscreteFunction   { return f.applyUnary(math.Tan) }
func (f *DiscreteFunction) Abs() *DiscreteFunction   { return f.applyUnary(math.Abs) }
func (f *DiscreteFunction) Ceil() *DiscreteFunction  { return f.applyUnary(math.Ceil) }
func (f *DiscreteFunction) Floor() *DiscreteFunction { return f.applyUnary(math.Floor) }

// Pow returns a new function with every cell raised to the power exp.
func (f *DiscreteFunction) Pow(exp float64) *DiscreteFunction {
	return f.applyUnary(func(base float64) float64 { return math.Pow(base, exp) })
}
