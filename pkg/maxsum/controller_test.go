package maxsum

import (
	"math"
	"testing"
)

func controllerRegistry(t *testing.T, sizes map[VarID]ValIndex) *Registry {
	t.Helper()
	reg := NewRegistry()
	for v, s := range sizes {
		if err := reg.Register(v, s); err != nil {
			t.Fatalf("Register(%d, %d) error = %v", v, s, err)
		}
	}
	return reg
}

func TestController_SetFactorTracksVarsAndFactors(t *testing.T) {
	reg := controllerRegistry(t, map[VarID]ValIndex{1: 2, 2: 2})
	ctrl := NewControllerWithRegistry(reg, 10, 1e-9)

	f, err := NewWithRegistry(reg, []VarID{1, 2}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry() error = %v", err)
	}
	if err := ctrl.SetFactor(0, f); err != nil {
		t.Fatalf("SetFactor() error = %v", err)
	}

	if ctrl.NoFactors() != 1 {
		t.Errorf("NoFactors() = %d, want 1", ctrl.NoFactors())
	}
	if ctrl.NoVars() != 2 {
		t.Errorf("NoVars() = %d, want 2", ctrl.NoVars())
	}
}

func TestController_SetFactorReplacesAndPrunesEdges(t *testing.T) {
	reg := controllerRegistry(t, map[VarID]ValIndex{1: 2, 2: 2})
	ctrl := NewControllerWithRegistry(reg, 10, 1e-9)

	f1, err := NewWithRegistry(reg, []VarID{1, 2}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry() error = %v", err)
	}
	if err := ctrl.SetFactor(0, f1); err != nil {
		t.Fatalf("SetFactor() error = %v", err)
	}

	f2, err := NewWithRegistry(reg, []VarID{1}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry() error = %v", err)
	}
	if err := ctrl.SetFactor(0, f2); err != nil {
		t.Fatalf("SetFactor() error = %v", err)
	}

	if ctrl.NoVars() != 1 {
		t.Errorf("NoVars() = %d, want 1 after replacing factor 0's domain", ctrl.NoVars())
	}
}

func TestController_RemoveFactorDropsOrphanedVars(t *testing.T) {
	reg := controllerRegistry(t, map[VarID]ValIndex{1: 2})
	ctrl := NewControllerWithRegistry(reg, 10, 1e-9)

	f, err := NewWithRegistry(reg, []VarID{1}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry() error = %v", err)
	}
	if err := ctrl.SetFactor(0, f); err != nil {
		t.Fatalf("SetFactor() error = %v", err)
	}

	ctrl.RemoveFactor(0)
	if ctrl.NoFactors() != 0 {
		t.Errorf("NoFactors() = %d, want 0", ctrl.NoFactors())
	}
	if ctrl.NoVars() != 0 {
		t.Errorf("NoVars() = %d, want 0", ctrl.NoVars())
	}
}

func TestController_ClearAll(t *testing.T) {
	reg := controllerRegistry(t, map[VarID]ValIndex{1: 2})
	ctrl := NewControllerWithRegistry(reg, 10, 1e-9)

	f, err := NewWithRegistry(reg, []VarID{1}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry() error = %v", err)
	}
	if err := ctrl.SetFactor(0, f); err != nil {
		t.Fatalf("SetFactor() error = %v", err)
	}

	ctrl.ClearAll()
	if ctrl.NoFactors() != 0 || ctrl.NoVars() != 0 {
		t.Errorf("ClearAll() left NoFactors()=%d NoVars()=%d, want 0, 0", ctrl.NoFactors(), ctrl.NoVars())
	}
}

// TestController_TwoFactorConverges reproduces the textbook two-factor
// scenario also run by cmd/maxsumdemo: a unary preference A(x) and a
// pairwise factor B(x,y) that rewards disagreement. The unique optimum
// is x=1, y=0.
func TestController_TwoFactorConverges(t *testing.T) {
	const x, y VarID = 1, 2
	reg := controllerRegistry(t, map[VarID]ValIndex{x: 2, y: 2})

	a, err := NewWithRegistry(reg, []VarID{x}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry(a) error = %v", err)
	}
	a.SetAt(0, 0)
	a.SetAt(1, 5)

	b, err := NewWithRegistry(reg, []VarID{x, y}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry(b) error = %v", err)
	}
	b.SetSub([]ValIndex{0, 0}, 0)
	b.SetSub([]ValIndex{1, 0}, 2)
	b.SetSub([]ValIndex{0, 1}, 1)
	b.SetSub([]ValIndex{1, 1}, 0)

	ctrl := NewControllerWithRegistry(reg, 50, 1e-9)
	if err := ctrl.SetFactor(0, a); err != nil {
		t.Fatalf("SetFactor(0) error = %v", err)
	}
	if err := ctrl.SetFactor(1, b); err != nil {
		t.Fatalf("SetFactor(1) error = %v", err)
	}

	rounds := ctrl.Optimise()
	if rounds == 0 {
		t.Fatal("Optimise() performed 0 rounds")
	}

	want := map[VarID]ValIndex{x: 1, y: 0}
	got := make(map[VarID]ValIndex)
	for _, a := range ctrl.GetValues() {
		got[a.Var] = a.Value
	}
	for v, val := range want {
		if got[v] != val {
			t.Errorf("variable %d = %d, want %d (all assignments: %v)", v, got[v], val, got)
		}
	}
}

func TestController_GetValues_ExcludesIsolatedVariables(t *testing.T) {
	reg := controllerRegistry(t, map[VarID]ValIndex{1: 2})
	ctrl := NewControllerWithRegistry(reg, 10, 1e-9)

	if got := ctrl.GetValues(); len(got) != 0 {
		t.Errorf("GetValues() on an empty graph = %v, want empty", got)
	}
}

func TestController_NormalizeDoesNotChangeArgmax(t *testing.T) {
	const x, y VarID = 1, 2
	reg := controllerRegistry(t, map[VarID]ValIndex{x: 2, y: 2})

	newGraph := func(normalize bool) *Controller {
		a, err := NewWithRegistry(reg, []VarID{x}, 0)
		if err != nil {
			t.Fatalf("NewWithRegistry(a) error = %v", err)
		}
		a.SetAt(0, 0)
		a.SetAt(1, 5)

		b, err := NewWithRegistry(reg, []VarID{x, y}, 0)
		if err != nil {
			t.Fatalf("NewWithRegistry(b) error = %v", err)
		}
		b.SetSub([]ValIndex{0, 0}, 0)
		b.SetSub([]ValIndex{1, 0}, 2)
		b.SetSub([]ValIndex{0, 1}, 1)
		b.SetSub([]ValIndex{1, 1}, 0)

		ctrl := NewControllerWithRegistry(reg, 50, 1e-9)
		ctrl.Normalize = normalize
		if err := ctrl.SetFactor(0, a); err != nil {
			t.Fatalf("SetFactor(0) error = %v", err)
		}
		if err := ctrl.SetFactor(1, b); err != nil {
			t.Fatalf("SetFactor(1) error = %v", err)
		}
		ctrl.Optimise()
		return ctrl
	}

	plain := newGraph(false)
	normalized := newGraph(true)

	plainAssignments := make(map[VarID]ValIndex)
	for _, a := range plain.GetValues() {
		plainAssignments[a.Var] = a.Value
	}
	normAssignments := make(map[VarID]ValIndex)
	for _, a := range normalized.GetValues() {
		normAssignments[a.Var] = a.Value
	}

	for v, val := range plainAssignments {
		if normAssignments[v] != val {
			t.Errorf("normalization changed the result for variable %d: %d vs %d", v, val, normAssignments[v])
		}
	}
}

func TestController_OptimiseStopsAtIterationCap(t *testing.T) {
	const x, y VarID = 1, 2
	reg := controllerRegistry(t, map[VarID]ValIndex{x: 3, y: 3})

	ctrl := NewControllerWithRegistry(reg, 2, 0)
	f, err := NewWithRegistry(reg, []VarID{x, y}, 0)
	if err != nil {
		t.Fatalf("NewWithRegistry() error = %v", err)
	}
	it := NewDomainIterator(f)
	for it.HasNext() {
		sub := it.GetSubInd()
		if sub[0] != sub[1] {
			f.SetAt(it.GetInd(), 1)
		}
		it.Advance()
	}
	if err := ctrl.SetFactor(0, f); err != nil {
		t.Fatalf("SetFactor() error = %v", err)
	}

	rounds := ctrl.Optimise()
	if rounds > 2 {
		t.Errorf("Optimise() performed %d rounds, want at most 2", rounds)
	}
}

// treeEdge is one pairwise factor of a brute-force-checkable tree graph:
// a reward for each combination of its two endpoints' values.
type treeEdge struct {
	a, b   VarID
	payoff func(ai, bi ValIndex) float64
}

// bruteForceMaxTreeAssignment exhaustively enumerates every joint
// assignment of vars (each ranging over [0, domainSize)) and returns the
// maximum total reward summed over edges. It exists only to give
// TestController_TreeConvergesToBruteForceOptimum an answer independent
// of max-sum itself.
func bruteForceMaxTreeAssignment(vars []VarID, domainSize ValIndex, edges []treeEdge) float64 {
	assignment := make(map[VarID]ValIndex, len(vars))
	best := math.Inf(-1)
	var recurse func(i int)
	recurse = func(i int) {
		if i == len(vars) {
			total := 0.0
			for _, e := range edges {
				total += e.payoff(assignment[e.a], assignment[e.b])
			}
			if total > best {
				best = total
			}
			return
		}
		for v := ValIndex(0); v < domainSize; v++ {
			assignment[vars[i]] = v
			recurse(i + 1)
		}
	}
	recurse(0)
	return best
}

// TestController_TreeConvergesToBruteForceOptimum exercises spec.md §8
// Scenario 6: on an acyclic factor graph (a path of pairwise factors,
// with more than two variables), max-sum is exact — it is expected to
// reach the same total reward as an exhaustive search over the joint
// domain, not merely a local optimum. Total reward is compared rather
// than the exact assignment since a tied optimum may be reached by
// either of two equally good assignments.
func TestController_TreeConvergesToBruteForceOptimum(t *testing.T) {
	tests := []struct {
		name       string
		vars       []VarID
		domainSize ValIndex
		edges      []treeEdge
	}{
		{
			name:       "3-variable path",
			vars:       []VarID{1, 2, 3},
			domainSize: 3,
			edges: []treeEdge{
				{a: 1, b: 2, payoff: func(ai, bi ValIndex) float64 { return float64(3*ai + bi) }},
				{a: 2, b: 3, payoff: func(ai, bi ValIndex) float64 { return float64(2*ai - bi*bi) }},
			},
		},
		{
			name:       "4-variable path",
			vars:       []VarID{10, 11, 12, 13},
			domainSize: 3,
			edges: []treeEdge{
				{a: 10, b: 11, payoff: func(ai, bi ValIndex) float64 { return float64(ai - 2*bi) }},
				{a: 11, b: 12, payoff: func(ai, bi ValIndex) float64 { return float64(bi*bi - ai) }},
				{a: 12, b: 13, payoff: func(ai, bi ValIndex) float64 { return float64(3*bi - ai) }},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sizes := make(map[VarID]ValIndex, len(tc.vars))
			for _, v := range tc.vars {
				sizes[v] = tc.domainSize
			}
			reg := controllerRegistry(t, sizes)
			ctrl := NewControllerWithRegistry(reg, 200, 1e-9)

			for i, e := range tc.edges {
				f, err := NewWithRegistry(reg, []VarID{e.a, e.b}, 0)
				if err != nil {
					t.Fatalf("NewWithRegistry() error = %v", err)
				}
				it := NewDomainIterator(f)
				for it.HasNext() {
					sub := it.GetSubInd()
					f.SetAt(it.GetInd(), e.payoff(sub[0], sub[1]))
					it.Advance()
				}
				if err := ctrl.SetFactor(FactorID(i), f); err != nil {
					t.Fatalf("SetFactor(%d) error = %v", i, err)
				}
			}

			if rounds := ctrl.Optimise(); rounds == 0 {
				t.Fatal("Optimise() performed 0 rounds")
			}

			got := make(map[VarID]ValIndex)
			for _, a := range ctrl.GetValues() {
				got[a.Var] = a.Value
			}

			gotTotal := 0.0
			for _, e := range tc.edges {
				gotTotal += e.payoff(got[e.a], got[e.b])
			}
			bruteTotal := bruteForceMaxTreeAssignment(tc.vars, tc.domainSize, tc.edges)

			if math.Abs(gotTotal-bruteTotal) > 1e-6 {
				t.Errorf("max-sum total reward = %v, brute-force optimum = %v (assignments: %v)", gotTotal, bruteTotal, got)
			}
		})
	}
}
