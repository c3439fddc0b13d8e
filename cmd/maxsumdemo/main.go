// Command maxsumdemo walks through a handful of small max-sum graphs,
// printing the value max-sum assigns each variable.
package main

import (
	"fmt"

	"github.com/gitrdm/gomaxsum/pkg/maxsum"
)

func main() {
	fmt.Println("=== gomaxsum Examples ===")
	fmt.Println()

	twoFactorWalkthrough()
	isolatedVariable()
	threeCycle()
}

// twoFactorWalkthrough reproduces the textbook two-factor scenario: a
// unary preference A(x) and a pairwise factor B(x,y) that rewards
// disagreement. The unique optimum is x=1, y=0.
func twoFactorWalkthrough() {
	fmt.Println("1. Two-Factor Walkthrough:")

	const x, y maxsum.VarID = 0, 1
	check(maxsum.Register(x, 2))
	check(maxsum.Register(y, 2))

	a, err := maxsum.New([]maxsum.VarID{x}, 0)
	check(err)
	a.SetAt(0, 0)
	a.SetAt(1, 5)

	b, err := maxsum.New([]maxsum.VarID{x, y}, 0)
	check(err)
	b.SetSub([]maxsum.ValIndex{0, 0}, 0)
	b.SetSub([]maxsum.ValIndex{1, 0}, 2)
	b.SetSub([]maxsum.ValIndex{0, 1}, 1)
	b.SetSub([]maxsum.ValIndex{1, 1}, 0)

	ctrl := maxsum.NewController(50, 1e-9)
	check(ctrl.SetFactor(0, a))
	check(ctrl.SetFactor(1, b))

	rounds := ctrl.Optimise()
	fmt.Printf("   converged after %d round(s)\n", rounds)
	printAssignments(ctrl.GetValues())
	fmt.Println()
}

// isolatedVariable shows that a variable with no incident factor is
// simply excluded from GetValues rather than assigned a default.
func isolatedVariable() {
	fmt.Println("2. Isolated Variable:")

	const z maxsum.VarID = 2
	check(maxsum.Register(z, 3))

	ctrl := maxsum.NewController(10, 1e-9)
	rounds := ctrl.Optimise()
	fmt.Printf("   %d round(s), %d factor(s), assignments: %v\n", rounds, ctrl.NoFactors(), ctrl.GetValues())
	fmt.Println()
}

// threeCycle runs a ring of three pairwise "prefer different" factors
// over a 3-variable, 3-value domain, a graph shape with loops, where
// max-sum has no convergence guarantee. On this symmetric instance the
// unnormalized messages grow by the same amount every round, so the run
// stops at the iteration cap, and every belief is flat, so each variable
// gets value 0 by the lowest-index tie break.
func threeCycle() {
	fmt.Println("3. Three-Variable Cycle:")

	vars := []maxsum.VarID{10, 11, 12}
	for _, v := range vars {
		check(maxsum.Register(v, 3))
	}

	ctrl := maxsum.NewController(100, 1e-6)
	edges := [][2]maxsum.VarID{{vars[0], vars[1]}, {vars[1], vars[2]}, {vars[2], vars[0]}}
	for i, e := range edges {
		f, err := maxsum.New([]maxsum.VarID{e[0], e[1]}, 0)
		check(err)
		it := maxsum.NewDomainIterator(f)
		for it.HasNext() {
			sub := it.GetSubInd()
			if sub[0] != sub[1] {
				f.SetAt(it.GetInd(), 1)
			}
			it.Advance()
		}
		check(ctrl.SetFactor(maxsum.FactorID(i), f))
	}

	rounds := ctrl.Optimise()
	fmt.Printf("   ran %d round(s)\n", rounds)
	printAssignments(ctrl.GetValues())
	fmt.Println()
}

func printAssignments(assignments []maxsum.Assignment) {
	for _, a := range assignments {
		fmt.Printf("   var %d -> %d\n", a.Var, a.Value)
	}
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
