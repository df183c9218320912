package kgraph

import (
	"context"
	"testing"
)

func TestUnifyGroundTermsSucceedOnEquality(t *testing.T) {
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	u := NewUnifier(k)

	envs := u.Unify(a, a, Bindings{})
	if len(envs) != 1 {
		t.Fatalf("Unify(a, a) = %d envs, want 1", len(envs))
	}
}

func TestUnifyGroundTermsFailOnMismatch(t *testing.T) {
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	b := atomOrFatal(t, k, "b")
	u := NewUnifier(k)

	if envs := u.Unify(a, b, Bindings{}); envs != nil {
		t.Fatalf("Unify(a, b) = %v, want nil for distinct atoms", envs)
	}
}

func TestUnifyBindsVariable(t *testing.T) {
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	v, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	u := NewUnifier(k)

	envs := u.Unify(v, a, Bindings{})
	if len(envs) != 1 {
		t.Fatalf("Unify(v, a) = %d envs, want 1", len(envs))
	}
	if got := envs[0].resolve(v); got != a {
		t.Fatalf("resolved binding = %v, want %v", got, a)
	}
}

func TestUnifyRespectsExistingBinding(t *testing.T) {
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	b := atomOrFatal(t, k, "b")
	v, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	u := NewUnifier(k)

	env := Bindings{vars: map[NodeID]NodeID{v: a}}
	if envs := u.Unify(v, b, env); envs != nil {
		t.Fatalf("Unify(v already bound to a, b) = %v, want nil", envs)
	}
	if envs := u.Unify(v, a, env); len(envs) != 1 {
		t.Fatalf("Unify(v already bound to a, a) = %d envs, want 1", len(envs))
	}
}

func TestMatchConditionRejectsUnequalBinding(t *testing.T) {
	// alice parent {bob, carol}; matching `alice parent ?y ∧ Unequal(?y,
	// bob)` must keep only the branch where ?y resolves to carol.
	k := newTestKernel(t)
	alice := atomOrFatal(t, k, "alice")
	bob := atomOrFatal(t, k, "bob")
	carol := atomOrFatal(t, k, "carol")
	parent := atomOrFatal(t, k, "parent")

	if _, err := k.AssertFact(alice, parent, []NodeID{bob}, 1); err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	if _, err := k.AssertFact(alice, parent, []NodeID{carol}, 1); err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	y, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	lookup, err := k.AssertFact(alice, parent, []NodeID{y}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	distinct, err := k.AssertFact(y, k.core.Unequal, []NodeID{bob}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	condition, err := k.Condition(k.core.And, []NodeID{lookup, distinct})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}

	u := NewUnifier(k)
	envs := u.MatchCondition(context.Background(), nil, condition, Bindings{})
	if len(envs) != 1 {
		t.Fatalf("MatchCondition = %d envs, want 1", len(envs))
	}
	if got := envs[0].resolve(y); got != carol {
		t.Fatalf("y resolved to %v, want %v (bob excluded by Unequal)", got, carol)
	}
}

func TestUnifyStructuralFacts(t *testing.T) {
	k := newTestKernel(t)
	alice := atomOrFatal(t, k, "alice")
	bob := atomOrFatal(t, k, "bob")
	parent := atomOrFatal(t, k, "parent")

	ground, err := k.AssertFact(alice, parent, []NodeID{bob}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	x, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	y, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	pattern, err := k.AssertFact(x, parent, []NodeID{y}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	u := NewUnifier(k)
	envs := u.Unify(pattern, ground, Bindings{})
	if len(envs) != 1 {
		t.Fatalf("Unify(pattern, ground) = %d envs, want 1", len(envs))
	}
	if got := envs[0].resolve(x); got != alice {
		t.Fatalf("x resolved to %v, want %v", got, alice)
	}
	if got := envs[0].resolve(y); got != bob {
		t.Fatalf("y resolved to %v, want %v", got, bob)
	}
}

func TestUnifyCycleSafeOnSelfReferentialGraph(t *testing.T) {
	// Two facts that each appear inside the other's object set via a
	// shared hash node must not loop the unifier.
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	p := atomOrFatal(t, k, "p")
	q := atomOrFatal(t, k, "q")

	f1, err := k.AssertFact(a, p, []NodeID{a}, 1)
	if err == nil {
		t.Fatalf("expected self-referential rejection, got fact %v", f1)
	}

	// Build two independent facts and unify one against the other with
	// that pair already in the visited set; this exercises the
	// visited-pair guard directly rather than relying on a graph the
	// kernel itself refuses to construct.
	f2, err := k.AssertFact(a, p, []NodeID{q}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	f3, err := k.AssertFact(a, q, []NodeID{p}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	u := NewUnifier(k)
	envs := u.unify(f2, f3, Bindings{}, map[pairKey]bool{{f2, f3}: true})
	if len(envs) != 1 {
		t.Fatalf("revisiting a pair already marked visited should succeed co-inductively without recursing, got %d envs", len(envs))
	}
}

func TestUnifyConjunctions(t *testing.T) {
	k := newTestKernel(t)
	alice := atomOrFatal(t, k, "alice")
	bob := atomOrFatal(t, k, "bob")
	carol := atomOrFatal(t, k, "carol")
	parent := atomOrFatal(t, k, "parent")

	f1, err := k.AssertFact(alice, parent, []NodeID{bob}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	f2, err := k.AssertFact(bob, parent, []NodeID{carol}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	ground, err := k.Condition(k.core.And, []NodeID{f1, f2})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}

	x, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	y, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	z, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	p1, err := k.AssertFact(x, parent, []NodeID{y}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	p2, err := k.AssertFact(y, parent, []NodeID{z}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	pattern, err := k.Condition(k.core.And, []NodeID{p1, p2})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}

	u := NewUnifier(k)
	envs := u.Unify(pattern, ground, Bindings{})
	if len(envs) != 1 {
		t.Fatalf("Unify(pattern, ground) = %d envs, want 1", len(envs))
	}
	if got := envs[0].resolve(x); got != alice {
		t.Fatalf("x resolved to %v, want %v", got, alice)
	}
	if got := envs[0].resolve(z); got != carol {
		t.Fatalf("z resolved to %v, want %v", got, carol)
	}
}

func TestCandidatesUsesSmallestPool(t *testing.T) {
	k := newTestKernel(t)
	parent := atomOrFatal(t, k, "parent")
	alice := atomOrFatal(t, k, "alice")
	bob := atomOrFatal(t, k, "bob")
	carol := atomOrFatal(t, k, "carol")

	if _, err := k.AssertFact(alice, parent, []NodeID{bob}, 1); err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	if _, err := k.AssertFact(alice, parent, []NodeID{carol}, 1); err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	u := NewUnifier(k)
	y, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	cands := u.Candidates(alice, parent, []NodeID{y})
	if len(cands) != 2 {
		t.Fatalf("Candidates = %d, want 2", len(cands))
	}
}

func TestMatchConditionLeaf(t *testing.T) {
	k := newTestKernel(t)
	parent := atomOrFatal(t, k, "parent")
	alice := atomOrFatal(t, k, "alice")
	bob := atomOrFatal(t, k, "bob")
	if _, err := k.AssertFact(alice, parent, []NodeID{bob}, 1); err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	x, err := k.Variable()
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	pattern, err := k.AssertFact(alice, parent, []NodeID{x}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	u := NewUnifier(k)
	envs := u.MatchCondition(context.Background(), nil, pattern, Bindings{})
	if len(envs) != 1 {
		t.Fatalf("MatchCondition = %d envs, want 1", len(envs))
	}
	if got := envs[0].resolve(x); got != bob {
		t.Fatalf("x resolved to %v, want %v", got, bob)
	}
}
