package kgraph

import (
	"errors"
	"testing"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k, err := NewKernel("en")
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	return k
}

func atomOrFatal(t *testing.T, k *Kernel, name string) NodeID {
	t.Helper()
	n, err := k.Intern(name, "en")
	if err != nil {
		t.Fatalf("interning %q: %v", name, err)
	}
	return n
}

func TestBootstrapAssertsCoreRelations(t *testing.T) {
	k := newTestKernel(t)
	for _, p := range []NodeID{k.core.IsA, k.core.Unequal, k.core.Causes} {
		ans := k.CheckFact(p, k.core.IsA, []NodeID{k.core.RelationTypeCategory})
		if !ans.Known() || !ans.Correct() {
			t.Errorf("expected %v IsA RelationTypeCategory to be known and correct", p)
		}
	}
}

func TestAssertFactIdentityDeterminism(t *testing.T) {
	k := newTestKernel(t)
	s := atomOrFatal(t, k, "sun")
	p := atomOrFatal(t, k, "isA")
	star := atomOrFatal(t, k, "star")
	planet := atomOrFatal(t, k, "planet")

	f1, err := k.AssertFact(s, p, []NodeID{star, planet}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	k2 := newTestKernel(t)
	s2 := atomOrFatal(t, k2, "sun")
	p2 := atomOrFatal(t, k2, "isA")
	star2 := atomOrFatal(t, k2, "star")
	planet2 := atomOrFatal(t, k2, "planet")
	f2, err := k2.AssertFact(s2, p2, []NodeID{planet2, star2}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	if f1 != f2 {
		t.Fatalf("same triple asserted in different object order produced different ids: %v != %v", f1, f2)
	}
}

func TestParseFactRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	s := atomOrFatal(t, k, "alice")
	p := atomOrFatal(t, k, "likes")
	o1 := atomOrFatal(t, k, "pizza")
	o2 := atomOrFatal(t, k, "salad")

	f, err := k.AssertFact(s, p, []NodeID{o1, o2}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	gotS, gotP, gotO, err := k.ParseFact(f)
	if err != nil {
		t.Fatalf("ParseFact: %v", err)
	}
	if gotS != s || gotP != p {
		t.Fatalf("ParseFact subject/predicate = %v/%v, want %v/%v", gotS, gotP, s, p)
	}
	if len(gotO) != 2 || !containsNode(gotO, o1) || !containsNode(gotO, o2) {
		t.Fatalf("ParseFact objects = %v, want {%v, %v}", gotO, o1, o2)
	}

	if !containsNode(k.LeftOf(f), s) || !containsNode(k.RightOf(f), s) {
		t.Fatal("bidirectional subject invariant violated: subject must be in both left[F] and right[F]")
	}
}

func TestSelfReferentialFactRejected(t *testing.T) {
	k := newTestKernel(t)
	s := atomOrFatal(t, k, "x")
	p := atomOrFatal(t, k, "rel")

	if _, err := k.AssertFact(s, p, []NodeID{s}, 1); !errors.Is(err, ErrSelfReferentialFact) {
		t.Fatalf("subject==object: got err %v, want ErrSelfReferentialFact", err)
	}
	if _, err := k.AssertFact(s, p, []NodeID{p}, 1); !errors.Is(err, ErrSelfReferentialFact) {
		t.Fatalf("predicate in objects: got err %v, want ErrSelfReferentialFact", err)
	}
}

func TestIdempotentAssertion(t *testing.T) {
	k := newTestKernel(t)
	s := atomOrFatal(t, k, "a")
	p := atomOrFatal(t, k, "b")
	o := atomOrFatal(t, k, "c")

	f1, err := k.AssertFact(s, p, []NodeID{o}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	before := k.Count()

	f2, err := k.AssertFact(s, p, []NodeID{o}, 1)
	if err != nil {
		t.Fatalf("re-asserting identical fact: %v", err)
	}
	after := k.Count()

	if f1 != f2 {
		t.Fatalf("re-assertion produced a different node: %v != %v", f1, f2)
	}
	if before != after {
		t.Fatalf("re-assertion changed node count: %d -> %d", before, after)
	}
}

func TestContradictingProbabilityRejected(t *testing.T) {
	k := newTestKernel(t)
	s := atomOrFatal(t, k, "a")
	p := atomOrFatal(t, k, "b")
	o := atomOrFatal(t, k, "c")

	if _, err := k.AssertFact(s, p, []NodeID{o}, 0.9); err != nil {
		t.Fatalf("first assertion: %v", err)
	}
	if _, err := k.AssertFact(s, p, []NodeID{o}, 0.1); !errors.Is(err, ErrContradictingProbability) {
		t.Fatalf("conflicting weight: got err %v, want ErrContradictingProbability", err)
	}
}

func TestProbabilityMergeRule(t *testing.T) {
	tests := []struct {
		name     string
		existing float64
		next     float64
		want     float64
		wantErr  bool
	}{
		{"both high takes max", 0.6, 0.9, 0.9, false},
		{"both low takes min", 0.4, 0.2, 0.2, false},
		{"straddling 0.5 contradicts", 0.6, 0.3, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mergeProbability(tt.existing, tt.next)
			if tt.wantErr {
				if ok {
					t.Fatalf("mergeProbability(%v, %v) = %v, want contradiction", tt.existing, tt.next, got)
				}
				return
			}
			if !ok || got != tt.want {
				t.Fatalf("mergeProbability(%v, %v) = %v, %v, want %v, true", tt.existing, tt.next, got, ok, tt.want)
			}
		})
	}
}

func TestConditionAndParseConjunctionRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	b := atomOrFatal(t, k, "b")
	c := atomOrFatal(t, k, "c")

	sub1, err := k.AssertFact(a, b, []NodeID{c}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	sub2, err := k.AssertFact(b, a, []NodeID{c}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}

	cond, err := k.Condition(k.core.And, []NodeID{sub1, sub2})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	if !k.IsConjunction(cond, k.core.And) {
		t.Fatal("IsConjunction should report true for a node built via Condition")
	}

	subs := k.ParseConjunction(cond)
	if len(subs) != 2 || !containsNode(subs, sub1) || !containsNode(subs, sub2) {
		t.Fatalf("ParseConjunction = %v, want {%v, %v}", subs, sub1, sub2)
	}
}

func TestParseConjunctionIgnoresEnclosingRule(t *testing.T) {
	// A conjunction reused as the subject of a Causes rule must not leak
	// the rule fact back into ParseConjunction's member set.
	k := newTestKernel(t)
	a := atomOrFatal(t, k, "a")
	b := atomOrFatal(t, k, "b")
	c := atomOrFatal(t, k, "c")
	d := atomOrFatal(t, k, "d")

	sub1, err := k.AssertFact(a, b, []NodeID{c}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	cond, err := k.Condition(k.core.And, []NodeID{sub1})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	deduction, err := k.AssertFact(a, c, []NodeID{d}, 1)
	if err != nil {
		t.Fatalf("AssertFact: %v", err)
	}
	if _, err := k.AssertFact(cond, k.core.Causes, []NodeID{deduction}, 1); err != nil {
		t.Fatalf("asserting rule with conjunction as subject: %v", err)
	}

	subs := k.ParseConjunction(cond)
	if len(subs) != 1 || subs[0] != sub1 {
		t.Fatalf("ParseConjunction = %v, want exactly {%v}", subs, sub1)
	}
}

func containsNode(nodes []NodeID, n NodeID) bool {
	for _, x := range nodes {
		if x == n {
			return true
		}
	}
	return false
}
