package kgraph

import "testing"

func TestNodeIDRanges(t *testing.T) {
	tests := []struct {
		name      string
		id        NodeID
		wantAtom  bool
		wantHash  bool
		wantVar   bool
	}{
		{"zero is atom-range", Zero, true, false, false},
		{"small atom", NodeID(1), true, false, false},
		{"largest atom", maskAtom, true, false, false},
		{"smallest hash", bitHash, false, true, false},
		{"largest hash", maskNode, false, true, false},
		{"smallest variable", bitVariable, false, false, true},
		{"largest variable", ^NodeID(0), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsAtom(); got != tt.wantAtom {
				t.Errorf("IsAtom() = %v, want %v", got, tt.wantAtom)
			}
			if got := tt.id.IsHash(); got != tt.wantHash {
				t.Errorf("IsHash() = %v, want %v", got, tt.wantHash)
			}
			if got := tt.id.IsVariable(); got != tt.wantVar {
				t.Errorf("IsVariable() = %v, want %v", got, tt.wantVar)
			}
		})
	}
}

func TestHashPairOrderSensitive(t *testing.T) {
	a, b := NodeID(10), NodeID(20)
	if hashPair(a, b) == hashPair(b, a) {
		t.Fatal("hashPair should be order-sensitive")
	}
}

func TestHashPairDeterministic(t *testing.T) {
	a, b := NodeID(10), NodeID(20)
	if hashPair(a, b) != hashPair(a, b) {
		t.Fatal("hashPair should be deterministic")
	}
	if !hashPair(a, b).IsHash() {
		t.Fatal("hashPair result must fall in the hash range")
	}
}

func TestHashSetOrderIndependent(t *testing.T) {
	members1 := []NodeID{1, 2, 3}
	members2 := []NodeID{3, 1, 2}
	if hashSet(members1) != hashSet(members2) {
		t.Fatal("hashSet must be order-independent")
	}
}

func TestHashHeadSetIdentityDeterminism(t *testing.T) {
	// For every assertion order of the same triple's object set, the
	// fact id is identical.
	p, s := NodeID(1), NodeID(2)
	objsA := []NodeID{3, 4, 5}
	objsB := []NodeID{5, 3, 4}

	idA := hashHeadSet(p, s, objsA)
	idB := hashHeadSet(p, s, objsB)
	if idA != idB {
		t.Fatalf("fact id depends on object order: %v != %v", idA, idB)
	}
	if !idA.IsHash() {
		t.Fatal("fact id must fall in the hash range")
	}
}

func TestHashHeadSetSensitiveToHeads(t *testing.T) {
	objs := []NodeID{3, 4}
	if hashHeadSet(1, 2, objs) == hashHeadSet(2, 1, objs) {
		t.Fatal("swapping predicate/subject must change the fact id")
	}
}

func TestHashNamedSetDistinctFromHashSet(t *testing.T) {
	members := []NodeID{1, 2, 3}
	if hashNamedSet(99, members) == hashSet(members) {
		t.Fatal("folding in a head id must change the hash relative to a headless set hash")
	}
}

func TestVariableRotationAvoidsAtomCollision(t *testing.T) {
	// modNode must not map a high-numbered variable onto the same
	// representation as a low-numbered atom purely by bit pattern.
	v := NodeID(1) | bitVariable
	a := NodeID(1)
	if modNode(v) == modNode(a) {
		t.Fatal("rotated variable id collides with atom id's raw representation")
	}
}

func TestStringRendering(t *testing.T) {
	if got := NodeID(42).String(); got != "42" {
		t.Errorf("atom String() = %q, want %q", got, "42")
	}
	h := bitHash | NodeID(7)
	if got := h.String(); got[0] != '#' {
		t.Errorf("hash String() = %q, want to start with '#'", got)
	}
	v := ^NodeID(0)
	if got := v.String(); got != "?1" {
		t.Errorf("first-allocated variable String() = %q, want %q", got, "?1")
	}
}
