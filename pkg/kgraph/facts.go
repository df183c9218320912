package kgraph

import "fmt"

// Core holds the preallocated predicate atoms every Kernel bootstraps.
type Core struct {
	RelationTypeCategory NodeID
	Causes               NodeID
	And                  NodeID
	IsA                  NodeID
	Unequal              NodeID
	Contradiction        NodeID
}

// Kernel is the fact algebra layer built atop a Graph store and a
// per-language Naming layer, composed via Go struct embedding.
type Kernel struct {
	*Graph
	names *naming
	core  Core
}

// NewKernel allocates the core predicate atoms and asserts the
// bootstrap facts "IsA IsA RelationTypeCategory", "Unequal IsA
// RelationTypeCategory", and "Causes IsA RelationTypeCategory".
func NewKernel(internalLang string) (*Kernel, error) {
	g := NewGraph()
	k := &Kernel{Graph: g, names: newNaming(internalLang)}

	ids := make([]NodeID, 6)
	for i := range ids {
		id, err := g.AllocateAtom()
		if err != nil {
			return nil, fmt.Errorf("bootstrapping core predicates: %w", err)
		}
		ids[i] = id
	}
	k.core = Core{
		RelationTypeCategory: ids[0],
		Causes:               ids[1],
		And:                  ids[2],
		IsA:                  ids[3],
		Unequal:              ids[4],
		Contradiction:        ids[5],
	}

	for _, id := range []struct {
		node NodeID
		name string
	}{
		{k.core.RelationTypeCategory, "RelationTypeCategory"},
		{k.core.Causes, "Causes"},
		{k.core.And, "And"},
		{k.core.IsA, "IsA"},
		{k.core.Unequal, "Unequal"},
		{k.core.Contradiction, "Contradiction"},
	} {
		if err := k.names.SetName(id.node, id.name, internalLang); err != nil {
			return nil, fmt.Errorf("naming core predicate %s: %w", id.name, err)
		}
		if internalLang != "en" {
			_ = k.names.SetName(id.node, id.name, "en")
		}
	}

	for _, p := range []NodeID{k.core.IsA, k.core.Unequal, k.core.Causes} {
		if _, err := k.assertFactRaw(p, k.core.IsA, []NodeID{k.core.RelationTypeCategory}, 1, false); err != nil {
			return nil, fmt.Errorf("bootstrapping %v IsA RelationTypeCategory: %w", p, err)
		}
	}

	return k, nil
}

// Core returns the preallocated predicate atoms.
func (k *Kernel) Core() Core { return k.core }

// Remove deletes node and every incident edge, then purges any
// naming-table entry referencing it — shadowing Graph.Remove so every
// caller that goes through the Kernel, not just Graph, sees the edges
// and the naming-table entries disappear together.
func (k *Kernel) Remove(node NodeID) {
	k.Graph.Remove(node)
	k.names.Cleanup(k.Exists)
}

// Intern gets-or-creates an atom bound to name in lang.
func (k *Kernel) Intern(name, lang string) (NodeID, error) {
	return k.names.Intern(name, lang, k.AllocateAtom)
}

// Variable allocates a fresh unbound variable.
func (k *Kernel) Variable() (NodeID, error) {
	return k.AllocateVariable()
}

// SetName binds node to name within lang.
func (k *Kernel) SetName(node NodeID, name, lang string) error {
	return k.names.SetName(node, name, lang)
}

// GetName resolves node's name, following the naming layer's language
// fallback chain when no binding exists in lang.
func (k *Kernel) GetName(node NodeID, lang string) (string, bool) {
	return k.names.GetName(node, lang, true)
}

// Answer is CheckFact's result: a tagged variant rather than a class
// hierarchy, since the three outcomes (unknown, known-correct,
// known-wrong) share every field but the boolean interpretation.
type Answer struct {
	known       bool
	Fact        NodeID
	Probability float64
}

// Known reports whether the fact has been asserted.
func (a Answer) Known() bool { return a.known }

// Correct reports a known fact with probability > 0.5.
func (a Answer) Correct() bool { return a.known && a.Probability > 0.5 }

// Wrong reports a known fact with probability < 0.5.
func (a Answer) Wrong() bool { return a.known && a.Probability < 0.5 }

// Impossible reports a known fact with probability exactly 0.
func (a Answer) Impossible() bool { return a.known && a.Probability == 0 }

var unknownAnswer = Answer{known: false}

// AssertFact reifies (subject, predicate, objects) as a fact node,
// auto-declaring predicate as a RelationTypeCategory, and returns its
// hash-identified node.
func (k *Kernel) AssertFact(subject, predicate NodeID, objects []NodeID, prob float64) (NodeID, error) {
	return k.assertFactRaw(subject, predicate, objects, prob, true)
}

func (k *Kernel) assertFactRaw(subject, predicate NodeID, objects []NodeID, prob float64, declarePredicate bool) (NodeID, error) {
	for _, o := range objects {
		if o == subject || o == predicate {
			return Zero, fmt.Errorf("%w: subject/predicate %v appears in object set", ErrSelfReferentialFact, o)
		}
	}

	if declarePredicate && predicate != k.core.IsA {
		if _, err := k.assertFactRaw(predicate, k.core.IsA, []NodeID{k.core.RelationTypeCategory}, 1, false); err != nil {
			return Zero, fmt.Errorf("declaring predicate %v as RelationTypeCategory: %w", predicate, err)
		}
	}

	factID := hashHeadSet(predicate, subject, objects)

	if k.Exists(factID) {
		if k.factMatches(factID, subject, predicate, objects) {
			if prob < 1 {
				existing := k.Probability(factID, predicate)
				if merged, ok := mergeProbability(existing, prob); ok {
					p := merged
					if err := k.Connect(factID, predicate, &p); err != nil {
						return Zero, err
					}
				} else {
					return Zero, fmt.Errorf("%w: fact %v already has probability %v, new %v", ErrContradictingProbability, factID, existing, prob)
				}
			}
			return factID, nil
		}
		return Zero, fmt.Errorf("%w: id %v already in use by a different triple", ErrHashCollision, factID)
	}

	if err := k.Reserve(factID); err != nil {
		return Zero, err
	}
	if err := k.Connect(subject, factID, nil); err != nil {
		return Zero, err
	}
	if err := k.Connect(factID, subject, nil); err != nil {
		return Zero, err
	}
	var probPtr *float64
	if prob < 1 {
		p := prob
		probPtr = &p
	}
	if err := k.Connect(factID, predicate, probPtr); err != nil {
		return Zero, err
	}
	for _, o := range objects {
		if err := k.Connect(o, factID, nil); err != nil {
			return Zero, err
		}
	}
	return factID, nil
}

// mergeProbability applies the min/max merge rule: two assertions both
// leaning "true" merge to their max confidence, both leaning "false"
// merge to their min, and a true/false split is a genuine contradiction.
func mergeProbability(existing, next float64) (float64, bool) {
	switch {
	case existing >= 0.5 && next >= 0.5:
		return maxF(existing, next), true
	case existing <= 0.5 && next <= 0.5:
		return minF(existing, next), true
	default:
		return 0, false
	}
}

// factMatches reports whether the already-materialized node factID
// really is the reification of (subject, predicate, objects) — the
// defensive check needed before treating a hash hit as idempotent
// rather than a true collision.
func (k *Kernel) factMatches(factID, subject, predicate NodeID, objects []NodeID) bool {
	s, p, objs, err := k.ParseFact(factID)
	if err != nil || s != subject || p != predicate {
		return false
	}
	if len(objs) != len(objects) {
		return false
	}
	want := make(map[NodeID]int, len(objects))
	for _, o := range objects {
		want[o]++
	}
	for _, o := range objs {
		want[o]--
	}
	for _, c := range want {
		if c != 0 {
			return false
		}
	}
	return true
}

// CheckFact looks up the reification of (subject, predicate, objects)
// without asserting it.
func (k *Kernel) CheckFact(subject, predicate NodeID, objects []NodeID) Answer {
	factID := hashHeadSet(predicate, subject, objects)
	if !k.Exists(factID) || !k.factMatches(factID, subject, predicate, objects) {
		return unknownAnswer
	}
	return Answer{known: true, Fact: factID, Probability: k.Probability(factID, predicate)}
}

// ParseFact recovers (subject, predicate, objects) from a
// non-conjunction fact node. The predicate is the one-directional
// outgoing neighbour declared "IsA RelationTypeCategory"; other
// outgoing edges (to conjunctions or facts that use this fact) are
// ignored. A fact whose subject is itself its predicate ("IsA IsA
// RelationTypeCategory") reports that subject as the predicate.
func (k *Kernel) ParseFact(fact NodeID) (subject, predicate NodeID, objects []NodeID, err error) {
	left := k.LeftOf(fact)   // incoming: subject (bidirectional) + objects
	right := k.RightOf(fact) // outgoing: subject (bidirectional) + predicate + nodes using this fact

	leftSet := toSet(left)
	rightSet := toSet(right)
	isRelation := func(n NodeID) bool {
		return k.Exists(hashHeadSet(k.core.IsA, n, []NodeID{k.core.RelationTypeCategory}))
	}

	var predicateCandidates, subjectCandidates []NodeID
	for n := range rightSet {
		if _, inLeft := leftSet[n]; inLeft {
			subjectCandidates = append(subjectCandidates, n)
		} else if isRelation(n) {
			predicateCandidates = append(predicateCandidates, n)
		}
	}
	if len(subjectCandidates) == 0 {
		return Zero, Zero, nil, fmt.Errorf("kgraph: fact %v has no subject candidate", fact)
	}

	subject = pickSubject(subjectCandidates)
	if len(predicateCandidates) == 0 && isRelation(subject) {
		predicateCandidates = []NodeID{subject}
	}
	if len(predicateCandidates) != 1 {
		return Zero, Zero, nil, fmt.Errorf("kgraph: fact %v has %d predicate candidates, want 1", fact, len(predicateCandidates))
	}
	predicate = predicateCandidates[0]

	for n := range leftSet {
		if n == subject {
			continue
		}
		if _, inRight := rightSet[n]; !inRight {
			objects = append(objects, n)
		}
	}
	return subject, predicate, objects, nil
}

// pickSubject applies a "prefer the non-hash subject" tie-break when a
// fact node has more than one bidirectional neighbour (it was itself
// used as the subject of another fact).
func pickSubject(candidates []NodeID) NodeID {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if best.IsHash() && !c.IsHash() {
			best = c
			continue
		}
		if best.IsHash() == c.IsHash() && c < best {
			best = c
		}
	}
	return best
}

func toSet(nodes []NodeID) map[NodeID]struct{} {
	m := make(map[NodeID]struct{}, len(nodes))
	for _, n := range nodes {
		m[n] = struct{}{}
	}
	return m
}

// Condition reifies a conjunction of sub-conditions under op (normally
// Core.And).
func (k *Kernel) Condition(op NodeID, subs []NodeID) (NodeID, error) {
	if len(subs) == 0 {
		return Zero, fmt.Errorf("kgraph: condition requires at least one sub-condition")
	}
	c := hashNamedSet(op, subs)
	if k.Exists(c) {
		return c, nil // idempotent: same member set hashes identically
	}
	if err := k.Reserve(c); err != nil {
		return Zero, err
	}
	for _, s := range subs {
		if err := k.Connect(s, c, nil); err != nil {
			return Zero, err
		}
	}
	if err := k.Connect(c, op, nil); err != nil {
		return Zero, err
	}
	return c, nil
}

// IsConjunction reports whether node has an outgoing edge to op
// (normally Core.And) — the marker ParseConjunction uses to recognize
// a conjunction node.
func (k *Kernel) IsConjunction(node, op NodeID) bool {
	return k.HasRightEdge(node, op)
}

// ParseConjunction recovers the sub-conditions of a conjunction node
// built with Condition(op, ...). Members are nodes with an edge into
// c that c does not reciprocate — the same one-directional pattern
// ParseFact uses to find objects, since c may itself be reused as the
// subject of an enclosing rule fact.
func (k *Kernel) ParseConjunction(c NodeID) []NodeID {
	left := k.LeftOf(c)
	var subs []NodeID
	for _, n := range left {
		if !k.HasRightEdge(c, n) {
			subs = append(subs, n)
		}
	}
	return subs
}
