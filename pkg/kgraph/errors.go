package kgraph

import "errors"

// Sentinel errors for kgraph's failure modes. Callers distinguish them
// with errors.Is; wrapped context is added with fmt.Errorf("...: %w",
// ...) at each call site rather than a bespoke error-type hierarchy.
var (
	// ErrCapacityExhausted: the atom or variable id range is full.
	ErrCapacityExhausted = errors.New("kgraph: capacity exhausted")

	// ErrUnknownNode: an operation referenced a node id that was never
	// allocated (or has since been removed).
	ErrUnknownNode = errors.New("kgraph: unknown node")

	// ErrCollisionWithAtom: Reserve was asked to materialize an id
	// outside the hash range.
	ErrCollisionWithAtom = errors.New("kgraph: id collides with atom/variable range")

	// ErrHashCollision: a fact's content-hash id already exists with
	// edges that do not match the triple being asserted — a true content
	// hash collision (or a programming error). The assertion fails
	// loudly rather than silently overwriting.
	ErrHashCollision = errors.New("kgraph: hash id collision")

	// ErrProbabilityOnVariable: a probability was attached to a
	// connection where either endpoint is a variable.
	ErrProbabilityOnVariable = errors.New("kgraph: probability on variable connection")

	// ErrProbabilityConflict: an existing weight disagrees with a newly
	// supplied one in a way connect() cannot reconcile via min/max.
	ErrProbabilityConflict = errors.New("kgraph: conflicting probability")

	// ErrSelfReferentialFact: the object set contains the subject or
	// the predicate.
	ErrSelfReferentialFact = errors.New("kgraph: self-referential fact")

	// ErrContradictingProbability: a weighted assertion disagrees with
	// a previously recorded weight for the same fact.
	ErrContradictingProbability = errors.New("kgraph: contradicting probability")

	// ErrPrunePredicateMustBeFixed: prune_nodes was invoked with a
	// variable predicate.
	ErrPrunePredicateMustBeFixed = errors.New("kgraph: prune predicate must be a concrete node")

	// ErrIO: snapshot save/load failed.
	ErrIO = errors.New("kgraph: snapshot i/o error")
)

// ContradictionSignal is raised when a deduction equals the reserved
// Contradiction node, or contradicts an existing known fact. It is
// caught per-rule by the Reasoner and converted to diagnostics; it is
// exported so tests and external collaborators can recognize it via
// errors.As.
type ContradictionSignal struct {
	Condition NodeID
	Rule      NodeID
	Bindings  Bindings
}

func (c *ContradictionSignal) Error() string {
	return "kgraph: contradiction raised while evaluating rule " + c.Rule.String()
}
