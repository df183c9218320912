package kgraph

import "fmt"

// PruneSide selects which side of a matched fact's endpoints
// PruneNodes also deletes once they become isolated — an explicit flag
// rather than guessing which side to drop when both subject and
// objects are variables.
type PruneSide int

const (
	PruneNeither PruneSide = iota
	PruneSubject
	PruneObjects
	PruneBoth
)

// PruneFacts deletes every fact node matching pattern (a fact,
// possibly containing variables) and returns the count removed.
func (r *Reasoner) PruneFacts(pattern NodeID) (int, error) {
	facts, err := r.matchingFacts(pattern)
	if err != nil {
		return 0, err
	}
	for _, f := range facts {
		r.Remove(f)
	}
	return len(facts), nil
}

// PruneNodes deletes every fact node matching pattern, then deletes the
// subject and/or object endpoints named by side if they become
// isolated. pattern's predicate must be a concrete (non-variable) node;
// ErrPrunePredicateMustBeFixed is returned otherwise.
func (r *Reasoner) PruneNodes(pattern NodeID, side PruneSide) (int, error) {
	_, predicate, _, err := r.ParseFact(pattern)
	if err != nil {
		return 0, err
	}
	if predicate.IsVariable() {
		return 0, ErrPrunePredicateMustBeFixed
	}

	facts, err := r.matchingFacts(pattern)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range facts {
		subj, _, objs, err := r.ParseFact(f)
		if err != nil {
			continue
		}
		r.Remove(f)
		removed++

		var endpoints []NodeID
		if side == PruneSubject || side == PruneBoth {
			endpoints = append(endpoints, subj)
		}
		if side == PruneObjects || side == PruneBoth {
			endpoints = append(endpoints, objs...)
		}
		for _, n := range endpoints {
			if len(r.LeftOf(n)) == 0 && len(r.RightOf(n)) == 0 {
				r.Remove(n)
				removed++
			}
		}
	}
	return removed, nil
}

// matchingFacts returns every currently-asserted fact node unifying
// with the leaf pattern. pattern itself is a materialized node and so
// is always among its own candidates, trivially unifying with itself;
// that is intended, since a variable-containing pattern is itself a
// real fact once it has been asserted or queried, indistinguishable
// from any other stored fact of the same shape.
func (r *Reasoner) matchingFacts(pattern NodeID) ([]NodeID, error) {
	s, p, objs, err := r.ParseFact(pattern)
	if err != nil {
		return nil, fmt.Errorf("kgraph: pruning pattern %v: %w", pattern, err)
	}
	candidates := r.unify.Candidates(s, p, objs)

	var out []NodeID
	for _, c := range candidates {
		if envs := r.unify.Unify(pattern, c, Bindings{}); len(envs) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}
