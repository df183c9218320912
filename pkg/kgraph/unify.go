package kgraph

import (
	"context"
	"sort"
	"sync"

	"github.com/kgraph/reasoner/internal/workerpool"
)

// Bindings is a unification environment: a variable's current bindings,
// plus the set of term pairs (U) that a matched Unequal condition has
// constrained apart. Modeled as immutable-by-convention (copy-on-
// extend) rather than a mutable union-find — this package's
// environments are small and short-lived, produced one per candidate
// match.
type Bindings struct {
	vars    map[NodeID]NodeID
	unequal []unequalPair
}

// unequalPair is one (subject, object) term pair recorded by matching
// an Unequal condition. Terms may still be variables at the time they
// are recorded; violatesUnequal re-resolves them on every check.
type unequalPair struct{ a, b NodeID }

// clone returns a copy so extending one branch of a search never
// mutates a sibling's environment.
func (b Bindings) clone() Bindings {
	vars := make(map[NodeID]NodeID, len(b.vars)+1)
	for k, v := range b.vars {
		vars[k] = v
	}
	unequal := append([]unequalPair(nil), b.unequal...)
	return Bindings{vars: vars, unequal: unequal}
}

// resolve follows variable bindings to a fixpoint (no binding loop is
// possible: unify resolves both sides before binding, so a variable is
// only ever bound to its resolved, distinct counterpart).
func (b Bindings) resolve(n NodeID) NodeID {
	for n.IsVariable() {
		next, ok := b.vars[n]
		if !ok {
			return n
		}
		n = next
	}
	return n
}

// extend returns a new environment binding v to n, or ok=false if v is
// already bound to something incompatible with n, or if the new
// binding would resolve a recorded Unequal pair to the same node.
func (b Bindings) extend(v, n NodeID) (Bindings, bool) {
	if existing, ok := b.vars[v]; ok {
		if existing == n {
			return b, true
		}
		return Bindings{}, false
	}
	out := b.clone()
	out.vars[v] = n
	if out.violatesUnequal() {
		return Bindings{}, false
	}
	return out, true
}

// addUnequal records that a and term must never resolve to the same
// concrete node, returning ok=false if they already do.
func (b Bindings) addUnequal(a, term NodeID) (Bindings, bool) {
	out := b.clone()
	out.unequal = append(out.unequal, unequalPair{a, term})
	if out.violatesUnequal() {
		return Bindings{}, false
	}
	return out, true
}

// violatesUnequal reports whether any recorded pair currently resolves
// to the same concrete (non-variable) node.
func (b Bindings) violatesUnequal() bool {
	for _, p := range b.unequal {
		ra, rb := b.resolve(p.a), b.resolve(p.b)
		if !ra.IsVariable() && !rb.IsVariable() && ra == rb {
			return true
		}
	}
	return false
}

// pairKey packs two node ids visited together during recursive
// structural unification, guarding against cycles in self-referential
// fact graphs.
type pairKey struct{ a, b NodeID }

// Unifier performs structural unification of two graph terms (atoms,
// hash-identified facts/conjunctions, or variables) against a Kernel's
// stored facts, producing zero or more binding environments.
type Unifier struct {
	k *Kernel
}

// NewUnifier builds a Unifier over k.
func NewUnifier(k *Kernel) *Unifier { return &Unifier{k: k} }

// Unify attempts to unify term a against term b under env, returning the
// extended environments that satisfy it (normally zero or one, but a
// variable-headed term unifying against a conjunction's unordered
// member set can legitimately branch).
func (u *Unifier) Unify(a, b NodeID, env Bindings) []Bindings {
	return u.unify(a, b, env, map[pairKey]bool{})
}

func (u *Unifier) unify(a, b NodeID, env Bindings, visited map[pairKey]bool) []Bindings {
	a = env.resolve(a)
	b = env.resolve(b)

	if a == b {
		return []Bindings{env}
	}

	if a.IsVariable() {
		return u.bind(a, b, env)
	}
	if b.IsVariable() {
		return u.bind(b, a, env)
	}

	if a.IsHash() && b.IsHash() {
		key := pairKey{a, b}
		if visited[key] {
			return []Bindings{env} // cycle: treat as already consistent, stop recursing
		}
		visited[key] = true
		defer delete(visited, key)
		return u.unifyHashes(a, b, env, visited)
	}

	// Two distinct non-variable, non-matching atoms: no unification.
	return nil
}

func (u *Unifier) bind(v, term NodeID, env Bindings) []Bindings {
	next, ok := env.extend(v, term)
	if !ok {
		return nil
	}
	return []Bindings{next}
}

// unifyHashes unifies two hash-identified nodes by parsing them as
// either conjunctions or reified facts and recursively unifying their
// components.
func (u *Unifier) unifyHashes(a, b NodeID, env Bindings, visited map[pairKey]bool) []Bindings {
	aConj := u.k.IsConjunction(a, u.k.core.And)
	bConj := u.k.IsConjunction(b, u.k.core.And)
	if aConj != bConj {
		return nil
	}
	if aConj {
		return u.unifyConjunctions(a, b, env, visited)
	}

	as, ap, ao, err1 := u.k.ParseFact(a)
	bs, bp, bo, err2 := u.k.ParseFact(b)
	if err1 != nil || err2 != nil {
		return nil
	}

	envs := u.unify(ap, bp, env, visited)
	envs = u.unifyAll(as, bs, envs, visited)
	return u.unifyObjectSets(ao, bo, envs, visited)
}

// unifyConjunctions unifies two conjunction node's member sets. Members
// are order-independent by construction (hashNamedSet sorts them), so
// every one-to-one pairing of a's members with b's is tried, and each
// pairing that unifies contributes its environments.
func (u *Unifier) unifyConjunctions(a, b NodeID, env Bindings, visited map[pairKey]bool) []Bindings {
	as := u.k.ParseConjunction(a)
	bs := u.k.ParseConjunction(b)
	if len(as) != len(bs) {
		return nil
	}
	var match func(rest []NodeID, e Bindings) []Bindings
	match = func(rest []NodeID, e Bindings) []Bindings {
		if len(rest) == 0 {
			return []Bindings{e}
		}
		var out []Bindings
		for j, m := range rest {
			others := append(append([]NodeID(nil), rest[:j]...), rest[j+1:]...)
			for _, next := range u.unify(as[len(as)-len(rest)], m, e, visited) {
				out = append(out, match(others, next)...)
			}
		}
		return out
	}
	return match(bs, env)
}

// unifyAll threads a single-pair unification across every candidate
// environment, flattening the result.
func (u *Unifier) unifyAll(a, b NodeID, envs []Bindings, visited map[pairKey]bool) []Bindings {
	var out []Bindings
	for _, e := range envs {
		out = append(out, u.unify(a, b, e, visited)...)
	}
	return out
}

// unifyObjectSets unifies two object sets. Since reified-fact object
// sets are order-independent, candidates are paired by sorting both
// sides; a true multiset-unification with free variables on both sides
// would require trying every permutation, which this package does not
// do (see DESIGN.md).
func (u *Unifier) unifyObjectSets(a, b []NodeID, envs []Bindings, visited map[pairKey]bool) []Bindings {
	if len(envs) == 0 {
		return nil
	}
	if len(a) != len(b) {
		return nil
	}
	aSorted := append([]NodeID(nil), a...)
	bSorted := append([]NodeID(nil), b...)
	sortNodeIDs(aSorted)
	sortNodeIDs(bSorted)

	for i := range aSorted {
		var next []Bindings
		for _, e := range envs {
			next = append(next, u.unify(aSorted[i], bSorted[i], e, visited)...)
		}
		envs = next
		if len(envs) == 0 {
			return nil
		}
	}
	return envs
}

// Candidates enumerates every fact currently asserted that could
// possibly unify with (subject, predicate, objects), choosing the
// smallest of the subject/predicate/object-derived neighbour sets as
// the "driving index" to minimize the fan-out.
func (u *Unifier) Candidates(subject, predicate NodeID, objects []NodeID) []NodeID {
	type source struct {
		nodes []NodeID
		kind  string
	}
	var pools []source

	if !predicate.IsVariable() {
		pools = append(pools, source{u.k.LeftOf(predicate), "predicate"})
	}
	if !subject.IsVariable() {
		pools = append(pools, source{u.k.RightOf(subject), "subject"})
	}
	for _, o := range objects {
		if !o.IsVariable() {
			pools = append(pools, source{u.k.RightOf(o), "object"})
		}
	}

	if len(pools) == 0 {
		return nil
	}
	best := pools[0]
	for _, p := range pools[1:] {
		if len(p.nodes) < len(best.nodes) {
			best = p
		}
	}

	out := make([]NodeID, 0, len(best.nodes))
	for _, n := range best.nodes {
		if n.IsHash() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MatchCondition unifies a condition (a fact or conjunction pattern)
// against the graph, returning one environment per satisfying match.
// A condition with a variable subject, predicate or object is not
// matched against its own node. When pool is non-nil and there are at
// least pool.Size()*4 candidates, they are unified concurrently in
// chunks sized by internal/workerpool.FanOutSize.
func (u *Unifier) MatchCondition(ctx context.Context, pool *workerpool.Pool, condition NodeID, env Bindings) []Bindings {
	if u.k.IsConjunction(condition, u.k.core.And) {
		return u.matchConjunction(ctx, pool, condition, env)
	}
	s, p, o, err := u.k.ParseFact(condition)
	if err != nil {
		return nil
	}
	rs, rp, ro := env.resolve(s), env.resolve(p), make([]NodeID, len(o))
	pattern := s.IsVariable() || p.IsVariable()
	for i, obj := range o {
		ro[i] = env.resolve(obj)
		pattern = pattern || obj.IsVariable()
	}

	if rp == u.k.core.Unequal {
		return u.applyUnequal(rs, ro, env)
	}

	candidates := u.Candidates(rs, rp, ro)
	if pattern {
		for i, c := range candidates {
			if c == condition {
				candidates = append(candidates[:i], candidates[i+1:]...)
				break
			}
		}
	}
	if pool == nil || len(candidates) < pool.Size()*4 {
		var out []Bindings
		for _, c := range candidates {
			out = append(out, u.Unify(condition, c, env)...)
		}
		return out
	}
	return u.matchParallel(ctx, pool, condition, candidates, env)
}

// applyUnequal evaluates an Unequal(subject, objects...) condition as a
// distinctness constraint on the environment rather than a graph
// lookup: each (subject, object) pair is added to env's U set, failing
// the branch immediately if either pair already resolves to the same
// concrete node.
func (u *Unifier) applyUnequal(subject NodeID, objects []NodeID, env Bindings) []Bindings {
	cur := env
	for _, o := range objects {
		var ok bool
		cur, ok = cur.addUnequal(subject, o)
		if !ok {
			return nil
		}
	}
	return []Bindings{cur}
}

func (u *Unifier) matchConjunction(ctx context.Context, pool *workerpool.Pool, condition NodeID, env Bindings) []Bindings {
	subs := u.k.ParseConjunction(condition)
	envs := []Bindings{env}
	for _, sub := range subs {
		var next []Bindings
		for _, e := range envs {
			next = append(next, u.MatchCondition(ctx, pool, sub, e)...)
		}
		envs = next
		if len(envs) == 0 {
			return nil
		}
	}
	return envs
}

func (u *Unifier) matchParallel(ctx context.Context, pool *workerpool.Pool, condition NodeID, candidates []NodeID, env Bindings) []Bindings {
	chunks := workerpool.Chunk(candidates, workerpool.FanOutSize(pool.Size(), len(candidates)))
	results := make([][]Bindings, len(chunks))
	var wg sync.WaitGroup
	wg.Add(len(chunks))

	for i, chunk := range chunks {
		i, chunk := i, chunk
		runChunk := func() {
			defer wg.Done()
			var out []Bindings
			for _, c := range chunk {
				out = append(out, u.Unify(condition, c, env)...)
			}
			results[i] = out
		}
		if err := pool.Submit(ctx, runChunk); err != nil {
			// Pool shutting down or context cancelled: run inline so no
			// candidate is silently dropped.
			runChunk()
		}
	}
	wg.Wait()

	var out []Bindings
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
