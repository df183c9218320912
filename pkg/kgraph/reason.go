package kgraph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kgraph/reasoner/internal/workerpool"
)

// PrintFunc receives a diagnostic line and whether it is important
// enough that a shell should never suppress it.
type PrintFunc func(line string, important bool)

// Reasoner is the forward-chaining driver, embedding a Kernel so every
// fact-algebra and naming operation is available directly on it.
type Reasoner struct {
	*Kernel

	pool  *workerpool.Pool
	log   *zap.Logger
	print PrintFunc
	unify *Unifier
	outMu sync.Mutex
}

// New constructs a Reasoner, bootstrapping its Kernel's core predicates.
func New(opts ...Option) (*Reasoner, error) {
	cfg := defaultOptions()
	for _, o := range opts {
		o(cfg)
	}

	k, err := NewKernel(cfg.internalLang)
	if err != nil {
		return nil, fmt.Errorf("kgraph: constructing kernel: %w", err)
	}

	r := &Reasoner{
		Kernel: k,
		pool:   workerpool.New(cfg.workers),
		log:    cfg.logger,
		print:  cfg.print,
	}
	r.unify = NewUnifier(k)
	return r, nil
}

// Shutdown releases the Reasoner's worker pool. Safe to call once the
// Reasoner is no longer in use; it does not affect the in-memory graph.
func (r *Reasoner) Shutdown() { r.pool.Shutdown() }

func (r *Reasoner) emit(line string, important bool) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if r.print != nil {
		r.print(line, important)
	}
}

// RunResult summarizes one Run invocation.
type RunResult struct {
	Deductions     int
	Skipped        int
	Contradictions int
	Progress       bool
}

// Run iterates rule evaluation to a fixpoint, or once if once is true.
// When parallel is true, relation-driven candidate enumeration may fan
// out across the worker pool.
func (r *Reasoner) Run(ctx context.Context, once, parallel bool) (RunResult, error) {
	var total RunResult
	pool := r.pool
	if !parallel {
		pool = nil
	}

	for {
		progress, stats, err := r.runPass(ctx, pool)
		total.Deductions += stats.Deductions
		total.Skipped += stats.Skipped
		total.Contradictions += stats.Contradictions
		if err != nil {
			return total, err
		}
		if progress {
			total.Progress = true
		}
		if once || !progress {
			return total, nil
		}
	}
}

// runPass evaluates every Causes rule once, returning whether any new
// fact was asserted.
func (r *Reasoner) runPass(ctx context.Context, pool *workerpool.Pool) (bool, RunResult, error) {
	rules, err := r.rules()
	if err != nil {
		return false, RunResult{}, err
	}

	var progress int32
	var stats RunResult
	var statsMu sync.Mutex

	for _, rule := range rules {
		condition, deductions, err := r.ruleParts(rule)
		if err != nil {
			continue // malformed Causes fact: not a rule, skip quietly
		}

		envs := r.evaluate(ctx, pool, condition)
		for _, env := range envs {
			made, skipped, contradicted := r.deduce(env, rule, condition, deductions)
			statsMu.Lock()
			stats.Deductions += made
			stats.Skipped += skipped
			stats.Contradictions += contradicted
			statsMu.Unlock()
			if made > 0 {
				atomic.StoreInt32(&progress, 1)
			}
		}
	}

	return atomic.LoadInt32(&progress) == 1, stats, nil
}

// rules enumerates every fact whose predicate is Causes, with
// non-empty deductions and a non-trivial condition.
func (r *Reasoner) rules() ([]NodeID, error) {
	var out []NodeID
	for _, f := range r.LeftOf(r.Core().Causes) {
		s, p, objs, err := r.ParseFact(f)
		if err != nil || p != r.Core().Causes {
			continue
		}
		if s == Zero || len(objs) == 0 {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// ruleParts splits a Causes fact into its condition and deduction
// templates.
func (r *Reasoner) ruleParts(rule NodeID) (condition NodeID, deductions []NodeID, err error) {
	s, p, objs, err := r.ParseFact(rule)
	if err != nil {
		return Zero, nil, err
	}
	if p != r.Core().Causes {
		return Zero, nil, fmt.Errorf("kgraph: %v is not a rule", rule)
	}
	return s, objs, nil
}

// evaluate matches condition (a leaf fact or a conjunction ordered by
// optimizeOrder) against the graph, producing every successful
// binding environment.
func (r *Reasoner) evaluate(ctx context.Context, pool *workerpool.Pool, condition NodeID) []Bindings {
	if !r.IsConjunction(condition, r.Core().And) {
		return r.unify.MatchCondition(ctx, pool, condition, Bindings{})
	}

	subs := r.ParseConjunction(condition)
	ordered := r.optimizeOrder(subs, Bindings{})

	envs := []Bindings{{}}
	for _, sub := range ordered {
		var next []Bindings
		for _, env := range envs {
			next = append(next, r.unify.MatchCondition(ctx, pool, sub, env)...)
		}
		envs = next
		if len(envs) == 0 {
			return nil
		}
	}
	return envs
}

// optimizeOrder greedily reorders subs to maximize, at each step, how
// many of a sub-condition's (subject, objects) are constant or already
// bound in the simulated environment. And being commutative, any order
// yields the same fixpoint; this one just gets there with less
// unification fan-out.
func (r *Reasoner) optimizeOrder(subs []NodeID, env Bindings) []NodeID {
	remaining := append([]NodeID(nil), subs...)
	sim := env.clone()
	ordered := make([]NodeID, 0, len(subs))

	for len(remaining) > 0 {
		bestIdx, bestScore := 0, -1
		for i, sub := range remaining {
			score := r.boundScore(sub, sim)
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		chosen := remaining[bestIdx]
		ordered = append(ordered, chosen)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		for _, v := range r.termVariables(chosen) {
			if _, bound := sim.vars[v]; !bound {
				sim.vars[v] = v // simulate: treat as bound for scoring later subs
			}
		}
	}
	return ordered
}

// boundScore counts how many of sub's subject/objects are constants or
// already bound in env.
func (r *Reasoner) boundScore(sub NodeID, env Bindings) int {
	s, _, objs, err := r.ParseFact(sub)
	if err != nil {
		return 0
	}
	score := 0
	for _, n := range append([]NodeID{s}, objs...) {
		if !n.IsVariable() {
			score++
			continue
		}
		if _, bound := env.vars[n]; bound {
			score++
		}
	}
	return score
}

func (r *Reasoner) termVariables(fact NodeID) []NodeID {
	s, p, objs, err := r.ParseFact(fact)
	if err != nil {
		return nil
	}
	var vars []NodeID
	for _, n := range append([]NodeID{s, p}, objs...) {
		if n.IsVariable() {
			vars = append(vars, n)
		}
	}
	return vars
}

// deduce instantiates every deduction template in deductions under env
// and asserts the ones that are new.
func (r *Reasoner) deduce(env Bindings, rule, condition NodeID, deductions []NodeID) (made, skipped, contradicted int) {
	for _, template := range deductions {
		if template == r.Core().Contradiction {
			r.handleContradiction(&ContradictionSignal{Condition: condition, Rule: rule, Bindings: env})
			contradicted++
			continue
		}

		s, p, objs, ok := r.instantiate(template, env)
		if !ok {
			skipped++
			continue
		}

		if isSelfReferential(s, p, objs) {
			skipped++
			continue
		}

		ans := r.CheckFact(s, p, objs)
		switch {
		case ans.Known() && ans.Wrong():
			r.handleContradiction(&ContradictionSignal{Condition: ans.Fact, Rule: rule, Bindings: env})
			contradicted++
		case ans.Known():
			skipped++
		default:
			fact, err := r.AssertFact(s, p, objs, 1)
			if err != nil {
				skipped++
				continue
			}
			made++
			r.emitDeduction(fact, r.instantiatedPremises(condition, env))
		}
	}
	return made, skipped, contradicted
}

// isSelfReferential rejects deductions with same subject and object,
// or same object and relation type.
func isSelfReferential(s, p NodeID, objs []NodeID) bool {
	for _, o := range objs {
		if o == s || o == p {
			return true
		}
	}
	return false
}

// instantiate recursively substitutes env into template's subject,
// predicate, and objects, mirroring unification's cycle-safe structural
// walk. ok is false if any sub-node remains an unbound variable (a
// partial match a future iteration may complete).
func (r *Reasoner) instantiate(template NodeID, env Bindings) (subject, predicate NodeID, objects []NodeID, ok bool) {
	s, p, o, err := r.ParseFact(template)
	if err != nil {
		return Zero, Zero, nil, false
	}
	visited := map[NodeID]bool{template: true}
	parts := append([]NodeID{s, p}, o...)
	for i, n := range parts {
		if parts[i], ok = r.instantiateNode(n, env, visited); !ok {
			return Zero, Zero, nil, false
		}
	}
	return parts[0], parts[1], parts[2:], true
}

// instantiateNode resolves a single node through env, recursing into
// hash-identified facts/conjunctions to substitute their components.
// An instantiated conjunction is materialized via Condition; an
// instantiated nested fact must already exist in the graph, otherwise
// ok is false. visited guards against cycles in self-referential fact
// graphs.
func (r *Reasoner) instantiateNode(n NodeID, env Bindings, visited map[NodeID]bool) (NodeID, bool) {
	n = env.resolve(n)
	if n.IsVariable() {
		return Zero, false
	}
	if !n.IsHash() {
		return n, true
	}
	if visited[n] {
		return n, true
	}
	visited[n] = true

	if r.IsConjunction(n, r.Core().And) {
		subs := r.ParseConjunction(n)
		resolvedSubs := make([]NodeID, 0, len(subs))
		for _, s := range subs {
			rs, ok := r.instantiateNode(s, env, visited)
			if !ok {
				return Zero, false
			}
			resolvedSubs = append(resolvedSubs, rs)
		}
		c, err := r.Condition(r.Core().And, resolvedSubs)
		if err != nil {
			return Zero, false
		}
		return c, true
	}

	s, p, objs, err := r.ParseFact(n)
	if err != nil {
		return n, true
	}
	rs, ok := r.instantiateNode(s, env, visited)
	if !ok {
		return Zero, false
	}
	rp, ok := r.instantiateNode(p, env, visited)
	if !ok {
		return Zero, false
	}
	robjs := make([]NodeID, 0, len(objs))
	for _, o := range objs {
		ro, ok := r.instantiateNode(o, env, visited)
		if !ok {
			return Zero, false
		}
		robjs = append(robjs, ro)
	}
	fact := hashHeadSet(rp, rs, robjs)
	if !r.Exists(fact) {
		return Zero, false
	}
	return fact, true
}

func (r *Reasoner) handleContradiction(sig *ContradictionSignal) {
	line := fmt.Sprintf("«Contradiction» ⇐ %s", r.FormatFact(sig.Condition, ""))
	r.emit(line, true)
	r.log.Info("contradiction",
		zap.String("rule", sig.Rule.String()),
		zap.String("condition", sig.Condition.String()))
}

// instantiatedPremises resolves condition's sub-facts (or condition
// itself, if it is a leaf) under env, for rendering the premises of a
// deduction's diagnostic line. Falls back to the unresolved template
// if a sub-fact didn't fully ground under env.
func (r *Reasoner) instantiatedPremises(condition NodeID, env Bindings) []NodeID {
	var subs []NodeID
	if r.IsConjunction(condition, r.Core().And) {
		subs = r.ParseConjunction(condition)
	} else {
		subs = []NodeID{condition}
	}

	premises := make([]NodeID, len(subs))
	for i, sub := range subs {
		if resolved, ok := r.instantiateNode(sub, env, map[NodeID]bool{}); ok {
			premises[i] = resolved
		} else {
			premises[i] = sub
		}
	}
	return premises
}

// emitDeduction renders the diagnostic line "«conclusion» ⇐ premise₁,
// …" for a newly asserted fact, where premises are the rule condition's
// sub-facts as matched (see instantiatedPremises), not its deduction
// templates.
func (r *Reasoner) emitDeduction(fact NodeID, premises []NodeID) {
	conclusion := r.FormatFact(fact, "")
	line := conclusion + " ⇐ "
	for i, prem := range premises {
		if i > 0 {
			line += ", "
		}
		line += r.FormatFact(prem, "")
	}
	r.emit(line, false)
	r.log.Debug("deduction", zap.String("fact", conclusion))
}

// ApplyRule evaluates condition as a one-off query: no deductions are
// asserted, bindings are returned to the caller. rule == Zero requests
// a synthetic, ruleless evaluation.
func (r *Reasoner) ApplyRule(ctx context.Context, rule, condition NodeID, parallel bool) []Bindings {
	pool := r.pool
	if !parallel {
		pool = nil
	}
	return r.evaluate(ctx, pool, condition)
}

// PurgeUnusedPredicates removes zombie fact nodes (parsed subject or
// object-set now empty through prior removals) and predicates with no
// remaining valid uses, aggregating any partial failures with
// go-multierror.
func (r *Reasoner) PurgeUnusedPredicates() error {
	var errs *multierror.Error

	removed := r.RemoveIsolatedNodes()
	r.log.Debug("purge: removed isolated nodes", zap.Int("count", removed))

	for _, n := range r.allNodes() {
		if !n.IsHash() || r.IsConjunction(n, r.Core().And) {
			continue
		}
		if _, _, objs, err := r.ParseFact(n); err != nil || len(objs) == 0 {
			r.Remove(n) // zombie fact: subject, predicate or objects gone
		}
	}

	candidates := r.LeftOf(r.Core().IsA)
	for _, fact := range candidates {
		s, p, objs, err := r.ParseFact(fact)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("parsing candidate %v: %w", fact, err))
			continue
		}
		if p != r.Core().IsA || len(objs) != 1 || objs[0] != r.Core().RelationTypeCategory {
			continue
		}
		// An unused predicate's only edges are those of its own declaration.
		if uses, out := r.LeftOf(s), r.RightOf(s); len(uses) == 1 && uses[0] == fact && len(out) == 1 && out[0] == fact &&
			s != r.Core().IsA && s != r.Core().Causes && s != r.Core().Unequal {
			r.Remove(s)
			r.Remove(fact)
		}
	}

	return errs.ErrorOrNil()
}
