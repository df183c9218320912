package kgraph

import (
	"fmt"
	"sync"
)

// Graph is the bidirectional adjacency store. Two reader-writer locks
// guard the two adjacency maps; a third plain mutex guards
// probabilities, following the same per-map locking style as a
// concurrent constraint store. All mutating operations acquire both
// adjacency locks; read-only enumeration takes the appropriate shared
// lock only for the duration of a snapshot copy.
type Graph struct {
	muLeft  sync.RWMutex
	left    map[NodeID]*nodeSet // incoming: target -> sources
	muRight sync.RWMutex
	right   map[NodeID]*nodeSet // outgoing: source -> targets

	muProb       sync.Mutex
	probability  map[NodeID]float64 // hash(a,b) -> weight

	muAlloc  sync.Mutex
	lastAtom NodeID
	lastVar  NodeID
}

// NewGraph creates an empty graph store.
func NewGraph() *Graph {
	return &Graph{
		left:        make(map[NodeID]*nodeSet),
		right:       make(map[NodeID]*nodeSet),
		probability: make(map[NodeID]float64),
		lastVar:     NodeID(0), // first AllocateVariable yields ^NodeID(0) == max uint64
	}
}

// AllocateAtom returns a fresh atom id, skipping any id already in
// use. Returns ErrCapacityExhausted once the atom range (top two bits
// clear) is exhausted.
func (g *Graph) AllocateAtom() (NodeID, error) {
	g.muAlloc.Lock()
	defer g.muAlloc.Unlock()

	g.muLeft.Lock()
	defer g.muLeft.Unlock()
	g.muRight.Lock()
	defer g.muRight.Unlock()

	for {
		if g.lastAtom >= maskAtom {
			return Zero, fmt.Errorf("%w: atom range exhausted at %d nodes", ErrCapacityExhausted, uint64(maskAtom))
		}
		g.lastAtom++
		candidate := g.lastAtom
		if _, exists := g.left[candidate]; exists {
			continue
		}
		g.createLocked(candidate)
		return candidate, nil
	}
}

// AllocateVariable returns a fresh variable id, counting down from the
// maximum uint64. Returns ErrCapacityExhausted once the variable range
// is exhausted.
func (g *Graph) AllocateVariable() (NodeID, error) {
	g.muAlloc.Lock()
	defer g.muAlloc.Unlock()

	g.muLeft.Lock()
	defer g.muLeft.Unlock()
	g.muRight.Lock()
	defer g.muRight.Unlock()

	for {
		candidate := ^g.lastVar // first call: ^0 == max uint64
		if !candidate.IsVariable() {
			return Zero, fmt.Errorf("%w: variable range exhausted", ErrCapacityExhausted)
		}
		g.lastVar++
		if _, exists := g.left[candidate]; exists {
			continue
		}
		g.createLocked(candidate)
		return candidate, nil
	}
}

// Reserve idempotently materializes a specific hash-range id, used
// when a reified fact or conjunction's content hash has already been
// computed. Fails with ErrCollisionWithAtom if id is outside the hash
// range; an id that already exists is left as it is. Checking that an
// existing id's edges match the intended content (ErrHashCollision) is
// left to callers in facts.go, since only they know what "matching"
// means for a given triple.
func (g *Graph) Reserve(id NodeID) error {
	if !id.IsHash() {
		return fmt.Errorf("%w: %v is not in the hash range", ErrCollisionWithAtom, id)
	}

	g.muLeft.Lock()
	defer g.muLeft.Unlock()
	g.muRight.Lock()
	defer g.muRight.Unlock()

	if _, exists := g.left[id]; exists {
		return nil // idempotent: already materialized
	}
	g.createLocked(id)
	return nil
}

// createLocked inserts empty adjacency entries for id. Callers must
// hold both muLeft and muRight.
func (g *Graph) createLocked(id NodeID) {
	g.left[id] = newNodeSet()
	g.right[id] = newNodeSet()
}

// Exists reports whether id has been allocated and not yet removed.
func (g *Graph) Exists(id NodeID) bool {
	g.muLeft.RLock()
	defer g.muLeft.RUnlock()
	_, ok := g.left[id]
	return ok
}

// Count returns the number of live nodes.
func (g *Graph) Count() int {
	g.muLeft.RLock()
	defer g.muLeft.RUnlock()
	return len(g.left)
}

// Connect inserts a directed edge a->b. If prob is supplied (prob !=
// nil), it is attached to the edge: ProbabilityOnVariable is returned
// if either endpoint is a variable, and ProbabilityConflict if an
// existing weight cannot be reconciled with the new one by the min/max
// merge rule (see mergeProbability).
func (g *Graph) Connect(a, b NodeID, prob *float64) error {
	g.muLeft.Lock()
	defer g.muLeft.Unlock()
	g.muRight.Lock()
	defer g.muRight.Unlock()

	rightOfA, ok := g.right[a]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNode, a)
	}
	leftOfB, ok := g.left[b]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNode, b)
	}

	if prob != nil {
		if a.IsVariable() || b.IsVariable() {
			return fmt.Errorf("%w: %v -> %v", ErrProbabilityOnVariable, a, b)
		}
		if err := g.setProbabilityLocked(a, b, *prob); err != nil {
			return err
		}
	}

	rightOfA.Insert(b)
	leftOfB.Insert(a)
	return nil
}

func (g *Graph) setProbabilityLocked(a, b NodeID, p float64) error {
	g.muProb.Lock()
	defer g.muProb.Unlock()

	h := hashPair(a, b)
	existing, ok := g.probability[h]
	if !ok {
		g.probability[h] = p
		return nil
	}
	switch {
	case existing >= 0.5 && p >= 0.5:
		g.probability[h] = maxF(existing, p)
	case existing <= 0.5 && p <= 0.5:
		g.probability[h] = minF(existing, p)
	default:
		return fmt.Errorf("%w: edge %v->%v has weight %v, new weight %v", ErrProbabilityConflict, a, b, existing, p)
	}
	return nil
}

// Probability returns the weight attached to edge a->b, defaulting to
// 1 when unset or when either endpoint is a variable.
func (g *Graph) Probability(a, b NodeID) float64 {
	if a.IsVariable() || b.IsVariable() {
		return 1
	}
	g.muProb.Lock()
	defer g.muProb.Unlock()
	if p, ok := g.probability[hashPair(a, b)]; ok {
		return p
	}
	return 1
}

// Disconnect removes the directed edge a->b, if present, along with
// any attached probability.
func (g *Graph) Disconnect(a, b NodeID) {
	g.muLeft.Lock()
	g.muRight.Lock()
	if s, ok := g.right[a]; ok {
		s.Remove(b)
	}
	if s, ok := g.left[b]; ok {
		s.Remove(a)
	}
	g.muRight.Unlock()
	g.muLeft.Unlock()

	g.muProb.Lock()
	delete(g.probability, hashPair(a, b))
	g.muProb.Unlock()
}

// Remove deletes node and every edge incident to it.
func (g *Graph) Remove(node NodeID) {
	for _, from := range g.LeftOf(node) {
		g.Disconnect(from, node)
	}
	for _, to := range g.RightOf(node) {
		g.Disconnect(node, to)
	}

	g.muLeft.Lock()
	delete(g.left, node)
	g.muLeft.Unlock()

	g.muRight.Lock()
	delete(g.right, node)
	g.muRight.Unlock()
}

// LeftOf returns a snapshot copy of node's incoming neighbours.
func (g *Graph) LeftOf(node NodeID) []NodeID {
	g.muLeft.RLock()
	defer g.muLeft.RUnlock()
	s, ok := g.left[node]
	if !ok {
		return nil
	}
	return s.Slice()
}

// RightOf returns a snapshot copy of node's outgoing neighbours.
func (g *Graph) RightOf(node NodeID) []NodeID {
	g.muRight.RLock()
	defer g.muRight.RUnlock()
	s, ok := g.right[node]
	if !ok {
		return nil
	}
	return s.Slice()
}

// HasLeftEdge reports whether there is an edge a->b (b's incoming set
// contains a).
func (g *Graph) HasLeftEdge(a, b NodeID) bool {
	g.muLeft.RLock()
	defer g.muLeft.RUnlock()
	s, ok := g.left[b]
	return ok && s.Contains(a)
}

// HasRightEdge reports whether there is an edge a->b (a's outgoing set
// contains b).
func (g *Graph) HasRightEdge(a, b NodeID) bool {
	g.muRight.RLock()
	defer g.muRight.RUnlock()
	s, ok := g.right[a]
	return ok && s.Contains(b)
}

// RemoveIsolatedNodes deletes every node with no incoming and no
// outgoing edges, returning the count removed. Ported from the
// original's remove_isolated_nodes maintenance sweep.
func (g *Graph) RemoveIsolatedNodes() int {
	g.muLeft.RLock()
	all := make([]NodeID, 0, len(g.left))
	for n := range g.left {
		all = append(all, n)
	}
	g.muLeft.RUnlock()

	removed := 0
	for _, n := range all {
		if len(g.LeftOf(n)) == 0 && len(g.RightOf(n)) == 0 {
			g.Remove(n)
			removed++
		}
	}
	return removed
}

// --- snapshot restore helpers --------------------------------------------
//
// These bypass Connect/Reserve's validation because Load populates a
// brand-new Graph from trusted, previously-saved data: ids and edges
// were valid when saved, and re-validating them against an empty graph
// (which has no nodes yet to satisfy Connect's existence checks) would
// require restoring in a careful topological order for no benefit.

// ensureNode materializes id with empty adjacency if not already present.
func (g *Graph) ensureNode(id NodeID) {
	g.muLeft.Lock()
	g.muRight.Lock()
	if _, ok := g.left[id]; !ok {
		g.createLocked(id)
	}
	g.muRight.Unlock()
	g.muLeft.Unlock()
}

func (g *Graph) restoreLeftNeighbour(node, neighbour NodeID) {
	g.muLeft.Lock()
	defer g.muLeft.Unlock()
	g.left[node].Insert(neighbour)
}

func (g *Graph) restoreRightNeighbour(node, neighbour NodeID) {
	g.muRight.Lock()
	defer g.muRight.Unlock()
	g.right[node].Insert(neighbour)
}

func (g *Graph) restoreProbabilityRaw(key NodeID, p float64) {
	g.muProb.Lock()
	defer g.muProb.Unlock()
	g.probability[key] = p
}

func (g *Graph) setAllocCounters(lastAtom, lastVar NodeID) {
	g.muAlloc.Lock()
	defer g.muAlloc.Unlock()
	g.lastAtom = lastAtom
	g.lastVar = lastVar
}

func (g *Graph) allocCounters() (lastAtom, lastVar NodeID) {
	g.muAlloc.Lock()
	defer g.muAlloc.Unlock()
	return g.lastAtom, g.lastVar
}

// allNodes returns every live node id, in no particular order.
func (g *Graph) allNodes() []NodeID {
	g.muLeft.RLock()
	defer g.muLeft.RUnlock()
	out := make([]NodeID, 0, len(g.left))
	for n := range g.left {
		out = append(out, n)
	}
	return out
}

// probabilitySnapshot returns a copy of the full probability map.
func (g *Graph) probabilitySnapshot() map[NodeID]float64 {
	g.muProb.Lock()
	defer g.muProb.Unlock()
	out := make(map[NodeID]float64, len(g.probability))
	for k, v := range g.probability {
		out[k] = v
	}
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
