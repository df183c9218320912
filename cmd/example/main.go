// Command example demonstrates the knowledge graph and forward-
// chaining reasoner: asserting facts and rules, running the reasoner
// to a fixpoint, and querying the result.
package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/kgraph/reasoner/pkg/kgraph"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	r, err := kgraph.New(
		kgraph.WithWorkers(4),
		kgraph.WithLogger(logger),
		kgraph.WithPrintFunc(func(line string, important bool) {
			fmt.Printf("[deduced] %s\n", line)
		}),
	)
	if err != nil {
		log.Fatalf("constructing reasoner: %v", err)
	}
	defer r.Shutdown()

	ctx := context.Background()
	atom := func(name string) kgraph.NodeID {
		n, err := r.Intern(name, "en")
		if err != nil {
			log.Fatalf("interning %q: %v", name, err)
		}
		return n
	}

	parent := atom("parent")
	grandparent := atom("grandparent")

	alice := atom("alice")
	bob := atom("bob")
	carol := atom("carol")
	dave := atom("dave")

	assert := func(s, p, o kgraph.NodeID) {
		if _, err := r.AssertFact(s, p, []kgraph.NodeID{o}, 1); err != nil {
			log.Fatalf("asserting fact: %v", err)
		}
	}
	assert(alice, parent, bob)
	assert(bob, parent, carol)
	assert(bob, parent, dave)

	// Rule: X parent Y, Y parent Z => X grandparent Z.
	x, err := r.Variable()
	if err != nil {
		log.Fatalf("allocating variable: %v", err)
	}
	y, err := r.Variable()
	if err != nil {
		log.Fatalf("allocating variable: %v", err)
	}
	z, err := r.Variable()
	if err != nil {
		log.Fatalf("allocating variable: %v", err)
	}

	condXY, err := r.AssertFact(x, parent, []kgraph.NodeID{y}, 1)
	if err != nil {
		log.Fatalf("asserting rule condition: %v", err)
	}
	condYZ, err := r.AssertFact(y, parent, []kgraph.NodeID{z}, 1)
	if err != nil {
		log.Fatalf("asserting rule condition: %v", err)
	}
	condition, err := r.Condition(r.Core().And, []kgraph.NodeID{condXY, condYZ})
	if err != nil {
		log.Fatalf("building rule condition: %v", err)
	}
	deduction, err := r.AssertFact(x, grandparent, []kgraph.NodeID{z}, 1)
	if err != nil {
		log.Fatalf("asserting deduction template: %v", err)
	}
	if _, err := r.AssertFact(condition, r.Core().Causes, []kgraph.NodeID{deduction}, 1); err != nil {
		log.Fatalf("asserting rule: %v", err)
	}

	result, err := r.Run(ctx, false, true)
	if err != nil {
		log.Fatalf("running reasoner: %v", err)
	}
	fmt.Printf("deduced %d new fact(s), skipped %d, contradictions %d\n",
		result.Deductions, result.Skipped, result.Contradictions)

	ans := r.CheckFact(alice, grandparent, []kgraph.NodeID{carol})
	fmt.Printf("alice grandparent carol? known=%v correct=%v\n", ans.Known(), ans.Correct())
}
