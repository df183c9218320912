package kgraph

import "sync"

// naming is the per-language naming layer. Names never affect node
// identity or inference; they are a side table consumed only by
// diagnostics and external collaborators (an interactive shell,
// importers — both out of scope here).
type naming struct {
	mu         sync.Mutex
	nameOfNode map[string]map[NodeID]string // lang -> node -> name
	nodeOfName map[string]map[string]NodeID // lang -> name -> node

	// internalLang is consulted third in the fallback chain:
	// requested -> English -> internal -> arbitrary first.
	internalLang string
}

func newNaming(internalLang string) *naming {
	return &naming{
		nameOfNode:   make(map[string]map[NodeID]string),
		nodeOfName:   make(map[string]map[string]NodeID),
		internalLang: internalLang,
	}
}

// SetName binds node to name within lang. If name is already bound to
// a different node in lang, the rename is rejected — callers wanting a
// merge must remove the old binding first via RemoveName.
func (n *naming) SetName(node NodeID, name, lang string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.nodeOfName[lang] == nil {
		n.nodeOfName[lang] = make(map[string]NodeID)
	}
	if n.nameOfNode[lang] == nil {
		n.nameOfNode[lang] = make(map[NodeID]string)
	}

	if existing, ok := n.nodeOfName[lang][name]; ok && existing != node {
		return errShadowedName(name, lang)
	}

	if old, ok := n.nameOfNode[lang][node]; ok && old != name {
		delete(n.nodeOfName[lang], old)
	}

	n.nameOfNode[lang][node] = name
	n.nodeOfName[lang][name] = node
	return nil
}

// Intern gets-or-creates a node bound to name in lang, allocating a
// fresh atom via alloc when name is unseen. Concurrent calls for the
// same name all return the same node; a caller that loses that race
// leaves its own freshly allocated atom unnamed.
func (n *naming) Intern(name, lang string, alloc func() (NodeID, error)) (NodeID, error) {
	n.mu.Lock()
	if byName, ok := n.nodeOfName[lang]; ok {
		if node, ok := byName[name]; ok {
			n.mu.Unlock()
			return node, nil
		}
	}
	n.mu.Unlock()

	node, err := alloc()
	if err != nil {
		return Zero, err
	}
	if err := n.SetName(node, name, lang); err != nil {
		if existing, ok := n.GetNode(name, lang); ok {
			return existing, nil // another caller bound name first
		}
		return Zero, err
	}
	return node, nil
}

// GetName resolves node's name in lang. When fallback is true and no
// name exists in lang, the chain requested -> English -> internal ->
// arbitrary-first-language is consulted.
func (n *naming) GetName(node NodeID, lang string, fallback bool) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if name, ok := n.lookupLocked(node, lang); ok {
		return name, true
	}
	if !fallback {
		return "", false
	}

	for _, candidate := range []string{"en", n.internalLang} {
		if candidate == "" || candidate == lang {
			continue
		}
		if name, ok := n.lookupLocked(node, candidate); ok {
			return name, true
		}
	}

	for candidate := range n.nameOfNode {
		if name, ok := n.lookupLocked(node, candidate); ok {
			return name, true
		}
	}
	return "", false
}

func (n *naming) lookupLocked(node NodeID, lang string) (string, bool) {
	byNode, ok := n.nameOfNode[lang]
	if !ok {
		return "", false
	}
	name, ok := byNode[node]
	return name, ok
}

// GetNode resolves a name back to a node within lang (no fallback:
// names are only unique per-language, so crossing languages to look a
// name up would be ambiguous).
func (n *naming) GetNode(name, lang string) (NodeID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	byName, ok := n.nodeOfName[lang]
	if !ok {
		return Zero, false
	}
	node, ok := byName[name]
	return node, ok
}

// restore binds node to name within lang without the shadow-conflict
// check SetName performs, for reloading previously-saved, already-
// validated snapshot data.
func (n *naming) restore(node NodeID, name, lang string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nodeOfName[lang] == nil {
		n.nodeOfName[lang] = make(map[string]NodeID)
	}
	if n.nameOfNode[lang] == nil {
		n.nameOfNode[lang] = make(map[NodeID]string)
	}
	n.nameOfNode[lang][node] = name
	n.nodeOfName[lang][name] = node
}

// snapshotAll returns every (lang, node, name) binding.
func (n *naming) snapshotAll() []nameBinding {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []nameBinding
	for lang, byNode := range n.nameOfNode {
		for node, name := range byNode {
			out = append(out, nameBinding{Lang: lang, Node: node, Name: name})
		}
	}
	return out
}

type nameBinding struct {
	Lang string
	Node NodeID
	Name string
}

// RemoveName unbinds node's name in lang, if any.
func (n *naming) RemoveName(node NodeID, lang string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if name, ok := n.nameOfNode[lang][node]; ok {
		delete(n.nameOfNode[lang], node)
		delete(n.nodeOfName[lang], name)
	}
}

// Cleanup purges every naming-table entry referencing a node for
// which alive returns false. Called after Graph.Remove so a removed
// node's edges and naming-table entries disappear together.
func (n *naming) Cleanup(alive func(NodeID) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for lang, byNode := range n.nameOfNode {
		for node, name := range byNode {
			if !alive(node) {
				delete(byNode, node)
				delete(n.nodeOfName[lang], name)
			}
		}
	}
}

// Languages returns every language with at least one bound name.
func (n *naming) Languages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	langs := make([]string, 0, len(n.nameOfNode))
	for lang := range n.nameOfNode {
		langs = append(langs, lang)
	}
	return langs
}

func errShadowedName(name, lang string) error {
	return &nameConflictError{name: name, lang: lang}
}

type nameConflictError struct {
	name, lang string
}

func (e *nameConflictError) Error() string {
	return "kgraph: name " + e.name + " already bound in language " + e.lang
}
