package kgraph

import "strings"

// GetSources returns every subject S such that fact S predicate {...,
// target, ...} is asserted, optionally excluding variable subjects.
// This is a reverse lookup: it walks target's incoming object edges
// (F is in right[target], since target->fact is a one-directional
// object edge) rather than enumerating the whole graph.
func (k *Kernel) GetSources(predicate, target NodeID, excludeVars bool) []NodeID {
	var out []NodeID
	for _, fact := range k.RightOf(target) {
		s, p, _, err := k.ParseFact(fact)
		if err != nil || p != predicate || k.HasRightEdge(fact, target) {
			continue
		}
		if excludeVars && s.IsVariable() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FormatFact renders node for diagnostics: a bare name/id for atoms
// and variables, or "S predicate O1, O2" for a reified fact, "sub1 ∧
// sub2" for a conjunction. lang selects the start of the naming
// fallback chain (requested -> English -> internal -> any language).
func (k *Kernel) FormatFact(node NodeID, lang string) string {
	if k.IsConjunction(node, k.core.And) {
		subs := k.ParseConjunction(node)
		parts := make([]string, len(subs))
		for i, s := range subs {
			parts[i] = k.FormatFact(s, lang)
		}
		return strings.Join(parts, " ∧ ")
	}

	s, p, objs, err := k.ParseFact(node)
	if err != nil {
		return k.formatNode(node, lang)
	}

	parts := make([]string, len(objs))
	for i, o := range objs {
		parts[i] = k.formatNode(o, lang)
	}
	return k.formatNode(s, lang) + " " + k.formatNode(p, lang) + " " + strings.Join(parts, ", ")
}

func (k *Kernel) formatNode(node NodeID, lang string) string {
	if name, ok := k.names.GetName(node, lang, true); ok {
		return name
	}
	return node.String()
}
