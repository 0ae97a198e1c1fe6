package escape

import (
	"sort"

	"github.com/viant/nativeescape/dfir"
)

// interestingDrains computes the set of drains reachable from any parameter
// or the return slot, then iteratively prunes "cactus" drains: a leaf drain
// (no outgoing field edge to another interesting drain) whose single
// incoming edge from an interesting source comes from a non-escaping node.
// A parameter's or the return's own drain is never pruned (spec §4.7).
func (p *PTG) interestingDrains() map[int]bool {
	var roots []int
	for _, id := range p.paramNodes {
		if id >= 0 {
			roots = append(roots, id)
		}
	}
	roots = append(roots, p.returnsNode)

	reachable := map[int]bool{}
	for _, r := range roots {
		for t := range p.reachableAll(r) {
			if p.nodes[t].drain == t {
				reachable[t] = true
			}
		}
	}

	own := map[int]bool{}
	for _, r := range roots {
		own[p.ActualDrain(r)] = true
	}

	for {
		pruned := false
		for d := range reachable {
			if own[d] {
				continue
			}
			leaf := true
			for _, e := range p.nodes[d].out {
				if e.field == nil {
					continue
				}
				if reachable[p.ActualDrain(e.target)] {
					leaf = false
					break
				}
			}
			if !leaf {
				continue
			}
			sources := map[int]bool{}
			for _, e := range p.nodes[d].in {
				src := e.target
				if reachable[p.ActualDrain(src)] || own[p.ActualDrain(src)] {
					sources[src] = true
				}
			}
			if len(sources) != 1 {
				continue
			}
			var onlySrc int
			for s := range sources {
				onlySrc = s
			}
			if p.nodes[onlySrc].depth == DepthEscapes {
				continue
			}
			delete(reachable, d)
			pruned = true
		}
		if !pruned {
			break
		}
	}
	return reachable
}

// validatePaintedFieldFanIn enforces spec §7's fatal invariant that a
// painted node never receives more than one incoming field edge, checked
// over every node whose drain is interesting (i.e. every node Paint could
// possibly label).
func (p *PTG) validatePaintedFieldFanIn(interesting map[int]bool) error {
	for id, nd := range p.nodes {
		if !interesting[p.ActualDrain(id)] {
			continue
		}
		count := 0
		for _, e := range nd.in {
			if e.field != nil {
				count++
			}
		}
		if count > 1 {
			return newFatal("escape: painted node %d received %d incoming field edges", id, count)
		}
	}
	return nil
}

// Paint implements spec §4.7: paints parameters/the return slot onto their
// own drains, walks outward along field edges labeling every node whose
// drain is interesting, assigns fresh Drain(k) identifiers (in ascending
// node-id order, so Step E's auxiliary drains - always the highest ids -
// sort last) to any interesting drain the field-edge walk never reached, and
// finally compresses every remaining edge between labeled nodes (capturing
// the aliasing edges Step D/E added) into the FunctionSummary.
func (p *PTG) Paint() (*FunctionSummary, error) {
	interesting := p.interestingDrains()
	if err := p.validatePaintedFieldFanIn(interesting); err != nil {
		return nil, err
	}
	labels := map[int]CompressedNode{}
	var edges []Edge

	type rootSeed struct {
		node  int
		label CompressedNode
	}
	var seeds []rootSeed
	for i, id := range p.paramNodes {
		if id < 0 {
			continue
		}
		seeds = append(seeds, rootSeed{id, CompressedNode{Kind: KindParam, Index: i}})
	}
	seeds = append(seeds, rootSeed{p.returnsNode, CompressedNode{Kind: KindReturn}})

	var queue []int
	for _, s := range seeds {
		drainID := p.ActualDrain(s.node)
		if existing, ok := labels[drainID]; ok {
			if !existing.Equal(s.label) {
				edges = append(edges, Edge{From: s.label, To: existing})
			}
			continue
		}
		labels[drainID] = s.label
		queue = append(queue, drainID)
	}

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		myLabel := labels[d]
		for _, e := range p.nodes[d].out {
			if e.field == nil {
				continue
			}
			n := e.target
			nDrain := p.ActualDrain(n)
			if !interesting[nDrain] {
				continue
			}
			if nDrain == d && n == d {
				continue // plain self-loop: dropped
			}
			newPath := append(append([]dfir.Field(nil), myLabel.Path...), *e.field)
			newLabel := CompressedNode{Kind: myLabel.Kind, Index: myLabel.Index, Path: newPath}
			if existing, ok := labels[n]; ok {
				if !existing.Equal(newLabel) {
					edges = append(edges, Edge{From: myLabel, To: existing})
				}
				continue
			}
			labels[n] = newLabel
			edges = append(edges, Edge{From: myLabel, To: newLabel})
			if n == nDrain {
				queue = append(queue, n)
			}
		}
	}

	var unlabeled []int
	for d := range interesting {
		if _, ok := labels[d]; !ok {
			unlabeled = append(unlabeled, d)
		}
	}
	sort.Ints(unlabeled)
	for k, d := range unlabeled {
		labels[d] = CompressedNode{Kind: KindDrain, Index: k}
	}

	for id, nd := range p.nodes {
		fromLabel, ok := labels[id]
		if !ok {
			continue
		}
		for _, e := range nd.out {
			if e.field != nil {
				continue // already compressed by the field-edge walk above
			}
			if id == e.target {
				continue
			}
			toLabel, ok := labels[e.target]
			if !ok || fromLabel.Equal(toLabel) {
				continue
			}
			edges = append(edges, Edge{From: fromLabel, To: toLabel})
		}
	}

	var escaping []CompressedNode
	for id, label := range labels {
		if p.nodes[id].depth == DepthEscapes {
			escaping = append(escaping, label)
		}
	}

	return &FunctionSummary{
		NumberOfDrains: len(unlabeled),
		Edges:          sortDedupEdges(edges),
		Escaping:       sortDedupNodes(escaping),
	}, nil
}
