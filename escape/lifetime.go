package escape

import "github.com/viant/nativeescape/dfir"

// PropagateDepths runs depth propagation to a fixed point along every PTG
// edge (both assignment and field, per spec §4.5/§4.6 - the two edge kinds
// are not distinguished for this purpose): each edge lowers its target's
// depth to at most its source's depth, with ESCAPES and INFINITY absorbing
// (spec §4.6 "Propagate depths along directed edges").
func (p *PTG) PropagateDepths() {
	changed := true
	for changed {
		changed = false
		for _, nd := range p.nodes {
			for _, e := range nd.out {
				target := p.nodes[e.target]
				if lower(nd.depth, target.depth) {
					target.depth = nd.depth
					changed = true
				}
			}
		}
	}
}

// lower reports whether a is a strictly "more escaping" depth than b, where
// DepthEscapes is the most escaping value, DepthInfinity the least, and all
// other values are ordered normally (spec §3 "lower is more escaping").
func lower(a, b int) bool {
	rank := func(v int) int {
		switch v {
		case DepthEscapes:
			return -1000000
		case DepthInfinity:
			return 1000000
		default:
			return v
		}
	}
	return rank(a) < rank(b)
}

// stackArrayCandidate is a NewObject site competing for the per-frame stack
// budget (spec §4.6 "Stack-array budget").
type stackArrayCandidate struct {
	node *dfir.Node
	id   int
	size int
}

// ClassifyLifetimes implements spec §4.6 end to end: depth propagation,
// per-node classification against the table, stack-array greedy admission
// under the frame byte budget, and (when enabled) forced-heap propagation
// repeated to a fixed point. It returns the uncollapsed Lifetime for every
// NewObject node in fn; Lifetime.Collapse maps it to the emitted value.
func (p *PTG) ClassifyLifetimes(ctx Context) map[*dfir.Node]Lifetime {
	p.PropagateDepths()

	result := map[*dfir.Node]Lifetime{}
	classify := func() {
		for n, id := range p.index {
			if n.Kind != dfir.KindNewObject {
				continue
			}
			result[n] = p.classifyNode(id)
		}
	}
	classify()

	p.admitStackArrays(ctx, result)

	if ctx.PropagateForcedToHeapObjects {
		for {
			anyForced := false
			for n, id := range p.index {
				if result[n] != LifetimeGlobal {
					continue
				}
				nd := p.nodes[id]
				if nd.depth != DepthEscapes {
					nd.depth = DepthEscapes
					anyForced = true
				}
			}
			if !anyForced {
				break
			}
			p.PropagateDepths()
			changed := false
			for n, id := range p.index {
				if n.Kind != dfir.KindNewObject {
					continue
				}
				next := p.classifyNode(id)
				if next != result[n] {
					result[n] = next
					changed = true
				}
			}
			p.admitStackArrays(ctx, result)
			if !changed {
				break
			}
		}
	}

	p.lifetimes = result
	return result
}

// StackArrayStats reports, over every stack-array candidate site walked in
// this function, how many ended up admitted onto the stack versus rejected
// to the heap (budget overflow, an unresolvable length, or escape) - the secondary
// artifact surfaced on escape.Stats (SPEC_FULL.md "Supplemented Features").
func (p *PTG) StackArrayStats() (admitted, rejected int) {
	for n := range p.index {
		if n.Kind != dfir.KindNewObject || n.ArrayCandidate == nil {
			continue
		}
		if p.lifetimes[n] == LifetimeStack {
			admitted++
		} else {
			rejected++
		}
	}
	return admitted, rejected
}

// classifyNode maps a single PTG node's seed kind and current depth to a
// Lifetime per the classification table of spec §4.6.
func (p *PTG) classifyNode(id int) Lifetime {
	nd := p.nodes[id]
	if nd.forced != nil {
		return *nd.forced
	}
	if nd.depth == DepthEscapes {
		return LifetimeGlobal
	}
	switch nd.seedKind {
	case seedParameter:
		return LifetimeArgument
	case seedReturnValue:
		return LifetimeReturnValue
	}
	if nd.depth == DepthReturnValue {
		// Reached the return-value sentinel purely through propagation
		// (e.g. via a field of the returned object), not by direct seeding.
		return LifetimeIndirectReturnValue
	}
	if nd.depth == nd.lexicalDepth {
		return LifetimeStack
	}
	return LifetimeLocal
}

// admitStackArrays applies the greedy, ascending-size stack-array budget of
// spec §4.6: among the NewObject sites that classifyNode currently puts on
// the stack AND that construct a fixed-size array, admit them in ascending
// byte-size order until the per-frame StackArrayBudget is exhausted; the
// rest are forced to GLOBAL via nd.forced so later passes (and
// forced-heap propagation) see them as such.
func (p *PTG) admitStackArrays(ctx Context, result map[*dfir.Node]Lifetime) {
	var candidates []stackArrayCandidate
	for n, id := range p.index {
		if n.Kind != dfir.KindNewObject || n.ArrayCandidate == nil {
			continue
		}
		if result[n] != LifetimeStack {
			continue
		}
		if p.nodes[id].forced != nil {
			continue
		}
		length, ok := n.ArrayCandidate.Length.AsConstInt()
		if !ok {
			// Not a stack-array candidate at all (spec §4.6 "iff its length
			// argument resolves to an integer constant"): the code generator
			// has no fixed size to reserve a stack slot for, so this array
			// is forced to GLOBAL regardless of what its escape depth alone
			// would have classified it as (spec §8 boundary behaviour 12).
			g := LifetimeGlobal
			p.nodes[id].forced = &g
			result[n] = LifetimeGlobal
			continue
		}
		itemSize := n.ArrayCandidate.Elem.ItemSize(ctx.PointerSize)
		size := ctx.PointerSize + 4 + itemSize*int(length)
		candidates = append(candidates, stackArrayCandidate{node: n, id: id, size: size})
	}
	if len(candidates) == 0 {
		return
	}
	sortCandidatesBySize(candidates)

	budget := ctx.StackArrayBudget
	for _, c := range candidates {
		if c.size <= budget {
			budget -= c.size
			continue
		}
		g := LifetimeGlobal
		p.nodes[c.id].forced = &g
		result[c.node] = LifetimeGlobal
	}
}

func sortCandidatesBySize(c []stackArrayCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].size < c[j-1].size; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
