package escape

// Close performs the five-step closure of spec §4.5 over a fully seeded and
// call-site-inlined PTG: component/drain construction (A), multi-edge
// coalescing (B), canonicalization + validation (C), intra-component
// closure (D), and auxiliary drain insertion (E).
//
// Component construction, reachable-drain finding and the BFS helpers below
// are specified recursively in spec §9 for clarity but are implemented
// iteratively (explicit stack/queue) to cope with large functions, per that
// section's guidance.
func (p *PTG) Close() error {
	p.buildComponentsAndDrains()
	p.coalesceMultiEdges()
	if err := p.canonicalize(); err != nil {
		return err
	}
	p.closeInterestingReachability()
	p.insertAuxiliaryDrains()
	return nil
}

// --- Step A: components & drains ---------------------------------------

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// buildComponentsAndDrains computes connected components over assignment
// edges (treated as undirected), picks or synthesizes one drain per
// component, and relocates every component member's outgoing field edges
// onto that drain (spec §4.5 Step A).
func (p *PTG) buildComponentsAndDrains() {
	n := len(p.nodes)
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for _, e := range p.nodes[i].out {
			if e.field == nil {
				uf.union(i, e.target)
			}
		}
	}

	components := map[int][]int{}
	for i := 0; i < n; i++ {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	p.drainSet = map[int]bool{}

	for _, members := range components {
		memberSet := make(map[int]bool, len(members))
		for _, m := range members {
			memberSet[m] = true
		}

		drainID := -1
		for _, cand := range members {
			if p.hasOutgoingAssign(cand) {
				continue
			}
			reach := p.reverseAssignReach(cand)
			if len(reach) == len(members) {
				drainID = cand
				break
			}
		}

		synthetic := drainID == -1
		if synthetic {
			drainID = p.newNode(nil, DepthInfinity, ptgDrain)
			for _, m := range members {
				p.addAssign(m, drainID)
			}
		}

		for _, m := range members {
			p.nodes[m].drain = drainID
		}
		p.nodes[drainID].drain = drainID
		p.drainSet[drainID] = true

		for _, m := range members {
			if m == drainID {
				continue
			}
			p.moveOutgoingFieldEdges(m, drainID)
		}
	}
}

func (p *PTG) hasOutgoingAssign(id int) bool {
	for _, e := range p.nodes[id].out {
		if e.field == nil {
			return true
		}
	}
	return false
}

// reverseAssignReach returns the set of nodes that can reach start via
// directed assignment edges (start's ancestors, plus start itself).
func (p *PTG) reverseAssignReach(start int) map[int]bool {
	visited := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range p.nodes[cur].in {
			if e.field != nil || visited[e.target] {
				continue
			}
			visited[e.target] = true
			stack = append(stack, e.target)
		}
	}
	return visited
}

// moveOutgoingFieldEdges relocates every outgoing field edge of from onto
// to, fixing up the target's reverse edge list.
func (p *PTG) moveOutgoingFieldEdges(from, to int) {
	src := p.nodes[from]
	var kept []ptgEdge
	for _, e := range src.out {
		if e.field == nil {
			kept = append(kept, e)
			continue
		}
		p.nodes[to].out = append(p.nodes[to].out, e)
		tgt := p.nodes[e.target]
		for i, ie := range tgt.in {
			if ie.field != nil && ie.target == from && ie.field.Hash() == e.field.Hash() {
				tgt.in[i].target = to
				break
			}
		}
	}
	src.out = kept
}

// --- Step B: multi-edge coalescing --------------------------------------

// ActualDrain chases a node's drain pointer to its fixed point (the
// union-find forest described in spec §3), compressing the path.
func (p *PTG) ActualDrain(id int) int {
	for p.nodes[id].drain != id {
		p.nodes[id].drain = p.nodes[p.nodes[id].drain].drain
		id = p.nodes[id].drain
	}
	return id
}

func (p *PTG) mergeDrains(a, b int) int {
	a, b = p.ActualDrain(a), p.ActualDrain(b)
	if a == b {
		return a
	}
	aSynthetic := p.nodes[a].kind == ptgDrain
	bSynthetic := p.nodes[b].kind == ptgDrain

	switch {
	case aSynthetic && !bSynthetic:
		p.nodes[b].drain = a
		p.moveOutgoingFieldEdges(b, a)
		return a
	case bSynthetic && !aSynthetic:
		p.nodes[a].drain = b
		p.moveOutgoingFieldEdges(a, b)
		return b
	default:
		parent := p.newNode(nil, DepthInfinity, ptgDrain)
		p.nodes[a].drain = parent
		p.nodes[b].drain = parent
		p.moveOutgoingFieldEdges(a, parent)
		p.moveOutgoingFieldEdges(b, parent)
		delete(p.drainSet, a)
		delete(p.drainSet, b)
		p.drainSet[parent] = true
		return parent
	}
}

// coalesceMultiEdges iteratively merges drains that a shared field label
// resolves to distinct targets for, until no drain carries duplicate field
// labels (spec §4.5 Step B).
func (p *PTG) coalesceMultiEdges() {
	for {
		changed := false
		for d := range p.drainSet {
			if p.ActualDrain(d) != d {
				continue
			}
			groups := map[uint64][]int{}
			for _, e := range p.nodes[d].out {
				if e.field == nil {
					continue
				}
				groups[e.field.Hash()] = append(groups[e.field.Hash()], p.ActualDrain(e.target))
			}
			for _, targets := range groups {
				uniq := map[int]bool{}
				for _, t := range targets {
					uniq[t] = true
				}
				if len(uniq) <= 1 {
					continue
				}
				var keys []int
				for k := range uniq {
					keys = append(keys, k)
				}
				merged := keys[0]
				for _, k := range keys[1:] {
					merged = p.mergeDrains(merged, k)
				}
				changed = true
			}
		}
		if changed {
			p.dedupeFieldEdges()
		} else {
			break
		}
	}
}

// dedupeFieldEdges collapses a drain's outgoing field-edge list to at most
// one edge per field label once merges have made several labels resolve to
// the same actual drain.
func (p *PTG) dedupeFieldEdges() {
	for d := range p.drainSet {
		if p.ActualDrain(d) != d {
			continue
		}
		seen := map[uint64]bool{}
		var out []ptgEdge
		for _, e := range p.nodes[d].out {
			if e.field == nil {
				out = append(out, e)
				continue
			}
			if seen[e.field.Hash()] {
				continue
			}
			seen[e.field.Hash()] = true
			out = append(out, e)
		}
		p.nodes[d].out = out
	}
}

// --- Step C: canonicalize ------------------------------------------------

func (p *PTG) canonicalize() error {
	for i := range p.nodes {
		p.nodes[i].drain = p.ActualDrain(i)
	}
	for i, nd := range p.nodes {
		if nd.drain == i {
			continue
		}
		p.addAssign(i, nd.drain)
	}
	newDrainSet := map[int]bool{}
	for d := range p.drainSet {
		if p.nodes[d].drain == d {
			newDrainSet[d] = true
		}
	}
	p.drainSet = newDrainSet

	for d := range p.drainSet {
		nd := p.nodes[d]
		seen := map[uint64]bool{}
		for _, e := range nd.out {
			if e.field == nil {
				return newFatal("escape: drain invariant violated: node %d has an outgoing assignment edge", d)
			}
			if seen[e.field.Hash()] {
				return newFatal("escape: drain invariant violated: node %d has duplicate field label", d)
			}
			seen[e.field.Hash()] = true
		}
	}
	return nil
}

// --- Step D: intra-component closure ------------------------------------

// interestingSet returns the structurally-fixed "interesting" node set
// available at closure time: every parameter node, the returnsNode, and
// every drain root. (The richer, cactus-pruned "interesting drains" set of
// spec §4.7 is computed later, during painting, over this same skeleton;
// Step D uses this earlier, coarser set.)
func (p *PTG) interestingSet() map[int]bool {
	set := map[int]bool{p.returnsNode: true}
	for _, id := range p.paramNodes {
		if id >= 0 {
			set[id] = true
		}
	}
	for d := range p.drainSet {
		set[d] = true
	}
	return set
}

func (p *PTG) reachableAll(start int) map[int]bool {
	visited := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range p.nodes[cur].out {
			if !visited[e.target] {
				visited[e.target] = true
				stack = append(stack, e.target)
			}
		}
	}
	return visited
}

func (p *PTG) reachableWithin(start int, within map[int]bool) map[int]bool {
	if !within[start] {
		return map[int]bool{}
	}
	visited := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range p.nodes[cur].out {
			if within[e.target] && !visited[e.target] {
				visited[e.target] = true
				stack = append(stack, e.target)
			}
		}
	}
	return visited
}

func (p *PTG) hasDirectEdge(from, to int) bool {
	for _, e := range p.nodes[from].out {
		if e.target == to {
			return true
		}
	}
	return false
}

// closeInterestingReachability adds a direct assignment edge from every
// node to each interesting node it can reach (via any PTG edge) but cannot
// reach while staying entirely within the interesting subgraph - preserving
// transitive relations the painted summary would otherwise hide, since
// painting only walks outward from drains via field edges (spec §4.5
// Step D).
func (p *PTG) closeInterestingReachability() {
	interesting := p.interestingSet()
	n := len(p.nodes)
	for v := 0; v < n; v++ {
		full := p.reachableAll(v)
		within := p.reachableWithin(v, interesting)
		for t := range full {
			if t == v || !interesting[t] || within[t] {
				continue
			}
			if !p.hasDirectEdge(v, t) {
				p.addAssign(v, t)
			}
		}
	}
}

// --- Step E: auxiliary drain insertion ----------------------------------

// insertAuxiliaryDrains synthesizes a helper drain d' with v->d', w->d' for
// every pair of kept nodes v, w that share a component (so both reach its
// drain) but carry no direct edge between them - capturing that v and w may
// alias through the component. The symmetric "one node reaching two kept
// nodes" pattern is never added (spec §4.5 Step E).
func (p *PTG) insertAuxiliaryDrains() {
	byDrain := map[int][]int{}
	kept := p.keptNodes()
	for _, id := range kept {
		d := p.ActualDrain(id)
		byDrain[d] = append(byDrain[d], id)
	}
	for _, members := range byDrain {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				v, w := members[i], members[j]
				if p.hasDirectEdge(v, w) || p.hasDirectEdge(w, v) {
					continue
				}
				helper := p.newNode(nil, DepthInfinity, ptgDrain)
				p.addAssign(v, helper)
				p.addAssign(w, helper)
			}
		}
	}
}

// keptNodes returns the nodes whose identity survives into the compressed
// summary as a root in its own right: parameters and the returnsNode.
func (p *PTG) keptNodes() []int {
	var out []int
	for _, id := range p.paramNodes {
		if id >= 0 {
			out = append(out, id)
		}
	}
	out = append(out, p.returnsNode)
	return out
}
