package escape

import "github.com/viant/nativeescape/dfir"

// ptgNodeKind distinguishes the three node origins a PTG node can have
// (spec §3: "Nodes are of two origins: one per DFIR node ... plus synthetic
// drain nodes and one dedicated returnsNode").
type ptgNodeKind int

const (
	ptgRegular ptgNodeKind = iota
	ptgDrain
	ptgReturns
)

// ptgEdge is a PTG edge: a nil Field denotes an assignment edge, any
// non-nil Field denotes a field edge (spec §3).
type ptgEdge struct {
	target int
	field  *dfir.Field
}

// ptgNode is one arena-owned points-to graph node, referenced by its index
// into PTG.nodes - an int handle, not a pointer, per spec §5/§9's guidance
// to avoid unconstrained aliasing over a cyclic graph.
type ptgNode struct {
	origin *dfir.Node // nil for synthetic drain/returns nodes
	kind   ptgNodeKind

	lexicalDepth int // the node's depth as seeded, before ESCAPES/PARAMETER/etc.
	depth        int // current depth, mutated by propagation

	out []ptgEdge
	in  []ptgEdge

	fieldCache map[uint64]int // field hash -> target node id (gotoField memo)

	forced *Lifetime // set by stack-budget rejection / forced-heap propagation

	drain int // union-find parent; a node with drain == its own id is a root

	seedKind seedKind // why this node's initial depth was what it was (spec §4.6 classification table)
}

// seedKind records which seeding rule produced a node's initial depth,
// driving the lifetime classification table of spec §4.6 independently of
// whatever the depth decays to under propagation.
type seedKind int

const (
	seedLexical seedKind = iota
	seedEscapes
	seedParameter
	seedReturnValue
)

// PTG is the mutable, per-function points-to graph built and owned by the
// analyser for the duration of analysing the enclosing SCC (spec §3
// ownership note).
type PTG struct {
	ctx Context
	fn  *dfir.Function

	nodes []*ptgNode
	index map[*dfir.Node]int // DFIR node -> ptg node id

	returnsNode int
	paramNodes  []int // param index -> ptg node id, -1 if never referenced

	droppedCallSiteEdges int // spec §9 Open Question (i)

	drainSet map[int]bool // populated by Close: current drain-root node ids

	lifetimes map[*dfir.Node]Lifetime // populated by ClassifyLifetimes, read back by the driver at SCC convergence
}

func (p *PTG) newNode(origin *dfir.Node, depth int, kind ptgNodeKind) int {
	id := len(p.nodes)
	p.nodes = append(p.nodes, &ptgNode{origin: origin, kind: kind, lexicalDepth: depth, depth: depth, drain: id})
	return id
}

// NumNodes returns the number of PTG nodes, including synthetic ones.
func (p *PTG) NumNodes() int { return len(p.nodes) }

// gotoField returns the (lazily created) intermediate PTG node representing
// node n's `f` field slot, adding a field edge n —f→ n.[f] on first access
// (spec §4.4 "Edge insertion": WRITE_FIELD/READ_FIELD use `gotoField`).
func (p *PTG) gotoField(n int, f dfir.Field) int {
	nd := p.nodes[n]
	if nd.fieldCache == nil {
		nd.fieldCache = map[uint64]int{}
	}
	if id, ok := nd.fieldCache[f.Hash()]; ok {
		return id
	}
	id := p.newNode(nil, DepthInfinity, ptgRegular)
	nd.fieldCache[f.Hash()] = id
	p.addFieldEdge(n, f, id)
	return id
}

func (p *PTG) addAssign(from, to int) {
	p.nodes[from].out = append(p.nodes[from].out, ptgEdge{target: to})
	p.nodes[to].in = append(p.nodes[to].in, ptgEdge{target: from})
}

func (p *PTG) addFieldEdge(from int, f dfir.Field, to int) {
	p.nodes[from].out = append(p.nodes[from].out, ptgEdge{target: to, field: &f})
	p.nodes[to].in = append(p.nodes[to].in, ptgEdge{target: from, field: &f})
}

// BuildPTG seeds a fresh points-to graph for fn from its role assignment
// (spec §4.4 "Seeding" + "Edge insertion"). ownSymbol, when non-nil, is this
// function's own packed annotation (spec §4.4 "Applying external
// annotations").
func BuildPTG(ctx Context, fn *dfir.Function, ra *RoleAssignment, ownSymbol *dfir.Symbol) *PTG {
	p := &PTG{ctx: ctx, fn: fn, index: map[*dfir.Node]int{}}
	p.paramNodes = make([]int, fn.ParamCount)
	for i := range p.paramNodes {
		p.paramNodes[i] = -1
	}

	// Seeding: one PTG node per DFIR node, with the initial depth rule of
	// spec §4.4.
	for _, n := range ra.AllNodes {
		info := ra.Infos[n]
		// NodeInfo puts the root scope's own nodes at depth -1; shift by one
		// so lexical depths are non-negative and never equal DepthReturnValue.
		depth := info.Depth + 1
		kind := seedLexical
		switch {
		case info.Escapes():
			depth = DepthEscapes
			kind = seedEscapes
		case n.Kind == dfir.KindParameter:
			depth = DepthParameter
			kind = seedParameter
		case info.Has(dfir.RoleReturnValue):
			depth = DepthReturnValue
			kind = seedReturnValue
		}
		id := p.newNode(n, depth, ptgRegular)
		p.nodes[id].seedKind = kind
		p.index[n] = id
		if n.Kind == dfir.KindParameter && n.ParamIndex >= 0 && n.ParamIndex < len(p.paramNodes) {
			p.paramNodes[n.ParamIndex] = id
		}
	}

	// Dedicated returnsNode, whose info carries the RETURN_VALUE role.
	p.returnsNode = p.newNode(nil, DepthReturnValue, ptgReturns)

	resolve := func(n *dfir.Node) (int, bool) {
		id, ok := p.index[n]
		return id, ok
	}

	// Edge insertion.
	for _, n := range ra.AllNodes {
		info := ra.Infos[n]
		hostID := p.index[n]

		for _, e := range info.EntriesFor(dfir.RoleAssigned) {
			if otherID, ok := resolve(e.Other); ok {
				p.addAssign(hostID, otherID)
			}
		}
		for _, e := range info.EntriesFor(dfir.RoleWriteField) {
			if otherID, ok := resolve(e.Other); ok {
				slot := p.gotoField(hostID, e.Field)
				p.addAssign(slot, otherID)
			}
		}
		for _, e := range info.EntriesFor(dfir.RoleReadField) {
			// e.Other is the read node itself ("thisNode" in spec §4.1);
			// the assignment edge runs PTG(readNode) -> host.[field].
			if otherID, ok := resolve(e.Other); ok {
				slot := p.gotoField(hostID, e.Field)
				p.addAssign(otherID, slot)
			}
		}
		if info.Has(dfir.RoleReturnValue) {
			slot := p.gotoField(p.returnsNode, dfir.RETURN_VALUE)
			p.addAssign(slot, hostID)
		}
	}

	// Applying external annotations: if the function itself carries a
	// packed `escapes` annotation, OR the indicated bits directly into the
	// PTG.
	if ownSymbol != nil && ownSymbol.Escapes != nil {
		mask := *ownSymbol.Escapes
		for i := 0; i <= fn.ParamCount; i++ {
			if mask&(1<<uint(i)) == 0 {
				continue
			}
			var id int
			if i == fn.ParamCount {
				id = p.returnsNode
			} else if i < len(p.paramNodes) && p.paramNodes[i] >= 0 {
				id = p.paramNodes[i]
			} else {
				continue
			}
			p.nodes[id].depth = DepthEscapes
		}
	}

	return p
}

// callArgs builds the argument array a call site resolves compressed nodes
// against (spec §4.4 "Call-site inlining" step 1). For a Call node,
// args[0..n-1] are the actual arguments and args[n] is the call node itself
// (the return slot). For a NewObject, args[0] is the new object itself
// (acting as the receiver) and args[1..n] are the constructor arguments.
func (p *PTG) callArgs(call *dfir.Node) (args []int, returnSlot int, ok bool) {
	callID, exists := p.index[call]
	if !exists {
		return nil, 0, false
	}
	switch call.Kind {
	case dfir.KindCall:
		args = make([]int, len(call.Arguments)+1)
		for i, a := range call.Arguments {
			id, argOK := p.index[a]
			if !argOK {
				args[i] = -1
				continue
			}
			args[i] = id
		}
		args[len(call.Arguments)] = callID
		return args, len(call.Arguments), true
	case dfir.KindNewObject:
		args = make([]int, len(call.Arguments)+1)
		args[0] = callID
		for i, a := range call.Arguments {
			id, argOK := p.index[a]
			if !argOK {
				args[i+1] = -1
				continue
			}
			args[i+1] = id
		}
		// A constructor's implicit "return" is the object itself: there is
		// no separate result slot in the DFIR, so Return resolves to
		// args[0].
		return args, 0, true
	default:
		return nil, 0, false
	}
}

// InlineCallSite merges a callee's compressed summary into p at the given
// call site (spec §4.4 "Call-site inlining" steps 2-5).
func (p *PTG) InlineCallSite(call *dfir.Node, summary *FunctionSummary, warn func(string, ...interface{})) {
	args, returnSlot, ok := p.callArgs(call)
	if !ok {
		return
	}

	drains := make([]int, summary.NumberOfDrains)
	for i := range drains {
		drains[i] = p.newNode(nil, DepthInfinity, ptgDrain)
	}

	resolveRoot := func(n CompressedNode) (int, bool) {
		switch n.Kind {
		case KindReturn:
			if call.Kind == dfir.KindNewObject {
				return args[0], args[0] >= 0
			}
			idx := returnSlot
			if idx < 0 || idx >= len(args) {
				return 0, false
			}
			return args[idx], args[idx] >= 0
		case KindParam:
			if n.Index < 0 || n.Index >= len(args) {
				return 0, false
			}
			return args[n.Index], args[n.Index] >= 0
		case KindDrain:
			if n.Index < 0 || n.Index >= len(drains) {
				return 0, false
			}
			return drains[n.Index], true
		default:
			return 0, false
		}
	}

	resolve := func(n CompressedNode) (int, bool) {
		id, rootOK := resolveRoot(n)
		if !rootOK {
			return 0, false
		}
		for _, f := range n.Path {
			if f.Equal(dfir.RETURN_VALUE) {
				// the sentinel RETURN_VALUE field in the path is a no-op:
				// the return slot is already the root.
				continue
			}
			id = p.gotoField(id, f)
		}
		return id, true
	}

	for _, esc := range summary.Escaping {
		id, escOK := resolve(esc)
		if !escOK {
			p.droppedCallSiteEdges++
			if warn != nil {
				warn("call-site argument absent for escaping node %s", esc.String())
			}
			continue
		}
		p.nodes[id].depth = DepthEscapes
	}

	for _, e := range summary.Edges {
		fromID, fromOK := resolve(e.From)
		toID, toOK := resolve(e.To)
		if !fromOK || !toOK {
			p.droppedCallSiteEdges++
			if warn != nil {
				warn("call-site argument absent mapping edge %s -> %s", e.From.String(), e.To.String())
			}
			continue
		}
		p.addAssign(fromID, toID)
	}
}
