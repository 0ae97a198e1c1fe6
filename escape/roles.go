package escape

import "github.com/viant/nativeescape/dfir"

// RoleAssignment is the output of the intraprocedural role-assignment pass
// (spec §4.1): a NodeInfo per DFIR node of a function, plus the node set in
// a stable discovery order for deterministic downstream iteration.
type RoleAssignment struct {
	Infos     map[*dfir.Node]*dfir.NodeInfo
	AllNodes  []*dfir.Node
	RootScope *dfir.Node
}

// AssignRoles walks a function's scope tree once to assign lexical depths
// (root scope depth -1, +1 per nesting) and then assigns roles to every
// non-scope node reached, per spec §4.1. Traversal is iterative (explicit
// stack), per spec §9's recursion-depth note.
func AssignRoles(fn *dfir.Function) *RoleAssignment {
	depths, order := collectAndDepth(fn.RootScope)

	infos := make(map[*dfir.Node]*dfir.NodeInfo, len(depths))
	for n, d := range depths {
		infos[n] = &dfir.NodeInfo{Depth: d}
	}
	get := func(n *dfir.Node) *dfir.NodeInfo {
		info, ok := infos[n]
		if !ok {
			// a node reached only through Returns/Throws that the scope
			// walk did not otherwise discover; treat it as depth 0 so it
			// still participates in seeding.
			info = &dfir.NodeInfo{}
			infos[n] = info
		}
		return info
	}

	for _, retNode := range fn.Returns {
		if retNode != nil {
			get(retNode).AddEntry(dfir.RoleReturnValue, nil, dfir.Field{}, false)
		}
	}
	for _, thrNode := range fn.Throws {
		if thrNode != nil {
			get(thrNode).AddEntry(dfir.RoleThrowValue, nil, dfir.Field{}, false)
		}
	}

	for _, n := range order {
		switch n.Kind {
		case dfir.KindFieldWrite:
			if n.Receiver == nil {
				get(n.Value).AddEntry(dfir.RoleWrittenToGlobal, nil, dfir.Field{}, false)
			} else {
				get(n.Receiver).AddEntry(dfir.RoleWriteField, n.Value, n.Field, true)
			}
		case dfir.KindArrayWrite:
			if n.Receiver == nil {
				get(n.Value).AddEntry(dfir.RoleWrittenToGlobal, nil, dfir.Field{}, false)
			} else {
				get(n.Receiver).AddEntry(dfir.RoleWriteField, n.Value, dfir.INTESTINES, true)
			}
		case dfir.KindFieldRead:
			if n.Receiver == nil {
				get(n).AddEntry(dfir.RoleWrittenToGlobal, nil, dfir.Field{}, false)
			} else {
				get(n.Receiver).AddEntry(dfir.RoleReadField, n, n.Field, true)
			}
		case dfir.KindArrayRead:
			if n.Receiver == nil {
				get(n).AddEntry(dfir.RoleWrittenToGlobal, nil, dfir.Field{}, false)
			} else {
				get(n.Receiver).AddEntry(dfir.RoleReadField, n, dfir.INTESTINES, true)
			}
		case dfir.KindSingleton:
			if !n.IsNothingType() {
				get(n).AddEntry(dfir.RoleWrittenToGlobal, nil, dfir.Field{}, false)
			}
		case dfir.KindVariable:
			for _, v := range n.Values {
				if v != nil {
					get(n).AddEntry(dfir.RoleAssigned, v, dfir.Field{}, false)
				}
			}
		}
	}

	return &RoleAssignment{Infos: infos, AllNodes: order, RootScope: fn.RootScope}
}

// collectAndDepth walks the scope tree rooted at root, assigning a lexical
// depth to every reachable non-scope node, and additionally discovers
// sub-expression nodes (a FieldRead's receiver, a Call's arguments, ...)
// that the scope's direct statement list does not itself enumerate,
// assigning them the depth of the node that referenced them. The walk is
// explicit-stack (spec §9: "must be implemented iteratively").
func collectAndDepth(root *dfir.Node) (map[*dfir.Node]int, []*dfir.Node) {
	depths := map[*dfir.Node]int{}
	visited := map[*dfir.Node]bool{}
	var order []*dfir.Node

	type frame struct {
		node  *dfir.Node
		depth int
	}
	if root == nil {
		return depths, order
	}
	stack := []frame{{root, -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node == nil || visited[f.node] {
			continue
		}
		visited[f.node] = true

		if f.node.Kind == dfir.KindScope {
			for i := len(f.node.Nodes) - 1; i >= 0; i-- {
				c := f.node.Nodes[i]
				if c == nil {
					continue
				}
				childDepth := f.depth
				if c.Kind == dfir.KindScope {
					childDepth = f.depth + 1
				}
				stack = append(stack, frame{c, childDepth})
			}
			continue
		}

		depths[f.node] = f.depth
		order = append(order, f.node)
		for _, sub := range subNodes(f.node) {
			stack = append(stack, frame{sub, f.depth})
		}
	}
	return depths, order
}

// subNodes returns the sub-expression nodes referenced by n that may not
// otherwise be enumerated by a scope's direct statement list.
func subNodes(n *dfir.Node) []*dfir.Node {
	var out []*dfir.Node
	switch n.Kind {
	case dfir.KindVariable:
		out = append(out, n.Values...)
	case dfir.KindFieldRead, dfir.KindArrayRead:
		if n.Receiver != nil {
			out = append(out, n.Receiver)
		}
	case dfir.KindFieldWrite, dfir.KindArrayWrite:
		if n.Receiver != nil {
			out = append(out, n.Receiver)
		}
		if n.Value != nil {
			out = append(out, n.Value)
		}
	case dfir.KindNewObject:
		out = append(out, n.Arguments...)
	case dfir.KindCall:
		out = append(out, n.Arguments...)
		if n.Callee != nil {
			out = append(out, n.Callee)
		}
	}
	return out
}
