// Package callgraphx adapts a golang.org/x/tools/go/callgraph.Graph - the
// kind the host compiler's own SSA front end builds while compiling Go
// source - into the escape package's name-keyed CallGraph collaborator.
//
// callgraph.Graph is keyed by *ssa.Function, which only exists for a Go
// compilation unit; the analysis itself runs over dfir.Function values that
// may originate from any source language's front end. Adapter bridges the
// two by its *ssa.Function nodes' fully qualified names (ssa.Function.String
// already returns one), which is also how a dfir.Node's CalleeSymbol and a
// dfir.Module's Symbols map key their own functions - so a caller wiring a
// Go front end's own callgraph.Graph into this pass gets the condensation
// for free instead of re-deriving it from the DFIR.
package callgraphx

import (
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/ssa"
)

// Adapter implements escape.CallGraph over a *callgraph.Graph, computed
// once at construction time.
type Adapter struct {
	sccs    [][]string
	callers map[string]map[string]bool // callee -> set of direct in-graph callers
}

// NewAdapter builds an Adapter from g, computing the strongly connected
// component condensation eagerly so repeated Condensation/CallersWithinSCC
// calls are free.
func NewAdapter(g *callgraph.Graph) *Adapter {
	a := &Adapter{
		callers: map[string]map[string]bool{},
	}
	if g == nil {
		return a
	}

	names := make(map[*ssa.Function]string, len(g.Nodes))
	adj := map[string][]string{}
	for fn, node := range g.Nodes {
		if fn == nil {
			continue
		}
		name := qualifiedName(fn)
		names[fn] = name
		if _, ok := adj[name]; !ok {
			adj[name] = nil
		}
		for _, e := range node.Out {
			if e == nil || e.Callee == nil || e.Callee.Func == nil {
				continue
			}
			calleeName := qualifiedName(e.Callee.Func)
			adj[name] = append(adj[name], calleeName)
			if a.callers[calleeName] == nil {
				a.callers[calleeName] = map[string]bool{}
			}
			a.callers[calleeName][name] = true
		}
	}

	a.sccs = tarjanSCCs(adj)
	return a
}

// qualifiedName is the single place this package decides how an
// *ssa.Function maps to the qualified-name strings dfir.Node.CalleeSymbol
// and dfir.Module.Symbols use.
func qualifiedName(fn *ssa.Function) string {
	return fn.String()
}

// Condensation implements escape.CallGraph.
func (a *Adapter) Condensation() [][]string {
	out := make([][]string, len(a.sccs))
	for i, scc := range a.sccs {
		out[i] = append([]string(nil), scc...)
	}
	return out
}

// CallersWithinSCC implements escape.CallGraph: every direct in-graph
// caller of fn that also belongs to scc.
func (a *Adapter) CallersWithinSCC(fn string, scc []string) []string {
	callers := a.callers[fn]
	if len(callers) == 0 {
		return nil
	}
	members := make(map[string]bool, len(scc))
	for _, m := range scc {
		members[m] = true
	}
	var out []string
	for c := range callers {
		if members[c] {
			out = append(out, c)
		}
	}
	return out
}
