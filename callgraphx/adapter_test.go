package callgraphx

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"sort"
	"testing"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

func TestNewAdapter_NilGraph(t *testing.T) {
	a := NewAdapter(nil)
	if got := a.Condensation(); len(got) != 0 {
		t.Fatalf("expected no SCCs for a nil graph, got %v", got)
	}
	if got := a.CallersWithinSCC("anything", nil); got != nil {
		t.Fatalf("expected no callers for a nil graph, got %v", got)
	}
}

func TestNewAdapter_EmptyGraph(t *testing.T) {
	a := NewAdapter(&callgraph.Graph{})
	if got := a.Condensation(); len(got) != 0 {
		t.Fatalf("expected no SCCs for an empty graph, got %v", got)
	}
}

func TestAdapter_CallersWithinSCC_UnknownName(t *testing.T) {
	a := NewAdapter(nil)
	if got := a.CallersWithinSCC("never-called", []string{"never-called"}); got != nil {
		t.Fatalf("expected nil callers for a name with no callers, got %v", got)
	}
}

// TestAdapter_PopulatedGraph builds a real *ssa.Program from a tiny
// in-memory package (A calls B and C; B calls C), derives its call graph via
// CHA, and checks NewAdapter's walk of g.Nodes/node.Out/e.Callee.Func
// against real *ssa.Function and *callgraph.Edge objects - not the nil or
// empty graphs the rest of this file covers.
func TestAdapter_PopulatedGraph(t *testing.T) {
	const src = `package p

func A() { B(); C() }
func B() { C() }
func C() {}
`
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	if err != nil {
		t.Fatalf("parse source: %v", err)
	}

	ssaPkg, _, err := ssautil.BuildPackage(&types.Config{}, fset, types.NewPackage("p", "p"), []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("build ssa package: %v", err)
	}
	ssaPkg.Build()

	cg := cha.CallGraph(ssaPkg.Prog)
	a := NewAdapter(cg)

	funcA, funcB, funcC := ssaPkg.Func("A"), ssaPkg.Func("B"), ssaPkg.Func("C")
	if funcA == nil || funcB == nil || funcC == nil {
		t.Fatalf("expected A, B and C to all be present in the built SSA package")
	}
	nameA, nameB, nameC := funcA.String(), funcB.String(), funcC.String()

	if got := a.Condensation(); len(got) == 0 {
		t.Fatalf("expected a non-empty condensation for a populated graph")
	}

	if got := a.CallersWithinSCC(nameB, []string{nameA, nameB}); len(got) != 1 || got[0] != nameA {
		t.Fatalf("expected B's only in-scc caller to be A, got %v", got)
	}

	got := a.CallersWithinSCC(nameC, []string{nameA, nameB, nameC})
	sort.Strings(got)
	want := []string{nameA, nameB}
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected C's in-scc callers to be A and B, got %v", got)
	}

	if got := a.CallersWithinSCC(nameC, []string{nameC}); got != nil {
		t.Fatalf("expected no in-scc callers for C when neither A nor B is in the given scc, got %v", got)
	}
}
