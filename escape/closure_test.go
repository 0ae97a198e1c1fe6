package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/nativeescape/dfir"
)

// TestClose_MultiEdgeMergeAndAuxiliaryDrain exercises the parts of the PTG
// builder/closure engine no other test reaches: coalesceMultiEdges (Step
// B), insertAuxiliaryDrains (Step E), and a compressed summary that actually
// carries a Drain(k).
//
// p0 and p1 alias through a Variable (phi) node, so Step A's component
// search can't find either parameter as a sink and synthesizes a fresh
// drain for the pair. Each parameter then writes a distinct local
// allocation through the same field name, so the drain's outgoing field
// edges - relocated there from p0 and p1 by Step A - carry the same field
// label pointing at two different targets. Step B must coalesce those
// targets into one drain. Because p0 and p1 are both kept (parameters) and
// only reach their shared drain indirectly through the phi node, with no
// direct edge between them, Step E must also synthesize an auxiliary drain
// linking the two.
func TestClose_MultiEdgeMergeAndAuxiliaryDrain(t *testing.T) {
	p0 := &dfir.Node{Kind: dfir.KindParameter, ParamIndex: 0}
	p1 := &dfir.Node{Kind: dfir.KindParameter, ParamIndex: 1}
	phi := &dfir.Node{Kind: dfir.KindVariable, Values: []*dfir.Node{p0, p1}}
	x := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "T", IR: "x"}
	y := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "T", IR: "y"}
	writeP0 := &dfir.Node{Kind: dfir.KindFieldWrite, Receiver: p0, Field: structField, Value: x}
	writeP1 := &dfir.Node{Kind: dfir.KindFieldWrite, Receiver: p1, Field: structField, Value: y}

	fn := &dfir.Function{
		Name:       "alias",
		ParamCount: 2,
		RootScope:  scopeOf(phi, writeP0, writeP1),
		Parameters: []*dfir.Node{p0, p1},
		NewObjects: []*dfir.Node{x, y},
	}

	ra := AssignRoles(fn)
	ptg := BuildPTG(DefaultContext(), fn, ra, nil)
	require.NoError(t, ptg.Close())
	ptg.ClassifyLifetimes(DefaultContext())

	xID, xOK := ptg.index[x]
	yID, yOK := ptg.index[y]
	require.True(t, xOK)
	require.True(t, yOK)
	assert.Equal(t, ptg.ActualDrain(xID), ptg.ActualDrain(yID),
		"Step B should have coalesced x and y's drains: both were reached through the same field label off the aliased p0/p1 component")

	p0ID, p0OK := ptg.index[p0]
	p1ID, p1OK := ptg.index[p1]
	require.True(t, p0OK)
	require.True(t, p1OK)

	var sharedTargets []int
	for cand := 0; cand < ptg.NumNodes(); cand++ {
		if ptg.hasDirectEdge(p0ID, cand) && ptg.hasDirectEdge(p1ID, cand) {
			sharedTargets = append(sharedTargets, cand)
		}
	}
	assert.GreaterOrEqual(t, len(sharedTargets), 2,
		"expected both the component's own drain and Step E's synthesized auxiliary drain to be reachable from both p0 and p1, got %v", sharedTargets)

	summary, err := ptg.Paint()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.NumberOfDrains, 1,
		"expected at least one fresh Drain(k) in the compressed summary (the merged x/y drain)")
}
