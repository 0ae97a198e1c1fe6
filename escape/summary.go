package escape

import (
	"fmt"
	"sort"

	"github.com/viant/nativeescape/dfir"
)

// NodeKind discriminates the three kinds of roots a compressed summary node
// can be painted from (spec §3 "compressed points-to graph").
type NodeKind int

const (
	KindReturn NodeKind = iota
	KindParam
	KindDrain
)

// CompressedNode is an externally visible summary node: a kind/index root
// plus a (possibly empty) field path walking from that root.
type CompressedNode struct {
	Kind  NodeKind     `yaml:"kind"`
	Index int          `yaml:"index,omitempty"` // meaningful for KindParam (param index) and KindDrain (drain index)
	Path  []dfir.Field `yaml:"path,omitempty"`
}

// AbsoluteIndex implements the summary ordering key from spec §3:
// "Return=0, Param(i)=i-10^6, Drain(i)=i+1".
func (n CompressedNode) AbsoluteIndex() int {
	switch n.Kind {
	case KindReturn:
		return 0
	case KindParam:
		return n.Index - 1_000_000
	case KindDrain:
		return n.Index + 1
	default:
		panic(fmt.Sprintf("escape: invalid NodeKind %d", n.Kind))
	}
}

// Compare orders two compressed nodes: by AbsoluteIndex, then
// lexicographically by path[*].hash, with a shorter path winning ties
// (spec §3 "Ordering").
func (n CompressedNode) Compare(other CompressedNode) int {
	if ai, bi := n.AbsoluteIndex(), other.AbsoluteIndex(); ai != bi {
		if ai < bi {
			return -1
		}
		return 1
	}
	for i := 0; i < len(n.Path) && i < len(other.Path); i++ {
		ah, bh := n.Path[i].Hash(), other.Path[i].Hash()
		if ah != bh {
			if ah < bh {
				return -1
			}
			return 1
		}
	}
	if len(n.Path) != len(other.Path) {
		if len(n.Path) < len(other.Path) {
			return -1
		}
		return 1
	}
	return 0
}

func (n CompressedNode) Equal(other CompressedNode) bool { return n.Compare(other) == 0 }

func (n CompressedNode) String() string {
	switch n.Kind {
	case KindReturn:
		return fmt.Sprintf("Return%s", pathString(n.Path))
	case KindParam:
		return fmt.Sprintf("Param(%d)%s", n.Index, pathString(n.Path))
	default:
		return fmt.Sprintf("Drain(%d)%s", n.Index, pathString(n.Path))
	}
}

func pathString(path []dfir.Field) string {
	s := ""
	for _, f := range path {
		s += "." + f.Name
	}
	return s
}

// Edge is a compressed points-to edge between two summary nodes.
type Edge struct {
	From CompressedNode `yaml:"from"`
	To   CompressedNode `yaml:"to"`
}

func edgeLess(a, b Edge) bool {
	if c := a.From.Compare(b.From); c != 0 {
		return c < 0
	}
	return a.To.Compare(b.To) < 0
}

func edgeEqual(a, b Edge) bool {
	return a.From.Equal(b.From) && a.To.Equal(b.To)
}

// FunctionSummary is the compressed, externally visible escape/points-to
// fact computed for a function (spec §3, §4.2 FunctionEscapeAnalysisResult).
type FunctionSummary struct {
	NumberOfDrains int              `yaml:"numberOfDrains"`
	Edges          []Edge           `yaml:"edges,omitempty"`
	Escaping       []CompressedNode `yaml:"escaping,omitempty"`
}

func sortDedupEdges(edges []Edge) []Edge {
	if len(edges) == 0 {
		return nil
	}
	out := append([]Edge(nil), edges...)
	sort.Slice(out, func(i, j int) bool { return edgeLess(out[i], out[j]) })
	deduped := out[:1]
	for _, e := range out[1:] {
		if !edgeEqual(deduped[len(deduped)-1], e) {
			deduped = append(deduped, e)
		}
	}
	return deduped
}

func sortDedupNodes(nodes []CompressedNode) []CompressedNode {
	if len(nodes) == 0 {
		return nil
	}
	out := append([]CompressedNode(nil), nodes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	deduped := out[:1]
	for _, n := range out[1:] {
		if !deduped[len(deduped)-1].Equal(n) {
			deduped = append(deduped, n)
		}
	}
	return deduped
}

// Optimistic is the initial assumption installed for every function in an
// SCC under analysis: no drains, no edges, no escapes (spec §4.2).
func Optimistic() *FunctionSummary {
	return &FunctionSummary{}
}

// Pessimistic is used for unknown/virtual callees and for functions whose
// analysis fails to converge in one SCC pass: no edges, and all paramCount
// parameters plus the synthetic return parameter escape (spec §4.2).
func Pessimistic(paramCount int) *FunctionSummary {
	escaping := make([]CompressedNode, 0, paramCount+1)
	for i := 0; i < paramCount; i++ {
		escaping = append(escaping, CompressedNode{Kind: KindParam, Index: i})
	}
	escaping = append(escaping, CompressedNode{Kind: KindReturn})
	return &FunctionSummary{Escaping: sortDedupNodes(escaping)}
}

func slotNode(i, paramCount int) CompressedNode {
	if i == paramCount {
		return CompressedNode{Kind: KindReturn}
	}
	return CompressedNode{Kind: KindParam, Index: i}
}

// FromBits decodes packed annotations present on certain runtime functions
// (spec §4.2). escapesMask's bit i marks parameter i escaping; the bit at
// index paramCount marks the return escaping. pointsToMasks[i]'s nibble at
// position 4*j encodes an edge from slot i to slot j using codes
// 1: Pi->Pj, 2: Pi->Pj.INTESTINES, 3: Pi.INTESTINES->Pj,
// 4: Pi.INTESTINES->Pj.INTESTINES; 0 means no edge; any other code errors.
func FromBits(paramCount int, escapesMask int32, pointsToMasks []int32) (*FunctionSummary, error) {
	s := &FunctionSummary{}
	var escaping []CompressedNode
	for i := 0; i <= paramCount; i++ {
		if escapesMask&(1<<uint(i)) != 0 {
			escaping = append(escaping, slotNode(i, paramCount))
		}
	}
	s.Escaping = sortDedupNodes(escaping)

	var edges []Edge
	for i, word := range pointsToMasks {
		for j := 0; j < 8; j++ {
			code := (word >> uint(4*j)) & 0xF
			if code == 0 {
				continue
			}
			from := slotNode(i, paramCount)
			to := slotNode(j, paramCount)
			switch code {
			case 1: // Pi -> Pj
			case 2: // Pi -> Pj.INTESTINES
				to.Path = append(to.Path, dfir.INTESTINES)
			case 3: // Pi.INTESTINES -> Pj
				from.Path = append(from.Path, dfir.INTESTINES)
			case 4: // Pi.INTESTINES -> Pj.INTESTINES
				from.Path = append(from.Path, dfir.INTESTINES)
				to.Path = append(to.Path, dfir.INTESTINES)
			default:
				return nil, newFatal("escape: invalid pointsTo nibble code %d at word %d nibble %d", code, i, j)
			}
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	s.Edges = sortDedupEdges(edges)
	return s, nil
}

// EncodeBits is the inverse of FromBits: it re-encodes a FunctionSummary
// produced by FromBits back into an (escapesMask, pointsToMasks) pair,
// establishing the round-trip law of spec §8 property 6. It only handles
// summaries shaped like FromBits' output (param/return slots 0..7, no
// drains); callers with richer summaries should not expect a faithful
// encoding.
func EncodeBits(paramCount int, s *FunctionSummary) (escapesMask int32, pointsToMasks []int32) {
	for _, n := range s.Escaping {
		idx := n.Index
		if n.Kind == KindReturn {
			idx = paramCount
		}
		escapesMask |= 1 << uint(idx)
	}
	pointsToMasks = make([]int32, paramCount+1)
	slotOf := func(n CompressedNode) int {
		if n.Kind == KindReturn {
			return paramCount
		}
		return n.Index
	}
	hasIntestines := func(path []dfir.Field) bool {
		return len(path) == 1 && path[0].Equal(dfir.INTESTINES)
	}
	for _, e := range s.Edges {
		i, j := slotOf(e.From), slotOf(e.To)
		var code int32
		switch {
		case len(e.From.Path) == 0 && len(e.To.Path) == 0:
			code = 1
		case len(e.From.Path) == 0 && hasIntestines(e.To.Path):
			code = 2
		case hasIntestines(e.From.Path) && len(e.To.Path) == 0:
			code = 3
		case hasIntestines(e.From.Path) && hasIntestines(e.To.Path):
			code = 4
		default:
			continue // not representable in the packed form
		}
		if i >= 0 && i < len(pointsToMasks) {
			pointsToMasks[i] |= code << uint(4*j)
		}
	}
	return escapesMask, pointsToMasks
}

// Equal implements structural equality over sorted escapes and sorted
// edges, used by the interprocedural fixpoint loop to detect no-change
// (spec §4.3 step 3, §8 property 7: reflexive/symmetric/transitive and
// stable under re-sorting).
func (s *FunctionSummary) Equal(other *FunctionSummary) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.NumberOfDrains != other.NumberOfDrains {
		return false
	}
	if len(s.Edges) != len(other.Edges) || len(s.Escaping) != len(other.Escaping) {
		return false
	}
	for i := range s.Edges {
		if !edgeEqual(s.Edges[i], other.Edges[i]) {
			return false
		}
	}
	for i := range s.Escaping {
		if !s.Escaping[i].Equal(other.Escaping[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy safe to mutate independently.
func (s *FunctionSummary) Clone() *FunctionSummary {
	return &FunctionSummary{
		NumberOfDrains: s.NumberOfDrains,
		Edges:          append([]Edge(nil), s.Edges...),
		Escaping:       append([]CompressedNode(nil), s.Escaping...),
	}
}
