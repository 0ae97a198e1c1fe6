package dfir

import "testing"

func TestNode_IsNothingType(t *testing.T) {
	nothing := &Node{Kind: KindSingleton, Type: "Nothing"}
	if !nothing.IsNothingType() {
		t.Fatalf("a Singleton typed Nothing must report IsNothingType")
	}

	other := &Node{Kind: KindSingleton, Type: "MyObject"}
	if other.IsNothingType() {
		t.Fatalf("a Singleton typed MyObject must not report IsNothingType")
	}

	nonSingleton := &Node{Kind: KindVariable}
	if nonSingleton.IsNothingType() {
		t.Fatalf("a non-Singleton node must never report IsNothingType")
	}
}

func TestNode_AsConstInt(t *testing.T) {
	direct := &Node{Kind: KindSimpleConst, ConstValue: int64(42)}
	v, ok := direct.AsConstInt()
	if !ok || v != 42 {
		t.Fatalf("expected (42, true), got (%d, %v)", v, ok)
	}

	plainInt := &Node{Kind: KindSimpleConst, ConstValue: 7}
	v, ok = plainInt.AsConstInt()
	if !ok || v != 7 {
		t.Fatalf("expected (7, true) for a plain int constant, got (%d, %v)", v, ok)
	}

	throughVariable := &Node{Kind: KindVariable, Values: []*Node{direct}}
	v, ok = throughVariable.AsConstInt()
	if !ok || v != 42 {
		t.Fatalf("expected a single-valued Variable to resolve through to its constant, got (%d, %v)", v, ok)
	}

	notConst := &Node{Kind: KindVariable, Values: []*Node{{Kind: KindParameter}}}
	if _, ok := notConst.AsConstInt(); ok {
		t.Fatalf("a Variable whose value isn't a constant must not resolve")
	}

	multiValued := &Node{Kind: KindVariable, Values: []*Node{direct, direct}}
	if _, ok := multiValued.AsConstInt(); ok {
		t.Fatalf("a multi-valued Variable has no single constant to resolve to")
	}

	if _, ok := (*Node)(nil).AsConstInt(); ok {
		t.Fatalf("a nil node must not resolve")
	}
}

func TestArrayElemKind_ItemSize(t *testing.T) {
	cases := []struct {
		kind ArrayElemKind
		want int
	}{
		{ElemBoolean, 1},
		{ElemByte, 1},
		{ElemChar, 2},
		{ElemShort, 2},
		{ElemInt, 4},
		{ElemFloat, 4},
		{ElemLong, 8},
		{ElemDouble, 8},
		{ElemReference, 8},
	}
	for _, c := range cases {
		if got := c.kind.ItemSize(8); got != c.want {
			t.Errorf("ItemSize(%v, pointerSize=8) = %d, want %d", c.kind, got, c.want)
		}
	}
}
