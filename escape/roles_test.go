package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/nativeescape/dfir"
)

func TestAssignRoles_WriteFieldAndReadField(t *testing.T) {
	receiver := &dfir.Node{Kind: dfir.KindParameter, ParamIndex: 0}
	value := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "T"}
	field := dfir.NewField("T", "U", "f")
	write := &dfir.Node{Kind: dfir.KindFieldWrite, Receiver: receiver, Field: field, Value: value}

	read := &dfir.Node{Kind: dfir.KindFieldRead, Receiver: receiver, Field: field}

	fn := &dfir.Function{
		Name:       "f",
		ParamCount: 1,
		RootScope:  &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{write, read}},
		Parameters: []*dfir.Node{receiver},
	}

	ra := AssignRoles(fn)

	recvInfo := ra.Infos[receiver]
	assert.True(t, recvInfo.Has(dfir.RoleWriteField))
	assert.True(t, recvInfo.Has(dfir.RoleReadField))

	writeEntries := recvInfo.EntriesFor(dfir.RoleWriteField)
	assert.Len(t, writeEntries, 1)
	assert.Same(t, value, writeEntries[0].Other)
	assert.True(t, writeEntries[0].Field.Equal(field))

	readEntries := recvInfo.EntriesFor(dfir.RoleReadField)
	assert.Len(t, readEntries, 1)
	assert.Same(t, read, readEntries[0].Other)
}

func TestAssignRoles_StaticFieldAccessEscapesToGlobal(t *testing.T) {
	value := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "T"}
	staticWrite := &dfir.Node{Kind: dfir.KindFieldWrite, Receiver: nil, Value: value}
	fn := &dfir.Function{
		Name:      "f",
		RootScope: &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{staticWrite}},
	}

	ra := AssignRoles(fn)
	assert.True(t, ra.Infos[value].Escapes())
}

func TestAssignRoles_ThrowAndReturnValue(t *testing.T) {
	returned := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "T"}
	thrown := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "E"}
	scope := &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{returned, thrown}}
	fn := &dfir.Function{
		Name:      "f",
		RootScope: scope,
		Returns:   map[*dfir.Node]*dfir.Node{scope: returned},
		Throws:    map[*dfir.Node]*dfir.Node{scope: thrown},
	}

	ra := AssignRoles(fn)
	assert.True(t, ra.Infos[returned].Has(dfir.RoleReturnValue))
	assert.True(t, ra.Infos[thrown].Has(dfir.RoleThrowValue))
	assert.True(t, ra.Infos[thrown].Escapes())
}

func TestAssignRoles_NothingTypeSingletonDoesNotEscape(t *testing.T) {
	nothing := &dfir.Node{Kind: dfir.KindSingleton, Type: "Nothing"}
	other := &dfir.Node{Kind: dfir.KindSingleton, Type: "MyObject"}
	fn := &dfir.Function{
		Name:      "f",
		RootScope: &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{nothing, other}},
	}

	ra := AssignRoles(fn)
	assert.False(t, ra.Infos[nothing].Escapes())
	assert.True(t, ra.Infos[other].Escapes())
}

func TestAssignRoles_NestedScopeIncrementsDepth(t *testing.T) {
	inner := &dfir.Node{Kind: dfir.KindSingleton, Type: "MyObject"}
	innerScope := &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{inner}}
	outer := &dfir.Node{Kind: dfir.KindSingleton, Type: "MyObject"}
	root := &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{outer, innerScope}}
	fn := &dfir.Function{Name: "f", RootScope: root}

	ra := AssignRoles(fn)
	assert.Equal(t, -1, ra.Infos[outer].Depth)
	assert.Equal(t, 0, ra.Infos[inner].Depth)
}

func TestAssignRoles_VariableAssignment(t *testing.T) {
	value := &dfir.Node{Kind: dfir.KindNewObject, ConstructedType: "T"}
	v := &dfir.Node{Kind: dfir.KindVariable, Values: []*dfir.Node{value}}
	fn := &dfir.Function{Name: "f", RootScope: &dfir.Node{Kind: dfir.KindScope, Nodes: []*dfir.Node{v}}}

	ra := AssignRoles(fn)
	entries := ra.Infos[v].EntriesFor(dfir.RoleAssigned)
	assert.Len(t, entries, 1)
	assert.Same(t, value, entries[0].Other)
}
