package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/nativeescape/dfir"
)

func TestDump_RoundTripsThroughYAML(t *testing.T) {
	s := &FunctionSummary{
		NumberOfDrains: 1,
		Edges: []Edge{
			{From: CompressedNode{Kind: KindParam, Index: 0}, To: CompressedNode{Kind: KindDrain, Index: 0}},
		},
		Escaping: []CompressedNode{
			{Kind: KindParam, Index: 0, Path: []dfir.Field{dfir.INTESTINES}},
		},
	}

	text, err := Dump(s)
	require.NoError(t, err)
	assert.NotEmpty(t, text)

	back, err := LoadSummaryFixture([]byte(text))
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
}
