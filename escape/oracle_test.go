package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/nativeescape/dfir"
)

func TestDefaultOracle_VirtualCallIsAlwaysPessimistic(t *testing.T) {
	o := DefaultOracle()
	s, err := o.Resolve(&dfir.Symbol{QualifiedName: "anything", ParamCount: 2}, true)
	require.NoError(t, err)
	assert.Len(t, s.Escaping, 3)
}

func TestDefaultOracle_KotlinRuntimeCalleeDecodesAnnotation(t *testing.T) {
	escapes := int32(1 << 1) // param 1 escapes
	sym := &dfir.Symbol{
		QualifiedName: "kfun:kotlin.collections.listOf",
		ParamCount:    2,
		Escapes:       &escapes,
		PointsTo:      []int32{0, 0},
	}
	s, err := DefaultOracle().Resolve(sym, false)
	require.NoError(t, err)
	require.Len(t, s.Escaping, 1)
	assert.Equal(t, CompressedNode{Kind: KindParam, Index: 1}, s.Escaping[0])
}

func TestDefaultOracle_KotlinConcurrentCalleeIsPessimistic(t *testing.T) {
	escapes := int32(0)
	sym := &dfir.Symbol{
		QualifiedName: "kfun:kotlin.native.concurrent.Worker.execute",
		ParamCount:    1,
		Escapes:       &escapes,
	}
	s, err := DefaultOracle().Resolve(sym, false)
	require.NoError(t, err)
	assert.Len(t, s.Escaping, 2) // pessimistic(1): param 0 + return
}

func TestDefaultOracle_NonKotlinCalleeIsPessimistic(t *testing.T) {
	sym := &dfir.Symbol{QualifiedName: "some.other.Fn", ParamCount: 3}
	s, err := DefaultOracle().Resolve(sym, false)
	require.NoError(t, err)
	assert.Len(t, s.Escaping, 4)
}

func TestTableOracle_ResolvesFromTableBeforeFallback(t *testing.T) {
	escapes := int32(1 << 0)
	o := &tableOracle{
		fallback: DefaultOracle(),
		byName: map[string]packedAnnotation{
			"runtime.KnownFn": {QualifiedName: "runtime.KnownFn", ParamCount: 1, Escapes: escapes},
		},
	}

	known, err := o.Resolve(&dfir.Symbol{QualifiedName: "runtime.KnownFn", ParamCount: 1}, false)
	require.NoError(t, err)
	assert.Len(t, known.Escaping, 1)

	unknown, err := o.Resolve(&dfir.Symbol{QualifiedName: "runtime.OtherFn", ParamCount: 1}, false)
	require.NoError(t, err)
	assert.Len(t, unknown.Escaping, 2) // falls back to pessimistic(1)
}

func TestTableOracle_VirtualCallUsesFallback(t *testing.T) {
	o := &tableOracle{fallback: DefaultOracle(), byName: map[string]packedAnnotation{}}
	s, err := o.Resolve(&dfir.Symbol{ParamCount: 2}, true)
	require.NoError(t, err)
	assert.Len(t, s.Escaping, 3)
}
