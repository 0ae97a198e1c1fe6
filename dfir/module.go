package dfir

// Function is a DFIR function body: a tree of Scope nodes rooted at
// RootScope, plus the returns/throws maps from scope to the node whose value
// is returned/thrown in that scope (spec §3). ParamCount is carried
// separately since a parameter with no corresponding DFIR node (never
// referenced) still counts toward the escape summary's parameter arity.
type Function struct {
	Name       string
	ParamCount int
	RootScope  *Node // Kind == KindScope
	// Returns/Throws map a Scope node to the node whose value is returned
	// or thrown from that scope.
	Returns map[*Node]*Node
	Throws  map[*Node]*Node

	// Parameters holds the Parameter DFIR nodes in declaration order, when
	// the builder allocated a node for them. A parameter never referenced
	// in the body may be absent; callers resolve it via ParamCount alone.
	Parameters []*Node

	// NewObjects lists every NewObject node walked in this function, used
	// by the driver (spec §4.3 step 5) to emit lifetimes once the
	// enclosing SCC converges.
	NewObjects []*Node
}

// Symbol identifies a function across the module boundary: resolvable
// in-module functions carry a *Function; external ones carry only a name
// and are resolved indirectly through ExternalModule/the annotation oracle
// (spec §6 "Symbol resolution").
type Symbol struct {
	QualifiedName string
	Fn            *Function // nil if this symbol denotes an external function
	ParamCount    int
	// Escapes/PointsTo, when non-nil, are the packed annotations carried on
	// a runtime-provided function (spec §4.2 fromBits, §6 "Runtime-function
	// annotations").
	Escapes  *int32
	PointsTo []int32
}

// Module is the per-compilation-unit container of DFIR function bodies and
// the symbol table resolving calls within it (spec §6 "moduleDFG").
type Module struct {
	Functions map[string]*Function
	Symbols   map[string]*Symbol
}

// ExternalModule holds publicly visible types/functions from outside the
// current compilation unit (spec §6 "externalModulesDFG").
type ExternalModule struct {
	PublicTypes     map[uint64]string   // hash -> declared type name
	PublicFunctions map[uint64]*Symbol  // hash -> external symbol
}
