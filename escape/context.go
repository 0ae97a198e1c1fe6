// Package escape implements the two-stage escape analysis engine: an
// intraprocedural role-assignment pass (roles.go) and an interprocedural
// points-to/escape analysis (ptg.go, closure.go, lifetime.go, paint.go,
// driver.go) that together classify every allocation site as STACK or
// GLOBAL.
package escape

import "log"

// Lifetime is the full six-member lattice the design reasons about
// internally (spec §3). Only Stack and Global are ever written to the
// lifetime sink (spec §1); the rest collapse to Global before emission.
type Lifetime int

const (
	LifetimeStack Lifetime = iota
	LifetimeLocal
	LifetimeArgument
	LifetimeReturnValue
	LifetimeIndirectReturnValue
	LifetimeGlobal
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeStack:
		return "STACK"
	case LifetimeLocal:
		return "LOCAL"
	case LifetimeArgument:
		return "ARGUMENT"
	case LifetimeReturnValue:
		return "RETURN_VALUE"
	case LifetimeIndirectReturnValue:
		return "INDIRECT_RETURN_VALUE"
	case LifetimeGlobal:
		return "GLOBAL"
	default:
		return "UNKNOWN"
	}
}

// EmittedLifetime is the two-member lattice the code generator actually
// consumes (spec §1).
type EmittedLifetime int

const (
	Stack EmittedLifetime = iota
	Global
)

func (l EmittedLifetime) String() string {
	if l == Stack {
		return "STACK"
	}
	return "GLOBAL"
}

// Collapse maps the six conceptual lifetimes onto the two emitted ones
// (spec §1, §4.6: "every other outcome collapses to Global").
func (l Lifetime) Collapse() EmittedLifetime {
	if l == LifetimeStack {
		return Stack
	}
	return Global
}

// Depth sentinels (spec §3). Lower is "more escaping"; propagation
// monotonically decreases depths.
const (
	DepthEscapes     = -3
	DepthParameter   = -2
	DepthReturnValue = -1
	DepthInfinity    = 1_000_000
)

// Context carries the tunables and runtime-geometry constants the pass
// needs from its host compiler (spec §6 "context").
type Context struct {
	// PointerSize is the runtime's pointer width in bytes, used for
	// reference-array item sizing and for budgeting (spec §4.6).
	PointerSize int

	// StackArrayBudget is the per-frame byte budget for admitting
	// stack-array candidates (spec §4.6 tunable, default 65536).
	StackArrayBudget int

	// ConvergenceBound is the number of re-analyses a function may undergo
	// within one SCC pass before it is demoted to pessimistic (spec §4.3
	// step 4, default 2).
	ConvergenceBound int

	// PropagateForcedToHeapObjects enables the forced-heap propagation loop
	// of spec §4.6. Always true in production; the false branch is kept as
	// a configuration but is experimental/dead under the production entry
	// point (spec §9 Open Question iii).
	PropagateForcedToHeapObjects bool

	// NothingTypeName is the name of the bottom type, which exempts a
	// Singleton from the implicit WRITTEN_TO_GLOBAL role (spec §4.1).
	// AssignRoles does not read it: dfir.Node.IsNothingType compares
	// against the literal "Nothing".
	NothingTypeName string
}

// DefaultContext returns the production tunables named in spec §6/§4.6/§4.3.
func DefaultContext() Context {
	return Context{
		PointerSize:                  8,
		StackArrayBudget:             65536,
		ConvergenceBound:             2,
		PropagateForcedToHeapObjects: true,
		NothingTypeName:              "Nothing",
	}
}

// Engine is the pass's entry point, built with functional options mirroring
// viant-linager's analyzer.Analyzer / analyzer.Option construction pattern
// (analyzer/option.go) rather than a bare struct literal.
type Engine struct {
	ctx     Context
	logger  *log.Logger
	plugins []Plugin
	oracle  Oracle
}

// Option configures an Engine.
type Option func(*Engine)

// WithContext overrides the default tunables/geometry.
func WithContext(ctx Context) Option {
	return func(e *Engine) { e.ctx = ctx }
}

// WithStackBudget overrides the per-frame stack-array byte budget.
func WithStackBudget(bytes int) Option {
	return func(e *Engine) { e.ctx.StackArrayBudget = bytes }
}

// WithConvergenceBound overrides the number of re-analyses a function may
// undergo before being demoted to pessimistic.
func WithConvergenceBound(n int) Option {
	return func(e *Engine) { e.ctx.ConvergenceBound = n }
}

// WithForcedHeapPropagation toggles spec §4.6's forced-heap propagation
// loop. Disabling it is the experimental, dead-under-production branch of
// spec §9 Open Question (iii); kept for completeness.
func WithForcedHeapPropagation(enabled bool) Option {
	return func(e *Engine) { e.ctx.PropagateForcedToHeapObjects = enabled }
}

// WithLogger installs the logger used for non-fatal warnings (spec §7).
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAnnotationOracle installs the external-summary oracle (spec §4.2
// fromBits, §6 "runtime-function annotations"). Defaults to
// DefaultOracle() when unset.
func WithAnnotationOracle(oracle Oracle) Option {
	return func(e *Engine) { e.oracle = oracle }
}

// WithPlugin registers a Plugin observing the pass, mirroring
// viant-linager's analyzer.WithPlugin (analyzer/option.go).
func WithPlugin(p Plugin) Option {
	return func(e *Engine) { e.plugins = append(e.plugins, p) }
}

// New builds an Engine with the given options applied over DefaultContext().
func New(opts ...Option) *Engine {
	e := &Engine{ctx: DefaultContext(), logger: log.Default(), oracle: DefaultOracle()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}
