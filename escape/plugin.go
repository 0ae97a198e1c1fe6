package escape

import "github.com/viant/nativeescape/dfir"

// Plugin extends the pass with observation hooks, mirroring
// viant-linager's analyzer.AnalyzerPlugin{BeforeWalk, AfterResolveIdent}
// (analyzer/option.go): BeforeRoleAssignment fires once per function before
// its intraprocedural role pass runs; AfterSummaryInstalled fires whenever
// the driver installs a (possibly unchanged) summary for a function during
// the interprocedural fixpoint.
type Plugin interface {
	BeforeRoleAssignment(fn *dfir.Function)
	AfterSummaryInstalled(fn *dfir.Function, summary *FunctionSummary)
}

// NopPlugin is a Plugin whose hooks do nothing; embed it to implement only
// the hooks you need.
type NopPlugin struct{}

func (NopPlugin) BeforeRoleAssignment(*dfir.Function)                 {}
func (NopPlugin) AfterSummaryInstalled(*dfir.Function, *FunctionSummary) {}

func (e *Engine) notifyBeforeRoleAssignment(fn *dfir.Function) {
	for _, p := range e.plugins {
		p.BeforeRoleAssignment(fn)
	}
}

func (e *Engine) notifyAfterSummaryInstalled(fn *dfir.Function, s *FunctionSummary) {
	for _, p := range e.plugins {
		p.AfterSummaryInstalled(fn, s)
	}
}
