package escape

import "github.com/viant/nativeescape/dfir"

// CallGraph is the read-only whole-program collaborator the driver needs
// (spec §4.3 "condensation"): the call graph's strongly connected
// components, already in the order the driver must process them in -
// callees fully analysed before their callers, i.e. reverse topological
// order of the caller-calls-callee graph - plus, within one multi-node,
// which of its members directly call a given function. Per-call-site
// callee identity is read straight off the DFIR itself (dfir.Node's
// CalleeSymbol), so CallGraph only has to answer structural questions about
// the whole-program call topology, not enumerate individual call sites.
type CallGraph interface {
	// Condensation returns the call graph's strongly connected multi-nodes
	// as sets of qualified function names, callees before their callers.
	Condensation() [][]string
	// CallersWithinSCC returns every name in scc that directly calls fn.
	CallersWithinSCC(fn string, scc []string) []string
}

// LifetimeSink is computeLifetimes' sole output (spec §6): an IR-element to
// emitted-lifetime map, keyed by whatever opaque value the DFIR builder
// attached to a NewObject node's IR field.
type LifetimeSink map[interface{}]EmittedLifetime

// Stats reports the non-fatal conditions spec §7 requires only be logged,
// exposed as counters too so a caller can assert on them without scraping
// log output, plus a secondary, inspectable artifact of the run beyond its
// primary lifetime-map output (SPEC_FULL.md "Supplemented Features").
type Stats struct {
	FunctionsAnalyzed             int
	SCCsProcessed                 int
	NonConvergentFunctions        int
	DroppedCallSiteEdges          int
	StackArrayCandidatesAdmitted  int
	StackArrayCandidatesRejected  int
}

// Run implements computeLifetimes (spec §4.3, §6): it walks the call-graph
// condensation in reverse topological order (callees fully analysed before
// their callers), brings each strongly connected multi-node to a fixpoint,
// and emits a Lifetime for every NewObject node walked during that
// multi-node's analyses into lifetimes.
func (e *Engine) Run(module *dfir.Module, external *dfir.ExternalModule, cg CallGraph, lifetimes LifetimeSink) (Stats, error) {
	if len(lifetimes) != 0 {
		return Stats{}, newFatal("escape: lifetime sink must be empty at entry")
	}

	externalByName := map[string]*dfir.Symbol{}
	if external != nil {
		for _, sym := range external.PublicFunctions {
			if sym != nil {
				externalByName[sym.QualifiedName] = sym
			}
		}
	}

	installed := map[string]*FunctionSummary{}
	var stats Stats

	for _, scc := range cg.Condensation() {
		stats.SCCsProcessed++
		if err := e.runSCC(module, externalByName, cg, scc, installed, lifetimes, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// runSCC brings one strongly connected multi-node to a fixpoint (spec §4.3
// steps 2-4): install an optimistic summary for every member with a DFIR
// body, then drain a worklist, re-enqueueing a member's in-SCC callers
// whenever its installed summary changes, until the worklist empties or a
// member's analysis count reaches Context.ConvergenceBound, at which
// point that member is demoted to pessimistic and dropped from the live
// set. Step 5 (lifetime emission) runs once the worklist is empty, over the
// last real analysis attempted for every member that had one.
func (e *Engine) runSCC(module *dfir.Module, externalByName map[string]*dfir.Symbol, cg CallGraph, scc []string, installed map[string]*FunctionSummary, lifetimes LifetimeSink, stats *Stats) error {
	live := map[string]bool{}
	reanalysisCount := map[string]int{}
	lastPTG := map[string]*PTG{}
	inQueue := map[string]bool{}
	var queue []string

	for _, name := range scc {
		fn, ok := module.Functions[name]
		if !ok || fn == nil {
			continue // external-only symbol: no DFIR body to analyse
		}
		installed[name] = Optimistic()
		live[name] = true
		queue = append(queue, name)
		inQueue[name] = true
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		inQueue[name] = false
		if !live[name] {
			continue
		}
		fn := module.Functions[name]

		if reanalysisCount[name] >= e.ctx.ConvergenceBound {
			installed[name] = Pessimistic(fn.ParamCount)
			live[name] = false
			e.warn("function %q did not converge after %d re-analyses; demoted to pessimistic", name, reanalysisCount[name])
			stats.NonConvergentFunctions++
			e.notifyAfterSummaryInstalled(fn, installed[name])
			continue
		}

		ptg, newSummary, err := e.analyzeFunction(module, externalByName, fn, installed, stats)
		if err != nil {
			return err
		}
		lastPTG[name] = ptg
		reanalysisCount[name]++
		e.notifyAfterSummaryInstalled(fn, newSummary)

		if installed[name].Equal(newSummary) {
			continue
		}
		installed[name] = newSummary
		for _, caller := range cg.CallersWithinSCC(name, scc) {
			if live[caller] && !inQueue[caller] {
				queue = append(queue, caller)
				inQueue[caller] = true
			}
		}
	}

	for name, ptg := range lastPTG {
		stats.FunctionsAnalyzed++
		fn := module.Functions[name]
		for _, n := range fn.NewObjects {
			lt, ok := ptg.lifetimes[n]
			if !ok {
				continue
			}
			lifetimes[n.IR] = lt.Collapse()
		}
		admitted, rejected := ptg.StackArrayStats()
		stats.StackArrayCandidatesAdmitted += admitted
		stats.StackArrayCandidatesRejected += rejected
	}
	return nil
}

// analyzeFunction runs one full analysis pass over fn (spec §4.3 step 2,
// §4.4, §4.5, §4.6, §4.7): role assignment, PTG seeding, call-site inlining
// against the summaries currently installed for callees (whichever
// multi-node they belong to - earlier multi-nodes are already final),
// closure, lifetime classification, and painting into a fresh
// FunctionSummary.
func (e *Engine) analyzeFunction(module *dfir.Module, externalByName map[string]*dfir.Symbol, fn *dfir.Function, installed map[string]*FunctionSummary, stats *Stats) (*PTG, *FunctionSummary, error) {
	e.notifyBeforeRoleAssignment(fn)
	ra := AssignRoles(fn)

	var ownSymbol *dfir.Symbol
	if sym, ok := module.Symbols[fn.Name]; ok {
		ownSymbol = sym
	}

	ptg := BuildPTG(e.ctx, fn, ra, ownSymbol)

	for _, n := range ra.AllNodes {
		if n.Kind != dfir.KindCall && n.Kind != dfir.KindNewObject {
			continue
		}
		summary, err := e.resolveCalleeSummary(module, externalByName, n, installed, stats)
		if err != nil {
			return nil, nil, err
		}
		if summary == nil {
			continue
		}
		ptg.InlineCallSite(n, summary, e.warn)
	}
	stats.DroppedCallSiteEdges += ptg.droppedCallSiteEdges

	if err := ptg.Close(); err != nil {
		return nil, nil, err
	}
	ptg.ClassifyLifetimes(e.ctx)
	summary, err := ptg.Paint()
	if err != nil {
		return nil, nil, err
	}
	return ptg, summary, nil
}

// resolveCalleeSummary implements spec §6's callee-resolution rules for a
// single call or constructor site: a constructor site with no CalleeSymbol
// has no summary to inline (nil); a virtual call (no statically resolved
// CalleeSymbol) always goes to the oracle as pessimistic; a name already
// installed (a local function, in this multi-node or an earlier, already
// final one) uses that summary directly; a local symbol whose body hasn't
// been installed yet (should not arise given reverse-topological order, but
// DFIR construction is out of scope and not assumed airtight) is treated
// optimistically so the SCC worklist can still make progress; everything
// else - a resolved local or external symbol with no installed summary - is
// handed to the oracle; a name that resolves nowhere is logged, counted on
// Stats.DroppedCallSiteEdges and treated pessimistically (spec §7
// "call-site argument failing to map to a PTG node" - the same leniency
// extended to an unresolvable callee name).
func (e *Engine) resolveCalleeSummary(module *dfir.Module, externalByName map[string]*dfir.Symbol, call *dfir.Node, installed map[string]*FunctionSummary, stats *Stats) (*FunctionSummary, error) {
	if call.CalleeSymbol == "" {
		if call.Kind == dfir.KindNewObject {
			return nil, nil
		}
		return e.oracle.Resolve(&dfir.Symbol{ParamCount: len(call.Arguments)}, true)
	}
	if summary, ok := installed[call.CalleeSymbol]; ok {
		return summary, nil
	}
	if sym, ok := module.Symbols[call.CalleeSymbol]; ok {
		if sym.Fn != nil {
			return Optimistic(), nil
		}
		return e.oracle.Resolve(sym, false)
	}
	if sym, ok := externalByName[call.CalleeSymbol]; ok {
		return e.oracle.Resolve(sym, false)
	}
	e.warn("callee %q not found among module or external symbols; treating pessimistically", call.CalleeSymbol)
	stats.DroppedCallSiteEdges++
	return Pessimistic(len(call.Arguments)), nil
}
