package escape

import "gopkg.in/yaml.v3"

// Dump renders a FunctionSummary as YAML, mirroring viant-linager's own
// debug/test convention of yaml.Marshal-ing a result for printing and
// fixture comparison (analyzer/analyzer_test.go) rather than a bespoke
// string format.
func Dump(s *FunctionSummary) (string, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "", wrapFatal(err)
	}
	return string(out), nil
}

// LoadSummaryFixture parses a YAML-encoded FunctionSummary, the inverse of
// Dump, for use as a golden-fixture loader in tests (spec §9's emphasis on
// deterministic, comparable summaries).
func LoadSummaryFixture(data []byte) (*FunctionSummary, error) {
	var s FunctionSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, wrapFatal(err)
	}
	return &s, nil
}
