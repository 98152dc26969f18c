package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/eventual2pc/internal/dispatch"
	"github.com/roach88/eventual2pc/internal/ir"
)

// Snapshot renders a trace for golden comparison: a header line naming the
// scenario, then one canonical JSON object per trace entry. Lines are
// separated by "\n" with no trailing newline.
func Snapshot(name string, trace []dispatch.TraceEntry) ([]byte, error) {
	var buf bytes.Buffer
	header, err := ir.MarshalCanonical(map[string]any{"scenario": name})
	if err != nil {
		return nil, err
	}
	buf.Write(header)

	for _, e := range trace {
		entry := map[string]any{
			"seq":     e.Seq,
			"command": e.Command,
			"stream":  e.Stream,
			"outcome": e.Outcome,
		}
		if e.Redelivery {
			entry["redelivery"] = true
		}
		if len(e.Records) > 0 {
			kinds := make([]any, len(e.Records))
			for i, k := range e.Records {
				kinds[i] = string(k)
			}
			entry["records"] = kinds
		}
		line, err := ir.MarshalCanonical(entry)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
