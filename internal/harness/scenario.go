package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one bank run with its expectations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Redelivery re-executes every protocol command this many extra times.
	Redelivery int `yaml:"redelivery,omitempty"`

	// MaxSteps overrides the per-transaction step budget when positive.
	MaxSteps int `yaml:"max_steps,omitempty"`

	Accounts []AccountSetup `yaml:"accounts"`
	Steps    []Step         `yaml:"steps"`
	Expect   Expectations   `yaml:"expect"`
}

// AccountSetup opens an account before the steps run.
type AccountSetup struct {
	ID      string `yaml:"id"`
	Owner   string `yaml:"owner,omitempty"`
	Balance int64  `yaml:"balance,omitempty"`
}

// Step issues exactly one command.
type Step struct {
	Transfer *TransferStep `yaml:"transfer,omitempty"`
	Collect  *CollectStep  `yaml:"collect,omitempty"`
	Freeze   *FreezeStep   `yaml:"freeze,omitempty"`
	Stage    *StageStep    `yaml:"stage,omitempty"`
	Report   *ReportStep   `yaml:"report,omitempty"`

	// Hold leaves the step's follow-ups queued so the next step
	// interleaves with them. Everything still queued is drained at the end.
	Hold bool `yaml:"hold,omitempty"`

	// Error is the saga error code (or a message fragment) the command
	// must fail with. Empty means it must succeed.
	Error string `yaml:"error,omitempty"`
}

// TransferStep starts a transfer. Transaction pins the transaction id
// instead of taking the next one from the sequence.
type TransferStep struct {
	ID          string `yaml:"id"`
	Transaction string `yaml:"transaction,omitempty"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Amount      int64  `yaml:"amount"`
}

// CollectStep starts a collect into Account.
type CollectStep struct {
	Account string   `yaml:"account"`
	Sources []string `yaml:"sources"`
	Amount  int64    `yaml:"amount"`
}

// FreezeStep starts a freeze of Account.
type FreezeStep struct {
	ID      string `yaml:"id"`
	Account string `yaml:"account"`
}

// StageStep sends a Stage command directly, as a late or forged message
// would arrive.
type StageStep struct {
	Account     string `yaml:"account"`
	Initiator   string `yaml:"initiator"`
	Transaction string `yaml:"transaction"`
	Type        string `yaml:"type"`
	Kind        string `yaml:"kind"`
	Amount      int64  `yaml:"amount,omitempty"`
}

// ReportStep sends a report to an initiator directly.
type ReportStep struct {
	Initiator   string `yaml:"initiator"`
	Transaction string `yaml:"transaction"`
	Type        string `yaml:"type"`
	Participant string `yaml:"participant"`
	Phase       string `yaml:"phase"`
	Success     bool   `yaml:"success"`
}

// Report phases.
const (
	PhasePreCommit    = "precommit"
	PhaseFinalization = "finalization"
)

// Expectations are checked after every queued command has run.
type Expectations struct {
	// Balances maps account ids to their final balance.
	Balances map[string]int64 `yaml:"balances,omitempty"`
	// Transfers maps transfer ids to committed, rolled_back or pending.
	Transfers map[string]string `yaml:"transfers,omitempty"`
	// Freezes maps freeze ids to their outcome, like Transfers.
	Freezes map[string]string `yaml:"freezes,omitempty"`
	// Frozen lists accounts that must have committed a freeze.
	Frozen []string `yaml:"frozen,omitempty"`
	// Signals maps record kinds to how many were appended across the log.
	Signals map[string]int64 `yaml:"signals,omitempty"`
	// Idle lists accounts that must not be in a transaction.
	Idle []string `yaml:"idle,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos do not silently skip checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if s.Redelivery < 0 {
		return fmt.Errorf("redelivery must be non-negative")
	}
	seen := make(map[string]bool, len(s.Accounts))
	for i, a := range s.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("accounts[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for field, outcomes := range map[string]map[string]string{"transfers": s.Expect.Transfers, "freezes": s.Expect.Freezes} {
		for id, outcome := range outcomes {
			switch outcome {
			case "committed", "rolled_back", "pending":
			default:
				return fmt.Errorf("expect.%s[%s]: unknown outcome %q", field, id, outcome)
			}
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	n := 0
	for _, set := range []bool{step.Transfer != nil, step.Collect != nil, step.Freeze != nil, step.Stage != nil, step.Report != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of transfer, collect, freeze, stage, report is required", i)
	}

	switch {
	case step.Transfer != nil:
		if step.Transfer.ID == "" {
			return fmt.Errorf("steps[%d]: transfer.id is required", i)
		}
	case step.Collect != nil:
		if step.Collect.Account == "" {
			return fmt.Errorf("steps[%d]: collect.account is required", i)
		}
	case step.Freeze != nil:
		if step.Freeze.ID == "" || step.Freeze.Account == "" {
			return fmt.Errorf("steps[%d]: freeze needs id and account", i)
		}
	case step.Stage != nil:
		if step.Stage.Account == "" || step.Stage.Initiator == "" || step.Stage.Kind == "" {
			return fmt.Errorf("steps[%d]: stage needs account, initiator and kind", i)
		}
	case step.Report != nil:
		if step.Report.Initiator == "" || step.Report.Participant == "" {
			return fmt.Errorf("steps[%d]: report needs initiator and participant", i)
		}
		if step.Report.Phase != PhasePreCommit && step.Report.Phase != PhaseFinalization {
			return fmt.Errorf("steps[%d]: report.phase must be %s or %s", i, PhasePreCommit, PhaseFinalization)
		}
	}
	return nil
}
