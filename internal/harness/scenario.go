package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines one synchronization scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Hidden runs the scenario on a channel that was never shown.
	Hidden bool `yaml:"hidden,omitempty"`

	// UpdateTimeout and CommandTimeout bound blocking steps.
	// Zero keeps DefaultTimeout.
	UpdateTimeout  time.Duration `yaml:"update_timeout,omitempty"`
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty"`

	// Viewers script automatic viewer behavior per connection.
	Viewers []Viewer `yaml:"viewers,omitempty"`

	// Steps is the main flow.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultTimeout bounds blocking steps when the scenario sets no timeout.
const DefaultTimeout = 200 * time.Millisecond

// Viewer is the scripted behavior of one connection.
type Viewer struct {
	Conn uint32 `yaml:"conn"`

	// Ack answers every SNAP:<v> with SNAPDONE:<v>.
	Ack bool `yaml:"ack,omitempty"`

	// Replies answers CMD:<id>:<verb> with REPLY:<id>:<payload>, keyed by
	// verb. ADDPANEL verbs are keyed "ADDPANEL".
	Replies map[string]string `yaml:"replies,omitempty"`
}

// Step is one action of the flow. Exactly one field must be set.
type Step struct {
	Connect    uint32       `yaml:"connect,omitempty"`
	Disconnect uint32       `yaml:"disconnect,omitempty"`
	Deliver    *DeliverStep `yaml:"deliver,omitempty"`
	Update     *UpdateStep  `yaml:"update,omitempty"`
	Command    *CommandStep `yaml:"command,omitempty"`
	Block      *BlockStep   `yaml:"block,omitempty"`
	Close      bool         `yaml:"close,omitempty"`
}

// DeliverStep sends a raw message from a viewer.
type DeliverStep struct {
	Conn uint32 `yaml:"conn"`
	Msg  string `yaml:"msg"`
}

// UpdateStep announces a document version.
type UpdateStep struct {
	// Name records the outcome under Result.Outcomes[Name].
	Name     string `yaml:"name,omitempty"`
	Version  uint64 `yaml:"version"`
	Blocking bool   `yaml:"blocking,omitempty"`

	// Expect, when set, is the required return value of the request.
	Expect *bool `yaml:"expect,omitempty"`
}

// CommandStep queues a remote command.
type CommandStep struct {
	Name     string `yaml:"name,omitempty"`
	Verb     string `yaml:"verb"`
	Arg      string `yaml:"arg"`
	Blocking bool   `yaml:"blocking,omitempty"`
	Expect   *bool  `yaml:"expect,omitempty"`
}

// BlockStep toggles whether a connection accepts payloads.
type BlockStep struct {
	Conn    uint32 `yaml:"conn"`
	Blocked bool   `yaml:"blocked"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Conn restricts sent_contains and sent_count to one connection.
	Conn uint32 `yaml:"conn,omitempty"`

	// Prefix selects outbound payloads (sent_contains, sent_count).
	Prefix string `yaml:"prefix,omitempty"`

	// Count is the expected number of matches (sent_count).
	Count int `yaml:"count,omitempty"`

	// Prefixes is the expected order (sent_order).
	Prefixes []string `yaml:"prefixes,omitempty"`

	// Name is the request name (outcome).
	Name string `yaml:"name,omitempty"`

	// Path is the saved file (file_saved).
	Path string `yaml:"path,omitempty"`

	// Content is the saved file content (file_saved).
	Content string `yaml:"content,omitempty"`

	// Expect is the outcome (outcome) or the Stats subset (stats).
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertSentContains = "sent_contains"
	AssertSentOrder    = "sent_order"
	AssertSentCount    = "sent_count"
	AssertOutcome      = "outcome"
	AssertStats        = "stats"
	AssertFileSaved    = "file_saved"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[uint32]bool)
	for i, v := range s.Viewers {
		if v.Conn == 0 {
			return fmt.Errorf("viewers[%d]: conn must be non-zero", i)
		}
		if seen[v.Conn] {
			return fmt.Errorf("viewers[%d]: duplicate conn %d", i, v.Conn)
		}
		seen[v.Conn] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	if st.Connect != 0 {
		set++
	}
	if st.Disconnect != 0 {
		set++
	}
	if st.Deliver != nil {
		set++
	}
	if st.Update != nil {
		set++
	}
	if st.Command != nil {
		set++
	}
	if st.Block != nil {
		set++
	}
	if st.Close {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case st.Deliver != nil && st.Deliver.Conn == 0:
		return fmt.Errorf("steps[%d]: deliver conn must be non-zero", index)
	case st.Command != nil && st.Command.Verb == "":
		return fmt.Errorf("steps[%d]: command verb is required", index)
	case st.Block != nil && st.Block.Conn == 0:
		return fmt.Errorf("steps[%d]: block conn must be non-zero", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSentContains:
		if a.Prefix == "" {
			return fmt.Errorf("assertions[%d]: prefix is required for sent_contains", index)
		}
	case AssertSentOrder:
		if len(a.Prefixes) < 2 {
			return fmt.Errorf("assertions[%d]: at least two prefixes are required for sent_order", index)
		}
	case AssertSentCount:
		if a.Prefix == "" {
			return fmt.Errorf("assertions[%d]: prefix is required for sent_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for sent_count", index)
		}
	case AssertOutcome:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for outcome", index)
		}
		switch a.Expect {
		case OutcomePending, OutcomeSucceeded, OutcomeFailed:
		default:
			return fmt.Errorf("assertions[%d]: outcome expect must be pending, succeeded or failed, got %v", index, a.Expect)
		}
	case AssertStats:
		m, ok := a.Expect.(map[string]any)
		if !ok || len(m) == 0 {
			return fmt.Errorf("assertions[%d]: expect map is required for stats", index)
		}
	case AssertFileSaved:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for file_saved", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
