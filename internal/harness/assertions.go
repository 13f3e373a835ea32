package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			arrow := "<-"
			if event.Dir == DirOut {
				arrow = "->"
			}
			fmt.Fprintf(&buf, "  [%d] conn %d %s %s\n", event.Seq, event.Conn, arrow, truncate(event.Msg, 60))
		}
	}

	return buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// sentMatches reports whether event is an outbound payload with prefix,
// sent to conn (any conn when conn is 0).
func sentMatches(event TraceEvent, prefix string, conn uint32) bool {
	return event.Dir == DirOut &&
		strings.HasPrefix(event.Msg, prefix) &&
		(conn == 0 || event.Conn == conn)
}

func assertSentContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if sentMatches(event, a.Prefix, a.Conn) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertSentContains,
		Expected: fmt.Sprintf("payload %q sent to %s", a.Prefix, connLabel(a.Conn)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertSentOrder checks that the first payload with each prefix appears
// in the given order. Other payloads may appear in between.
func assertSentOrder(trace []TraceEvent, a Assertion) error {
	positions := make([]int, len(a.Prefixes))

	for i, prefix := range a.Prefixes {
		for _, event := range trace {
			if sentMatches(event, prefix, 0) {
				positions[i] = event.Seq
				break
			}
		}
		if positions[i] == 0 {
			return &AssertionError{
				Type:     AssertSentOrder,
				Expected: fmt.Sprintf("all payloads sent: %v", a.Prefixes),
				Actual:   fmt.Sprintf("missing payload: %s", prefix),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertSentOrder,
				Expected: fmt.Sprintf("payloads in order: %v", a.Prefixes),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					a.Prefixes[i-1], positions[i-1], a.Prefixes[i], positions[i]),
				Trace: trace,
			}
		}
	}

	return nil
}

func assertSentCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if sentMatches(event, a.Prefix, a.Conn) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertSentCount,
			Expected: fmt.Sprintf("%d payloads %q sent to %s", a.Count, a.Prefix, connLabel(a.Conn)),
			Actual:   fmt.Sprintf("%d payloads", count),
			Trace:    trace,
		}
	}

	return nil
}

func assertOutcome(result *Result, a Assertion) error {
	got, ok := result.Outcomes[a.Name]
	if !ok {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("request %q to exist", a.Name),
			Actual:   fmt.Sprintf("known requests: %v", sortedKeys(result.Outcomes)),
		}
	}
	if got != a.Expect {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("request %q %v", a.Name, a.Expect),
			Actual:   fmt.Sprintf("request %q %s", a.Name, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertStats compares the listed fields of the final painter.Stats,
// using their JSON names. Unlisted fields are ignored.
func assertStats(result *Result, a Assertion) error {
	data, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	var actual map[string]any
	if err := json.Unmarshal(data, &actual); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	expected, _ := a.Expect.(map[string]any)
	for _, key := range sortedKeys(expected) {
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertStats,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("stats fields: %v", sortedKeys(actual)),
			}
		}
		// JSON numbers decode as float64 and YAML integers as int, so
		// compare their printed forms.
		if fmt.Sprint(got) != fmt.Sprint(expected[key]) {
			return &AssertionError{
				Type:     AssertStats,
				Expected: fmt.Sprintf("%s = %v", key, expected[key]),
				Actual:   fmt.Sprintf("%s = %v", key, got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func assertFileSaved(result *Result, a Assertion) error {
	got, ok := result.Files[a.Path]
	if !ok {
		return &AssertionError{
			Type:     AssertFileSaved,
			Expected: fmt.Sprintf("file %s saved", a.Path),
			Actual:   fmt.Sprintf("saved files: %v", sortedKeys(result.Files)),
		}
	}
	if a.Content != "" && got != a.Content {
		return &AssertionError{
			Type:     AssertFileSaved,
			Expected: fmt.Sprintf("content %q", a.Content),
			Actual:   fmt.Sprintf("content %q", got),
		}
	}
	return nil
}

func connLabel(conn uint32) string {
	if conn == 0 {
		return "any conn"
	}
	return fmt.Sprintf("conn %d", conn)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSentContains:
			err = assertSentContains(result.Trace, assertion)
		case AssertSentOrder:
			err = assertSentOrder(result.Trace, assertion)
		case AssertSentCount:
			err = assertSentCount(result.Trace, assertion)
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertStats:
			err = assertStats(result, assertion)
		case AssertFileSaved:
			err = assertFileSaved(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
