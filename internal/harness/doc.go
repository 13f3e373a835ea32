// Package harness runs display-synchronization scenarios against a painter
// wired to in-memory viewers, and checks the resulting wire trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	update_timeout: 50ms
//	viewers:
//	  - conn: 1
//	    ack: true                 # answer SNAP:<v> with SNAPDONE:<v>
//	    replies: { PNG: aW1n }    # answer CMD:<id>:PNG with REPLY:<id>:aW1n
//	steps:
//	  - connect: 1
//	  - update: { name: first, version: 1 }
//	  - command: { name: export, verb: PNG, arg: out.png }
//	  - deliver: { conn: 1, msg: "RREADY:" }
//	  - disconnect: 1
//	assertions:
//	  - type: sent_contains
//	    conn: 1
//	    prefix: "CMD:1:PNG"
//	  - type: outcome
//	    name: export
//	    expect: succeeded
//
// Steps run in order on the painter's owner goroutine; after each step the
// painter drains every queued inbound message. Viewer auto-replies are
// delivered as the payload they answer is sent, so they show up in the
// trace right after it.
//
// # Assertion Types
//
//   - sent_contains: an outbound payload with prefix reached conn (any conn when 0)
//   - sent_order: outbound prefixes first appear in the given order
//   - sent_count: exactly count outbound payloads carry prefix
//   - outcome: a named request resolved as succeeded, failed or pending
//   - stats: subset match against painter.Stats
//   - file_saved: a file was saved with the given content
//
// # Golden Traces
//
// RunWithGolden compares the full trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
