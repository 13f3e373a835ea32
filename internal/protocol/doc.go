// Package protocol implements the text wire format spoken between the
// painter and its remote viewers.
//
// Every message is a single line. The leading tag selects the meaning and
// the remainder (after the tag) is the tag-specific body:
//
//	inbound   CONN_READY | CONN_CLOSED | READY... | SNAPDONE:<version>
//	          RREADY: | GETMENU:<target> | QUIT | RELOAD | INTERRUPT
//	          REPLY:<id>:<payload> | SAVE:<file>:<base64> | OBJEXEC:<id>:<instr>
//	outbound  CMD:<id>:<verb> | MENU:<target>:<json> | SNAP:<version>:<payload>
//
// The tags are a stable contract with the existing browser viewer and must
// not change. Bodies are kept verbatim: only the first ':' after the tag
// separates a head field from its payload, so payloads may contain ':'.
package protocol
