// Package painter keeps one server-held document consistent with any number
// of remote viewers connected over an asynchronous channel.
//
// ARCHITECTURE:
//
// Single-Owner Session:
// A Painter is owned by exactly one goroutine. Connection bookkeeping,
// version tracking, the command queue and every completion callback are
// touched only from that goroutine, so none of them carry locks.
//
// The channel manager delivers inbound messages from its own I/O goroutines
// through Deliver, which only appends to a FIFO inbox. The owner drains the
// inbox whenever it pumps: RunFor, and every blocking request while it waits.
//
// Message Processing Flow:
//  1. Channel I/O goroutine calls Deliver(conn, msg)
//  2. Owner goroutine pumps the inbox (RunFor or a blocking wait)
//  3. process() decodes the tag and mutates registry/versions/commands
//  4. pushPass() picks at most one payload per ready connection
//  5. reconcile() recomputes the delivered-to-all version and fires
//     completed update callbacks
//
// Push priority per connection is fixed: a runnable command first, then a
// pending menu reply, then the current snapshot if the viewer is behind.
//
// Every request resolves exactly once: success, failure or timeout. Close
// fails whatever is still outstanding before the channel is released.
package painter
