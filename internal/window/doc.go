// Package window serves painter channels over websockets.
//
// A Manager owns one HTTP server. Each Window registered on it is reachable
// at /win/{key}/ws where key is a UUIDv7; every websocket opened there is
// one viewer connection. Inbound text frames are handed to the window's
// receiver, bracketed by CONN_READY and CONN_CLOSED. Outbound payloads go
// through a bounded per-connection queue drained by a write pump that also
// keeps the connection alive with pings.
//
// The manager additionally serves /metrics (Prometheus) and /healthz.
package window
