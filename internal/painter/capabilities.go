package painter

import (
	"os"

	"github.com/roach88/webcanvas/internal/protocol"
)

// Receiver accepts inbound messages from a channel manager.
// Implementations must be safe to call from any goroutine.
type Receiver interface {
	Deliver(conn uint32, msg string) bool
}

// Channel is the transport the painter pushes payloads through.
//
// Send and CanSend must never block. Connection ids are assigned by the
// channel and stay stable for the lifetime of a connection; 0 is never a
// valid id.
type Channel interface {
	Send(conn uint32, payload string) bool
	CanSend(conn uint32) bool
	HasConnection(conn uint32) bool
	NumConnections() int

	Show(where string) error
	IsShown() bool

	// RelativeAddr returns the address of other as seen from this
	// channel's viewers, or "" when other cannot be embedded.
	RelativeAddr(other Channel) string

	SetReceiver(r Receiver)

	// Terminate tears down the whole serving session.
	Terminate()
	CloseConnections()
}

// Document produces serialized snapshots of the painted scene.
type Document interface {
	Snapshot() (string, error)
}

// Drawable is one addressable object of the document.
type Drawable interface {
	Menu() ([]byte, error)
	Execute(instr string) error
}

// Target resolves drawable ids received from viewers.
type Target interface {
	FindDrawable(id string) (Drawable, bool)
}

// FileSaver persists bytes produced by viewers (exports, SAVE requests).
type FileSaver interface {
	SaveFile(path string, data []byte) error
}

// Interrupter receives INTERRUPT requests from viewers.
type Interrupter interface {
	Interrupt()
}

// Recorder receives a trace of protocol traffic and command outcomes.
// Errors are logged by the painter and never abort processing.
type Recorder interface {
	RecordMessage(dir protocol.Direction, conn uint32, tag protocol.Tag, size int) error
	RecordCommand(id uint64, verb, arg string, outcome string) error
}

// DiskSaver writes files to the local filesystem.
type DiskSaver struct{}

// SaveFile writes data to path, replacing any existing file.
func (DiskSaver) SaveFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
