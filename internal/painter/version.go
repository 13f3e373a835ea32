package painter

import (
	"fmt"
	"log/slog"
)

// pendingUpdate waits for a version to reach every connected viewer.
type pendingUpdate struct {
	id      uint64
	version uint64
	done    *completion
}

// VersionTracker holds the current document version, its snapshot, and
// the delivered-to-all version.
//
// Versions are unsigned and never move backwards. 0 means "nothing
// committed yet" and is never a deliverable target.
//
// Not safe for concurrent use; owned by the painter goroutine.
type VersionTracker struct {
	doc      Document
	registry *Registry

	current   uint64
	snapshot  string
	delivered uint64

	pending []pendingUpdate
	nextID  uint64

	// dumpPath receives a copy of the next produced snapshot.
	dumpPath string
	saver    FileSaver
}

// NewVersionTracker creates a tracker producing snapshots from doc and
// computing delivery over the connections of registry.
func NewVersionTracker(doc Document, registry *Registry) *VersionTracker {
	return &VersionTracker{doc: doc, registry: registry, saver: DiskSaver{}}
}

// Current returns the current version and its snapshot.
func (t *VersionTracker) Current() (uint64, string) {
	return t.current, t.snapshot
}

// Delivered returns the delivered-to-all version.
func (t *VersionTracker) Delivered() uint64 {
	return t.delivered
}

// PendingCount returns the number of unresolved pending updates.
func (t *VersionTracker) PendingCount() int {
	return len(t.pending)
}

// Bump commits version as the current document version.
//
// If version has already been delivered to every viewer, nothing is
// produced and Bump reports alreadyDelivered. If version is the current
// version, or older but not yet delivered, the existing snapshot already
// covers it and nothing is produced either. Otherwise a fresh snapshot is
// taken from the document.
func (t *VersionTracker) Bump(version uint64) (alreadyDelivered bool, err error) {
	if version == 0 {
		return false, ErrZeroVersion
	}
	if t.delivered != 0 && version <= t.delivered {
		return true, nil
	}
	if version <= t.current {
		// the snapshot for t.current supersedes it; snapshots are immutable
		return false, nil
	}

	snap, err := t.doc.Snapshot()
	if err != nil {
		return false, fmt.Errorf("produce snapshot for version %d: %w", version, err)
	}

	t.current = version
	t.snapshot = snap

	if t.dumpPath != "" {
		path := t.dumpPath
		t.dumpPath = ""
		if err := t.saver.SaveFile(path, []byte(snap)); err != nil {
			slog.Error("snapshot dump failed", "path", path, "version", version, "error", err)
		} else {
			slog.Info("snapshot dumped", "path", path, "version", version, "bytes", len(snap))
		}
	}

	return false, nil
}

// DumpNext arranges for the next produced snapshot to also be saved to path.
func (t *VersionTracker) DumpNext(path string, saver FileSaver) {
	t.dumpPath = path
	if saver != nil {
		t.saver = saver
	}
}

// AddPending registers done to fire once version reaches every viewer.
// Returns a handle for CancelPending.
func (t *VersionTracker) AddPending(version uint64, done *completion) uint64 {
	t.nextID++
	t.pending = append(t.pending, pendingUpdate{id: t.nextID, version: version, done: done})
	return t.nextID
}

// CancelPending fails and removes one pending update.
func (t *VersionTracker) CancelPending(id uint64) bool {
	for i, pu := range t.pending {
		if pu.id == id {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			pu.done.fire(false)
			return true
		}
	}
	return false
}

// RecordAck stores a viewer's render acknowledgment and reconciles.
// An ack older than what the viewer already confirmed is ignored; one
// newer than the version last sent to that viewer is clamped to it.
func (t *VersionTracker) RecordAck(conn uint32, version uint64) {
	c, ok := t.registry.Find(conn)
	if !ok {
		return
	}
	if limit := min(c.SentVersion, t.current); version > limit {
		slog.Warn("viewer acknowledged a version it was never sent",
			"conn", conn,
			"version", version,
			"sent", c.SentVersion,
			"current", t.current,
		)
		version = limit
	}
	if version > c.AckedVersion {
		c.AckedVersion = version
	}
	t.Reconcile()
}

// Reconcile recomputes the delivered-to-all version and fires every
// pending update it now covers.
//
// With no live viewers the delivered version is kept as is, unless viewers
// existed before: then nothing can ever be delivered and every pending
// update is failed.
func (t *VersionTracker) Reconcile() {
	min, ok := t.registry.MinAcked()
	if !ok {
		if t.registry.AllGone() {
			t.CancelAllPending()
		}
		return
	}

	t.delivered = min

	if len(t.pending) == 0 {
		return
	}

	// callbacks may re-enter the tracker, so detach the ready ones first
	var ready []pendingUpdate
	kept := t.pending[:0]
	for _, pu := range t.pending {
		if pu.version <= t.delivered {
			ready = append(ready, pu)
		} else {
			kept = append(kept, pu)
		}
	}
	t.pending = kept

	for _, pu := range ready {
		pu.done.fire(true)
	}
}

// CancelAllPending fails every pending update and resets the delivered
// version.
func (t *VersionTracker) CancelAllPending() {
	t.delivered = 0
	pending := t.pending
	t.pending = nil
	for _, pu := range pending {
		pu.done.fire(false)
	}
}
