package painter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDoc struct {
	n   int
	err error
}

func (d *countingDoc) Snapshot() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.n++
	return "snap-" + string(rune('0'+d.n)), nil
}

type mapSaver map[string][]byte

func (s mapSaver) SaveFile(path string, data []byte) error {
	s[path] = data
	return nil
}

// markSent records that conn was pushed version, as the dispatcher does.
func markSent(t *testing.T, reg *Registry, conn uint32, version uint64) {
	t.Helper()
	c, ok := reg.Find(conn)
	require.True(t, ok)
	c.SentVersion = version
}

func recordOutcome(got *[]bool) *completion {
	return newCompletion(func(ok bool) { *got = append(*got, ok) })
}

func TestVersionTracker_BumpProducesSnapshot(t *testing.T) {
	doc := &countingDoc{}
	tr := NewVersionTracker(doc, NewRegistry())

	delivered, err := tr.Bump(1)
	require.NoError(t, err)
	assert.False(t, delivered)

	v, snap := tr.Current()
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, "snap-1", snap)
}

func TestVersionTracker_BumpZeroRejected(t *testing.T) {
	tr := NewVersionTracker(&countingDoc{}, NewRegistry())

	_, err := tr.Bump(0)
	assert.ErrorIs(t, err, ErrZeroVersion)
}

func TestVersionTracker_BumpSameOrOlderKeepsSnapshot(t *testing.T) {
	doc := &countingDoc{}
	tr := NewVersionTracker(doc, NewRegistry())

	_, _ = tr.Bump(5)
	_, _ = tr.Bump(5)
	_, _ = tr.Bump(3)

	v, snap := tr.Current()
	assert.Equal(t, uint64(5), v)
	assert.Equal(t, "snap-1", snap)
	assert.Equal(t, 1, doc.n, "snapshots are only produced for newer versions")
}

func TestVersionTracker_SnapshotErrorKeepsState(t *testing.T) {
	doc := &countingDoc{}
	tr := NewVersionTracker(doc, NewRegistry())
	_, _ = tr.Bump(1)

	doc.err = errors.New("boom")
	_, err := tr.Bump(2)
	require.Error(t, err)

	v, _ := tr.Current()
	assert.Equal(t, uint64(1), v)
}

func TestVersionTracker_DumpNextOnce(t *testing.T) {
	tr := NewVersionTracker(&countingDoc{}, NewRegistry())
	saver := mapSaver{}
	tr.DumpNext("out.json", saver)

	_, _ = tr.Bump(1)
	_, _ = tr.Bump(2)

	assert.Equal(t, "snap-1", string(saver["out.json"]), "only the next snapshot is dumped")
}

func TestVersionTracker_DeliveredIsMinimum(t *testing.T) {
	reg := NewRegistry()
	tr := NewVersionTracker(&countingDoc{}, reg)
	reg.OnConnect(1)
	reg.OnConnect(2)
	_, _ = tr.Bump(3)
	markSent(t, reg, 1, 3)
	markSent(t, reg, 2, 3)

	tr.RecordAck(1, 3)
	assert.Equal(t, uint64(0), tr.Delivered(), "viewer 2 has not acknowledged")

	tr.RecordAck(2, 2)
	assert.Equal(t, uint64(2), tr.Delivered())

	tr.RecordAck(2, 3)
	assert.Equal(t, uint64(3), tr.Delivered())
}

func TestVersionTracker_AckMonotonicAndClamped(t *testing.T) {
	reg := NewRegistry()
	tr := NewVersionTracker(&countingDoc{}, reg)
	reg.OnConnect(1)
	_, _ = tr.Bump(4)
	markSent(t, reg, 1, 4)

	tr.RecordAck(1, 9)
	c, _ := reg.Find(1)
	assert.Equal(t, uint64(4), c.AckedVersion, "ack clamped to sent version")

	tr.RecordAck(1, 2)
	assert.Equal(t, uint64(4), c.AckedVersion, "ack never moves backwards")

	tr.RecordAck(42, 1)
}

func TestVersionTracker_PendingFiresOnDelivery(t *testing.T) {
	reg := NewRegistry()
	tr := NewVersionTracker(&countingDoc{}, reg)
	reg.OnConnect(1)
	_, _ = tr.Bump(2)
	markSent(t, reg, 1, 2)

	var got []bool
	tr.AddPending(2, recordOutcome(&got))
	tr.AddPending(5, recordOutcome(&got))

	tr.RecordAck(1, 2)
	assert.Equal(t, []bool{true}, got)
	assert.Equal(t, 1, tr.PendingCount())
}

func TestVersionTracker_AllGoneFailsPending(t *testing.T) {
	reg := NewRegistry()
	tr := NewVersionTracker(&countingDoc{}, reg)
	reg.OnConnect(1)
	_, _ = tr.Bump(2)
	markSent(t, reg, 1, 2)
	tr.RecordAck(1, 1)

	var got []bool
	tr.AddPending(2, recordOutcome(&got))

	reg.OnDisconnect(1)
	tr.Reconcile()

	assert.Equal(t, []bool{false}, got)
	assert.Equal(t, uint64(0), tr.Delivered())
	assert.Equal(t, 0, tr.PendingCount())
}

func TestVersionTracker_NeverConnectedKeepsPending(t *testing.T) {
	tr := NewVersionTracker(&countingDoc{}, NewRegistry())
	_, _ = tr.Bump(1)

	var got []bool
	id := tr.AddPending(1, recordOutcome(&got))
	tr.Reconcile()

	assert.Empty(t, got)
	assert.Equal(t, 1, tr.PendingCount())

	assert.True(t, tr.CancelPending(id))
	assert.False(t, tr.CancelPending(id))
	assert.Equal(t, []bool{false}, got)
}

func TestVersionTracker_BumpAlreadyDelivered(t *testing.T) {
	reg := NewRegistry()
	tr := NewVersionTracker(&countingDoc{}, reg)
	reg.OnConnect(1)
	_, _ = tr.Bump(3)
	markSent(t, reg, 1, 3)
	tr.RecordAck(1, 3)

	delivered, err := tr.Bump(2)
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestVersionTracker_AckBeyondSentIgnored(t *testing.T) {
	reg := NewRegistry()
	tr := NewVersionTracker(&countingDoc{}, reg)
	reg.OnConnect(1)
	_, _ = tr.Bump(2)

	var got []bool
	tr.AddPending(2, recordOutcome(&got))

	tr.RecordAck(1, 2)
	c, _ := reg.Find(1)
	assert.Equal(t, uint64(0), c.AckedVersion, "nothing was sent to the viewer")
	assert.Equal(t, uint64(0), tr.Delivered())
	assert.Empty(t, got)

	markSent(t, reg, 1, 1)
	tr.RecordAck(1, 2)
	assert.Equal(t, uint64(1), c.AckedVersion, "ack clamped to the version sent")
	assert.Empty(t, got)

	markSent(t, reg, 1, 2)
	tr.RecordAck(1, 2)
	assert.Equal(t, []bool{true}, got)
}
