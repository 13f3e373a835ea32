package painter

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueue_SingleFlight(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	id1 := q.Submit(VerbPNG, "a.png", 0, nil)
	q.Submit(VerbSVG, "b.svg", 0, nil)

	payload, ok := q.TryDispatchHead(1)
	require.True(t, ok)
	assert.Equal(t, "CMD:1:PNG", payload)
	assert.Equal(t, uint64(1), id1)

	_, ok = q.TryDispatchHead(2)
	assert.False(t, ok, "head already running")
	assert.Equal(t, 1, q.RunningCount())

	head, _ := q.Head()
	assert.Equal(t, uint32(1), head.Conn, "running command is bound to its viewer")
}

func TestCommandQueue_BoundHeadOnlyToItsConn(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	q.Submit(VerbPNG, "a.png", 2, nil)

	_, ok := q.TryDispatchHead(1)
	assert.False(t, ok)

	_, ok = q.TryDispatchHead(2)
	assert.True(t, ok)
}

func TestCommandQueue_CompleteImage(t *testing.T) {
	saver := mapSaver{}
	q := NewCommandQueue(NewClock(), saver)

	var got []bool
	id := q.Submit(VerbPNG, "a.png", 0, recordOutcome(&got))
	q.TryDispatchHead(1)

	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	cmd, err := q.CompleteHead("1:" + encoded)
	require.NoError(t, err)

	assert.Equal(t, id, cmd.ID)
	assert.True(t, cmd.Ready)
	assert.True(t, cmd.Result)
	assert.Equal(t, []bool{true}, got)
	assert.Equal(t, "png-bytes", string(saver["a.png"]))
	assert.Equal(t, 0, q.Len())
}

func TestCommandQueue_CompleteEmptyImageFails(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	var got []bool
	q.Submit(VerbSVG, "a.svg", 0, recordOutcome(&got))
	q.TryDispatchHead(1)

	_, err := q.CompleteHead("1:")
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, got)
}

func TestCommandQueue_CompleteAddPanel(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	var got []bool
	q.Submit(VerbAddPanel+"../k/ws", "AddPanel", 0, recordOutcome(&got))
	q.Submit(VerbAddPanel+"../j/ws", "AddPanel", 0, recordOutcome(&got))

	q.TryDispatchHead(1)
	_, err := q.CompleteHead("1:true")
	require.NoError(t, err)

	q.TryDispatchHead(1)
	_, err = q.CompleteHead("2:false")
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, got)
}

func TestCommandQueue_ReplyValidation(t *testing.T) {
	tests := []struct {
		name     string
		dispatch bool
		reply    string
		code     ProtocolErrorCode
	}{
		{name: "no command queued", reply: "1:true", code: ErrCodeNoRunningCommand},
		{name: "head not running", reply: "1:true", code: ErrCodeNoRunningCommand},
		{name: "stale id", dispatch: true, reply: "7:true", code: ErrCodeReplyMismatch},
		{name: "garbage id", dispatch: true, reply: "x:true", code: ErrCodeReplyMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewCommandQueue(NewClock(), mapSaver{})
			var got []bool
			if tt.name != "no command queued" {
				q.Submit(VerbAddPanel+"x", "AddPanel", 0, recordOutcome(&got))
			}
			if tt.dispatch {
				q.TryDispatchHead(1)
			}
			before := q.Len()

			_, err := q.CompleteHead(tt.reply)
			require.Error(t, err)
			assert.True(t, IsReplyMismatch(err))

			var pe *ProtocolError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)

			assert.Equal(t, before, q.Len(), "queue unchanged")
			assert.Empty(t, got, "callback not fired")
		})
	}
}

func TestCommandQueue_MalformedImageReply(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	var got []bool
	q.Submit(VerbJPEG, "a.jpg", 0, recordOutcome(&got))
	q.TryDispatchHead(1)

	_, err := q.CompleteHead("1:!!not-base64!!")
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
	assert.Equal(t, []bool{false}, got, "command still completes, as a failure")
	assert.Equal(t, 0, q.Len())
}

func TestCommandQueue_CancelAll(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	var got []bool
	q.Submit(VerbPNG, "a", 0, recordOutcome(&got))
	q.Submit(VerbPNG, "b", 2, recordOutcome(&got))
	q.Submit(VerbPNG, "c", 0, recordOutcome(&got))
	q.TryDispatchHead(1)

	assert.Equal(t, 1, q.CancelAll(1), "only the command bound to viewer 1")
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, 2, q.CancelAll(0))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []bool{false, false, false}, got)
}

func TestCommandQueue_CancelByID(t *testing.T) {
	q := NewCommandQueue(NewClock(), mapSaver{})
	var got []bool
	id := q.Submit(VerbPNG, "a", 0, recordOutcome(&got))

	assert.True(t, q.Cancel(id))
	assert.False(t, q.Cancel(id))
	assert.Equal(t, []bool{false}, got)
}

func TestCompletion_FiresOnce(t *testing.T) {
	var got []bool
	c := recordOutcome(&got)

	assert.True(t, c.fire(true))
	assert.False(t, c.fire(false))

	done, ok := c.outcome()
	assert.True(t, done)
	assert.True(t, ok)
	assert.Equal(t, []bool{true}, got)
}
