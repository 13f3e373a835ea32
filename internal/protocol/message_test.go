package protocol

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Tags(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		tag  Tag
		body string
	}{
		{"conn ready", "CONN_READY", TagConnReady, ""},
		{"conn closed", "CONN_CLOSED", TagConnClosed, ""},
		{"ready bare", "READY", TagReady, ""},
		{"ready with suffix", "READY123", TagReady, "123"},
		{"snapdone", "SNAPDONE:7", TagSnapDone, "7"},
		{"render done", "RREADY:", TagRenderDone, ""},
		{"get menu", "GETMENU:frame#1", TagGetMenu, "frame#1"},
		{"quit", "QUIT", TagQuit, ""},
		{"reload", "RELOAD", TagReload, ""},
		{"interrupt", "INTERRUPT", TagInterrupt, ""},
		{"reply", "REPLY:3:aGVsbG8=", TagReply, "3:aGVsbG8="},
		{"save", "SAVE:out.svg:PHN2Zz4=", TagSave, "out.svg:PHN2Zz4="},
		{"objexec", "OBJEXEC:hist:SetAttr(color,red)", TagObjExec, "hist:SetAttr(color,red)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, m.Tag)
			assert.Equal(t, tt.body, m.Body)
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	for _, msg := range []string{"", "HELLO", "quit", "CONN_READY_EXTRA", "SNAP:1:x"} {
		m, err := Parse(msg)
		require.Error(t, err, msg)
		assert.ErrorIs(t, err, ErrUnknownTag)
		assert.Equal(t, TagUnknown, m.Tag)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "READY", 40, "READY"},
		{"ascii", "abcdef", 3, "abc..."},
		{"cut inside rune", "abécd", 3, "ab..."},
		{"cut after rune", "abécd", 4, "abé..."},
		{"wide rune", "日本語", 4, "日..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestParse_UnknownNonASCIIErrorIsValidUTF8(t *testing.T) {
	_, err := Parse(strings.Repeat("é", 30))
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
}

func TestMessage_Version(t *testing.T) {
	m, err := Parse("SNAPDONE:42")
	require.NoError(t, err)
	v, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	m, err = Parse("SNAPDONE:abc")
	require.NoError(t, err)
	_, err = m.Version()
	assert.Error(t, err)
}

func TestSplitField(t *testing.T) {
	head, payload, err := SplitField("12:a:b:c")
	require.NoError(t, err)
	assert.Equal(t, "12", head)
	assert.Equal(t, "a:b:c", payload)

	head, payload, err = SplitField("12:")
	require.NoError(t, err)
	assert.Equal(t, "12", head)
	assert.Empty(t, payload)

	_, _, err = SplitField(":payload")
	assert.ErrorIs(t, err, ErrMissingSeparator)

	_, _, err = SplitField("nopayload")
	assert.ErrorIs(t, err, ErrMissingSeparator)
}

func TestTagOf(t *testing.T) {
	assert.Equal(t, TagCommand, TagOf("CMD:1:PNG"))
	assert.Equal(t, TagMenu, TagOf("MENU:x:[]"))
	assert.Equal(t, TagSnapshot, TagOf("SNAP:1:{}"))
	assert.Equal(t, TagSnapDone, TagOf("SNAPDONE:1"))
	assert.Equal(t, TagUnknown, TagOf("bogus"))
}

func TestOutboundEncoding_Golden(t *testing.T) {
	lines := []string{
		FormatCommand(1, "PNG"),
		FormatCommand(12, "ADDPANEL:../key/ws"),
		FormatMenu("hist#x", []byte(`[{"name":"SetLineColor","title":"Line color","exec":"SetAttr(color,red)"}]`)),
		FormatSnapshot(3, `{"objid":"canvas"}`),
		FormatSnapshot(0, ""),
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "outbound", []byte(strings.Join(lines, "\n")+"\n"))
}
