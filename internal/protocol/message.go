package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Tag identifies the kind of a wire message.
type Tag string

// Inbound tags. Tags ending in ':' carry a body.
const (
	TagConnReady  Tag = "CONN_READY"
	TagConnClosed Tag = "CONN_CLOSED"
	TagReady      Tag = "READY"
	TagSnapDone   Tag = "SNAPDONE:"
	TagRenderDone Tag = "RREADY:"
	TagGetMenu    Tag = "GETMENU:"
	TagQuit       Tag = "QUIT"
	TagReload     Tag = "RELOAD"
	TagInterrupt  Tag = "INTERRUPT"
	TagReply      Tag = "REPLY:"
	TagSave       Tag = "SAVE:"
	TagObjExec    Tag = "OBJEXEC:"
)

// Outbound tags.
const (
	TagCommand  Tag = "CMD:"
	TagMenu     Tag = "MENU:"
	TagSnapshot Tag = "SNAP:"
)

// TagUnknown is reported by Parse for messages with no recognized tag.
const TagUnknown Tag = ""

// ErrUnknownTag is returned by Parse when no tag matches.
var ErrUnknownTag = errors.New("unrecognized message tag")

// ErrMissingSeparator is returned when a <head>:<payload> body has no ':'
// or an empty head.
var ErrMissingSeparator = errors.New("body has no <head>:<payload> separator")

// Message is a decoded inbound message.
type Message struct {
	Tag  Tag
	Body string // everything after the tag, verbatim
}

// exact tags must match the whole message, prefix tags only its start.
var exactTags = []Tag{TagConnReady, TagConnClosed, TagQuit, TagReload, TagInterrupt}

// prefixTags are checked in this order. READY is last so that
// CONN_READY and RREADY: never fall into it.
var prefixTags = []Tag{
	TagSnapDone,
	TagRenderDone,
	TagGetMenu,
	TagReply,
	TagSave,
	TagObjExec,
	TagReady,
}

// Parse classifies an inbound message.
func Parse(msg string) (Message, error) {
	for _, t := range exactTags {
		if msg == string(t) {
			return Message{Tag: t}, nil
		}
	}
	for _, t := range prefixTags {
		if strings.HasPrefix(msg, string(t)) {
			return Message{Tag: t, Body: msg[len(t):]}, nil
		}
	}
	return Message{Tag: TagUnknown, Body: msg}, fmt.Errorf("%w: %q", ErrUnknownTag, truncate(msg, 40))
}

// Version decodes the body of a SNAPDONE message.
func (m Message) Version() (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(m.Body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", m.Body, err)
	}
	return v, nil
}

// Split separates a body of the form <head>:<payload>. The head must be
// non-empty; the payload may be empty and may itself contain ':'.
func (m Message) Split() (head, payload string, err error) {
	return SplitField(m.Body)
}

// SplitField splits s at its first ':'.
func SplitField(s string) (head, payload string, err error) {
	pos := strings.IndexByte(s, ':')
	if pos <= 0 {
		return "", "", ErrMissingSeparator
	}
	return s[:pos], s[pos+1:], nil
}

// FormatCommand encodes a command dispatch: CMD:<id>:<verb>.
func FormatCommand(id uint64, verb string) string {
	return string(TagCommand) + strconv.FormatUint(id, 10) + ":" + verb
}

// FormatMenu encodes a menu reply: MENU:<target>:<json>.
func FormatMenu(target string, menuJSON []byte) string {
	var b strings.Builder
	b.Grow(len(TagMenu) + len(target) + 1 + len(menuJSON))
	b.WriteString(string(TagMenu))
	b.WriteString(target)
	b.WriteByte(':')
	b.Write(menuJSON)
	return b.String()
}

// FormatSnapshot encodes a document snapshot: SNAP:<version>:<payload>.
func FormatSnapshot(version uint64, payload string) string {
	var b strings.Builder
	b.Grow(len(TagSnapshot) + 21 + len(payload))
	b.WriteString(string(TagSnapshot))
	b.WriteString(strconv.FormatUint(version, 10))
	b.WriteByte(':')
	b.WriteString(payload)
	return b.String()
}

// TagOf returns the outbound or inbound tag a raw message starts with,
// or TagUnknown. Used for metrics and trace labels, never for dispatch.
func TagOf(msg string) Tag {
	for _, t := range []Tag{TagCommand, TagMenu, TagSnapshot} {
		if strings.HasPrefix(msg, string(t)) {
			return t
		}
	}
	m, err := Parse(msg)
	if err != nil {
		return TagUnknown
	}
	return m.Tag
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Direction tells whether a message travelled to or from a viewer.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)
