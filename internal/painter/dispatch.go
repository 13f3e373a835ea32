package painter

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/webcanvas/internal/metrics"
	"github.com/roach88/webcanvas/internal/protocol"
)

// process applies one inbound message from conn and re-runs the push pass.
// CRITICAL: called only from the owner goroutine.
func (p *Painter) process(conn uint32, msg string) error {
	p.record(protocol.Inbound, conn, msg)

	m, parseErr := protocol.Parse(msg)

	if m.Tag == protocol.TagConnReady {
		if !p.registry.OnConnect(conn) {
			slog.Warn("duplicate connection announcement", "conn", conn)
		} else {
			slog.Info("viewer connected", "conn", conn, "connections", p.registry.Len())
		}
		p.pushPass()
		return nil
	}

	c, ok := p.registry.Find(conn)
	if !ok {
		return &ProtocolError{
			Code:    ErrCodeUnknownConnection,
			Message: "message from unregistered connection",
			Conn:    conn,
		}
	}

	if m.Tag == protocol.TagQuit {
		slog.Info("viewer requested termination", "conn", conn)
		p.channel.Terminate()
		return nil
	}

	var err error
	if parseErr != nil {
		err = &ProtocolError{Code: ErrCodeUnknownTag, Message: parseErr.Error(), Conn: conn}
	} else {
		err = p.apply(c, m)
	}

	p.pushPass()
	return err
}

// apply routes a parsed message. c is the sender's live record.
func (p *Painter) apply(c *Connection, m protocol.Message) error {
	switch m.Tag {
	case protocol.TagConnClosed:
		p.registry.OnDisconnect(c.ID)
		n := p.commands.CancelAll(c.ID)
		slog.Info("viewer disconnected",
			"conn", c.ID,
			"connections", p.registry.Len(),
			"cancelled_commands", n,
		)

	case protocol.TagReady:
		// reserved

	case protocol.TagSnapDone:
		v, err := m.Version()
		if err != nil {
			return &ProtocolError{Code: ErrCodeMalformedBody, Message: err.Error(), Conn: c.ID}
		}
		c.DrawReady = true
		p.versions.RecordAck(c.ID, v)

	case protocol.TagRenderDone:
		c.DrawReady = true

	case protocol.TagGetMenu:
		c.PendingMenu = m.Body

	case protocol.TagReload:
		c.SentVersion = 0

	case protocol.TagInterrupt:
		if p.interrupter == nil {
			slog.Debug("interrupt requested, no interrupter configured", "conn", c.ID)
			return nil
		}
		slog.Info("interrupt requested", "conn", c.ID)
		p.interrupter.Interrupt()

	case protocol.TagReply:
		if _, err := p.commands.CompleteHead(m.Body); err != nil {
			return withConn(err, c.ID)
		}

	case protocol.TagSave:
		return p.saveFile(c.ID, m.Body)

	case protocol.TagObjExec:
		return p.execute(c.ID, m.Body)
	}

	return nil
}

// pushPass sends at most one payload to every connection able to accept
// data, in connection order, then reconciles delivery state.
func (p *Painter) pushPass() {
	for _, c := range p.registry.All() {
		if !p.channel.CanSend(c.ID) {
			continue
		}
		if payload := p.nextPayload(c); payload != "" {
			p.send(c.ID, payload)
		}
	}
	p.reconcile()
}

// nextPayload picks what c should receive now:
// a runnable command, else a menu reply, else a newer snapshot.
func (p *Painter) nextPayload(c *Connection) string {
	if c.DrawReady {
		if payload, ok := p.commands.TryDispatchHead(c.ID); ok {
			slog.Debug("command dispatched", "conn", c.ID, "payload", payload)
			return payload
		}
	}

	if c.PendingMenu != "" {
		target := c.PendingMenu
		c.PendingMenu = ""
		return p.menuPayload(c.ID, target)
	}

	current, snapshot := p.versions.Current()
	if c.SentVersion != current {
		c.SentVersion = current
		return protocol.FormatSnapshot(current, snapshot)
	}

	return ""
}

// reconcile recomputes the delivered-to-all version. Once every viewer is
// gone after having had some, queued commands are failed as well.
func (p *Painter) reconcile() {
	p.versions.Reconcile()
	metrics.DeliveredVersion.Set(float64(p.versions.Delivered()))

	if p.registry.AllGone() && p.commands.Len() > 0 {
		n := p.commands.CancelAll(0)
		slog.Warn("all viewers disconnected, commands cancelled", "cancelled", n)
	}
}

func (p *Painter) send(conn uint32, payload string) {
	if !p.channel.Send(conn, payload) {
		slog.Warn("send dropped by channel", "conn", conn, "tag", protocol.TagOf(payload))
		return
	}
	p.record(protocol.Outbound, conn, payload)
}

func (p *Painter) menuPayload(conn uint32, target string) string {
	d, ok := p.findDrawable(target)
	if !ok {
		slog.Debug("menu requested for unknown drawable", "conn", conn, "target", target)
		return ""
	}

	items, err := d.Menu()
	if err != nil {
		slog.Error("populate menu", "conn", conn, "target", target, "error", err)
		return ""
	}

	slog.Debug("menu produced", "conn", conn, "target", target, "bytes", len(items))
	return protocol.FormatMenu(target, items)
}

// findDrawable resolves a viewer-supplied id. Anything after '#' is a
// viewer-side specifier and is not part of the drawable id.
func (p *Painter) findDrawable(id string) (Drawable, bool) {
	if p.target == nil {
		return nil, false
	}
	if pos := strings.IndexByte(id, '#'); pos >= 0 {
		id = id[:pos]
	}
	return p.target.FindDrawable(id)
}

func (p *Painter) execute(conn uint32, body string) error {
	id, instr, err := protocol.SplitField(body)
	if err != nil {
		return &ProtocolError{Code: ErrCodeMalformedBody, Message: "OBJEXEC " + err.Error(), Conn: conn}
	}

	if d, ok := p.findDrawable(id); ok && instr != "" {
		slog.Debug("execute on drawable", "conn", conn, "target", id, "instr", instr)
		if err := d.Execute(instr); err != nil {
			slog.Warn("drawable rejected instruction", "target", id, "instr", instr, "error", err)
		}
		return nil
	}

	if id == DocumentObjectID {
		slog.Debug("execute on document itself ignored", "conn", conn, "instr", instr)
		return nil
	}

	slog.Debug("execute for unknown drawable dropped", "conn", conn, "target", id)
	return nil
}

func (p *Painter) saveFile(conn uint32, body string) error {
	name, encoded, err := protocol.SplitField(body)
	if err != nil {
		return &ProtocolError{Code: ErrCodeMalformedBody, Message: "SAVE " + err.Error(), Conn: conn}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &ProtocolError{Code: ErrCodeMalformedBody, Message: fmt.Sprintf("SAVE decode: %v", err), Conn: conn}
	}

	if err := p.saver.SaveFile(name, data); err != nil {
		return fmt.Errorf("save file from viewer %s: %w", name, err)
	}

	slog.Info("file saved from viewer", "conn", conn, "path", name, "bytes", len(data))
	return nil
}

func (p *Painter) record(dir protocol.Direction, conn uint32, msg string) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordMessage(dir, conn, protocol.TagOf(msg), len(msg)); err != nil {
		slog.Warn("trace message", "conn", conn, "error", err)
	}
}

func withConn(err error, conn uint32) error {
	if pe, ok := err.(*ProtocolError); ok && pe.Conn == 0 {
		pe.Conn = conn
	}
	return err
}

// logInboundError logs a dropped inbound message with enough context to
// reproduce it.
func logInboundError(in inbound, err error) {
	code := "other"
	if pe, ok := err.(*ProtocolError); ok {
		code = string(pe.Code)
	}
	metrics.ProtocolErrorsTotal.WithLabelValues(code).Inc()

	slog.Error("inbound message dropped",
		"conn", in.conn,
		"tag", string(protocol.TagOf(in.msg)),
		"size", len(in.msg),
		"error", err,
	)
}
