package cli

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/roach88/webcanvas/internal/config"
)

const testScene = `title: test scene
size: [320, 200]
objects:
  - id: hist
    kind: TH1F
    attrs:
      color: blue
`

func testRootOptions(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Config: config.Config{
			Server: config.ServerConfig{Addr: "127.0.0.1:0"},
			Painter: config.PainterConfig{
				PollInterval:   5 * time.Millisecond,
				UpdateTimeout:  2 * time.Second,
				CommandTimeout: 2 * time.Second,
			},
			Window: config.WindowConfig{
				SendQueue:       16,
				MaxMessageBytes: 1 << 20,
				PingInterval:    time.Second,
			},
		},
	}
}

func writeScene(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fakeViewer is a websocket client acknowledging every snapshot and
// answering image commands with imageReply.
type fakeViewer struct {
	ws  *websocket.Conn
	mu  sync.Mutex
	got chan string

	imageReply []byte
}

func dialViewer(t *testing.T, url string, imageReply []byte) *fakeViewer {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	v := &fakeViewer{ws: ws, got: make(chan string, 64), imageReply: imageReply}
	go v.readLoop()
	t.Cleanup(func() { ws.Close() })
	return v
}

func (v *fakeViewer) readLoop() {
	defer close(v.got)
	for {
		_, data, err := v.ws.ReadMessage()
		if err != nil {
			return
		}
		msg := string(data)

		if rest, ok := strings.CutPrefix(msg, "SNAP:"); ok {
			version, _, _ := strings.Cut(rest, ":")
			v.send("SNAPDONE:" + version)
		}
		if rest, ok := strings.CutPrefix(msg, "CMD:"); ok {
			id, _, _ := strings.Cut(rest, ":")
			v.send("REPLY:" + id + ":" + base64.StdEncoding.EncodeToString(v.imageReply))
		}

		v.got <- msg
	}
}

func (v *fakeViewer) send(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// expect returns the next message starting with prefix, skipping others.
func (v *fakeViewer) expect(t *testing.T, prefix string) string {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-v.got:
			require.True(t, ok, "viewer connection closed while waiting for %q", prefix)
			if strings.HasPrefix(msg, prefix) {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", prefix)
			return ""
		}
	}
}

func waitURL(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case url := <-ch:
		return url
	case <-time.After(3 * time.Second):
		t.Fatal("window was never shown")
		return ""
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("command did not return")
		return nil
	}
}
