package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportRun struct {
	out  *bytes.Buffer
	url  string
	errs chan error
}

func startExport(t *testing.T, opts *ExportOptions, docPath, output string) exportRun {
	t.Helper()

	urls := make(chan string, 1)
	opts.ready = func(url string) { urls <- url }
	if opts.Timeout == 0 {
		opts.Timeout = 3 * time.Second
	}

	out := &bytes.Buffer{}
	cmd := NewExportCommand(opts.RootOptions)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	errs := make(chan error, 1)
	go func() {
		errs <- runExport(context.Background(), opts, cmd, docPath, output)
	}()

	return exportRun{out: out, url: waitURL(t, urls), errs: errs}
}

func TestExport_WritesImageFromViewer(t *testing.T) {
	output := filepath.Join(t.TempDir(), "scene.png")
	opts := &ExportOptions{RootOptions: testRootOptions("text")}
	run := startExport(t, opts, writeScene(t, testScene), output)

	v := dialViewer(t, run.url, []byte("\x89PNG fake image"))
	cmd := v.expect(t, "CMD:")
	assert.Regexp(t, `^CMD:\d+:PNG$`, cmd)

	require.NoError(t, waitErr(t, run.errs))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake image", string(data))
	assert.Contains(t, run.out.String(), "Exported "+output+" (PNG, 15 bytes)")
}

func TestExport_JSONResult(t *testing.T) {
	output := filepath.Join(t.TempDir(), "scene.SVG")
	opts := &ExportOptions{RootOptions: testRootOptions("json")}
	run := startExport(t, opts, writeScene(t, testScene), output)

	dialViewer(t, run.url, []byte("<svg/>"))
	require.NoError(t, waitErr(t, run.errs))

	var resp struct {
		Status string       `json:"status"`
		Data   ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(run.out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "SVG", resp.Data.Verb)
	assert.Equal(t, int64(6), resp.Data.Bytes)
}

func TestExport_ViewerFailsToProduceImage(t *testing.T) {
	output := filepath.Join(t.TempDir(), "scene.jpg")
	opts := &ExportOptions{RootOptions: testRootOptions("text")}
	run := startExport(t, opts, writeScene(t, testScene), output)

	// an empty reply payload means the viewer could not render the image
	dialViewer(t, run.url, nil)

	err := waitErr(t, run.errs)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoFileExists(t, output)
}

func TestExport_NoViewer(t *testing.T) {
	opts := &ExportOptions{RootOptions: testRootOptions("text"), Timeout: 50 * time.Millisecond}
	run := startExport(t, opts, writeScene(t, testScene), filepath.Join(t.TempDir(), "x.png"))

	err := waitErr(t, run.errs)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no viewer connected")
}

func TestExport_UnsupportedExtension(t *testing.T) {
	opts := &ExportOptions{RootOptions: testRootOptions("text")}
	cmd := NewExportCommand(opts.RootOptions)

	err := runExport(context.Background(), opts, cmd, writeScene(t, testScene), "scene.gif")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestExport_RequiresTwoArgs(t *testing.T) {
	cmd := NewExportCommand(testRootOptions("text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"scene.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}
