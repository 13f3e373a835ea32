package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestLoad_YAMLSnapshot(t *testing.T) {
	doc, err := Load("testdata/scene.yaml")
	require.NoError(t, err)

	snap, err := doc.Snapshot()
	require.NoError(t, err)

	newGoldie(t).Assert(t, "scene_snapshot", []byte(snap+"\n"))
}

func TestLoad_CUEMatchesYAML(t *testing.T) {
	fromYAML, err := Load("testdata/scene.yaml")
	require.NoError(t, err)
	fromCUE, err := Load("testdata/scene.cue")
	require.NoError(t, err)

	a, err := fromYAML.Snapshot()
	require.NoError(t, err)
	b, err := fromCUE.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load("testdata/typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.toml")
	require.NoError(t, os.WriteFile(path, []byte("title = 'x'"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported scene format")
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		scene Scene
	}{
		{name: "empty id", scene: Scene{Objects: []ObjectSpec{{ID: ""}}}},
		{name: "reserved id", scene: Scene{Objects: []ObjectSpec{{ID: "canvas"}}}},
		{name: "separator in id", scene: Scene{Objects: []ObjectSpec{{ID: "a:b"}}}},
		{name: "specifier in id", scene: Scene{Objects: []ObjectSpec{{ID: "a#b"}}}},
		{name: "duplicate id", scene: Scene{Objects: []ObjectSpec{{ID: "a"}, {ID: "a"}}}},
		{name: "negative size", scene: Scene{Size: []int{-1, 10}}},
		{name: "short size", scene: Scene{Size: []int{10}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.scene)
			assert.ErrorIs(t, err, ErrInvalidScene)
		})
	}
}

func TestNew_DefaultSizeAndVersion(t *testing.T) {
	doc, err := New(Scene{Title: "t"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), doc.Version())
	assert.Equal(t, 0, doc.Len())

	snap, err := doc.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, snap, `"size":[800,600]`)
	assert.Contains(t, snap, `"primitives":[]`)
}

func TestFindDrawable_NFC(t *testing.T) {
	// combining acute in the scene, precomposed in the lookup
	doc, err := New(Scene{Objects: []ObjectSpec{{ID: "cafe\u0301", Kind: "TText"}}})
	require.NoError(t, err)

	_, ok := doc.FindDrawable("caf\u00e9")
	assert.True(t, ok)

	_, ok = doc.FindDrawable("cafe")
	assert.False(t, ok)
}

func TestObject_Menu(t *testing.T) {
	doc, err := Load("testdata/scene.yaml")
	require.NoError(t, err)

	hist, ok := doc.FindDrawable("hist")
	require.True(t, ok)
	menu, err := hist.Menu()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"SetLineColor","title":"Line color","exec":"SetAttr(color,red)"}]`, string(menu))

	fit, ok := doc.FindDrawable("fit")
	require.True(t, ok)
	menu, err = fit.Menu()
	require.NoError(t, err)
	newGoldie(t).Assert(t, "default_menu", append(menu, '\n'))
}

func TestObject_Execute(t *testing.T) {
	doc, err := Load("testdata/scene.yaml")
	require.NoError(t, err)

	d, _ := doc.FindDrawable("hist")
	hist := d.(*Object)

	require.NoError(t, hist.Execute("SetAttr(color, red)"))
	assert.Equal(t, uint64(2), doc.Version())
	v, _ := hist.Attr("color")
	assert.Equal(t, "red", v)

	require.NoError(t, hist.Execute("ClearAttr(width)"))
	assert.Equal(t, uint64(3), doc.Version())
	_, ok := hist.Attr("width")
	assert.False(t, ok)

	require.NoError(t, hist.Execute("ClearAttr(width)"))
	assert.Equal(t, uint64(3), doc.Version(), "no-op clear keeps the version")

	for _, bad := range []string{"Draw()", "SetAttr(color)", "garbage", "(x)"} {
		assert.ErrorIs(t, hist.Execute(bad), ErrUnknownInstruction, bad)
	}
	assert.Equal(t, uint64(3), doc.Version())
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: one\nobjects: []\n"), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("title: two\nobjects:\n  - id: a\n    kind: TBox\n"), 0o644))
	require.NoError(t, doc.Reload(path))

	assert.Equal(t, "two", doc.Title())
	assert.Equal(t, 1, doc.Len())
	assert.Equal(t, uint64(2), doc.Version())

	require.NoError(t, os.WriteFile(path, []byte("title: three\nobjects:\n  - id: canvas\n"), 0o644))
	assert.Error(t, doc.Reload(path))
	assert.Equal(t, "two", doc.Title(), "failed reload leaves the document unchanged")
}
