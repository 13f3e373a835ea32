package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Load reads a scene file and builds a document from it.
func Load(path string) (*Document, error) {
	scene, err := ReadScene(path)
	if err != nil {
		return nil, err
	}
	doc, err := New(scene)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Reload re-reads path into d, advancing its version.
func (d *Document) Reload(path string) error {
	scene, err := ReadScene(path)
	if err != nil {
		return err
	}
	if err := d.Replace(scene); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ReadScene parses a scene file. The format follows the extension:
// .yaml, .yml and .json are decoded as YAML, .cue is evaluated as CUE.
func ReadScene(path string) (Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, fmt.Errorf("failed to read scene file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		return decodeYAML(data)
	case ".cue":
		return decodeCUE(path, data)
	default:
		return Scene{}, fmt.Errorf("unsupported scene format %q", ext)
	}
}

func decodeYAML(data []byte) (Scene, error) {
	var scene Scene
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typos like "object:" for "objects:"
	if err := decoder.Decode(&scene); err != nil {
		return Scene{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return scene, nil
}

func decodeCUE(path string, data []byte) (Scene, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return Scene{}, fmt.Errorf("building CUE value: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Scene{}, fmt.Errorf("validating CUE value: %w", err)
	}

	var scene Scene
	if err := value.Decode(&scene); err != nil {
		return Scene{}, fmt.Errorf("decoding CUE scene: %w", err)
	}
	return scene, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
