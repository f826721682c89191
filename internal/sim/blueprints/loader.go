package blueprints

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir walks dir recursively and defines one blueprint per .json, .yaml
// or .yml file. The ref is the file name without its extension. Loading
// stops at the first document that cannot be decoded or fails validation.
func LoadDir(r *Registry, dir string) (int, error) {
	return LoadFS(r, os.DirFS(dir))
}

func LoadFS(r *Registry, fsys fs.FS) (int, error) {
	seen := map[string]string{}
	n := 0
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		ref := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if prev, dup := seen[ref]; dup {
			r.log.WithField("ref", ref).Warnf("blueprint %s overrides %s", path, prev)
		}
		seen[ref] = path

		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		doc, err := decodeDocument(ext, raw)
		if err != nil {
			return fmt.Errorf("blueprint %s: %w", path, err)
		}
		if err := r.Define(ref, doc); err != nil {
			return fmt.Errorf("blueprint %s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

func decodeDocument(ext string, raw []byte) (any, error) {
	var doc any
	switch ext {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
