package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"agentlink/internal/domain"
)

var manifestNames = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

// findManifest looks for <dir>/<module>/agent/manifest.* under each search
// directory in order. It returns "" when none exists.
func findManifest(searchDirs []string, module string) (string, error) {
	for _, dir := range searchDirs {
		for _, name := range manifestNames {
			p := filepath.Join(dir, module, "agent", name)
			_, err := os.Stat(p)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("stat manifest %s: %w", p, err)
			}
		}
	}
	return "", nil
}

// readManifest decodes a manifest file and makes its schema paths absolute.
func readManifest(path string) (domain.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m domain.Manifest
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("resolve manifest dir: %w", err)
	}
	patchPaths(&m.TranslatorConfig, dir)
	return m, nil
}

// patchPaths rewrites relative schema files in the translator tree to be
// relative to dir.
func patchPaths(tc *domain.TranslatorConfig, dir string) {
	tc.Walk(func(node *domain.TranslatorConfig) {
		if node.Schema == nil || node.Schema.SchemaFile == "" {
			return
		}
		if !filepath.IsAbs(node.Schema.SchemaFile) {
			node.Schema.SchemaFile = filepath.Join(dir, node.Schema.SchemaFile)
		}
	})
}
