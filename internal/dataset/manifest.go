package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// WriteManifest emits the path->type manifest (a JSON map of map-name to
// its element type) to <root>/datasets/paths.json, encoded with sonic
// instead of encoding/json: large maps, hot path.
func (r *Registry) WriteManifest(dir string) error {
	manifest := make(map[string]string)
	for _, name := range r.HeightNames() {
		manifest[name] = "height->f64"
	}
	for _, name := range r.DerivedNames() {
		manifest[name] = "height->f64"
	}
	for _, name := range r.DateNames() {
		manifest[name] = "date->f64"
	}

	b, err := sonic.ConfigStd.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("dataset: encode manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("dataset: create dataset dir: %w", err)
	}
	path := filepath.Join(dir, "paths.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("dataset: write manifest: %w", err)
	}
	return os.Rename(tmp, path)
}
