package agents

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists generated file sets on the local filesystem, one
// directory per artifact key.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates a store rooted at dir. The directory is created
// on first write.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir returns the store's root directory.
func (a *ArtifactStore) Dir() string { return a.dir }

// Store writes the files under <root>/<key>/ and returns the artifact
// directory. Path traversal in file names is rejected.
func (a *ArtifactStore) Store(key string, files map[string]string) (string, error) {
	base := filepath.Join(a.dir, key)
	for name, content := range files {
		path := filepath.Join(base, filepath.FromSlash(name))
		if !strings.HasPrefix(path, base+string(filepath.Separator)) {
			return "", fmt.Errorf("artifact path %q escapes the store", name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create artifact dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write artifact %s: %w", name, err)
		}
	}
	return base, nil
}

// Load reads an artifact back as a file map keyed by slash-separated
// relative paths.
func (a *ArtifactStore) Load(key string) (map[string]string, error) {
	base := filepath.Join(a.dir, key)
	files := map[string]string{}

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", key, err)
	}
	return files, nil
}
