// Package manifest handles arx.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "arx.toml"

// Manifest represents an arx.toml project configuration.
type Manifest struct {
	Package Package `toml:"package"`
	Build   Build   `toml:"build"`

	// Dir is the directory containing the arx.toml file (set at load time).
	Dir string `toml:"-"`
}

// Package contains project metadata and the compilation entry point.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
	Output  string `toml:"output"`
}

// Build configures the compilation cache.
type Build struct {
	Cache     bool   `toml:"cache"`
	CachePath string `toml:"cache_path"`
}

// Load parses an arx.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Package.Name == "" {
		return nil, fmt.Errorf("%s: package.name is required", path)
	}

	// Defaults
	if m.Package.Entry == "" {
		m.Package.Entry = "main.arx"
	}
	if m.Package.Output == "" {
		m.Package.Output = m.Package.Name + ".arxmod"
	}
	if m.Build.CachePath == "" {
		m.Build.CachePath = filepath.Join(".arx", "cache.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an arx.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the compilation entry point.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Package.Entry)
}

// OutputPath returns the absolute path of the compiled module.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.Dir, m.Package.Output)
}

// CachePath returns the absolute path of the compilation cache database.
func (m *Manifest) CachePath() string {
	return filepath.Join(m.Dir, m.Build.CachePath)
}
