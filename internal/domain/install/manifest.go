package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the manifest file inside the install directory.
const ManifestName = "install.toml"

// Manifest records a completed installation.
type Manifest struct {
	Version     string    `toml:"version"`
	InstalledAt time.Time `toml:"installed_at"`
	Executable  string    `toml:"executable,omitempty"`
	Command     string    `toml:"command,omitempty"`
}

// ReadManifest reads the manifest in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	return &m, nil
}

// WriteManifest atomically replaces the manifest in dir.
func WriteManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create install dir: %w", err)
	}

	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ManifestName+".*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, ManifestName))
}

// RemoveManifest deletes the manifest in dir. A missing manifest is not an error.
func RemoveManifest(dir string) error {
	err := os.Remove(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Valid reports whether the manifest describes a usable installation.
func (m *Manifest) Valid() bool {
	if m == nil || m.Version == "" {
		return false
	}
	if m.Executable == "" {
		return true
	}
	info, err := os.Stat(m.Executable)
	return err == nil && !info.IsDir()
}
