package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactStore persists generated artifacts.
type ArtifactStore interface {
	StoreArtifact(name string, data []byte) (Artifact, error)
}

// LocalStore writes artifacts under BaseDir.
type LocalStore struct {
	BaseDir string
}

var _ ArtifactStore = (*LocalStore)(nil)

// StoreArtifact writes data to BaseDir/name and records its checksum.
func (store *LocalStore) StoreArtifact(name string, data []byte) (Artifact, error) {
	if store.BaseDir == "" {
		return Artifact{}, errors.New("base directory is not configured")
	}
	if name == "" {
		return Artifact{}, errors.New("artifact name is required")
	}

	dest := filepath.Join(store.BaseDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Artifact{}, err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write %s: %w", dest, err)
	}

	checksum := CodeSha256(data)
	artifact := New(dest, name)
	artifact.Checksum = &checksum
	return artifact, nil
}
