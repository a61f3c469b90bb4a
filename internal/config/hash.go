package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name looked up next to a config file.
const ChecksumFile = ".checksums"

const checksumVersion = 1

var errNoChecksums = errors.New("checksums file not found")

// ChecksumManifest records the expected BLAKE3 hash of each locked config file,
// keyed by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockResult describes the outcome of Lock.
type LockResult struct {
	ConfigPath   string
	ChecksumPath string
	Hash         string
	Written      bool
}

// Lock records the BLAKE3 hash of the config file in the .checksums manifest
// of its directory, keeping entries for other files. With dryRun the hash is
// computed but nothing is written.
func Lock(configPath string, dryRun bool) (*LockResult, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", absPath)
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	hash, err := hashFile(absPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)
	res := &LockResult{
		ConfigPath:   absPath,
		ChecksumPath: filepath.Join(dir, ChecksumFile),
		Hash:         hash,
	}
	if dryRun {
		return res, nil
	}

	manifest, err := loadChecksums(dir)
	switch {
	case errors.Is(err, errNoChecksums):
		manifest = &ChecksumManifest{Hashes: make(map[string]string)}
	case err != nil:
		return nil, err
	case manifest.Hashes == nil:
		manifest.Hashes = make(map[string]string)
	}
	manifest.Version = checksumVersion
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[filepath.Base(absPath)] = hash

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(res.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	res.Written = true
	return res, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func verifyHash(path, expected string) error {
	actual, err := hashFile(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s", filepath.Base(path), expected, actual)
	}
	return nil
}

func loadChecksums(dir string) (*ChecksumManifest, error) {
	path := filepath.Join(dir, ChecksumFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", errNoChecksums, path)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if manifest.Version != checksumVersion {
		return nil, fmt.Errorf("unsupported checksums version %d in %s", manifest.Version, path)
	}
	return &manifest, nil
}
