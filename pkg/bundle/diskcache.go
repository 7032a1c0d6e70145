package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/traffical/traffical-go/pkg/paths"
)

// DiskCache persists the last known good snapshot so a process can start
// offline. Concurrent processes are serialised with file locks.
type DiskCache struct {
	path string
}

// NewDiskCache creates a cache backed by the file at path.
func NewDiskCache(path string) *DiskCache {
	return &DiskCache{path: path}
}

// DefaultCachePath returns ~/.traffical/cache/bundle-<project>-<env>.json.
func DefaultCachePath(projectID, environment string) (string, error) {
	dir, err := paths.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("bundle-%s-%s.json", projectID, environment)), nil
}

// Path returns the backing file path.
func (c *DiskCache) Path() string {
	return c.path
}

// Save writes snap atomically with respect to other cache users.
func (c *DiskCache) Save(snap *Snapshot) error {
	if snap == nil || snap.Bundle == nil {
		return errors.New("refusing to cache an empty snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to encode bundle snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}
	if err := lockedfile.Write(c.path, bytes.NewReader(data), 0o600); err != nil {
		return errors.Wrap(err, "failed to write bundle cache")
	}
	return nil
}

// Load reads the cached snapshot. A missing file returns (nil, nil).
func (c *DiskCache) Load() (*Snapshot, error) {
	data, err := lockedfile.Read(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read bundle cache")
	}

	var raw struct {
		Bundle    json.RawMessage `json:"bundle"`
		FetchedAt time.Time       `json:"fetchedAt"`
		ETag      string          `json:"etag"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode bundle cache")
	}
	b, err := Decode(bytes.NewReader(raw.Bundle))
	if err != nil {
		return nil, errors.Wrap(err, "cached bundle is invalid")
	}
	return &Snapshot{Bundle: b, FetchedAt: raw.FetchedAt, ETag: raw.ETag}, nil
}
