// Package credentials locates the API key used to talk to the platform.
//
// Lookup order: an explicit key (the --api-key flag), the TRAFFICAL_API_KEY
// environment variable (a project .env file is loaded first), then the
// selected profile in ~/.traffical/credentials.
package credentials

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"gopkg.in/yaml.v3"

	"github.com/traffical/traffical-go/pkg/paths"
)

const (
	// EnvAPIKey is the environment variable holding the API key.
	EnvAPIKey = "TRAFFICAL_API_KEY"
	// EnvBaseURL overrides the platform URL.
	EnvBaseURL = "TRAFFICAL_BASE_URL"
	// DefaultProfile is used when no profile is selected.
	DefaultProfile = "default"
)

// ErrNoAPIKey is returned by Resolve when no source provides a key.
var ErrNoAPIKey = errors.New("no API key found: pass --api-key, set " + EnvAPIKey + " or run 'traffical login'")

// Profile is one named set of credentials.
type Profile struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// File is the on-disk credentials document.
type File struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// ProfileNames returns the stored profile names in sorted order.
func (f *File) ProfileNames() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store reads and writes the credentials file under a file lock.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStore returns the store at ~/.traffical/credentials.
func DefaultStore() (*Store, error) {
	path, err := paths.CredentialsPath()
	if err != nil {
		return nil, err
	}
	return NewStore(path), nil
}

// Path returns the credentials file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file. A missing file yields an empty document.
func (s *Store) Load() (*File, error) {
	data, err := lockedfile.Read(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{Profiles: map[string]Profile{}}, nil
		}
		return nil, errors.Wrap(err, "failed to read credentials file")
	}
	return parse(data)
}

func parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "failed to parse credentials file")
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	return f, nil
}

// Save upserts profile. The file is created with mode 0600.
func (s *Store) Save(profile string, p Profile) error {
	if profile == "" {
		profile = DefaultProfile
	}
	if p.APIKey == "" {
		return errors.New("refusing to save an empty API key")
	}
	return s.update(func(f *File) {
		f.Profiles[profile] = p
	})
}

// Remove deletes profile if present.
func (s *Store) Remove(profile string) error {
	return s.update(func(f *File) {
		delete(f.Profiles, profile)
	})
}

func (s *Store) update(mutate func(*File)) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create credentials directory")
	}
	// create with restrictive permissions before Transform opens it
	f, err := lockedfile.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return errors.Wrap(err, "failed to open credentials file")
	}
	f.Close()

	err = lockedfile.Transform(s.path, func(data []byte) ([]byte, error) {
		doc, err := parse(data)
		if err != nil {
			return nil, err
		}
		mutate(doc)
		return yaml.Marshal(doc)
	})
	if err != nil {
		return errors.Wrap(err, "failed to update credentials file")
	}
	return errors.Wrap(os.Chmod(s.path, 0o600), "failed to restrict credentials file permissions")
}

// Source says where a resolved key came from.
type Source string

const (
	SourceFlag Source = "flag"
	SourceEnv  Source = "env"
	SourceFile Source = "credentials file"
)

// Resolved is the outcome of Resolve.
type Resolved struct {
	APIKey  string
	BaseURL string
	Profile string
	Source  Source
}

// Lookup describes the inputs to Resolve.
type Lookup struct {
	// APIKey is an explicitly supplied key, e.g. from a flag.
	APIKey string
	// BaseURL is an explicitly supplied base URL.
	BaseURL string
	// Profile selects a credentials file profile; empty means "default".
	Profile string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Store defaults to DefaultStore().
	Store *Store
}

// Resolve finds an API key following the documented precedence. An
// explicit base URL wins over the environment, which wins over the profile.
func Resolve(l Lookup) (Resolved, error) {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	profile := l.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	res := Resolved{BaseURL: l.BaseURL, Profile: profile}
	if res.BaseURL == "" {
		res.BaseURL = getenv(EnvBaseURL)
	}

	switch {
	case l.APIKey != "":
		res.APIKey, res.Source = l.APIKey, SourceFlag
		return res, nil
	case getenv(EnvAPIKey) != "":
		res.APIKey, res.Source = getenv(EnvAPIKey), SourceEnv
		return res, nil
	}

	store := l.Store
	if store == nil {
		var err error
		if store, err = DefaultStore(); err != nil {
			return res, err
		}
	}
	f, err := store.Load()
	if err != nil {
		return res, err
	}
	p, ok := f.Profiles[profile]
	if !ok || p.APIKey == "" {
		if l.Profile != "" && l.Profile != DefaultProfile {
			return res, errors.Errorf("profile %q not found in %s", l.Profile, store.Path())
		}
		return res, ErrNoAPIKey
	}

	res.APIKey, res.Source = p.APIKey, SourceFile
	if res.BaseURL == "" {
		res.BaseURL = p.BaseURL
	}
	return res, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the .env file at path into the
// process environment without overriding variables already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "failed to load %s", path)
}

// Mask shortens a key for display, keeping its prefix and last four characters.
func Mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "…" + key[len(key)-4:]
}
