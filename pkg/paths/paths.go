// Package paths resolves the per-user directories traffical reads and writes.
package paths

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// BaseDir returns $TRAFFICAL_HOME when set, otherwise ~/.traffical.
func BaseDir() (string, error) {
	if base := os.Getenv("TRAFFICAL_HOME"); base != "" {
		return base, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".traffical"), nil
}

func join(elem ...string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{base}, elem...)...), nil
}

// CredentialsPath is where management keys are stored.
func CredentialsPath() (string, error) { return join("credentials") }

// SettingsPath is the CLI settings file read by viper.
func SettingsPath() (string, error) { return join("settings.yaml") }

// CacheDir holds last-known-good bundles.
func CacheDir() (string, error) { return join("cache") }

// OutboxPath is the SQLite database holding undelivered events.
func OutboxPath() (string, error) { return join("outbox.db") }
