package projectsync

import (
	"github.com/aymanbagabas/go-udiff"

	"github.com/traffical/traffical-go/pkg/config"
)

// DryRunDiff renders the YAML change from before to after as a unified
// diff. It is empty when nothing changes.
func DryRunDiff(label string, before, after *config.Config) (string, error) {
	a, err := before.Marshal()
	if err != nil {
		return "", err
	}
	b, err := after.Marshal()
	if err != nil {
		return "", err
	}
	if string(a) == string(b) {
		return "", nil
	}
	return udiff.Unified(label, label, string(a), string(b)), nil
}
