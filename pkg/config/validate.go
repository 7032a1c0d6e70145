package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	keySegmentPattern = regexp.MustCompile(`^[a-z0-9][a-zA-Z0-9_-]*$`)
	eventNamePattern  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ValidateParameterKey checks that key is dot-notation, e.g. "checkout.button.color".
func ValidateParameterKey(key string) error {
	if key == "" {
		return errors.New("parameter key is empty")
	}
	for _, segment := range strings.Split(key, ".") {
		if segment == "" {
			return errors.Errorf("parameter key %q has an empty segment", key)
		}
		if !keySegmentPattern.MatchString(segment) {
			return errors.Errorf("parameter key %q: segment %q must start with a lowercase letter or digit and contain only letters, digits, '_' or '-'", key, segment)
		}
	}
	return nil
}

// ValidateEventName checks that name is snake_case.
func ValidateEventName(name string) error {
	if !eventNamePattern.MatchString(name) {
		return errors.Errorf("event name %q must be snake_case", name)
	}
	return nil
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Version == "" {
		result = multierror.Append(result, errors.New("version is required"))
	} else if c.Version != CurrentVersion {
		result = multierror.Append(result, errors.Errorf("unsupported version %q (expected %q)", c.Version, CurrentVersion))
	}
	if c.Project.ID == "" {
		result = multierror.Append(result, errors.New("project.id is required"))
	}

	for _, key := range c.SortedParameterKeys() {
		if err := c.Parameters[key].validate(key); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for _, name := range c.SortedEventNames() {
		if err := ValidateEventName(name); err != nil {
			result = multierror.Append(result, err)
		}
		if vt := c.Events[name].ValueType; !vt.Valid() {
			result = multierror.Append(result, errors.Errorf("event %q: unknown valueType %q", name, vt))
		}
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = listFormat
	return result
}

func (p Parameter) validate(key string) error {
	if err := ValidateParameterKey(key); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return errors.Errorf("parameter %q: unknown type %q", key, p.Type)
	}
	if p.Default == nil {
		return errors.Errorf("parameter %q: default is required", key)
	}
	if !p.Type.Accepts(p.Default) {
		return errors.Errorf("parameter %q: default %v does not match type %s", key, p.Default, p.Type)
	}
	return nil
}

func listFormat(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  - " + err.Error()
	}
	return fmt.Sprintf("%d problem(s) in config:\n%s", len(errs), strings.Join(lines, "\n"))
}
