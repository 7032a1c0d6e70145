package presenter

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	p := New()
	assert.Equal(t, os.Stdout, p.out)
	assert.Equal(t, os.Stderr, p.errOut)
	assert.False(t, p.quiet)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name           string
		noColor        string
		trafficalColor string
		expected       ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"TRAFFICAL_COLOR always", "", "always", ColorAlways},
		{"TRAFFICAL_COLOR force", "", "force", ColorAlways},
		{"TRAFFICAL_COLOR never", "", "never", ColorNever},
		{"TRAFFICAL_COLOR off", "", "off", ColorNever},
		{"case insensitive", "", "Always", ColorAlways},
		{"default", "", "", ColorAuto},
		{"invalid value", "", "rainbow", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("TRAFFICAL_COLOR", tt.trafficalColor)

			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestError(t *testing.T) {
	var errOut bytes.Buffer
	p := NewWithOptions(nil, &errOut, ColorNever)

	p.Error(errors.New("boom"), "push failed")
	assert.Equal(t, "[ERROR] push failed: boom\n", errOut.String())

	errOut.Reset()
	p.Error(nil, "ignored")
	assert.Empty(t, errOut.String())
}

func TestQuietMode(t *testing.T) {
	var out bytes.Buffer
	p := NewWithOptions(&out, &out, ColorNever)
	p.SetQuiet(true)

	p.Success("ok")
	p.Info("info")
	p.Warning("warn")
	p.Section("Title")
	p.Table([]string{"a"}, [][]string{{"1"}})
	p.Diff("+x\n")

	assert.Empty(t, out.String())

	p.Error(errors.New("still shown"), "")
	assert.Equal(t, "[ERROR] still shown\n", out.String())
}

func TestSuccessAndSection(t *testing.T) {
	var out bytes.Buffer
	p := NewWithOptions(&out, &out, ColorNever)

	p.Section("Status")
	p.Success("Pushed 2 parameters")

	assert.Equal(t, "Status\n------\n✓ Pushed 2 parameters\n", out.String())
}

func TestTable(t *testing.T) {
	var out bytes.Buffer
	p := NewWithOptions(&out, &out, ColorNever)

	p.Table([]string{"KEY", "ACTION"}, [][]string{
		{"checkout.button.color", "create"},
		{"pricing.discount", "update"},
	})

	rendered := out.String()
	assert.Contains(t, rendered, "KEY")
	assert.Contains(t, rendered, "checkout.button.color")
	assert.Contains(t, rendered, "update")
}

func TestDiff(t *testing.T) {
	var out bytes.Buffer
	p := NewWithOptions(&out, &out, ColorNever)

	p.Diff("--- a\n+++ b\n@@ -1 +1 @@\n-old\n+new\n")

	assert.Equal(t, "--- a\n+++ b\n@@ -1 +1 @@\n-old\n+new\n", out.String())
}

func TestSetDefault(t *testing.T) {
	var out bytes.Buffer
	prev := SetDefault(NewWithOptions(&out, &out, ColorNever))
	defer SetDefault(prev)

	Info("hello")
	assert.Equal(t, "hello\n", out.String())
}
