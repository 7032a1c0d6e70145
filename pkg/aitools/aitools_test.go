package aitools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffical/traffical-go/pkg/config"
)

func sampleConfig() *config.Config {
	cfg := config.New("proj_123", "org_1")
	cfg.Parameters["checkout.button.color"] = config.Parameter{
		Type:        config.TypeString,
		Default:     "#000000",
		Description: "Primary CTA color",
	}
	cfg.Parameters["pricing.discount"] = config.Parameter{Type: config.TypeNumber, Default: 0}
	cfg.Events["purchase"] = config.Event{ValueType: config.ValueCurrency, Unit: "USD"}
	return cfg
}

func TestRender(t *testing.T) {
	body, err := Render(sampleConfig(), "")
	require.NoError(t, err)

	assert.Contains(t, body, `ProjectID:   "proj_123"`)
	assert.Contains(t, body, "- `checkout.button.color` (string, default `\"#000000\"`): Primary CTA color")
	assert.Contains(t, body, "- `pricing.discount` (number, default `0`)")
	assert.Contains(t, body, "- `purchase` (currency, USD)")
	assert.Contains(t, body, "`.traffical/config.yaml`")
}

func TestRender_NilConfig(t *testing.T) {
	body, err := Render(nil, "custom/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, body, "No parameters are declared yet.")
	assert.Contains(t, body, "No events are declared yet.")
	assert.Contains(t, body, "`custom/config.yaml`")
	assert.Contains(t, body, "<project-id>")
}

func TestTemplateTypesMatchConfig(t *testing.T) {
	types, err := ParameterTypes()
	require.NoError(t, err)
	expected := make([]string, 0, len(config.ParameterTypes))
	for _, pt := range config.ParameterTypes {
		expected = append(expected, string(pt))
	}
	assert.ElementsMatch(t, expected, types)

	valueTypes, err := ValueTypes()
	require.NoError(t, err)
	expected = expected[:0]
	for _, vt := range config.ValueTypes {
		expected = append(expected, string(vt))
	}
	assert.ElementsMatch(t, expected, valueTypes)
}

func TestCommands(t *testing.T) {
	cmds, err := Commands()
	require.NoError(t, err)
	assert.Subset(t, cmds, []string{"init", "status", "push", "pull", "sync", "import", "integrate-ai-tools"})
}

func TestParseTool(t *testing.T) {
	tool, err := ParseTool(" Cursor ")
	require.NoError(t, err)
	assert.Equal(t, ToolCursor, tool)

	_, err = ParseTool("vim")
	assert.ErrorContains(t, err, "unknown tool")
}

func TestDetect(t *testing.T) {
	root := t.TempDir()
	tools, err := Detect(root)
	require.NoError(t, err)
	assert.Empty(t, tools)

	require.NoError(t, os.WriteFile(filepath.Join(root, "CLAUDE.md"), []byte("# notes"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".github"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".github", "copilot-instructions.md"), []byte("x"), 0o644))

	tools, err = Detect(root)
	require.NoError(t, err)
	assert.Equal(t, []Tool{ToolClaude, ToolCopilot}, tools)
}

func TestTargets(t *testing.T) {
	root := t.TempDir()

	tools, err := Targets(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Tool{ToolAgents}, tools, "falls back to AGENTS.md")

	tools, err = Targets(root, Options{All: true})
	require.NoError(t, err)
	assert.Equal(t, Tools, tools)

	tools, err = Targets(root, Options{Tools: []Tool{ToolCopilot, ToolClaude}})
	require.NoError(t, err)
	assert.Equal(t, []Tool{ToolClaude, ToolCopilot}, tools)
}

func TestIntegrate_AllTargets(t *testing.T) {
	root := t.TempDir()
	cfg := sampleConfig()

	results, err := Integrate(root, cfg, Options{All: true})
	require.NoError(t, err)
	require.Len(t, results, len(Tools))
	for _, r := range results {
		assert.Equal(t, ActionCreated, r.Action, r.Tool)
		assert.FileExists(t, filepath.Join(root, r.Path))
	}

	skill, err := LoadSkill(filepath.Join(root, ToolClaude.Path()))
	require.NoError(t, err)
	assert.Equal(t, SkillName, skill.Name)
	assert.Contains(t, skill.Content, "checkout.button.color")

	rule, err := os.ReadFile(filepath.Join(root, ToolCursor.Path()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rule), "---\ndescription: "))
	assert.Contains(t, string(rule), "alwaysApply: true")

	agents, err := os.ReadFile(filepath.Join(root, "AGENTS.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(agents), sectionBegin))

	results, err = Integrate(root, cfg, Options{All: true})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, ActionUnchanged, r.Action, r.Tool)
	}

	cfg.Parameters["ui.dark_mode"] = config.Parameter{Type: config.TypeBoolean, Default: false}
	results, err = Integrate(root, cfg, Options{All: true})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, ActionUpdated, r.Action, r.Tool)
	}
	skill, err = LoadSkill(filepath.Join(root, ToolClaude.Path()))
	require.NoError(t, err)
	assert.Contains(t, skill.Content, "ui.dark_mode")
}

func TestToolPath(t *testing.T) {
	assert.Equal(t, filepath.Join(".claude", "skills", SkillName, "SKILL.md"), ToolClaude.Path())
	assert.Equal(t, "AGENTS.md", ToolAgents.Path())
	assert.Equal(t, filepath.Join(".github", "copilot-instructions.md"), ToolCopilot.Path())
}

func TestIntegrate_FreshRepoDefaultsToAgents(t *testing.T) {
	root := t.TempDir()

	results, err := Integrate(root, sampleConfig(), Options{})
	require.NoError(t, err)
	require.Equal(t, []Result{{Tool: ToolAgents, Path: "AGENTS.md", Action: ActionCreated}}, results)

	results, err = Integrate(root, sampleConfig(), Options{Tools: []Tool{ToolCopilot}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ActionCreated, results[0].Action)
	assert.FileExists(t, filepath.Join(root, ToolCopilot.Path()))
}

func TestIntegrate_PreservesSurroundingContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "AGENTS.md")
	require.NoError(t, os.WriteFile(path, []byte("# Agents\n\nRun make test before committing.\n"), 0o644))

	_, err := Integrate(root, sampleConfig(), Options{Tools: []Tool{ToolAgents}})
	require.NoError(t, err)

	cfg := sampleConfig()
	delete(cfg.Parameters, "pricing.discount")
	_, err = Integrate(root, cfg, Options{Tools: []Tool{ToolAgents}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.True(t, strings.HasPrefix(doc, "# Agents\n\nRun make test before committing.\n\n"+sectionBegin))
	assert.Equal(t, 1, strings.Count(doc, sectionBegin))
	assert.NotContains(t, doc, "pricing.discount")
}

func TestUpsertSection(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "empty document",
			doc:  "",
			want: sectionBegin + "\nnew\n" + sectionEnd + "\n",
		},
		{
			name: "appends after existing text",
			doc:  "intro",
			want: "intro\n\n" + sectionBegin + "\nnew\n" + sectionEnd + "\n",
		},
		{
			name: "replaces existing block in place",
			doc:  "top\n" + sectionBegin + "\nold\n" + sectionEnd + "\nbottom\n",
			want: "top\n" + sectionBegin + "\nnew\n" + sectionEnd + "\nbottom\n",
		},
		{
			name: "unterminated block is left alone",
			doc:  sectionBegin + "\nold\n",
			want: sectionBegin + "\nold\n\n" + sectionBegin + "\nnew\n" + sectionEnd + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upsertSection(tt.doc, "new\n"))
		})
	}
}
