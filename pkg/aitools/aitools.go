// Package aitools writes Traffical usage instructions into the files that AI
// coding assistants read: a Claude skill, AGENTS.md, a Cursor rule and the
// Copilot instructions file. Re-running is idempotent.
package aitools

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/config"
)

// Tool names an AI assistant integration.
type Tool string

const (
	ToolClaude  Tool = "claude"
	ToolAgents  Tool = "agents"
	ToolCursor  Tool = "cursor"
	ToolCopilot Tool = "copilot"
)

// Tools lists every supported integration in write order.
var Tools = []Tool{ToolClaude, ToolAgents, ToolCursor, ToolCopilot}

const (
	// SkillName is the Claude skill directory and frontmatter name.
	SkillName        = "traffical"
	skillDescription = "Use when reading, adding or experimenting with Traffical feature parameters and conversion events in this project"

	sectionBegin = "<!-- traffical:begin -->"
	sectionEnd   = "<!-- traffical:end -->"
)

// ParseTool validates a tool name.
func ParseTool(name string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Tools, t) {
		return "", errors.Errorf("unknown tool %q (expected one of %s)", name, joinTools(Tools))
	}
	return t, nil
}

func joinTools(tools []Tool) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Path returns the file written for t, relative to the project root.
func (t Tool) Path() string {
	switch t {
	case ToolClaude:
		return filepath.Join(".claude", "skills", SkillName, skillFileName)
	case ToolAgents:
		return "AGENTS.md"
	case ToolCursor:
		return filepath.Join(".cursor", "rules", "traffical.mdc")
	case ToolCopilot:
		return filepath.Join(".github", "copilot-instructions.md")
	}
	return ""
}

var detectPatterns = map[Tool][]string{
	ToolClaude:  {"CLAUDE.md", ".claude", ".claude/**/*.md"},
	ToolAgents:  {"AGENTS.md"},
	ToolCursor:  {".cursor", ".cursorrules", ".cursor/rules/*.mdc"},
	ToolCopilot: {".github/copilot-instructions.md", ".github/instructions/*.instructions.md"},
}

// Detect reports which assistants already have configuration under root.
func Detect(root string) ([]Tool, error) {
	fsys := os.DirFS(root)
	var found []Tool
	for _, tool := range Tools {
		for _, pattern := range detectPatterns[tool] {
			matches, err := doublestar.Glob(fsys, pattern)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to scan for %s", tool)
			}
			if len(matches) > 0 {
				found = append(found, tool)
				break
			}
		}
	}
	return found, nil
}

// Action describes what Integrate did to a target file.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Result is the outcome for one tool.
type Result struct {
	Tool   Tool
	Path   string
	Action Action
}

// Options selects the tools Integrate writes for.
type Options struct {
	// Tools overrides detection when non-empty.
	Tools []Tool
	// All writes every supported target.
	All bool
	// ConfigPath is shown in the instructions; defaults to config.DefaultPath().
	ConfigPath string
}

// Targets resolves which tools to write for. Without an explicit choice the
// detected tools are used, falling back to AGENTS.md.
func Targets(root string, opts Options) ([]Tool, error) {
	switch {
	case opts.All:
		return slices.Clone(Tools), nil
	case len(opts.Tools) > 0:
		var out []Tool
		for _, t := range Tools {
			if slices.Contains(opts.Tools, t) {
				out = append(out, t)
			}
		}
		return out, nil
	}

	detected, err := Detect(root)
	if err != nil {
		return nil, err
	}
	if len(detected) == 0 {
		return []Tool{ToolAgents}, nil
	}
	return detected, nil
}

// Integrate renders the instructions for cfg and writes them for each
// selected tool under root.
func Integrate(root string, cfg *config.Config, opts Options) ([]Result, error) {
	tools, err := Targets(root, opts)
	if err != nil {
		return nil, err
	}

	body, err := Render(cfg, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(tools))
	for _, tool := range tools {
		action, err := writeTarget(root, tool, body)
		if err != nil {
			return results, errors.Wrapf(err, "failed to write %s instructions", tool)
		}
		results = append(results, Result{Tool: tool, Path: tool.Path(), Action: action})
	}
	return results, nil
}

func writeTarget(root string, tool Tool, body string) (Action, error) {
	path := filepath.Join(root, tool.Path())

	existing, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}

	var (
		content   string
		renderErr error
	)
	switch tool {
	case ToolClaude:
		if exists && skillUpToDate(existing, body) {
			return ActionUnchanged, nil
		}
		content, renderErr = renderSkill(SkillName, skillDescription, body)
	case ToolCursor:
		content, renderErr = renderCursorRule(body)
	default:
		content = upsertSection(string(existing), body)
	}
	if renderErr != nil {
		return "", renderErr
	}

	if exists && string(existing) == content {
		return ActionUnchanged, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}

	if exists {
		return ActionUpdated, nil
	}
	return ActionCreated, nil
}

func skillUpToDate(existing []byte, body string) bool {
	skill, err := ParseSkill(existing)
	if err != nil {
		return false
	}
	return skill.Name == SkillName &&
		skill.Description == skillDescription &&
		strings.TrimSpace(skill.Content) == strings.TrimSpace(body)
}

func renderCursorRule(body string) (string, error) {
	anyFile := ""
	return withFrontmatter(frontmatter{Description: skillDescription, Globs: &anyFile, AlwaysApply: true}, body)
}

// upsertSection replaces the marker-delimited block in doc with body, or
// appends a new block when none exists.
func upsertSection(doc, body string) string {
	block := sectionBegin + "\n" + strings.TrimRight(body, "\n") + "\n" + sectionEnd + "\n"

	start := strings.Index(doc, sectionBegin)
	if start >= 0 {
		if rel := strings.Index(doc[start:], sectionEnd); rel >= 0 {
			end := start + rel + len(sectionEnd)
			if end < len(doc) && doc[end] == '\n' {
				end++
			}
			return doc[:start] + block + doc[end:]
		}
	}

	switch {
	case doc == "":
		return block
	case strings.HasSuffix(doc, "\n\n"):
		return doc + block
	case strings.HasSuffix(doc, "\n"):
		return doc + "\n" + block
	default:
		return doc + "\n\n" + block
	}
}
