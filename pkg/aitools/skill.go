package aitools

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"
)

const (
	skillFileName = "SKILL.md"
	skillGlob     = ".claude/skills/*/" + skillFileName
)

// Skill is a Claude skill file: YAML frontmatter plus a markdown body.
type Skill struct {
	Name        string
	Description string
	// Path is empty when the skill was parsed from memory.
	Path    string
	Content string
}

// frontmatter is the header of the files aitools writes. Cursor rules use
// every field; skills only name and description.
type frontmatter struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description"`
	Globs       *string `yaml:"globs,omitempty"`
	AlwaysApply bool    `yaml:"alwaysApply,omitempty"`
}

func withFrontmatter(fm frontmatter, body string) (string, error) {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode frontmatter")
	}
	return "---\n" + string(header) + "---\n\n" + body, nil
}

func renderSkill(name, description, body string) (string, error) {
	return withFrontmatter(frontmatter{Name: name, Description: description}, body)
}

// ParseSkill reads the frontmatter and body of a SKILL.md document. Name
// and description are required.
func ParseSkill(content []byte) (*Skill, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	pctx := parser.NewContext()
	if err := md.Convert(content, &bytes.Buffer{}, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	fields := meta.Get(pctx)
	if len(fields) == 0 {
		return nil, errors.New("missing frontmatter")
	}
	s := &Skill{Content: stripFrontmatter(string(content))}
	s.Name, _ = fields["name"].(string)
	s.Description, _ = fields["description"].(string)

	switch {
	case s.Name == "":
		return nil, errors.New("frontmatter has no name")
	case s.Description == "":
		return nil, errors.New("frontmatter has no description")
	}
	return s, nil
}

// LoadSkill parses the SKILL.md file at path.
func LoadSkill(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill")
	}
	s, err := ParseSkill(content)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid skill %s", path)
	}
	s.Path = path
	return s, nil
}

// DiscoverSkills returns the Claude skills installed under root, keyed by
// name. Invalid SKILL.md files are skipped; the first skill claiming a name
// wins.
func DiscoverSkills(root string) map[string]*Skill {
	skills := map[string]*Skill{}

	matches, err := doublestar.Glob(os.DirFS(root), skillGlob, doublestar.WithFilesOnly())
	if err != nil {
		return skills
	}
	for _, m := range matches {
		s, err := LoadSkill(filepath.Join(root, filepath.FromSlash(m)))
		if err != nil {
			continue
		}
		if _, dup := skills[s.Name]; !dup {
			skills[s.Name] = s
		}
	}
	return skills
}

// stripFrontmatter returns content after a leading "---" delimited block,
// or content unchanged when there is no complete block.
func stripFrontmatter(content string) string {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return content
	}
	for off := 0; off < len(rest); {
		end := strings.IndexByte(rest[off:], '\n')
		if end < 0 {
			end = len(rest) - off
		}
		if strings.TrimSpace(rest[off:off+end]) == "---" {
			return strings.TrimLeft(rest[min(off+end+1, len(rest)):], "\n")
		}
		off += end + 1
	}
	return content
}
