package aitools

import (
	"embed"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/config"
)

//go:embed templates/*
var templateFS embed.FS

const skillTemplate = "skill.md.tmpl"

var skillTmpl = template.Must(template.ParseFS(templateFS, "templates/"+skillTemplate))

type parameterLine struct {
	Key         string
	Type        config.ParameterType
	Default     string
	Description string
}

type eventLine struct {
	Name        string
	ValueType   config.ValueType
	Unit        string
	Description string
}

type templateData struct {
	ProjectID  string
	ConfigPath string
	Parameters []parameterLine
	Events     []eventLine
}

func newTemplateData(cfg *config.Config, configPath string) templateData {
	data := templateData{ProjectID: "<project-id>", ConfigPath: configPath}
	if data.ConfigPath == "" {
		data.ConfigPath = config.DefaultPath()
	}
	if cfg == nil {
		return data
	}
	if cfg.Project.ID != "" {
		data.ProjectID = cfg.Project.ID
	}
	for _, key := range cfg.SortedParameterKeys() {
		p := cfg.Parameters[key]
		def, err := json.Marshal(p.Default)
		if err != nil {
			def = []byte("?")
		}
		data.Parameters = append(data.Parameters, parameterLine{
			Key:         key,
			Type:        p.Type,
			Default:     string(def),
			Description: p.Description,
		})
	}
	for _, name := range cfg.SortedEventNames() {
		e := cfg.Events[name]
		data.Events = append(data.Events, eventLine{
			Name:        name,
			ValueType:   e.ValueType,
			Unit:        e.Unit,
			Description: e.Description,
		})
	}
	return data
}

// Render produces the instruction body shared by every target. The config
// may be nil, in which case placeholders are used.
func Render(cfg *config.Config, configPath string) (string, error) {
	var buf strings.Builder
	if err := skillTmpl.Execute(&buf, newTemplateData(cfg, configPath)); err != nil {
		return "", errors.Wrap(err, "failed to render skill template")
	}
	return buf.String(), nil
}

var commandRef = regexp.MustCompile(`\btraffical ([a-z][a-z-]*)`)

// Commands returns the CLI subcommands referenced by the rendered
// instructions, sorted and deduplicated.
func Commands() ([]string, error) {
	body, err := Render(nil, "")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range commandRef.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out, nil
}

// ParameterTypes returns the first column of the "Parameter types" table.
func ParameterTypes() ([]string, error) {
	return tableColumn("Parameter types")
}

// ValueTypes returns the first column of the "Event value types" table.
func ValueTypes() ([]string, error) {
	return tableColumn("Event value types")
}

func tableColumn(heading string) ([]string, error) {
	body, err := Render(nil, "")
	if err != nil {
		return nil, err
	}

	var (
		out     []string
		inside  bool
		rowSeen int
	)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			if inside {
				break
			}
			inside = strings.TrimPrefix(trimmed, "## ") == heading
			continue
		}
		if !inside || !strings.HasPrefix(trimmed, "|") {
			continue
		}
		rowSeen++
		// header and separator rows
		if rowSeen <= 2 {
			continue
		}
		cells := strings.Split(strings.Trim(trimmed, "|"), "|")
		out = append(out, strings.Trim(strings.TrimSpace(cells[0]), "`"))
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no %q table in skill template", heading)
	}
	return out, nil
}
