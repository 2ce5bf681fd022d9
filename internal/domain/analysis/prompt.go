package analysis

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// PromptData is the template input.
type PromptData struct {
	Session  model.MeasurementSession
	Language string
	Depth    string
}

// Prompts is a compiled system/user template pair.
type Prompts struct {
	system *template.Template
	user   *template.Template
}

// DefaultPrompts compiles the embedded templates.
func DefaultPrompts() (*Prompts, error) {
	sys, err := promptsFS.ReadFile("prompts/system.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("reading system prompt: %w", err)
	}
	usr, err := promptsFS.ReadFile("prompts/user.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("reading user prompt: %w", err)
	}
	return NewPrompts(string(sys), string(usr))
}

// NewPrompts compiles a template pair. Empty sources fall back to the
// embedded defaults.
func NewPrompts(system, user string) (*Prompts, error) {
	if strings.TrimSpace(system) == "" || strings.TrimSpace(user) == "" {
		def, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(system) == "" && strings.TrimSpace(user) == "" {
			return def, nil
		}
		p := &Prompts{system: def.system, user: def.user}
		if strings.TrimSpace(system) != "" {
			if p.system, err = parse("system", system); err != nil {
				return nil, err
			}
		}
		if strings.TrimSpace(user) != "" {
			if p.user, err = parse("user", user); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	s, err := parse("system", system)
	if err != nil {
		return nil, err
	}
	u, err := parse("user", user)
	if err != nil {
		return nil, err
	}
	return &Prompts{system: s, user: u}, nil
}

func parse(name, src string) (*template.Template, error) {
	t, err := template.New(name).Funcs(templateFuncs()).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrTemplate, name, err)
	}
	return t, nil
}

// Render executes both templates.
func (p *Prompts) Render(data PromptData) (system, user string, err error) {
	funcs := template.FuncMap{
		"metric": func(name string) string {
			v, ok := data.Session.Metric(name)
			if !ok {
				return "n/a"
			}
			return formatFixed(v)
		},
	}
	var sb, ub bytes.Buffer
	if err := mustClone(p.system).Funcs(funcs).Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("%w: rendering system: %v", ErrTemplate, err)
	}
	if err := mustClone(p.user).Funcs(funcs).Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("%w: rendering user: %v", ErrTemplate, err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}

func mustClone(t *template.Template) *template.Template {
	c, err := t.Clone()
	if err != nil {
		// Clone only fails after Execute on the original, which never happens here.
		panic(err)
	}
	return c
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":  strings.Join,
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"fixed": formatFixed,
		"metric": func(string) string {
			return "n/a"
		},
		"languageName": languageName,
	}
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "ko":
		return "Korean"
	case "", "en":
		return "English"
	}
	return code
}
