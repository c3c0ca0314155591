// Package generate turns a free-text task description into a structured
// automation playbook. It is deliberately stateless: the result is a pure
// function of the request, so the surrounding admission machinery (keys,
// quotas, usage accounting) carries all the interesting state.
package generate

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MaxInputBytes caps the accepted text size before plan limits apply.
const MaxInputBytes = 64 * 1024

// Request is the generation input.
type Request struct {
	Text    string            `json:"text" validate:"required,min=3"`
	Mode    string            `json:"mode" validate:"omitempty,oneof=shell ansible runbook"`
	Options map[string]string `json:"options" validate:"omitempty,max=16"`
}

// Step is one action of the produced playbook.
type Step struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Description string `json:"description"`
}

// Playbook is the generation output.
type Playbook struct {
	Title    string `json:"title"`
	Mode     string `json:"mode"`
	Steps    []Step `json:"steps"`
	Document string `json:"document"`
}

var playbookTemplate = template.Must(template.New("playbook").Parse(
	`# {{.Title}}
# mode: {{.Mode}}
{{range .Steps}}
## Step {{.Index}}: {{.Name}}
{{- if .Command}}
$ {{.Command}}
{{- end}}
# {{.Description}}
{{end}}`))

// Validate checks the request shape. Failures come back as validator errors
// so the HTTP layer can map them to a 400.
func (r Request) Validate() error {
	if len(r.Text) > MaxInputBytes {
		return fmt.Errorf("text exceeds %d bytes", MaxInputBytes)
	}
	return validate.Struct(r)
}

// Run renders the playbook. The request must have been validated.
func Run(req Request) (*Playbook, error) {
	mode := req.Mode
	if mode == "" {
		mode = "runbook"
	}

	lines := splitTasks(req.Text)
	steps := make([]Step, 0, len(lines))
	for i, line := range lines {
		steps = append(steps, Step{
			Index:       i + 1,
			Name:        stepName(line),
			Command:     stepCommand(mode, line),
			Description: line,
		})
	}

	pb := &Playbook{
		Title: stepName(req.Text),
		Mode:  mode,
		Steps: steps,
	}

	var sb strings.Builder
	if err := playbookTemplate.Execute(&sb, pb); err != nil {
		return nil, fmt.Errorf("playbook render failed: %w", err)
	}
	pb.Document = sb.String()
	return pb, nil
}

// splitTasks breaks the input into task lines: newlines, semicolons and
// "then" act as separators.
func splitTasks(text string) []string {
	normalized := strings.NewReplacer(";", "\n", " then ", "\n", " and then ", "\n").
		Replace(text)
	var out []string
	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "-* \t"))
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

func stepName(line string) string {
	words := strings.Fields(line)
	if len(words) > 6 {
		words = words[:6]
	}
	name := strings.Join(words, " ")
	if len(name) > 60 {
		name = name[:60]
	}
	return name
}

// stepCommand emits a command skeleton for shell mode; other modes stay
// descriptive.
func stepCommand(mode, line string) string {
	if mode != "shell" {
		return ""
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fmt.Sprintf("echo %q", strings.Join(fields, " "))
}
