package llm

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// Prompt is a rendered system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Render executes the "<name>.system" and "<name>.user" templates with data.
func Render(name string, data any) (Prompt, error) {
	var sys, usr bytes.Buffer
	if err := prompts.ExecuteTemplate(&sys, name+".system", data); err != nil {
		return Prompt{}, fmt.Errorf("render %s system prompt: %w", name, err)
	}
	if err := prompts.ExecuteTemplate(&usr, name+".user", data); err != nil {
		return Prompt{}, fmt.Errorf("render %s user prompt: %w", name, err)
	}
	return Prompt{System: sys.String(), User: usr.String()}, nil
}
