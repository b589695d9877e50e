package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates
var templateFS embed.FS

const (
	TemplateUserVerification = "user-verification"
	TemplatePasswordReset    = "password-reset"
)

// Data is the context every template is rendered with.
type Data struct {
	Username string
	Link     string
}

// Rendered is one message ready to send.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Templates holds the parsed set for every known template name.
type Templates struct {
	sets map[string]templateSet
}

// LoadTemplates parses the embedded templates.
func LoadTemplates() (*Templates, error) {
	t := &Templates{sets: map[string]templateSet{}}
	for _, name := range []string{TemplateUserVerification, TemplatePasswordReset} {
		dir := "templates/" + name + "/"

		subject, err := texttemplate.ParseFS(templateFS, dir+"subject.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		html, err := htmltemplate.ParseFS(templateFS, dir+"html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s html: %w", name, err)
		}
		text, err := texttemplate.ParseFS(templateFS, dir+"text.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s text: %w", name, err)
		}
		t.sets[name] = templateSet{subject: subject, html: html, text: text}
	}
	return t, nil
}

// Render executes the named template.
func (t *Templates) Render(name string, data Data) (*Rendered, error) {
	set, ok := t.sets[name]
	if !ok {
		return nil, fmt.Errorf("unknown mail template %q", name)
	}

	var subject, html, text bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := set.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := set.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render %s text: %w", name, err)
	}

	return &Rendered{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
