package personalize

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/lucasrosati/mailramp/internal/contacts"
)

// placeholder pattern: {nome_do_campo}
var varPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MissingPlaceholderError indicates a template references an attribute the
// record does not carry. Rendering is strict: no silent empty substitution.
type MissingPlaceholderError struct {
	Name string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("template placeholder {%s} has no value for this record", e.Name)
}

// Content is the rendered message for one recipient
type Content struct {
	Subject string
	Text    string
}

// Render substitutes placeholders in the template against the record.
// Built-in placeholders: empresa (display name), razao_social (legal name),
// and nome_empresa as an alias of empresa. Every other placeholder resolves
// against the record's column attributes.
func Render(tmpl *Template, rec *contacts.Record) (*Content, error) {
	data := map[string]string{
		"empresa":      contacts.DisplayName(rec),
		"razao_social": rec.Identity,
		"nome_empresa": contacts.DisplayName(rec),
	}
	for k, v := range rec.Attributes {
		if _, reserved := data[k]; !reserved {
			data[k] = v
		}
	}

	subject, err := substitute(tmpl.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	body, err := substitute(tmpl.Body, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	return &Content{Subject: subject, Text: body}, nil
}

func substitute(s string, data map[string]string) (string, error) {
	var missing *MissingPlaceholderError

	out := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		v, ok := data[name]
		if !ok {
			if missing == nil {
				missing = &MissingPlaceholderError{Name: name}
			}
			return match
		}
		return v
	})

	if missing != nil {
		return "", missing
	}
	return out, nil
}

// TrackingLinks are the public callback URLs embedded in an outgoing message
type TrackingLinks struct {
	Pixel       string
	Unsubscribe string
}

// Decorate appends the unsubscribe footer to the plain-text body. The HTML
// rendering picks up the pixel separately.
func (c *Content) Decorate(links TrackingLinks) {
	if links.Unsubscribe != "" {
		c.Text += "\n\n---\nPara descadastrar: " + links.Unsubscribe
	}
}

// HTML returns an HTML rendering of the plain-text body, with the tracking
// pixel injected when configured
func (c *Content) HTML(links TrackingLinks) string {
	var b strings.Builder
	b.WriteString(`<html><body style="font-family: Arial, sans-serif; line-height: 1.6;">`)
	b.WriteString(strings.ReplaceAll(html.EscapeString(c.Text), "\n", "<br>"))
	if links.Pixel != "" {
		fmt.Fprintf(&b, `<img src="%s" width="1" height="1" style="display:none;" alt="">`, links.Pixel)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}
