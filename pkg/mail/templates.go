package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ErrTemplateNotFound is returned when no plain-text template exists for the requested name.
var ErrTemplateNotFound = errors.New("mail: template not found")

// TemplateSender renders a named template and delivers it.
type TemplateSender interface {
	SendTemplatedMail(ctx context.Context, template string, data any, subject string, to ...string) error
}

// TemplateMailer renders the embedded templates and sends them through a Mailer.
// Every template needs a <name>.txt.tmpl file; <name>.html.tmpl is optional.
type TemplateMailer struct {
	mailer Mailer
	text   *texttemplate.Template
	html   *htmltemplate.Template
}

// NewTemplateMailer parses the embedded templates and wraps mailer.
func NewTemplateMailer(mailer Mailer) (*TemplateMailer, error) {
	if mailer == nil {
		return nil, errors.New("mail: mailer is required")
	}

	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("mail: parse text templates: %w", err)
	}

	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("mail: parse html templates: %w", err)
	}

	return &TemplateMailer{mailer: mailer, text: text, html: html}, nil
}

// SendTemplatedMail renders template with data and sends it to the recipients.
func (m *TemplateMailer) SendTemplatedMail(ctx context.Context, template string, data any, subject string, to ...string) error {
	textBody, htmlBody, err := m.Render(template, data)
	if err != nil {
		return err
	}

	return m.mailer.Send(ctx, Message{
		To:       to,
		Subject:  subject,
		Body:     textBody,
		HTMLBody: htmlBody,
	})
}

// Render executes the plain-text and, when present, HTML variants of template.
func (m *TemplateMailer) Render(template string, data any) (string, string, error) {
	textTmpl := m.text.Lookup(template + ".txt.tmpl")
	if textTmpl == nil {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, template)
	}

	var textBuf bytes.Buffer
	if err := textTmpl.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("mail: render %s text: %w", template, err)
	}

	htmlTmpl := m.html.Lookup(template + ".html.tmpl")
	if htmlTmpl == nil {
		return textBuf.String(), "", nil
	}

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("mail: render %s html: %w", template, err)
	}

	return textBuf.String(), htmlBuf.String(), nil
}
