package core

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed templates/email/*
var emailTemplatesFS embed.FS

const emailTemplatesDir = "templates/email"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent & HTMLContent from BodyStr or from the embedded templates.
func (m *EmailMessage) Render(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	data := ContextData{
		AppName:         conf.AppName,
		FrontendBaseURL: conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
	strict := conf.Debug || conf.TestMode

	if m.TextContent == "" {
		txt, err := renderText(m.TemplateName, data, strict)
		if err != nil {
			return errors.Wrap(err, "rendering text template")
		}
		m.TextContent = txt
	}
	html, err := renderHTML(m.TemplateName, data, strict)
	if err != nil {
		return errors.Wrap(err, "rendering html template")
	}
	m.HTMLContent = html
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func renderText(name string, data ContextData, strict bool) (string, error) {
	tmpl, err := newTextTemplate(name)
	if err != nil {
		return "", err
	}
	if strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	var buff bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buff, "base", data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buff.String()), nil
}

func newTextTemplate(name string) (*texttmpl.Template, error) {
	return texttmpl.ParseFS(emailTemplatesFS,
		path.Join(emailTemplatesDir, "_base.txt"),
		path.Join(emailTemplatesDir, name+".txt"))
}

func renderHTML(name string, data ContextData, strict bool) (string, error) {
	tmpl, err := htmltmpl.ParseFS(emailTemplatesFS,
		path.Join(emailTemplatesDir, "_base.gohtml"),
		path.Join(emailTemplatesDir, name+".gohtml"))
	if err != nil {
		return "", err
	}
	if strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	var buff bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buff, "base", data); err != nil {
		return "", err
	}
	return buff.String(), nil
}
