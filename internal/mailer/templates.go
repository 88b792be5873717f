package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

const (
	verifyEmailPath   = "/verifyemail"
	resetPasswordPath = "/resetpassword"
)

var verificationTemplate = template.Must(template.New("verification").Parse(
	`<p>Hi {{.UserName}},</p>
<p>Click <a href="{{.Link}}">here</a> to verify your email, or copy and paste the link below in your browser.</p>
<p>{{.Link}}</p>`))

var resetTemplate = template.Must(template.New("reset").Parse(
	`<p>Hi {{.UserName}},</p>
<p>Click <a href="{{.Link}}">here</a> to reset your password, or copy and paste the link below in your browser.</p>
<p>{{.Link}}</p>
<p>If you did not request a password reset you can ignore this email.</p>`))

type templateData struct {
	UserName string
	Link     string
}

// Renderer builds the verification and reset emails for a public domain.
type Renderer struct {
	domain string
}

func NewRenderer(domain string) *Renderer {
	return &Renderer{domain: strings.TrimRight(domain, "/")}
}

func (r *Renderer) Verification(email, userName, token string) (*Message, error) {
	return r.render(verificationTemplate, "Verify your email", email, userName, r.link(verifyEmailPath, token))
}

func (r *Renderer) PasswordReset(email, userName, token string) (*Message, error) {
	return r.render(resetTemplate, "Reset your password", email, userName, r.link(resetPasswordPath, token))
}

func (r *Renderer) link(path, token string) string {
	return r.domain + path + "?token=" + url.QueryEscape(token)
}

func (r *Renderer) render(tpl *template.Template, subject, email, userName, link string) (*Message, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, templateData{UserName: userName, Link: link}); err != nil {
		return nil, fmt.Errorf("failed to render %s email: %w", tpl.Name(), err)
	}
	return &Message{
		To:      email,
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}
