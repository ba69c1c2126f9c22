package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"databender/config"
)

// Mailer is the email transport. The sequence processor catches transport
// errors per lead, so implementations just return them.
type Mailer interface {
	Send(to, subject, htmlBody string) (messageID string, err error)
}

// SequenceEmailData is the render context for sequence templates.
type SequenceEmailData struct {
	FirstName      string
	Company        string
	AssessmentName string
	OverallScore   string
	LowestCategory string
	GuideTitle     string
	DownloadURL    string
	ContentURL     string
	CalendarURL    string
	UnsubscribeURL string
}

// RenderTemplate executes a sequence template body against the lead's data.
func RenderTemplate(name, body string, data SequenceEmailData) (string, error) {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SMTPMailer delivers mail over SMTP.
type SMTPMailer struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewSMTPMailer(cfg config.SMTPConfig, fromEmail, fromName string) *SMTPMailer {
	return &SMTPMailer{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), "databender.co")

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("sending to %s: %w", to, err)
	}
	return messageID, nil
}
