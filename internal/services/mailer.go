package services

import (
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/pkg/logger"
)

// Mailer delivers token-bearing links to account owners.
type Mailer interface {
	SendVerificationEmail(toEmail, token string) error
	SendResetPasswordEmail(toEmail, token string) error
}

// NewMailer returns an SMTP mailer when SMTP is configured and a logging
// mailer otherwise.
func NewMailer(mailCfg config.MailConfig, frontendURL, appName string) Mailer {
	links := linkBuilder{frontendURL: strings.TrimRight(frontendURL, "/")}
	if !mailCfg.Enabled() {
		return &LogMailer{links: links}
	}
	return &SMTPMailer{cfg: mailCfg, appName: appName, links: links}
}

type linkBuilder struct {
	frontendURL string
}

func (l linkBuilder) verify(token string) string {
	return l.frontendURL + "/verify-email?token=" + url.QueryEscape(token)
}

func (l linkBuilder) reset(token string) string {
	return l.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}

type SMTPMailer struct {
	cfg     config.MailConfig
	appName string
	links   linkBuilder
}

func (m *SMTPMailer) send(toEmail, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	headers := []string{
		fmt.Sprintf("From: %s", m.cfg.From),
		fmt.Sprintf("To: %s", toEmail),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}
	message := strings.Join(headers, "\r\n")

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{toEmail}, []byte(message))
}

func (m *SMTPMailer) SendVerificationEmail(toEmail, token string) error {
	subject := fmt.Sprintf("%s - Verify your email address", m.appName)
	body := fmt.Sprintf(
		"Hello,\n\n"+
			"Please confirm your email address for %s by opening the link below:\n\n"+
			"%s\n\n"+
			"The link expires in 24 hours. If you did not sign up, you can ignore this email.\n\n"+
			"The %s Team",
		m.appName, m.links.verify(token), m.appName)
	return m.send(toEmail, subject, body)
}

func (m *SMTPMailer) SendResetPasswordEmail(toEmail, token string) error {
	subject := fmt.Sprintf("%s - Reset your password", m.appName)
	body := fmt.Sprintf(
		"Hello,\n\n"+
			"Someone asked to reset the password for your %s account. Open the link below to choose a new one:\n\n"+
			"%s\n\n"+
			"The link expires in 30 minutes. If this was not you, your password is unchanged.\n\n"+
			"The %s Team",
		m.appName, m.links.reset(token), m.appName)
	return m.send(toEmail, subject, body)
}

// LogMailer writes links to the log instead of sending them. It is meant
// for local development where no SMTP server is configured.
type LogMailer struct {
	links linkBuilder
}

func (m *LogMailer) SendVerificationEmail(toEmail, token string) error {
	logger.Info("mail_verification_link", map[string]interface{}{
		"to":   toEmail,
		"link": m.links.verify(token),
	})
	return nil
}

func (m *LogMailer) SendResetPasswordEmail(toEmail, token string) error {
	logger.Info("mail_reset_link", map[string]interface{}{
		"to":   toEmail,
		"link": m.links.reset(token),
	})
	return nil
}
