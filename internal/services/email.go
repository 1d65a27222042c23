package services

import (
	"fmt"
	"html"
	"net/smtp"

	"github.com/dimitrije/reclama-api/internal/config"
)

type EmailService struct {
	cfg      config.SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *EmailService) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != "" && s.cfg.From != ""
}

func (s *EmailService) Send(to, subject, body string) error {
	if !s.IsConfigured() {
		return nil
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.cfg.From, to, subject, body)

	return s.sendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
}

// SendConfirmation mails the account confirmation link to a new user.
func (s *EmailService) SendConfirmation(to, name, confirmURL string) error {
	greeting := "Olá"
	if name != "" {
		greeting = "Olá, " + html.EscapeString(name)
	}
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Reclama Pirapetinga</h2>
			<p>%s!</p>
			<p>Confirme seu email para começar a registrar denúncias.</p>
			<p><a href="%s">Confirmar minha conta</a></p>
		</body>
		</html>
	`, greeting, html.EscapeString(confirmURL))

	return s.Send(to, "Confirme sua conta", body)
}
