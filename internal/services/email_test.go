package services

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/dimitrije/reclama-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configuredSMTP() config.SMTPConfig {
	return config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     "587",
		Username: "user@example.com",
		Password: "password",
		From:     "noreply@example.com",
	}
}

func TestEmailService_IsConfigured(t *testing.T) {
	assert.True(t, NewEmailService(configuredSMTP()).IsConfigured())

	for name, mutate := range map[string]func(*config.SMTPConfig){
		"missing host":     func(c *config.SMTPConfig) { c.Host = "" },
		"missing username": func(c *config.SMTPConfig) { c.Username = "" },
		"missing password": func(c *config.SMTPConfig) { c.Password = "" },
		"missing from":     func(c *config.SMTPConfig) { c.From = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := configuredSMTP()
			mutate(&cfg)
			assert.False(t, NewEmailService(cfg).IsConfigured())
		})
	}
}

func TestEmailService_Send_NotConfigured(t *testing.T) {
	svc := NewEmailService(config.SMTPConfig{})
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send should not be attempted")
		return nil
	}

	assert.NoError(t, svc.Send("to@example.com", "Subject", "Body"))
}

func TestEmailService_SendConfirmation(t *testing.T) {
	svc := NewEmailService(configuredSMTP())
	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := svc.SendConfirmation("ana@example.com", "Ana <b>", "https://reclama.example.com/confirm?token=a&b")

	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Confirme sua conta")
	assert.Contains(t, gotMsg, "Olá, Ana &lt;b&gt;")
	assert.Contains(t, gotMsg, "token=a&amp;b")
}

func TestEmailService_SendConfirmation_PropagatesErrors(t *testing.T) {
	svc := NewEmailService(configuredSMTP())
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	assert.Error(t, svc.SendConfirmation("ana@example.com", "", "https://x"))
}
