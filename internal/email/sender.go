package email

import (
	"fmt"
	"net/smtp"

	"localhost-events/internal/config"
)

// Sender delivers purchase confirmation mail over SMTP. It is injected into
// the settlement engine behind an interface so settlement stays testable
// without a mail server.
type Sender struct {
	cfg config.SMTPConfig
}

func NewSender(cfg config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) SendPurchaseConfirmation(to, eventID, eventTitle string, amountMinor int64) error {
	if s.cfg.From == "" || s.cfg.Password == "" {
		return fmt.Errorf("smtp configuration is incomplete")
	}

	message := []byte(fmt.Sprintf(
		"Subject: 🎟 Your ticket for %s\r\n"+
			"MIME-version: 1.0;\r\n"+
			"Content-Type: text/html; charset=\"UTF-8\";\r\n\r\n"+
			`<div style="font-family: Arial, sans-serif; max-width: 500px; margin: auto; border: 2px solid #FF6600; border-radius: 10px; padding: 20px; background-color: #fff9f2;">
				<div style="text-align: center;">
					<h2 style="color: #FF6600;">🎟 Purchase confirmed</h2>
					<p style="font-size: 16px; color: #555;">Your ticket for <strong>%s</strong> is ready.</p>
					<p style="font-size: 16px; color: #555;">Amount paid: <strong>$%d.%02d</strong></p>
					<p style="font-size: 14px; color: #888; margin-top: 15px;">
						Event reference: %s. Find your pass under "My Tickets" in your account.
					</p>
				</div>
			</div>`,
		eventTitle, eventTitle, amountMinor/100, amountMinor%100, eventID))

	auth := smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)
	addr := s.cfg.Host + ":" + s.cfg.Port
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, message); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}
