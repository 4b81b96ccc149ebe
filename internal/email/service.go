package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host    string
	port    string
	from    string
	baseURL string
	send    sendFunc
}

// NewService creates a new email service. baseURL is the storefront origin
// used for links, e.g. https://shop.example.com
func NewService(host, port, from, baseURL string) *Service {
	return &Service{
		host:    host,
		port:    port,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		send:    smtp.SendMail,
	}
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(to string, data OrderConfirmation) error {
	data.OrderURL = s.baseURL + "/orders/" + data.OrderID
	body, err := render(orderConfirmationTmpl, data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Order confirmation #%s", shortID(data.OrderID))
	return s.deliver(to, subject, body)
}

// SendStatusUpdate tells the customer their order moved to a new status
func (s *Service) SendStatusUpdate(to string, data StatusUpdate) error {
	data.OrderURL = s.baseURL + "/orders/" + data.OrderID
	body, err := render(statusUpdateTmpl, data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your order #%s is %s", shortID(data.OrderID), data.Status)
	return s.deliver(to, subject, body)
}

// SendPasswordReset mails the reset link for token
func (s *Service) SendPasswordReset(to string, data PasswordReset) error {
	data.ResetURL = s.baseURL + "/reset-password?token=" + data.Token
	body, err := render(passwordResetTmpl, data)
	if err != nil {
		return err
	}
	return s.deliver(to, "Reset your password", body)
}

func (s *Service) SendWelcome(to string, data Welcome) error {
	data.ShopURL = s.baseURL
	body, err := render(welcomeTmpl, data)
	if err != nil {
		return err
	}
	return s.deliver(to, "Welcome to the shop", body)
}

func (s *Service) deliver(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
