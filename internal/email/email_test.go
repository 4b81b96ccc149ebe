package email

import (
	"net/smtp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestEmailService() (*Service, *[]sentMail) {
	var sent []sentMail
	s := NewService("smtp.local", "1025", "shop@example.com", "https://shop.example.com/")
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return s, &sent
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"5", "5.00"},
		{"999.9", "999.90"},
		{"1000", "1,000.00"},
		{"1234567.891", "1,234,567.89"},
		{"-1500.5", "-1,500.50"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestService_SendOrderConfirmation(t *testing.T) {
	s, sent := newTestEmailService()

	err := s.SendOrderConfirmation("ann@example.com", OrderConfirmation{
		CustomerName: "Ann",
		OrderID:      "0123456789abcdef",
		Items: []OrderItem{
			{Name: "Tee", Size: "M", Quantity: 2, Price: decimal.RequireFromString("5.00")},
		},
		Total: decimal.RequireFromString("10.00"),
	})

	require.NoError(t, err)
	require.Len(t, *sent, 1)
	mail := (*sent)[0]
	assert.Equal(t, "smtp.local:1025", mail.addr)
	assert.Equal(t, []string{"ann@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: Order confirmation #01234567")
	assert.Contains(t, mail.msg, "Tee / M")
	assert.Contains(t, mail.msg, "$10.00")
	assert.Contains(t, mail.msg, "https://shop.example.com/orders/0123456789abcdef")
}

func TestService_EscapesUserInput(t *testing.T) {
	s, sent := newTestEmailService()

	err := s.SendWelcome("ann@example.com", Welcome{Name: "<script>alert(1)</script>"})

	require.NoError(t, err)
	assert.NotContains(t, (*sent)[0].msg, "<script>")
	assert.Contains(t, (*sent)[0].msg, "&lt;script&gt;")
}

func TestService_SendPasswordReset(t *testing.T) {
	s, sent := newTestEmailService()

	err := s.SendPasswordReset("ann@example.com", PasswordReset{
		Name:      "Ann",
		Token:     "tok-123",
		ExpiresAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Contains(t, (*sent)[0].msg, "https://shop.example.com/reset-password?token=tok-123")
	assert.Contains(t, (*sent)[0].msg, "2024-05-01 10:30 UTC")
}

func TestService_SendStatusUpdate(t *testing.T) {
	s, sent := newTestEmailService()

	err := s.SendStatusUpdate("ann@example.com", StatusUpdate{
		CustomerName:   "Ann",
		OrderID:        "order-1",
		Status:         "shipped",
		Carrier:        "UPS",
		TrackingNumber: "1Z999",
	})

	require.NoError(t, err)
	assert.Contains(t, (*sent)[0].msg, "Subject: Your order #order-1 is shipped")
	assert.Contains(t, (*sent)[0].msg, "1Z999")
}

func TestService_RejectsHeaderInjection(t *testing.T) {
	s, sent := newTestEmailService()

	err := s.SendWelcome("ann@example.com\r\nBcc: evil@example.com", Welcome{Name: "Ann"})

	assert.Error(t, err)
	assert.Empty(t, *sent)
}
