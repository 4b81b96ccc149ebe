package email

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	Name     string
	Size     string
	Color    string
	Quantity int
	Price    decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderConfirmation struct {
	CustomerName string
	OrderID      string
	Items        []OrderItem
	Total        decimal.Decimal
	ShipTo       string
	OrderURL     string
}

type StatusUpdate struct {
	CustomerName   string
	OrderID        string
	Status         string
	Carrier        string
	TrackingNumber string
	Reason         string
	OrderURL       string
}

type PasswordReset struct {
	Name      string
	Token     string
	ExpiresAt time.Time
	ResetURL  string
}

type Welcome struct {
	Name    string
	ShopURL string
}

var funcs = template.FuncMap{
	"money": FormatMoney,
	"datetime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
}

const layoutHead = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-radius: 10px;">`

const layoutFoot = `<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
<p style="font-size: 12px; color: #999; margin-bottom: 0;">This is an automated message. Please contact support if you have any questions.</p>
</div>
</body>
</html>`

var orderConfirmationTmpl = template.Must(template.New("order").Funcs(funcs).Parse(layoutHead + `
<h1 style="font-size: 24px; margin-top: 0;">Thank you for your order, {{.CustomerName}}</h1>
<p>Order number <strong style="font-family: monospace;">{{.OrderID}}</strong></p>
<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
<thead><tr style="background: #f8f9fa;">
<th style="padding: 12px; text-align: left;">Item</th>
<th style="padding: 12px; text-align: center;">Qty</th>
<th style="padding: 12px; text-align: right;">Price</th>
<th style="padding: 12px; text-align: right;">Subtotal</th>
</tr></thead>
<tbody>
{{range .Items}}<tr>
<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Name}}{{if .Size}} / {{.Size}}{{end}}{{if .Color}} / {{.Color}}{{end}}</td>
<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">${{money .Price}}</td>
<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">${{money .Subtotal}}</td>
</tr>
{{end}}</tbody>
</table>
<p style="text-align: right; font-size: 20px; font-weight: bold;">Total ${{money .Total}}</p>
{{if .ShipTo}}<p>Shipping to: {{.ShipTo}}</p>{{end}}
<p><a href="{{.OrderURL}}">View your order</a></p>
` + layoutFoot))

var statusUpdateTmpl = template.Must(template.New("status").Funcs(funcs).Parse(layoutHead + `
<h1 style="font-size: 24px; margin-top: 0;">Order update</h1>
<p>Hi {{.CustomerName}}, your order <strong style="font-family: monospace;">{{.OrderID}}</strong> is now <strong>{{.Status}}</strong>.</p>
{{if .TrackingNumber}}<p>Carrier: {{.Carrier}}<br>Tracking number: {{.TrackingNumber}}</p>{{end}}
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p><a href="{{.OrderURL}}">View your order</a></p>
` + layoutFoot))

var passwordResetTmpl = template.Must(template.New("reset").Funcs(funcs).Parse(layoutHead + `
<h1 style="font-size: 24px; margin-top: 0;">Reset your password</h1>
<p>Hi {{.Name}}, we received a request to reset your password.</p>
<p><a href="{{.ResetURL}}" style="display: inline-block; background: #667eea; color: #fff; padding: 10px 20px; border-radius: 5px; text-decoration: none;">Choose a new password</a></p>
<p>The link expires at {{datetime .ExpiresAt}}. If you did not ask for this you can ignore this email.</p>
` + layoutFoot))

var welcomeTmpl = template.Must(template.New("welcome").Funcs(funcs).Parse(layoutHead + `
<h1 style="font-size: 24px; margin-top: 0;">Welcome, {{.Name}}</h1>
<p>Your account is ready. <a href="{{.ShopURL}}">Start shopping</a>.</p>
` + layoutFoot))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatMoney renders an amount with two decimals and comma separators
func FormatMoney(d decimal.Decimal) string {
	str := d.Abs().StringFixed(2)
	intPart, frac := str[:len(str)-3], str[len(str)-3:]

	var result strings.Builder
	if d.IsNegative() {
		result.WriteString("-")
	}
	remainder := len(intPart) % 3
	if remainder > 0 {
		result.WriteString(intPart[:remainder])
	}
	for i := remainder; i < len(intPart); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(intPart[i : i+3])
	}
	result.WriteString(frac)
	return result.String()
}
