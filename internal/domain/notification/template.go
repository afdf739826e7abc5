package notification

import (
	"bytes"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
}).Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #333;">Order Confirmation</h1>
  <p>Dear {{.Order.ShippingAddress.Name}},</p>
  <p>Thank you for your order! Here are your order details:</p>
  <div style="background: #f9f9f9; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <h2 style="color: #444;">Order #{{.Order.Number}}</h2>
    <p>Order Date: {{date .Order.CreatedAt}}</p>
    <p>Total Amount: ${{money .Order.Total}}</p>
  </div>
  <h3 style="color: #444;">Order Items:</h3>
  <table style="width: 100%; border-collapse: collapse;">
    <tr style="background: #f5f5f5;">
      <th style="padding: 10px; text-align: left;">Item</th>
      <th style="padding: 10px; text-align: right;">Quantity</th>
      <th style="padding: 10px; text-align: right;">Price</th>
    </tr>
    {{- range .Order.Items}}
    <tr>
      <td style="padding: 10px; border-bottom: 1px solid #eee;">{{.Name}}</td>
      <td style="padding: 10px; text-align: right; border-bottom: 1px solid #eee;">{{.Quantity}}</td>
      <td style="padding: 10px; text-align: right; border-bottom: 1px solid #eee;">${{money .Price}}</td>
    </tr>
    {{- end}}
  </table>
  <table style="width: 100%; margin-top: 20px; border-top: 2px solid #eee;">
    <tr><td>Subtotal:</td><td style="text-align: right;">${{money .Summary.Subtotal}}</td></tr>
    <tr><td>Tax ({{.TaxPercent}}%):</td><td style="text-align: right;">${{money .Summary.Tax}}</td></tr>
    <tr><td>Shipping Fee:</td><td style="text-align: right;">${{money .Summary.Shipping}}</td></tr>
    <tr style="font-weight: bold;"><td>Total:</td><td style="text-align: right;">${{money .Summary.Total}}</td></tr>
  </table>
  <div style="margin: 20px 0;">
    <h3 style="color: #444;">Shipping Address:</h3>
    <p>{{.Order.ShippingAddress.Name}}</p>
    <p>{{.Order.ShippingAddress.Address}}</p>
    <p>{{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.PostalCode}}</p>
    <p>Phone: {{.Order.ShippingAddress.Phone}}</p>
  </div>
  <p>We will notify you when your order has been shipped.</p>
  <p>Thank you for shopping with us!</p>
</div>
`))

// RenderConfirmation builds the order confirmation email for to.
func RenderConfirmation(to string, o *order.Order, pricing order.Pricing) (Message, error) {
	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, struct {
		Order      *order.Order
		Summary    order.Summary
		TaxPercent string
	}{
		Order:      o,
		Summary:    pricing.Summarize(o),
		TaxPercent: pricing.TaxRate.Shift(2).String(),
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "render confirmation")
	}
	return Message{
		To:      to,
		Subject: "Order Confirmation - #" + o.Number,
		HTML:    buf.String(),
	}, nil
}
