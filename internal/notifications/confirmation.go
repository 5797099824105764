package notifications

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const TemplateOrderConfirmation = "order_confirmation"

// Sender carries the addresses and links stamped on every customer email.
type Sender struct {
	From    string
	ReplyTo string
	SiteURL string
}

type confirmationView struct {
	OrderRef string
	OrderURL string
	Subtotal string
	Shipping string
	Total    string
	Support  string
}

var confirmationText = texttemplate.Must(texttemplate.New("text").Parse(`Thanks for your order!

Order #{{.OrderRef}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Total:    {{.Total}}

View your order: {{.OrderURL}}
Questions? Reply to this email or write to {{.Support}}.
`))

var confirmationHTML = htmltemplate.Must(htmltemplate.New("html").Parse(`<!doctype html>
<html><body style="font-family:sans-serif;color:#111">
<h1 style="font-size:20px">Thanks for your order!</h1>
<p>Order <strong>#{{.OrderRef}}</strong></p>
<table style="border-collapse:collapse">
<tr><td>Subtotal</td><td style="text-align:right">{{.Subtotal}}</td></tr>
<tr><td>Shipping</td><td style="text-align:right">{{.Shipping}}</td></tr>
<tr><td><strong>Total</strong></td><td style="text-align:right"><strong>{{.Total}}</strong></td></tr>
</table>
<p><a href="{{.OrderURL}}">View your order</a></p>
<p style="font-size:12px;color:#666">Questions? Write to {{.Support}}.</p>
</body></html>`))

// ConfirmationEmail renders the paid-order confirmation for order.
func ConfirmationEmail(order models.Order, sender Sender) (Message, error) {
	if order.CustomerEmail == nil || strings.TrimSpace(*order.CustomerEmail) == "" {
		return Message{}, fmt.Errorf("order %s has no customer email", order.ID)
	}

	total := order.TotalCents
	if order.SettledCents != nil {
		total = *order.SettledCents
	}
	view := confirmationView{
		OrderRef: strings.ToUpper(order.ID.String()[:8]),
		OrderURL: strings.TrimRight(sender.SiteURL, "/") + "/account/orders/" + order.ID.String(),
		Subtotal: FormatMoney(order.SubtotalCents, order.Currency),
		Shipping: FormatMoney(order.ShippingCents, order.Currency),
		Total:    FormatMoney(total, order.Currency),
		Support:  sender.ReplyTo,
	}

	var text, html bytes.Buffer
	if err := confirmationText.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	if err := confirmationHTML.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}

	return Message{
		To:       strings.TrimSpace(*order.CustomerEmail),
		From:     sender.From,
		ReplyTo:  sender.ReplyTo,
		Subject:  fmt.Sprintf("Order #%s confirmed", view.OrderRef),
		Text:     text.String(),
		HTML:     html.String(),
		Template: TemplateOrderConfirmation,
		Tags:     map[string]string{"order_id": order.ID.String()},
	}, nil
}

var currencySymbols = map[enums.Currency]string{
	enums.CurrencyUSD: "$",
	enums.CurrencyCAD: "CA$",
	enums.CurrencyEUR: "€",
	enums.CurrencyGBP: "£",
	enums.CurrencyJPY: "¥",
}

// FormatMoney renders minor units as a major-unit amount, e.g. 10500 usd -> "$105.00".
func FormatMoney(minor int64, currency enums.Currency) string {
	exp := currency.Exponent()
	amount := decimal.New(minor, -exp).StringFixed(exp)
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + amount
	}
	return amount + " " + strings.ToUpper(currency.String())
}
