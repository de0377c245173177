package mailer

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"github.com/volkanaggunlu/ecommerce-api/models"
)

type Mailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewFromEnv returns nil when SMTP is not configured.
func NewFromEnv() *Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	return &Mailer{
		host:     host,
		port:     port,
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
}

func (m *Mailer) SendOrderConfirmation(order *models.Order) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: Siparisiniz alindi (%s)\r\n", order.MerchantOID)
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\n\r\n", m.from, order.Email)
	fmt.Fprintf(&b, "Merhaba %s,\r\n\r\nSiparisiniz basariyla alindi.\r\n\r\n", order.Name)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %s x%d\r\n", item.Name, item.Quantity)
	}
	fmt.Fprintf(&b, "\r\nToplam: %.2f TL\r\n", float64(order.PaymentAmount)/100)
	if order.CouponCode != "" {
		fmt.Fprintf(&b, "Kupon: %s (-%.2f TL)\r\n", order.CouponCode, order.DiscountAmount)
	}

	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{order.Email}, []byte(b.String()))
}
