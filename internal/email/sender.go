// Package email отправляет уведомления покупателям.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/craftstore-system/internal/model"
)

// Sender отправляет письмо-подтверждение заказа. Отправка выполняется
// по принципу best effort: вызывающая сторона логирует ошибку и продолжает.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, to string, order *model.Order) error
}

// SMTPSender отправляет письма через SMTP-ретранслятор с повторами при сбоях.
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender создаёт отправитель писем. addr — адрес SMTP-сервера host:port.
func NewSMTPSender(addr, from string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from}
}

// SendOrderConfirmation отправляет подтверждение заказа с повторами по
// экспоненциальному бэкоффу. Ошибка возвращается только после исчерпания попыток.
func (s *SMTPSender) SendOrderConfirmation(ctx context.Context, to string, order *model.Order) error {
	if s.addr == "" {
		return fmt.Errorf("smtp sender not configured")
	}

	msg := buildConfirmation(s.from, to, order)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := smtp.SendMail(s.addr, nil, s.from, []string{to}, msg); err != nil {
			return retry.RetryableError(fmt.Errorf("send mail: %w", err))
		}
		return nil
	})
}

func buildConfirmation(from, to string, order *model.Order) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Order %s confirmed\r\n", order.Number)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Thank you for your order %s.\r\n", order.Number)
	fmt.Fprintf(&b, "Total: %.2f\r\n", model.FloatFromCents(order.TotalCents))
	for _, it := range order.Items {
		fmt.Fprintf(&b, "- %s x%d\r\n", it.ProductName, it.Quantity)
	}
	return []byte(b.String())
}
