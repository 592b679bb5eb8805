// Package mail is the smtp fallback channel for renewal reports.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/uzx-v/renewbot/lib/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/notify/mail")

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

type Notifier struct {
	Smtp SmtpConfig
	To   string
}

func (n Notifier) Notify(ctx context.Context, event notify.Event) error {
	_, span := tracer.Start(ctx, "Notify")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Renewbot <%s>", n.Smtp.EmailAddress)
	mail.To = []string{n.To}
	mail.Subject = fmt.Sprintf("[%s] %s", event.Provider, event.Subject)

	body := fmt.Sprintf(`Provider: %s
Target: %s
Status: %s

%s

%s`, event.Provider, event.Target, event.Status, event.Message,
		event.At.Format("2006-01-02 15:04:05 MST"))
	mail.Text = []byte(body)

	if len(event.Screenshot) > 0 {
		_, err := mail.Attach(bytes.NewReader(event.Screenshot), "screenshot.png", "image/png")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to attach screenshot")
			return err
		}
	}

	err := mail.Send(
		fmt.Sprintf("%s:%d", n.Smtp.Server, n.Smtp.Port),
		smtp.PlainAuth("", n.Smtp.EmailAddress, n.Smtp.Password, n.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(fmt.Sprintf("%s:%d", n.Smtp.Server, n.Smtp.Port), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
