package auth

import (
	"context"

	"github.com/rs/zerolog"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, html string) error {
	m.Log.Info().Str("to", to).Str("subject", subject).Str("body", html).Msg("mail")
	return nil
}
