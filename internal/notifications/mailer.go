package notifications

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Message is a rendered transactional email.
type Message struct {
	To       string            `json:"to"`
	From     string            `json:"from"`
	ReplyTo  string            `json:"replyTo,omitempty"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text"`
	HTML     string            `json:"html"`
	Template string            `json:"template"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Mailer hands a message to whatever actually delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer records messages in the log instead of sending them. Used when no
// email topic is configured.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"to":       maskAddress(msg.To),
		"subject":  msg.Subject,
		"template": msg.Template,
	}), "email.logged")
	return nil
}

// maskAddress keeps the domain and the first character of the mailbox.
func maskAddress(addr string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
