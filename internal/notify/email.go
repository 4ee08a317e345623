package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/events"
)

// EmailNotifier mails the practice inbox when receivables need attention.
// Client-facing reminder mail is sent directly by the receivables service;
// this subscriber only covers internal alerts.
type EmailNotifier struct {
	Sender  common.EmailSender
	To      []string
	ReplyTo string
	Enabled bool
	Log     zerolog.Logger
}

var alertSubjects = map[string]string{
	events.TopicReceivableOverdue: "Cobranca vencida",
	events.TopicReceivableDueSoon: "Cobranca proxima do vencimento",
}

// Notify satisfies events.Subscriber.
func (n *EmailNotifier) Notify(ctx context.Context, evt events.Event) {
	if n == nil || !n.Enabled || n.Sender == nil || len(n.To) == 0 {
		return
	}
	subject, ok := alertSubjects[evt.Topic]
	if !ok {
		return
	}
	var data struct {
		Number     string `json:"number"`
		ClientName string `json:"clientName"`
		DueDate    string `json:"dueDate"`
	}
	_ = json.Unmarshal(evt.Payload, &data)

	msg := common.EmailMessage{
		To:      n.To,
		ReplyTo: n.ReplyTo,
		Subject: fmt.Sprintf("%s: %s", subject, data.Number),
		HTMLBody: fmt.Sprintf("<p>%s</p><p>Cobranca <strong>%s</strong> de %s, vencimento %s.</p>",
			subject, data.Number, data.ClientName, data.DueDate),
	}
	if err := n.Sender.Send(msg); err != nil {
		n.Log.Error().Err(err).Str("topic", evt.Topic).Msg("alert email failed")
	}
}
