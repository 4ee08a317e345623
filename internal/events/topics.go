package events

// Topics announced on the bus. Subscribers match on the exact string.
const (
	TopicReceivableImported = "receivable.imported"
	TopicReceivableReminder = "receivable.reminder"
	TopicReceivableDueSoon  = "receivable.due_soon"
	TopicReceivableOverdue  = "receivable.overdue"
	TopicReceivablePaid     = "receivable.paid"
	TopicDocumentSent       = "document.sent"
)

// Known reports whether topic is one the system emits.
func Known(topic string) bool {
	switch topic {
	case TopicReceivableImported, TopicReceivableReminder, TopicReceivableDueSoon,
		TopicReceivableOverdue, TopicReceivablePaid, TopicDocumentSent:
		return true
	}
	return false
}
