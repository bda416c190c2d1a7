package notify

import (
	"fmt"

	"github.com/storepulse/inventory-alerts/internal/events"
)

// FormatMessage renders an alert candidate into the outbound message.
// The templates are a fixed contract with downstream consumers; change them
// only together with whatever parses them on the other end.
func FormatMessage(candidate *events.AlertCandidate) Message {
	p := candidate.Payload
	var text string
	switch candidate.Type {
	case events.AlertHighValue:
		text = fmt.Sprintf("High-Value Sale: $%.2f %s @ %s %s",
			p.TotalAmount, p.ProductName, p.StoreID, p.Timestamp)
	case events.AlertLowStock:
		text = fmt.Sprintf("Low Stock: %s remaining=%d last_sale=%s %s",
			p.ProductName, p.StockRemaining, p.StoreID, p.Timestamp)
	default:
		text = fmt.Sprintf("Alert %s: %s @ %s %s",
			candidate.Type, p.ProductName, p.StoreID, p.Timestamp)
	}
	return Message{
		DedupKey:  candidate.DedupKey,
		AlertType: string(candidate.Type),
		Text:      text,
	}
}
