// Package events publishes domain events after a commit. Publishing is best
// effort: a lost event never rolls back a sale.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSaleCompleted    = "sale.completed"
	TypePurchaseRecorded = "purchase.recorded"
	TypeTicketAdvanced   = "ticket.advanced"
	TypeStaleRevised     = "stale.revised"
)

const producerName = "farmtech-backend"

type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Key          string          `json:"key,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, key string, payload any) error
}

// NewEnvelope wraps payload for the wire. key is the partition key, usually
// the ID of the aggregate the event is about.
func NewEnvelope(eventType string, key string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     producerName,
		Key:          key,
		Payload:      raw,
	}, nil
}

type Noop struct{}

func (Noop) Publish(_ context.Context, _ string, _ string, _ any) error {
	return nil
}

type SaleLinePayload struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
}

type SaleCompletedPayload struct {
	SaleID   string            `json:"sale_id"`
	MemberID string            `json:"member_id,omitempty"`
	Total    int64             `json:"total"`
	Discount int64             `json:"discount"`
	Lines    []SaleLinePayload `json:"lines"`
}

type PurchaseRecordedPayload struct {
	OrderID    string `json:"order_id"`
	SupplierID string `json:"supplier_id"`
	Total      int64  `json:"total"`
	Accepted   int    `json:"accepted"`
	Dropped    int    `json:"dropped"`
}

type TicketAdvancedPayload struct {
	TicketID     string `json:"ticket_id"`
	TechnicianID string `json:"technician_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	Cost         *int64 `json:"cost,omitempty"`
}

type StaleRevisedPayload struct {
	AsOf    time.Time `json:"as_of"`
	Flagged int       `json:"flagged"`
}
