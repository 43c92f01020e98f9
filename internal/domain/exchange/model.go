package exchange

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessage maps to the hl7_messages table. One row per received
// message, carrying the header fields lifted from MSH and the
// acknowledgment that was returned to the sender.
type InboundMessage struct {
	ID                uuid.UUID `db:"id" json:"id"`
	ControlID         string    `db:"control_id" json:"control_id"`
	MessageType       string    `db:"message_type" json:"message_type"`
	TriggerEvent      string    `db:"trigger_event" json:"trigger_event,omitempty"`
	Version           string    `db:"version" json:"version,omitempty"`
	SendingApp        string    `db:"sending_app" json:"sending_app,omitempty"`
	SendingFacility   string    `db:"sending_facility" json:"sending_facility,omitempty"`
	ReceivingApp      string    `db:"receiving_app" json:"receiving_app,omitempty"`
	ReceivingFacility string    `db:"receiving_facility" json:"receiving_facility,omitempty"`
	Raw               string    `db:"raw" json:"raw"`
	AckCode           string    `db:"ack_code" json:"ack_code,omitempty"`
	AckControlID      string    `db:"ack_control_id" json:"ack_control_id,omitempty"`
	AckMessage        string    `db:"ack_message" json:"ack_message,omitempty"`
	ReceivedAt        time.Time `db:"received_at" json:"received_at"`
}

// IngestResult reports the outcome of processing one inbound message.
// Message is nil when the payload was rejected before persistence.
type IngestResult struct {
	Message *InboundMessage `json:"message,omitempty"`
	Code    string          `json:"code"`
	Ack     string          `json:"ack"`
	Routed  bool            `json:"routed"`
	Error   string          `json:"error,omitempty"`
}

// Accepted reports whether the message passed parsing and routing.
func (r *IngestResult) Accepted() bool { return r.Code == "AA" }

// Stored reports whether the message was persisted. Rejected payloads
// never are; handler failures still are.
func (r *IngestResult) Stored() bool { return r.Message != nil }
