package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stoneson/NextLevelSeven/internal/platform/telemetry"
	"github.com/stoneson/NextLevelSeven/internal/platform/webhook"
	"github.com/stoneson/NextLevelSeven/pkg/hl7"
)

// EventSink receives exchange lifecycle events for outbound fan-out.
// *webhook.WebhookManager satisfies it.
type EventSink interface {
	Deliver(ctx context.Context, event webhook.WebhookEvent) []webhook.DeliveryResult
}

// Service runs the inbound pipeline: parse, route, persist, acknowledge.
type Service struct {
	repo     Repository
	router   *hl7.Router
	sink     EventSink
	tp       *telemetry.TelemetryProvider
	log      zerolog.Logger
	app      string
	facility string
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		log:      zerolog.Nop(),
		app:      "NL7",
		facility: "NL7",
	}
}

// SetRouter attaches the dispatch table consulted between parsing and
// persistence. Without one every message is accepted unrouted.
func (s *Service) SetRouter(r *hl7.Router) { s.router = r }

// Router returns the attached router (may be nil).
func (s *Service) Router() *hl7.Router { return s.router }

// SetEventSink attaches an optional sink for message.received and
// message.acked events.
func (s *Service) SetEventSink(sink EventSink) { s.sink = sink }

// SetTelemetry attaches an optional metrics provider.
func (s *Service) SetTelemetry(tp *telemetry.TelemetryProvider) { s.tp = tp }

func (s *Service) SetLogger(log zerolog.Logger) { s.log = log }

// SetLocalIdentity sets the application and facility this service answers
// as when a reject acknowledgment cannot mirror an unparseable header.
func (s *Service) SetLocalIdentity(app, facility string) {
	if app != "" {
		s.app = app
	}
	if facility != "" {
		s.facility = facility
	}
}

// Ingest processes one raw message. Unparseable payloads are rejected with
// an AR acknowledgment and never persisted. Parseable messages are routed,
// stored together with their acknowledgment (AA, or AE when a route handler
// failed), and announced to the event sink. The returned error is reserved
// for infrastructure failures; protocol-level rejection is reported through
// the result.
func (s *Service) Ingest(ctx context.Context, raw string) (*IngestResult, error) {
	start := time.Now()

	parsed, err := hl7.Parse(raw)
	if err != nil {
		if s.tp != nil {
			s.tp.ParseFailure()
			s.tp.ObserveProcessingDuration(time.Since(start).Seconds())
		}
		ack := s.rejectAck(err.Error())
		s.log.Warn().Err(err).Msg("rejected unparseable message")
		return &IngestResult{Code: string(hl7.AckReject), Ack: ack, Error: err.Error()}, nil
	}

	msg := &InboundMessage{
		ID:                uuid.New(),
		ControlID:         headerField(parsed, 1, 10),
		MessageType:       headerField(parsed, 1, 9, 1, 1),
		TriggerEvent:      headerField(parsed, 1, 9, 1, 2),
		Version:           headerField(parsed, 1, 12),
		SendingApp:        headerField(parsed, 1, 3),
		SendingFacility:   headerField(parsed, 1, 4),
		ReceivingApp:      headerField(parsed, 1, 5),
		ReceivingFacility: headerField(parsed, 1, 6),
		Raw:               parsed.Value(),
		ReceivedAt:        time.Now().UTC(),
	}

	routed := false
	var routeErr error
	if s.router != nil {
		routed, routeErr = s.router.Dispatch(ctx, parsed)
	}

	code, reason := hl7.AckAccept, ""
	if routeErr != nil {
		code, reason = hl7.AckError, routeErr.Error()
		s.log.Error().Err(routeErr).
			Str("control_id", msg.ControlID).
			Str("message_type", msg.MessageType).
			Msg("route handler failed")
	}

	ack, err := hl7.GenerateAck(parsed, code, reason)
	if err != nil {
		return nil, fmt.Errorf("generate ack: %w", err)
	}
	msg.AckCode = string(code)
	msg.AckControlID = headerField(ack, 1, 10)
	msg.AckMessage = ack.Value()

	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.emitEvents(msg)

	if s.tp != nil {
		s.tp.MessageReceived(msg.MessageType, msg.TriggerEvent)
		s.tp.MessageAcked(msg.AckCode)
		s.tp.ObserveProcessingDuration(time.Since(start).Seconds())
	}

	res := &IngestResult{Message: msg, Code: msg.AckCode, Ack: msg.AckMessage, Routed: routed}
	if routeErr != nil {
		res.Error = routeErr.Error()
	}
	return res, nil
}

func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (*InboundMessage, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetMessageByControlID(ctx context.Context, controlID string) (*InboundMessage, error) {
	return s.repo.GetByControlID(ctx, controlID)
}

func (s *Service) ListMessages(ctx context.Context, limit, offset int) ([]*InboundMessage, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListMessagesByType(ctx context.Context, messageType string, limit, offset int) ([]*InboundMessage, int, error) {
	return s.repo.ListByType(ctx, messageType, limit, offset)
}

func (s *Service) CountMessages(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// rejectAck synthesizes the AR acknowledgment for a payload whose header
// could not be read. The service answers under its own identity since
// there is nothing to mirror.
func (s *Service) rejectAck(reason string) string {
	now := time.Now().UTC().Format("20060102150405")
	controlID := "ACK" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	header := fmt.Sprintf("MSH|^~\\&|%s|%s|||%s||ACK|%s|P|2.5", s.app, s.facility, now, controlID)
	status := "MSA|" + string(hl7.AckReject) + "|"
	if reason != "" {
		status += "|" + reason
	}
	return header + "\r" + status
}

// emitEvents announces a stored message to the sink. Delivery retries can
// outlive the originating request, so fan-out runs detached from it.
func (s *Service) emitEvents(msg *InboundMessage) {
	if s.sink == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal webhook payload")
		return
	}
	received := webhook.WebhookEvent{
		ID:           uuid.NewString(),
		Type:         webhook.EventMessageReceived,
		MessageID:    msg.ID.String(),
		ControlID:    msg.ControlID,
		MessageType:  msg.MessageType,
		TriggerEvent: msg.TriggerEvent,
		Payload:      payload,
		Timestamp:    msg.ReceivedAt,
	}
	ackPayload, _ := json.Marshal(map[string]string{
		"control_id":     msg.ControlID,
		"ack_code":       msg.AckCode,
		"ack_control_id": msg.AckControlID,
		"ack":            msg.AckMessage,
	})
	acked := webhook.WebhookEvent{
		ID:           uuid.NewString(),
		Type:         webhook.EventMessageAcked,
		MessageID:    msg.ID.String(),
		ControlID:    msg.ControlID,
		MessageType:  msg.MessageType,
		TriggerEvent: msg.TriggerEvent,
		Payload:      ackPayload,
		Timestamp:    time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.sink.Deliver(ctx, received)
		s.sink.Deliver(ctx, acked)
	}()
}

// headerField reads a header coordinate, treating any addressing error as
// an absent value.
func headerField(msg hl7.MessageReader, coords ...int) string {
	v, err := msg.Get(coords...)
	if err != nil {
		return ""
	}
	return v
}
