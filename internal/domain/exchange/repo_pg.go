package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stoneson/NextLevelSeven/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const msgCols = `id, control_id, message_type, COALESCE(trigger_event,''), COALESCE(version,''),
	COALESCE(sending_app,''), COALESCE(sending_facility,''),
	COALESCE(receiving_app,''), COALESCE(receiving_facility,''),
	raw, COALESCE(ack_code,''), COALESCE(ack_control_id,''), COALESCE(ack_message,''),
	received_at`

func (r *repoPG) Save(ctx context.Context, msg *InboundMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hl7_messages (
			id, control_id, message_type, trigger_event, version,
			sending_app, sending_facility, receiving_app, receiving_facility,
			raw, ack_code, ack_control_id, ack_message, received_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		msg.ID, msg.ControlID, msg.MessageType, msg.TriggerEvent, msg.Version,
		msg.SendingApp, msg.SendingFacility, msg.ReceivingApp, msg.ReceivingFacility,
		msg.Raw, msg.AckCode, msg.AckControlID, msg.AckMessage, msg.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*InboundMessage, error) {
	m, err := scanMessage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+msgCols+` FROM hl7_messages WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *repoPG) GetByControlID(ctx context.Context, controlID string) (*InboundMessage, error) {
	m, err := scanMessage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+msgCols+` FROM hl7_messages WHERE control_id = $1
		 ORDER BY received_at DESC LIMIT 1`, controlID))
	if err != nil {
		return nil, fmt.Errorf("get message by control id: %w", err)
	}
	return m, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*InboundMessage, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hl7_messages`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+msgCols+` FROM hl7_messages ORDER BY received_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows, total)
}

func (r *repoPG) ListByType(ctx context.Context, messageType string, limit, offset int) ([]*InboundMessage, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM hl7_messages WHERE message_type = $1`, messageType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages by type: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+msgCols+` FROM hl7_messages WHERE message_type = $1
		 ORDER BY received_at DESC LIMIT $2 OFFSET $3`,
		messageType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages by type: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows, total)
}

func (r *repoPG) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hl7_messages`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return total, nil
}

func scanMessage(row pgx.Row) (*InboundMessage, error) {
	var m InboundMessage
	err := row.Scan(
		&m.ID, &m.ControlID, &m.MessageType, &m.TriggerEvent, &m.Version,
		&m.SendingApp, &m.SendingFacility, &m.ReceivingApp, &m.ReceivingFacility,
		&m.Raw, &m.AckCode, &m.AckControlID, &m.AckMessage,
		&m.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows, total int) ([]*InboundMessage, int, error) {
	var msgs []*InboundMessage
	for rows.Next() {
		var m InboundMessage
		err := rows.Scan(
			&m.ID, &m.ControlID, &m.MessageType, &m.TriggerEvent, &m.Version,
			&m.SendingApp, &m.SendingFacility, &m.ReceivingApp, &m.ReceivingFacility,
			&m.Raw, &m.AckCode, &m.AckControlID, &m.AckMessage,
			&m.ReceivedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, total, rows.Err()
}
