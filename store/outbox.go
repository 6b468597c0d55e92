package store

import (
	"context"
	"time"
)

type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	Key       string
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueOutbox(ctx context.Context, topic string, payload []byte, msgType, key string) error {
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO outbox (topic, payload, msg_type, msg_key) VALUES (?, ?, ?, ?)`),
		topic, payload, msgType, key)
	return err
}

// ListPendingOutbox returns unsent messages below the retry ceiling, oldest first.
func (db *DB) ListPendingOutbox(ctx context.Context, maxRetries, limit int) ([]*OutboxMessage, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, topic, payload, msg_type, msg_key, retries, created_at FROM outbox WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.Key, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE outbox SET sent_at=datetime('now','localtime') WHERE id=?`), id)
	return err
}

func (db *DB) IncrementOutboxRetries(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}

// PurgeSentOutbox deletes messages delivered before cutoff.
func (db *DB) PurgeSentOutbox(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?`), cutoff.Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
