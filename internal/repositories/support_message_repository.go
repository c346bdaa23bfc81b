package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/utils"
)

// SQLSupportMessageRepository persists support messages. Typed content is
// encoded into the text column on write and decoded on read; nothing above
// this layer sees the encoded form.
type SQLSupportMessageRepository struct {
	db *sql.DB
}

func NewSQLSupportMessageRepository(db *sql.DB) *SQLSupportMessageRepository {
	return &SQLSupportMessageRepository{db: db}
}

func (r *SQLSupportMessageRepository) Save(ctx context.Context, m *models.SupportMessage) error {
	content, err := models.EncodeContent(m.Content)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO support_messages (
			id, client_id, admin_id, from_client, content, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.ClientID,
		utils.NullIntPtr(m.AdminID),
		utils.BoolToInt(m.FromClient),
		content,
		utils.BoolToInt(m.Read),
		m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error saving support message: %w", err)
	}
	return nil
}

// ListByClient returns the latest messages in chronological order.
func (r *SQLSupportMessageRepository) ListByClient(ctx context.Context, clientID int, limit int) ([]*models.SupportMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, client_id, admin_id, from_client, content, is_read, created_at
		FROM (
			SELECT seq, id, client_id, admin_id, from_client, content, is_read, created_at
			FROM support_messages
			WHERE client_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) latest
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying support messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.SupportMessage
	for rows.Next() {
		m := &models.SupportMessage{}
		var adminID sql.NullInt64
		var content string
		if err := rows.Scan(&m.ID, &m.ClientID, &adminID, &m.FromClient, &content, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning support message: %w", err)
		}
		m.AdminID = utils.IntPtrFromNull(adminID)
		m.Content = models.DecodeContent(content)
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating support messages: %w", err)
	}
	return messages, nil
}

func (r *SQLSupportMessageRepository) MarkRead(ctx context.Context, clientID int, readerIsClient bool) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE support_messages SET is_read = 1 WHERE client_id = ? AND from_client = ? AND is_read = 0",
		clientID, utils.BoolToInt(!readerIsClient))
	if err != nil {
		return 0, fmt.Errorf("error marking support messages as read: %w", err)
	}
	return result.RowsAffected()
}

func (r *SQLSupportMessageRepository) UnreadCount(ctx context.Context, clientID int, readerIsClient bool) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM support_messages WHERE client_id = ? AND from_client = ? AND is_read = 0",
		clientID, utils.BoolToInt(!readerIsClient)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting unread support messages: %w", err)
	}
	return count, nil
}
