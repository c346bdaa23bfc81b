package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/utils"
)

const messageColumns = `
	id, conversation_id, admin_id, from_address, to_address, content,
	direction, message_type, delivery_status, provider_message_id,
	failure_reason, created_at`

type SQLMessageRepository struct {
	db *sql.DB
}

func NewSQLMessageRepository(db *sql.DB) *SQLMessageRepository {
	return &SQLMessageRepository{db: db}
}

func (r *SQLMessageRepository) Append(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (
			id, conversation_id, admin_id, from_address, to_address, content,
			direction, message_type, delivery_status, provider_message_id,
			failure_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ConversationID,
		utils.NullIntPtr(m.AdminRef),
		m.FromAddress,
		m.ToAddress,
		m.Content,
		string(m.Direction),
		m.MessageType,
		utils.NullString(string(m.DeliveryStatus)),
		utils.NullString(m.ProviderMessageID),
		utils.NullString(m.FailureReason),
		m.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return models.ErrDuplicateMessage
	}
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

func (r *SQLMessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	return r.fetchOne(ctx, query, id)
}

func (r *SQLMessageRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	if providerMessageID == "" {
		return nil, nil
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id = ?`
	return r.fetchOne(ctx, query, providerMessageID)
}

func (r *SQLMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`

	return r.fetchMessages(ctx, query, conversationID)
}

func (r *SQLMessageRepository) ListSince(ctx context.Context, conversationID string, since time.Time) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ? AND created_at >= ?
		ORDER BY seq ASC`

	return r.fetchMessages(ctx, query, conversationID, since.UTC())
}

func (r *SQLMessageRepository) UpdateDeliveryStatus(ctx context.Context, id string, from, to models.DeliveryStatus, providerMessageID, failureReason string) (bool, error) {
	query := `
		UPDATE messages
		SET delivery_status = ?,
			provider_message_id = COALESCE(?, provider_message_id),
			failure_reason = COALESCE(?, failure_reason)
		WHERE id = ? AND delivery_status = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(to),
		utils.NullString(providerMessageID),
		utils.NullString(failureReason),
		id,
		string(from),
	)
	if isUniqueViolation(err) {
		return false, models.ErrDuplicateMessage
	}
	if err != nil {
		return false, fmt.Errorf("error updating delivery status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLMessageRepository) fetchOne(ctx context.Context, query string, args ...interface{}) (*models.Message, error) {
	message, err := scanMessage(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting message: %w", err)
	}
	return message, nil
}

func (r *SQLMessageRepository) fetchMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, message)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	var adminID sql.NullInt64
	var deliveryStatus, providerID, failureReason sql.NullString
	var direction string

	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&adminID,
		&m.FromAddress,
		&m.ToAddress,
		&m.Content,
		&direction,
		&m.MessageType,
		&deliveryStatus,
		&providerID,
		&failureReason,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.AdminRef = utils.IntPtrFromNull(adminID)
	m.Direction = models.Direction(direction)
	m.DeliveryStatus = models.DeliveryStatus(deliveryStatus.String)
	m.ProviderMessageID = providerID.String
	m.FailureReason = failureReason.String
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
