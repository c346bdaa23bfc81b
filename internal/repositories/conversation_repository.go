package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/utils"
)

const conversationColumns = `
	id, normalized_phone, client_id, admin_id, department_id, state,
	menu_attempts, needs_attention, created_at, updated_at, ended_at`

// SQLConversationRepository stores conversations in MySQL or SQLite. The
// live_key column holds the phone while a conversation is live and NULL once
// it ends; its unique index enforces one live conversation per phone.
type SQLConversationRepository struct {
	db *sql.DB
}

func NewSQLConversationRepository(db *sql.DB) *SQLConversationRepository {
	return &SQLConversationRepository{db: db}
}

func (r *SQLConversationRepository) FindLiveByPhone(ctx context.Context, phone string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE live_key = ?`

	conversation, err := scanConversation(r.db.QueryRowContext(ctx, query, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding live conversation: %w", err)
	}
	return conversation, nil
}

func (r *SQLConversationRepository) Create(ctx context.Context, c *models.Conversation) error {
	query := `
		INSERT INTO conversations (
			id, normalized_phone, live_key, client_id, admin_id, department_id,
			state, menu_attempts, needs_attention, created_at, updated_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var liveKey sql.NullString
	if c.IsLive() {
		liveKey = utils.NullString(c.NormalizedPhone)
	}

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.NormalizedPhone,
		liveKey,
		utils.NullIntPtr(c.ClientRef),
		utils.NullIntPtr(c.AdminRef),
		utils.NullIntPtr(c.SelectedDepartment),
		string(c.State),
		c.MenuAttempts,
		utils.BoolToInt(c.NeedsAttention),
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
		utils.NullTime(c.EndedAt),
	)
	if isUniqueViolation(err) {
		return models.ErrDuplicateLiveConversation
	}
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}
	return nil
}

func (r *SQLConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`

	conversation, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting conversation: %w", err)
	}
	return conversation, nil
}

func (r *SQLConversationRepository) Update(ctx context.Context, id string, patch models.ConversationPatch) (*models.Conversation, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{patch.UpdatedAt.UTC()}

	if patch.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, string(*patch.State))
		if *patch.State == models.StateEnded {
			sets = append(sets, "live_key = NULL", "ended_at = ?")
			args = append(args, patch.UpdatedAt.UTC())
		}
	}
	if patch.AdminRef != nil {
		sets = append(sets, "admin_id = ?")
		args = append(args, *patch.AdminRef)
	}
	if patch.SelectedDepartment != nil {
		sets = append(sets, "department_id = ?")
		args = append(args, *patch.SelectedDepartment)
	}
	if patch.ClientRef != nil {
		sets = append(sets, "client_id = ?")
		args = append(args, *patch.ClientRef)
	}
	if patch.MenuAttempts != nil {
		sets = append(sets, "menu_attempts = ?")
		args = append(args, *patch.MenuAttempts)
	}
	if patch.NeedsAttention != nil {
		sets = append(sets, "needs_attention = ?")
		args = append(args, utils.BoolToInt(*patch.NeedsAttention))
	}

	query := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = ? AND state <> ?"
	args = append(args, id, string(models.StateEnded))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error updating conversation: %w", err)
	}

	// MySQL conta linhas encontradas (clientFoundRows), SQLite sempre conta
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

func (r *SQLConversationRepository) ListActive(ctx context.Context) ([]*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE state IN (?, ?)
		ORDER BY updated_at DESC`

	return r.fetchConversations(ctx, query, string(models.StateWaitingDepartment), string(models.StateConversing))
}

func (r *SQLConversationRepository) ListStale(ctx context.Context, before time.Time) ([]*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE state <> ? AND updated_at < ?
		ORDER BY updated_at ASC`

	return r.fetchConversations(ctx, query, string(models.StateEnded), before.UTC())
}

func (r *SQLConversationRepository) fetchConversations(ctx context.Context, query string, args ...interface{}) ([]*models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, conversation)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	var clientID, adminID, departmentID sql.NullInt64
	var endedAt sql.NullTime
	var state string

	err := row.Scan(
		&c.ID,
		&c.NormalizedPhone,
		&clientID,
		&adminID,
		&departmentID,
		&state,
		&c.MenuAttempts,
		&c.NeedsAttention,
		&c.CreatedAt,
		&c.UpdatedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	c.State = models.ConversationState(state)
	c.ClientRef = utils.IntPtrFromNull(clientID)
	c.AdminRef = utils.IntPtrFromNull(adminID)
	c.SelectedDepartment = utils.IntPtrFromNull(departmentID)
	c.EndedAt = utils.TimePtrFromNull(endedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
