package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"whatsapp-router/internal/models"
)

// SQLClientRepository reads the known-client reference table. Phones are
// stored already normalized.
type SQLClientRepository struct {
	db *sql.DB
}

func NewSQLClientRepository(db *sql.DB) *SQLClientRepository {
	return &SQLClientRepository{db: db}
}

func (r *SQLClientRepository) FindByPhone(ctx context.Context, normalizedPhone string) (*models.Client, error) {
	query := "SELECT id, name, phone, email FROM clients WHERE phone = ? ORDER BY id LIMIT 1"
	client, err := scanClient(r.db.QueryRowContext(ctx, query, normalizedPhone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting client: %w", err)
	}
	return client, nil
}

func (r *SQLClientRepository) GetByID(ctx context.Context, id int) (*models.Client, error) {
	client, err := scanClient(r.db.QueryRowContext(ctx,
		"SELECT id, name, phone, email FROM clients WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting client: %w", err)
	}
	return client, nil
}

func scanClient(row rowScanner) (*models.Client, error) {
	client := &models.Client{}
	var email sql.NullString
	if err := row.Scan(&client.ID, &client.Name, &client.Phone, &email); err != nil {
		return nil, err
	}
	client.Email = email.String
	return client, nil
}
