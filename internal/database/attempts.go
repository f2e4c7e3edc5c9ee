package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rezerva/internal/models"
)

const attemptColumns = `id, transaction_id, reservation_number, channel, recipient, status, message, provider_message_id, created_at`

// RecordDeliveryAttempt appends one audit row. Rows are insert-only;
// repeated attempts for the same transaction and channel accumulate.
func (db *DB) RecordDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	query := `INSERT INTO delivery_attempts (transaction_id, reservation_number, channel, recipient, status, message, provider_message_id, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		attempt.TransactionID,
		attempt.ReservationNumber,
		attempt.Channel,
		attempt.Recipient,
		attempt.Status,
		attempt.Message,
		attempt.ProviderMessageID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	attempt.ID = id
	attempt.CreatedAt = now

	return nil
}

// GetAttemptsByTransaction returns the full attempt history for one
// transaction, oldest first.
func (db *DB) GetAttemptsByTransaction(ctx context.Context, transactionID string) ([]models.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts WHERE transaction_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery attempts: %w", err)
	}
	return scanAttempts(rows)
}

// GetAttemptsByReservation returns all attempts recorded against a
// reservation number, oldest first.
func (db *DB) GetAttemptsByReservation(ctx context.Context, reservationNumber string) ([]models.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts WHERE reservation_number = ? ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, reservationNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery attempts: %w", err)
	}
	return scanAttempts(rows)
}

// GetAllAttempts returns every audit row, oldest first. Used by the
// operational export.
func (db *DB) GetAllAttempts(ctx context.Context) ([]models.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery attempts: %w", err)
	}
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]models.DeliveryAttempt, error) {
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		err := rows.Scan(
			&a.ID, &a.TransactionID, &a.ReservationNumber, &a.Channel, &a.Recipient, &a.Status, &a.Message, &a.ProviderMessageID, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
