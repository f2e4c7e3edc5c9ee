package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rezerva/internal/models"
)

// CreateBooking inserts a booking row. The pipeline only ever needs the
// identity slice of a booking; the full record lives upstream.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (reservation_number, status, artifact_path, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?)`
	now := time.Now()
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	result, err := db.ExecContext(ctx, query,
		booking.ReservationNumber,
		booking.Status,
		booking.ArtifactPath,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT id, reservation_number, status, artifact_path, created_at, updated_at FROM bookings WHERE id = ?`

	var booking models.Booking
	err := db.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.ReservationNumber,
		&booking.Status,
		&booking.ArtifactPath,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return &booking, nil
}

// UpdateBookingStatus updates the booking lifecycle status.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return nil
}

// SetBookingArtifactPath records the stored voucher path against the
// booking. Callers treat this as best-effort bookkeeping.
func (db *DB) SetBookingArtifactPath(ctx context.Context, id int64, path string) error {
	query := `UPDATE bookings SET artifact_path = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, path, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set booking artifact path: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// GetBookingArtifactPath returns the recorded voucher path, or "" when
// no artifact has been recorded yet.
func (db *DB) GetBookingArtifactPath(ctx context.Context, id int64) (string, error) {
	query := `SELECT artifact_path FROM bookings WHERE id = ?`

	var path sql.NullString
	err := db.QueryRowContext(ctx, query, id).Scan(&path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrBookingNotFound
		}
		return "", fmt.Errorf("failed to get booking artifact path: %w", err)
	}
	if !path.Valid {
		return "", nil
	}
	return path.String, nil
}
