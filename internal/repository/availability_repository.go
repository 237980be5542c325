package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayloop/booking-engine/internal/model"
	"github.com/stayloop/booking-engine/internal/repository/base"
)

type AvailabilityRepository struct {
	pool *pgxpool.Pool
}

func NewAvailabilityRepository(pool *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

// HasConflict answers the half-open overlap query for a candidate stay.
// Served entirely from the blocks index, no booking rows touched.
func (r *AvailabilityRepository) HasConflict(ctx context.Context, propertyID int64, checkIn, checkOut time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM availability_blocks
			WHERE property_id = $1
			  AND unavailable_from < $3
			  AND unavailable_to > $2
		)
	`

	var conflict bool
	err := r.pool.QueryRow(ctx, query, propertyID, checkIn, checkOut).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("check availability conflict: %w", err)
	}
	return conflict, nil
}

// ListBlocked returns every block intersecting the window [from, to).
func (r *AvailabilityRepository) ListBlocked(ctx context.Context, propertyID int64, from, to time.Time) ([]*model.AvailabilityBlock, error) {
	query := `
		SELECT id, property_id, unavailable_from, unavailable_to, reason, booking_id, created_at
		FROM availability_blocks
		WHERE property_id = $1
		  AND unavailable_from < $3
		  AND unavailable_to > $2
		ORDER BY unavailable_from
	`

	rows, err := r.pool.Query(ctx, query, propertyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocked ranges: %w", err)
	}
	defer rows.Close()

	var blocks []*model.AvailabilityBlock
	for rows.Next() {
		var block model.AvailabilityBlock
		err := rows.Scan(
			&block.ID,
			&block.PropertyID,
			&block.UnavailableFrom,
			&block.UnavailableTo,
			&block.Reason,
			&block.BookingID,
			&block.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan availability block: %w", err)
		}
		blocks = append(blocks, &block)
	}

	return blocks, rows.Err()
}

// CreateOwnerBlock inserts a non-booking block (owner_blocked, maintenance,
// seasonal_closure). The exclusion constraint rejects overlapping ranges.
func (r *AvailabilityRepository) CreateOwnerBlock(ctx context.Context, block *model.AvailabilityBlock) error {
	query := `
		INSERT INTO availability_blocks (property_id, unavailable_from, unavailable_to, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		block.PropertyID,
		block.UnavailableFrom,
		block.UnavailableTo,
		block.Reason,
	).Scan(&block.ID, &block.CreatedAt)

	if err != nil {
		if base.IsExclusionViolation(err) {
			return fmt.Errorf("%w: range overlaps an existing block", model.ErrConflict)
		}
		return fmt.Errorf("create owner block: %w", err)
	}

	return nil
}

func (r *AvailabilityRepository) GetBlock(ctx context.Context, id int64) (*model.AvailabilityBlock, error) {
	query := `
		SELECT id, property_id, unavailable_from, unavailable_to, reason, booking_id, created_at
		FROM availability_blocks
		WHERE id = $1
	`

	var block model.AvailabilityBlock
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&block.ID,
		&block.PropertyID,
		&block.UnavailableFrom,
		&block.UnavailableTo,
		&block.Reason,
		&block.BookingID,
		&block.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability block: %w", err)
	}

	return &block, nil
}

// DeleteOwnerBlock removes a block by id. Blocks owned by a booking are
// refused: those are released only by their booking's transition.
func (r *AvailabilityRepository) DeleteOwnerBlock(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_blocks
		WHERE id = $1 AND reason <> $2
	`, id, model.BlockReasonBooked)
	if err != nil {
		return false, fmt.Errorf("delete owner block: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
