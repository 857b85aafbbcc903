package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/types"
)

// ErrChannelNotFound is returned when a channel is not in the registry.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelRepository handles monitored-channel persistence. One row per source
// channel; last_msg_id is the durable cursor and never regresses.
type ChannelRepository struct {
	db *PostgresDB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *PostgresDB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// List retrieves all monitored channels
func (r *ChannelRepository) List(ctx context.Context) ([]*models.MonitoredChannel, error) {
	query := `
		SELECT channel_id, name, added_at, last_msg_id
		FROM monitored_channels
		ORDER BY added_at
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.MonitoredChannel
	for rows.Next() {
		var ch models.MonitoredChannel
		if err := rows.Scan(&ch.ChannelID, &ch.Name, &ch.AddedAt, &ch.LastMsgID); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, &ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}

	return channels, nil
}

// Get retrieves one monitored channel
func (r *ChannelRepository) Get(ctx context.Context, channelID types.ChannelID) (*models.MonitoredChannel, error) {
	query := `
		SELECT channel_id, name, added_at, last_msg_id
		FROM monitored_channels
		WHERE channel_id = $1
	`

	var ch models.MonitoredChannel
	err := r.db.Pool().QueryRow(ctx, query, channelID).Scan(
		&ch.ChannelID,
		&ch.Name,
		&ch.AddedAt,
		&ch.LastMsgID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return &ch, nil
}

// Upsert creates or updates a channel record. On conflict the cursor only
// moves forward: a re-run backfill over an older range never rewinds it.
func (r *ChannelRepository) Upsert(ctx context.Context, ch *models.MonitoredChannel) error {
	if ch.AddedAt.IsZero() {
		ch.AddedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO monitored_channels (channel_id, name, added_at, last_msg_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id)
		DO UPDATE SET
			name = EXCLUDED.name,
			last_msg_id = GREATEST(monitored_channels.last_msg_id, EXCLUDED.last_msg_id)
	`

	_, err := r.db.Pool().Exec(ctx, query, ch.ChannelID, ch.Name, ch.AddedAt, ch.LastMsgID)
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}

	return nil
}

// UpdateCursor advances the durable cursor for a channel.
func (r *ChannelRepository) UpdateCursor(ctx context.Context, channelID types.ChannelID, lastMsgID types.MessageID) error {
	query := `
		UPDATE monitored_channels
		SET last_msg_id = GREATEST(last_msg_id, $2)
		WHERE channel_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, channelID, lastMsgID)
	if err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrChannelNotFound
	}

	return nil
}

// Delete removes a channel from the registry
func (r *ChannelRepository) Delete(ctx context.Context, channelID types.ChannelID) error {
	query := `DELETE FROM monitored_channels WHERE channel_id = $1`

	result, err := r.db.Pool().Exec(ctx, query, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrChannelNotFound
	}

	return nil
}
