package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/models"
)

// TransferRepository appends transfer audit rows to ClickHouse. The audit log
// is write-only on the mirroring path; queries run out of band.
type TransferRepository struct {
	db  *ClickHouseDB
	log *logging.Logger
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *ClickHouseDB) *TransferRepository {
	return &TransferRepository{
		db:  db,
		log: logging.Default().WithField("component", "transfer_repository"),
	}
}

// Insert appends a batch of transfer events
func (r *TransferRepository) Insert(ctx context.Context, events []*models.TransferEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO transfer_events (channel_id, msg_id, kind, outcome, detail, mode, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		occurredAt := e.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}
		if err := batch.Append(
			string(e.ChannelID),
			int64(e.MsgID),
			string(e.Kind),
			string(e.Outcome),
			e.Detail,
			e.Mode,
			occurredAt,
		); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

// Record appends one event asynchronously. Audit failures are logged and never
// affect the mirroring outcome.
func (r *TransferRepository) Record(ctx context.Context, event *models.TransferEvent) {
	go func() {
		insertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := r.Insert(insertCtx, []*models.TransferEvent{event}); err != nil {
			r.log.WithError(err).
				WithField("channel_id", event.ChannelID).
				WithField("msg_id", event.MsgID).
				Warn("failed to record transfer event")
		}
	}()
}

// CountByOutcome returns outcome counts for a channel; used by operational queries.
func (r *TransferRepository) CountByOutcome(ctx context.Context, channelID string) (map[string]uint64, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT outcome, count() AS cnt
		FROM transfer_events
		WHERE channel_id = ?
		GROUP BY outcome
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var outcome string
		var cnt uint64
		if err := rows.Scan(&outcome, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = cnt
	}

	return counts, rows.Err()
}
